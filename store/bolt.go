package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"time"

	version2 "github.com/hashicorp/go-version"
	"github.com/vmihailenco/msgpack/v5"
	"gitlab.com/caseflow-workflow/caseflow/model"
	errors2 "gitlab.com/caseflow-workflow/caseflow/server/errors"
	"go.etcd.io/bbolt"
)

// SchemaVersion is the store schema written by this engine build.
const SchemaVersion = "1.0.0"

// schemaConstraint describes the schema versions this build can read.
const schemaConstraint = ">= 1.0.0, < 2.0.0"

var (
	bucketMeta    = []byte("meta")
	bucketSpecs   = []byte("specifications")
	bucketCases   = []byte("cases")
	bucketArchive = []byte("archive")
	keySchema     = []byte("schema")
)

// BoltStore is a Store implementation on a bbolt database file.  Appends are
// durable on return: bbolt fsyncs on transaction commit.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBolt opens or creates a bbolt-backed store at path.  A database written
// by an incompatible schema version is refused with ErrStoreVersion.
func OpenBolt(path string, mode os.FileMode) (*BoltStore, error) {
	if mode == 0 {
		mode = 0o600
	}
	opts := *bbolt.DefaultOptions
	opts.Timeout = 5 * time.Second
	db, err := bbolt.Open(path, mode, &opts)
	if err != nil {
		return nil, fmt.Errorf("open store database: %w", err)
	}
	s := &BoltStore{db: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialise store database: %w", err)
	}
	return s, nil
}

func (s *BoltStore) init() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketSpecs, bucketCases, bucketArchive} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		meta := tx.Bucket(bucketMeta)
		existing := meta.Get(keySchema)
		if existing == nil {
			if err := meta.Put(keySchema, []byte(SchemaVersion)); err != nil {
				return fmt.Errorf("record schema version: %w", err)
			}
			return nil
		}
		v, err := version2.NewVersion(string(existing))
		if err != nil {
			return fmt.Errorf("parse store schema version %q: %w", existing, err)
		}
		constraint, err := version2.NewConstraint(schemaConstraint)
		if err != nil {
			return fmt.Errorf("parse schema constraint: %w", err)
		}
		if !constraint.Check(v) {
			return fmt.Errorf("store written by schema %s, this build reads %s: %w", v, schemaConstraint, errors2.ErrStoreVersion)
		}
		return nil
	})
}

// PutSpecification durably records an immutable compiled specification.
func (s *BoltStore) PutSpecification(ctx context.Context, spec *model.Specification) error {
	b, err := msgpack.Marshal(spec)
	if err != nil {
		return fmt.Errorf("marshal specification: %w", err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSpecs).Put([]byte(spec.ID), b)
	})
	if err != nil {
		return fmt.Errorf("put specification: %w", err)
	}
	return nil
}

// GetSpecification retrieves a specification by id.
func (s *BoltStore) GetSpecification(ctx context.Context, id string) (*model.Specification, error) {
	var spec *model.Specification
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSpecs).Get([]byte(id))
		if b == nil {
			return fmt.Errorf("specification %s: %w", id, errors2.ErrSpecNotFound)
		}
		spec = &model.Specification{}
		if err := msgpack.Unmarshal(b, spec); err != nil {
			return fmt.Errorf("unmarshal specification %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get specification: %w", err)
	}
	return spec, nil
}

// AppendTransition durably appends a transition record for a case.
func (s *BoltStore) AppendTransition(ctx context.Context, caseID string, rec *TransitionRecord) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		cb, err := tx.Bucket(bucketCases).CreateBucketIfNotExists([]byte(caseID))
		if err != nil {
			return fmt.Errorf("create case bucket: %w", err)
		}
		seq, err := cb.NextSequence()
		if err != nil {
			return fmt.Errorf("allocate transition sequence: %w", err)
		}
		rec.Seq = seq
		b, err := msgpack.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal transition record: %w", err)
		}
		return cb.Put(seqKey(seq), b)
	})
	if err != nil {
		return fmt.Errorf("append transition: %w", err)
	}
	return nil
}

// LoadCaseState returns the case state as of the last appended transition.
func (s *BoltStore) LoadCaseState(ctx context.Context, caseID string) (*CaseSnapshot, error) {
	var snap *CaseSnapshot
	err := s.db.View(func(tx *bbolt.Tx) error {
		cb := tx.Bucket(bucketCases).Bucket([]byte(caseID))
		if cb == nil {
			cb = tx.Bucket(bucketArchive).Bucket([]byte(caseID))
		}
		if cb == nil {
			return fmt.Errorf("case %s: %w", caseID, errors2.ErrCaseNotFound)
		}
		_, v := cb.Cursor().Last()
		if v == nil {
			return fmt.Errorf("case %s has no transitions: %w", caseID, errors2.ErrCorruptState)
		}
		rec := &TransitionRecord{}
		if err := msgpack.Unmarshal(v, rec); err != nil {
			return fmt.Errorf("unmarshal last transition for case %s: %w", caseID, errors2.ErrCorruptState)
		}
		if rec.State == nil {
			return fmt.Errorf("last transition for case %s carries no state: %w", caseID, errors2.ErrCorruptState)
		}
		snap = rec.State
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load case state: %w", err)
	}
	return snap, nil
}

// Transitions returns a case's full transition history in append order.
func (s *BoltStore) Transitions(ctx context.Context, caseID string) ([]*TransitionRecord, error) {
	var recs []*TransitionRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		cb := tx.Bucket(bucketCases).Bucket([]byte(caseID))
		if cb == nil {
			cb = tx.Bucket(bucketArchive).Bucket([]byte(caseID))
		}
		if cb == nil {
			return fmt.Errorf("case %s: %w", caseID, errors2.ErrCaseNotFound)
		}
		return cb.ForEach(func(k, v []byte) error {
			rec := &TransitionRecord{}
			if err := msgpack.Unmarshal(v, rec); err != nil {
				return fmt.Errorf("unmarshal transition for case %s: %w", caseID, errors2.ErrCorruptState)
			}
			recs = append(recs, rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	return recs, nil
}

// ActiveCases lists the ids of every non-archived case.
func (s *BoltStore) ActiveCases(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCases).ForEachBucket(func(k []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list active cases: %w", err)
	}
	return ids, nil
}

// ArchiveCase moves a terminal case's transition history into the archive
// bucket and removes it from the active set.
func (s *BoltStore) ArchiveCase(ctx context.Context, caseID string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		cases := tx.Bucket(bucketCases)
		cb := cases.Bucket([]byte(caseID))
		if cb == nil {
			return fmt.Errorf("case %s: %w", caseID, errors2.ErrCaseNotFound)
		}
		ab, err := tx.Bucket(bucketArchive).CreateBucketIfNotExists([]byte(caseID))
		if err != nil {
			return fmt.Errorf("create archive bucket: %w", err)
		}
		if err := cb.ForEach(func(k, v []byte) error {
			return ab.Put(k, v)
		}); err != nil {
			return fmt.Errorf("copy case history: %w", err)
		}
		return cases.DeleteBucket([]byte(caseID))
	})
	if err != nil {
		return fmt.Errorf("archive case: %w", err)
	}
	return nil
}

// Close releases the store.
func (s *BoltStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close store database: %w", err)
	}
	return nil
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}
