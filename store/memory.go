package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
	"gitlab.com/caseflow-workflow/caseflow/model"
	errors2 "gitlab.com/caseflow-workflow/caseflow/server/errors"
)

// MemoryStore is an in-process Store used for tests and embedding.  Records
// pass through the same msgpack encoding as the durable stores so that a
// loaded snapshot is always an independent decoded copy, never a live
// reference into engine state.
type MemoryStore struct {
	mx       sync.Mutex
	specs    map[string][]byte
	cases    map[string][][]byte
	archived map[string][][]byte
	failWith error
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		specs:    make(map[string][]byte),
		cases:    make(map[string][][]byte),
		archived: make(map[string][][]byte),
	}
}

// FailWith arranges for every subsequent mutating call to fail with err.
// Passing nil restores normal operation.
func (s *MemoryStore) FailWith(err error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.failWith = err
}

// PutSpecification records an immutable compiled specification.
func (s *MemoryStore) PutSpecification(ctx context.Context, spec *model.Specification) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	b, err := msgpack.Marshal(spec)
	if err != nil {
		return fmt.Errorf("marshal specification: %w", err)
	}
	s.specs[spec.ID] = b
	return nil
}

// GetSpecification retrieves a specification by id.
func (s *MemoryStore) GetSpecification(ctx context.Context, id string) (*model.Specification, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	b, ok := s.specs[id]
	if !ok {
		return nil, fmt.Errorf("specification %s: %w", id, errors2.ErrSpecNotFound)
	}
	spec := &model.Specification{}
	if err := msgpack.Unmarshal(b, spec); err != nil {
		return nil, fmt.Errorf("unmarshal specification %s: %w", id, err)
	}
	return spec, nil
}

// AppendTransition appends a transition record for a case.
func (s *MemoryStore) AppendTransition(ctx context.Context, caseID string, rec *TransitionRecord) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	rec.Seq = uint64(len(s.cases[caseID]) + 1)
	b, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal transition record: %w", err)
	}
	s.cases[caseID] = append(s.cases[caseID], b)
	return nil
}

// CorruptLast overwrites the last appended record for a case with garbage.
// Test use only.
func (s *MemoryStore) CorruptLast(caseID string) {
	s.mx.Lock()
	defer s.mx.Unlock()
	recs := s.cases[caseID]
	if len(recs) > 0 {
		recs[len(recs)-1] = []byte{0xc1} // never a valid msgpack document
	}
}

// LoadCaseState returns the case state as of the last appended transition.
func (s *MemoryStore) LoadCaseState(ctx context.Context, caseID string) (*CaseSnapshot, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	recs, ok := s.cases[caseID]
	if !ok {
		recs, ok = s.archived[caseID]
	}
	if !ok {
		return nil, fmt.Errorf("case %s: %w", caseID, errors2.ErrCaseNotFound)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("case %s has no transitions: %w", caseID, errors2.ErrCorruptState)
	}
	rec := &TransitionRecord{}
	if err := msgpack.Unmarshal(recs[len(recs)-1], rec); err != nil {
		return nil, fmt.Errorf("unmarshal last transition for case %s: %w", caseID, errors2.ErrCorruptState)
	}
	if rec.State == nil {
		return nil, fmt.Errorf("last transition for case %s carries no state: %w", caseID, errors2.ErrCorruptState)
	}
	return rec.State, nil
}

// Transitions returns a case's full transition history in append order.
func (s *MemoryStore) Transitions(ctx context.Context, caseID string) ([]*TransitionRecord, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	raw, ok := s.cases[caseID]
	if !ok {
		raw, ok = s.archived[caseID]
	}
	if !ok {
		return nil, fmt.Errorf("case %s: %w", caseID, errors2.ErrCaseNotFound)
	}
	recs := make([]*TransitionRecord, 0, len(raw))
	for _, b := range raw {
		rec := &TransitionRecord{}
		if err := msgpack.Unmarshal(b, rec); err != nil {
			return nil, fmt.Errorf("unmarshal transition for case %s: %w", caseID, errors2.ErrCorruptState)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// ActiveCases lists the ids of every non-archived case.
func (s *MemoryStore) ActiveCases(ctx context.Context) ([]string, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	ids := make([]string, 0, len(s.cases))
	for id := range s.cases {
		ids = append(ids, id)
	}
	return ids, nil
}

// ArchiveCase moves a terminal case out of the active set.
func (s *MemoryStore) ArchiveCase(ctx context.Context, caseID string) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	recs, ok := s.cases[caseID]
	if !ok {
		return fmt.Errorf("case %s: %w", caseID, errors2.ErrCaseNotFound)
	}
	s.archived[caseID] = recs
	delete(s.cases, caseID)
	return nil
}

// Close releases the store.
func (s *MemoryStore) Close() error {
	return nil
}
