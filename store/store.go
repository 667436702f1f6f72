// Package store defines the persistence contract the case-execution engine
// relies on, together with the bundled implementations.  A store must make
// every appended transition durable before returning, and LoadCaseState must
// return the exact state as of the last durably appended transition.
package store

import (
	"context"

	"gitlab.com/caseflow-workflow/caseflow/model"
)

// PlaceTokens records the identifiers holding tokens on one condition.
type PlaceTokens struct {
	NetID       string   `msgpack:"net"`
	ConditionID string   `msgpack:"cond"`
	Identifiers []string `msgpack:"idents"`
}

// IdentNode is one node of a case's identifier ancestry tree.  The root node
// has an empty parent.
type IdentNode struct {
	ID     string `msgpack:"id"`
	Parent string `msgpack:"parent,omitempty"`
}

// Decomposition records one in-flight composite task execution: the host task
// whose identifier currently occupies the referenced sub-net.
type Decomposition struct {
	NetID      string `msgpack:"net"`
	TaskID     string `msgpack:"task"`
	SubnetID   string `msgpack:"subnet"`
	Identifier string `msgpack:"ident"`
}

// CaseSnapshot is the complete durable state of one case at a quiescent
// point: its marking, identifier tree, live and archived-pending work items,
// in-flight decompositions and data document.
type CaseSnapshot struct {
	CaseID         string            `msgpack:"caseId"`
	SpecID         string            `msgpack:"specId"`
	Status         model.CaseStatus  `msgpack:"status"`
	Root           string            `msgpack:"root"`
	Vars           []byte            `msgpack:"vars,omitempty"`
	Marking        []PlaceTokens     `msgpack:"marking,omitempty"`
	Identifiers    []IdentNode       `msgpack:"identifiers,omitempty"`
	Items          []*model.WorkItem `msgpack:"items,omitempty"`
	Decompositions []Decomposition   `msgpack:"decompositions,omitempty"`
	FailureReason  string            `msgpack:"failureReason,omitempty"`
}

// TransitionRecord is one durably recorded state transition.  Seq is assigned
// by the store on append and increases by one per accepted record.
type TransitionRecord struct {
	Seq    uint64        `msgpack:"seq"`
	CaseID string        `msgpack:"caseId"`
	Kind   string        `msgpack:"kind"`
	At     int64         `msgpack:"at"`
	State  *CaseSnapshot `msgpack:"state"`
}

// Store is the contract any persistence implementation must satisfy.
type Store interface {
	// PutSpecification durably records an immutable compiled specification.
	PutSpecification(ctx context.Context, spec *model.Specification) error
	// GetSpecification retrieves a specification by id.
	GetSpecification(ctx context.Context, id string) (*model.Specification, error)
	// AppendTransition durably appends a transition record for a case.  The
	// record must be on stable storage before the call returns.
	AppendTransition(ctx context.Context, caseID string, rec *TransitionRecord) error
	// LoadCaseState returns the case state as of the last appended transition.
	LoadCaseState(ctx context.Context, caseID string) (*CaseSnapshot, error)
	// Transitions returns a case's full transition history in append order,
	// whether the case is active or archived.
	Transitions(ctx context.Context, caseID string) ([]*TransitionRecord, error)
	// ActiveCases lists the ids of every non-archived case.
	ActiveCases(ctx context.Context) ([]string, error)
	// ArchiveCase moves a terminal case out of the active set.  Its transition
	// history remains available for audit.
	ArchiveCase(ctx context.Context, caseID string) error
	// Close releases the store.
	Close() error
}
