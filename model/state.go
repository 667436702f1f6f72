package model

import "fmt"

// CaseStatus is the run status of a case.
type CaseStatus int

const (
	// CaseRunning indicates a case making normal progress.
	CaseRunning CaseStatus = iota
	// CaseSuspended indicates a case that accepts only resume and cancel events.
	CaseSuspended
	// CaseCompleted indicates the output condition received the root token.
	CaseCompleted
	// CaseCancelled indicates the case was cancelled by request.
	CaseCancelled
	// CaseFailed indicates a case-fatal data, structural or recovery error.
	CaseFailed
)

// String returns the display name for a case status.
func (s CaseStatus) String() string {
	switch s {
	case CaseRunning:
		return "running"
	case CaseSuspended:
		return "suspended"
	case CaseCompleted:
		return "completed"
	case CaseCancelled:
		return "cancelled"
	case CaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether the status permits no further progress.
func (s CaseStatus) Terminal() bool {
	return s == CaseCompleted || s == CaseCancelled || s == CaseFailed
}

// WorkItemState is the life-cycle state of a work item.
type WorkItemState int

const (
	// ItemEnabled indicates the item is offered and may be started.
	ItemEnabled WorkItemState = iota
	// ItemFired indicates the engine has consumed the item's input tokens.
	ItemFired
	// ItemExecuting indicates a participant is working on the item.
	ItemExecuting
	// ItemComplete is the normal terminal state.
	ItemComplete
	// ItemFailed is the terminal state reached through FailWorkItem.
	ItemFailed
	// ItemForcedComplete is the terminal state reached by forced completion.
	ItemForcedComplete
	// ItemSuspended overlays any non-terminal state; the prior state is
	// restored on resume.
	ItemSuspended
	// ItemCancelled is the terminal state reached through cancellation.
	ItemCancelled
)

// String returns the display name for a work item state.
func (s WorkItemState) String() string {
	switch s {
	case ItemEnabled:
		return "enabled"
	case ItemFired:
		return "fired"
	case ItemExecuting:
		return "executing"
	case ItemComplete:
		return "complete"
	case ItemFailed:
		return "failed"
	case ItemForcedComplete:
		return "forcedComplete"
	case ItemSuspended:
		return "suspended"
	case ItemCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether a work item state permits no further transition.
func (s WorkItemState) Terminal() bool {
	switch s {
	case ItemComplete, ItemFailed, ItemForcedComplete, ItemCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether the work-item state machine permits moving
// from s to next.  Suspension is an overlay: it is reachable from any
// non-terminal state and resume restores the prior state, which is validated
// by the life-cycle controller rather than here.
func (s WorkItemState) CanTransition(next WorkItemState) bool {
	if s.Terminal() {
		return false
	}
	switch next {
	case ItemCancelled, ItemSuspended:
		return true
	case ItemFired:
		return s == ItemEnabled
	case ItemExecuting:
		return s == ItemFired
	case ItemComplete, ItemFailed:
		return s == ItemExecuting
	case ItemForcedComplete:
		return s == ItemEnabled || s == ItemFired || s == ItemExecuting
	default:
		return false
	}
}

// WorkItem is the externally addressable unit corresponding to one task
// firing for one identifier.  Parent is non-empty only for multiple-instance
// children.  References are case-scoped string keys, never object pointers.
type WorkItem struct {
	ID          string        `msgpack:"id"`
	CaseID      string        `msgpack:"caseId"`
	NetID       string        `msgpack:"netId"`
	TaskID      string        `msgpack:"taskId"`
	Identifier  string        `msgpack:"identifier"`
	Parent      string        `msgpack:"parent,omitempty"`
	State       WorkItemState `msgpack:"state"`
	Resume      WorkItemState `msgpack:"resume,omitempty"`
	Participant string        `msgpack:"participant,omitempty"`
	DeadlineAt  int64         `msgpack:"deadlineAt,omitempty"`
}
