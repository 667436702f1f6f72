package keys

const (
	// CaseID is the key for the unique identifier of the executing case.
	CaseID = "case_id"
	// SpecificationID is the key for the specification a case was launched from.
	SpecificationID = "spec_id"
	// NetID is the key for the net containing the currently executing element.
	NetID = "net_id"
	// TaskID is the key for the task a work item belongs to.
	TaskID = "task_id"
	// ConditionID is the key for a condition involved in a marking change.
	ConditionID = "cond_id"
	// WorkItemID is the key for the externally addressable work item.
	WorkItemID = "item_id"
	// Identifier is the key for the execution identifier owning a token.
	Identifier = "ident"
	// ParentIdentifier is the key for the parent of an execution identifier.
	ParentIdentifier = "parent_ident"
	// State is the key for the current life-cycle state of a work item.
	State = "item_state"
	// CaseStatus is the key for the run status of a case.
	CaseStatus = "case_status"
	// EventKind is the key for the kind of case event being applied.
	EventKind = "event"
	// Participant is the key for the participant a work item was started by.
	Participant = "participant"
	// Expression is the key for a predicate or instance-count expression.
	Expression = "expression"
)
