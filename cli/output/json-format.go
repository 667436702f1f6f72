package output

// CaseListOutput is the JSON envelope of a case list.
type CaseListOutput struct {
	Cases []CaseListing `json:"cases"`
}

// HistoryOutput is the JSON envelope of a case transition history.
type HistoryOutput struct {
	Transitions []Transition `json:"transitions"`
}
