// Package output renders CLI command results.
package output

import (
	"io"
	"os"
)

// CaseListing is one row of a case list.
type CaseListing struct {
	CaseID string `json:"caseId"`
	SpecID string `json:"specId"`
	Status string `json:"status"`
	Items  int    `json:"items"`
}

// ItemListing is one work item of a case state dump.
type ItemListing struct {
	ItemID      string `json:"itemId"`
	TaskID      string `json:"taskId"`
	NetID       string `json:"netId"`
	State       string `json:"state"`
	Participant string `json:"participant,omitempty"`
}

// CaseState is a rendered case snapshot.
type CaseState struct {
	CaseID        string        `json:"caseId"`
	SpecID        string        `json:"specId"`
	Status        string        `json:"status"`
	FailureReason string        `json:"failureReason,omitempty"`
	Marking       []PlaceState  `json:"marking,omitempty"`
	Items         []ItemListing `json:"items,omitempty"`
}

// PlaceState is one marked condition of a case state dump.
type PlaceState struct {
	NetID       string   `json:"netId"`
	ConditionID string   `json:"conditionId"`
	Identifiers []string `json:"identifiers"`
}

// Transition is one rendered transition record.
type Transition struct {
	Seq    uint64 `json:"seq"`
	Kind   string `json:"kind"`
	At     string `json:"at"`
	Status string `json:"status"`
}

// Method represents the output method.
type Method interface {
	OutputCaseList(cases []CaseListing)
	OutputCaseState(state *CaseState)
	OutputHistory(transitions []Transition)
}

// Current is the currently selected output method.
var Current Method

// Stream contains the output stream.  By default this is os.Stdout, however,
// for testing it can be set to a byte buffer for instance.
var Stream io.Writer = os.Stdout
