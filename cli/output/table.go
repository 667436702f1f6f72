package output

import (
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Table contains the output methods for returning tabular CLI responses.
type Table struct {
}

// OutputCaseList returns a CLI response.
func (c *Table) OutputCaseList(cases []CaseListing) {
	t := newWriter()
	t.AppendHeader(table.Row{"CASE", "SPECIFICATION", "STATUS", "ITEMS"})
	for _, cs := range cases {
		t.AppendRow(table.Row{cs.CaseID, cs.SpecID, cs.Status, cs.Items})
	}
	t.Render()
}

// OutputCaseState returns a CLI response.
func (c *Table) OutputCaseState(state *CaseState) {
	t := newWriter()
	t.AppendHeader(table.Row{"CASE", "VALUE"})
	t.AppendRows([]table.Row{
		{"Case ID      ", state.CaseID},
		{"Specification", state.SpecID},
		{"Status       ", state.Status},
	})
	if state.FailureReason != "" {
		t.AppendRow(table.Row{"Failure      ", state.FailureReason})
	}
	t.Render()

	if len(state.Marking) > 0 {
		mt := newWriter()
		mt.AppendHeader(table.Row{"NET", "CONDITION", "IDENTIFIERS"})
		for _, p := range state.Marking {
			mt.AppendRow(table.Row{p.NetID, p.ConditionID, strings.Join(p.Identifiers, ", ")})
		}
		mt.Render()
	}

	if len(state.Items) > 0 {
		it := newWriter()
		it.AppendHeader(table.Row{"ITEM", "TASK", "NET", "STATE", "PARTICIPANT"})
		for _, item := range state.Items {
			it.AppendRow(table.Row{item.ItemID, item.TaskID, item.NetID, item.State, item.Participant})
		}
		it.Render()
	}
}

// OutputHistory returns a CLI response.
func (c *Table) OutputHistory(transitions []Transition) {
	t := newWriter()
	t.AppendHeader(table.Row{"SEQ", "EVENT", "AT", "STATUS"})
	for _, tr := range transitions {
		t.AppendRow(table.Row{tr.Seq, tr.Kind, tr.At, tr.Status})
	}
	t.Render()
}

func newWriter() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetOutputMirror(Stream)
	return t
}
