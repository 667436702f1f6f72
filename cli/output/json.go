package output

import (
	"encoding/json"
)

// Json contains the output methods for returning json CLI responses.
type Json struct {
}

// OutputCaseList returns a CLI response.
func (c *Json) OutputCaseList(cases []CaseListing) {
	c.outJson(CaseListOutput{Cases: cases})
}

// OutputCaseState returns a CLI response.
func (c *Json) OutputCaseState(state *CaseState) {
	c.outJson(state)
}

// OutputHistory returns a CLI response.
func (c *Json) OutputHistory(transitions []Transition) {
	c.outJson(HistoryOutput{Transitions: transitions})
}

func (c *Json) outJson(js interface{}) {
	op, err := json.Marshal(&js)
	if err != nil {
		panic(err)
	}
	if _, err := Stream.Write(op); err != nil {
		panic(err)
	}
	if _, err := Stream.Write([]byte("\n")); err != nil {
		panic(err)
	}
}
