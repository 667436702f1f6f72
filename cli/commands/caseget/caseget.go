// Package caseget dumps the current state of one case.
package caseget

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"gitlab.com/caseflow-workflow/caseflow/cli/flag"
	"gitlab.com/caseflow-workflow/caseflow/cli/output"
	"gitlab.com/caseflow-workflow/caseflow/store"
)

// Cmd is the cobra command object
var Cmd = &cobra.Command{
	Use:   "get",
	Short: "Shows the state of a case, active or archived",
	Long:  ``,
	RunE:  run,
	Args:  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
}

func run(cmd *cobra.Command, args []string) error {
	if err := cmd.ValidateArgs(args); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	ctx := context.Background()
	st, err := store.OpenBolt(flag.Value.DBPath, 0o600)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	snap, err := st.LoadCaseState(ctx, args[0])
	if err != nil {
		return fmt.Errorf("load case: %w", err)
	}

	state := &output.CaseState{
		CaseID:        snap.CaseID,
		SpecID:        snap.SpecID,
		Status:        snap.Status.String(),
		FailureReason: snap.FailureReason,
	}
	for _, p := range snap.Marking {
		state.Marking = append(state.Marking, output.PlaceState{
			NetID:       p.NetID,
			ConditionID: p.ConditionID,
			Identifiers: p.Identifiers,
		})
	}
	for _, item := range snap.Items {
		state.Items = append(state.Items, output.ItemListing{
			ItemID:      item.ID,
			TaskID:      item.TaskID,
			NetID:       item.NetID,
			State:       item.State.String(),
			Participant: item.Participant,
		})
	}
	output.Current.OutputCaseState(state)
	return nil
}
