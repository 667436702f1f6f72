// Package casehistory lists the transition history of one case.
package casehistory

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gitlab.com/caseflow-workflow/caseflow/cli/flag"
	"gitlab.com/caseflow-workflow/caseflow/cli/output"
	"gitlab.com/caseflow-workflow/caseflow/store"
)

// Cmd is the cobra command object
var Cmd = &cobra.Command{
	Use:   "history",
	Short: "Lists the transition history of a case, active or archived",
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

	recs, err := st.Transitions(ctx, args[0])
	if err != nil {
		return fmt.Errorf("load case history: %w", err)
	}

	transitions := make([]output.Transition, 0, len(recs))
	for _, rec := range recs {
		tr := output.Transition{
			Seq:  rec.Seq,
			Kind: rec.Kind,
			At:   time.Unix(0, rec.At).UTC().Format(time.RFC3339Nano),
		}
		if rec.State != nil {
			tr.Status = rec.State.Status.String()
		}
		transitions = append(transitions, tr)
	}
	output.Current.OutputHistory(transitions)
	return nil
}
