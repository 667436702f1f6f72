// Package caselist lists the active cases held in a store.
package caselist

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"gitlab.com/caseflow-workflow/caseflow/cli/flag"
	"gitlab.com/caseflow-workflow/caseflow/cli/output"
	"gitlab.com/caseflow-workflow/caseflow/store"
)

// Cmd is the cobra command object
var Cmd = &cobra.Command{
	Use:   "list",
	Short: "Lists the active cases",
	Long:  ``,
	RunE:  run,
	Args:  cobra.NoArgs,
}

func run(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	st, err := store.OpenBolt(flag.Value.DBPath, 0o600)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	ids, err := st.ActiveCases(ctx)
	if err != nil {
		return fmt.Errorf("list active cases: %w", err)
	}
	sort.Strings(ids)

	listings := make([]output.CaseListing, 0, len(ids))
	for _, id := range ids {
		snap, err := st.LoadCaseState(ctx, id)
		if err != nil {
			return fmt.Errorf("load case %s: %w", id, err)
		}
		listings = append(listings, output.CaseListing{
			CaseID: snap.CaseID,
			SpecID: snap.SpecID,
			Status: snap.Status.String(),
			Items:  len(snap.Items),
		})
	}
	output.Current.OutputCaseList(listings)
	return nil
}
