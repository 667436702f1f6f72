// Package commands assembles the caseflow CLI.  The CLI reads a store
// database directly, so it must not be pointed at a file a running server has
// open.
package commands

import (
	"os"

	"github.com/spf13/cobra"
	"gitlab.com/caseflow-workflow/caseflow/cli/commands/caseget"
	"gitlab.com/caseflow-workflow/caseflow/cli/commands/casehistory"
	"gitlab.com/caseflow-workflow/caseflow/cli/commands/caselist"
	"gitlab.com/caseflow-workflow/caseflow/cli/flag"
	"gitlab.com/caseflow-workflow/caseflow/cli/output"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "caseflow-cli",
	Short: "Caseflow CLI",
	Long:  ``,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flag.Value.Json {
			output.Current = &output.Json{}
		} else {
			output.Current = &output.Table{}
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	RootCmd.AddCommand(caselist.Cmd)
	RootCmd.AddCommand(caseget.Cmd)
	RootCmd.AddCommand(casehistory.Cmd)
	RootCmd.PersistentFlags().StringVarP(&flag.Value.DBPath, flag.DBPath, flag.DBPathShort, "caseflow.db", "the path of the store database file")
	RootCmd.PersistentFlags().BoolVarP(&flag.Value.Json, flag.Json, flag.JsonShort, false, "render output as json")
}
