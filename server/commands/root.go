package commands

import (
	"log"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gitlab.com/caseflow-workflow/caseflow/common/logx"
	"gitlab.com/caseflow-workflow/caseflow/server/config"
	"gitlab.com/caseflow-workflow/caseflow/server/server"
	"gitlab.com/caseflow-workflow/caseflow/server/server/option"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "caseflow",
	Short: "Caseflow Server",
	Long:  ``,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.GetEnvironment()
		if err != nil {
			log.Fatal(err)
		}
		var lev slog.Level
		var addSource bool
		switch cfg.LogLevel {
		case "debug":
			lev = slog.LevelDebug
			addSource = true
		case "info":
			lev = slog.LevelInfo
		case "warn":
			lev = slog.LevelWarn
		default:
			lev = slog.LevelError
		}
		logx.SetDefault(lev, addSource, "caseflow")

		opts := []option.Option{
			option.DBPath(cfg.DBPath),
			option.RecoverOnStart(cfg.RecoverOnStart),
			option.RecoveryConcurrency(cfg.RecoveryConcurrency),
		}
		if cfg.EphemeralStorage {
			opts = append(opts, option.EphemeralStorage())
		}
		svr := server.New(opts...)
		svr.Details()
		if err := svr.Listen(); err != nil {
			slog.Error("server stopped", slog.Any("error", err))
			os.Exit(1)
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
