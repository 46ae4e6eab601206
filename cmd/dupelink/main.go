package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/autobrr/dupelink/cmd"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "dupelink",
		Short: "A CLI duplicate file hardlinker",
		Long: `A CLI application that finds duplicate files in a directory tree and replaces them
with hardlinks to reclaim space.
`,
		SilenceErrors: true,
	}

	// Parse persistent flags
	rootCmd.PersistentFlags().StringVar(&cmd.FlagConfigFolder, "config-dir", cmd.FlagConfigFolder, "Config folder")
	rootCmd.PersistentFlags().StringVarP(&cmd.FlagConfigFile, "config", "c", cmd.FlagConfigFile, "Config file")
	rootCmd.PersistentFlags().StringVarP(&cmd.FlagLogFile, "log", "l", cmd.FlagLogFile, "Log file")
	rootCmd.PersistentFlags().CountVarP(&cmd.FlagLogLevel, "verbose", "v", "Verbose level")

	rootCmd.PersistentFlags().BoolVar(&cmd.FlagDryRun, "dry-run", false, "Dry run mode")
	rootCmd.PersistentFlags().StringVar(&cmd.FlagTraceFile, "trace-file", "", "Write OpenTelemetry spans to this file")

	rootCmd.AddCommand(cmd.ScanCommand())
	rootCmd.AddCommand(cmd.LinkCommand())
	rootCmd.AddCommand(cmd.HistoryCommand())
	rootCmd.AddCommand(cmd.VersionCommand())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	cmd.Shutdown(context.Background())

	if err != nil {
		fmt.Println(err)
		os.Exit(cmd.ExitCode(err))
	}
}
