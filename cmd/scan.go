package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/autobrr/dupelink/pkg/config"
)

func ScanCommand() *cobra.Command {
	var flags scanFlags

	command := &cobra.Command{
		Use:   "scan [DIR]",
		Short: "Report duplicate files without changing anything",
		Long: `Scan a directory tree for files with identical content and report the duplicate
sets and the space hardlinking them would reclaim. DIR defaults to the current directory.`,
		Example: `  dupelink scan /data
  dupelink scan /data --pattern "*.mkv" --list`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
	}

	flags.register(command)

	command.RunE = func(cmd *cobra.Command, args []string) error {
		if err := initCore(); err != nil {
			return err
		}

		start := time.Now()

		opts, err := resolveScanOptions(cmd, args, &flags, config.Config)
		if err != nil {
			return err
		}

		if _, err := runScan(cmd.Context(), opts, cmd.OutOrStdout()); err != nil {
			return err
		}

		log.Debugf("Finished in %s", time.Since(start).Truncate(time.Millisecond))
		return nil
	}

	return command
}
