package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/plugin-packager/internal/service/inspector"
)

var (
	// verifyFlags holds the selection overrides for the verify command.
	verifyFlags packagingFlags

	// listCmd prints archive members.
	listCmd = &cobra.Command{
		Use:   "list [archive-zip]",
		Short: "Print the entries of an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			if _, err := loadSettings(cmd, nil); err != nil {
				return err
			}

			return inspector.List(ctx, &inspector.Options{
				ArchivePath: args[0],
				Out:         cmd.OutOrStdout(),
			})
		},
	}

	// verifyCmd compares an archive with its source directory.
	verifyCmd = &cobra.Command{
		Use:   "verify [archive-zip] [root-dir]",
		Short: "Check that an archive matches its plugin directory",
		Long: `Compares the entries and checksums of an archive with the files the same
exclusions would select from root-dir today. When a manifest written by
"package --manifest" sits next to the archive, its checksums are checked too.
Any difference is printed and the command fails.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			settings, err := loadSettings(cmd, &verifyFlags)
			if err != nil {
				return err
			}

			return inspector.Run(ctx, &inspector.Options{
				ArchivePath: args[0],
				Root:        args[1],
				Settings:    settings,
				Out:         cmd.OutOrStdout(),
			})
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	verifyFlags.registerSelection(verifyCmd)
	rootCmd.AddCommand(listCmd, verifyCmd)
}
