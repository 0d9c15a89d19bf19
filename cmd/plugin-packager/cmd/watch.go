package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/plugin-packager/internal/service/watcher"
)

var (
	// watchFlags holds overrides for the watch command.
	watchFlags packagingFlags

	// watchCmd rebuilds an archive whenever the source tree changes.
	watchCmd = &cobra.Command{
		Use:   "watch [root-dir] [output-zip]",
		Short: "Rebuild the archive whenever the plugin directory changes",
		Long: `Packages root-dir once, then watches it and packages again after every
batch of changes. The archive is always replaced. Failed builds are logged
and watching continues until the process is interrupted.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			settings, err := loadSettings(cmd, &watchFlags)
			if err != nil {
				return err
			}

			return watcher.Run(ctx, &watcher.Options{
				Root:        args[0],
				Destination: args[1],
				Settings:    settings,
			})
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	watchFlags.register(watchCmd)
	rootCmd.AddCommand(watchCmd)
}
