package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/plugin-packager/internal/service/packager"
)

var (
	// packageFlags holds overrides for the package command.
	packageFlags packagingFlags

	// packageCmd builds an archive from a source directory.
	packageCmd = &cobra.Command{
		Use:   "package [root-dir] [output-zip]",
		Short: "Build a ZIP archive from a plugin directory",
		Long: `Archives every regular file under root-dir whose relative path matches no
exclusion pattern. Entry names are relative to root-dir, use forward slashes
and are written in lexical order.

Patterns use shell glob syntax (*, ?, [...]) and are matched against every
run of consecutive path segments, so "*.pyc" excludes "a/b/c.pyc" and
"tmp/*" excludes everything below any "tmp" directory.`,
		Example: `  plugin-packager package ./threedecision threedecision.zip -e "*.pyc" -e "tmp/*"`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			settings, err := loadSettings(cmd, &packageFlags)
			if err != nil {
				return err
			}

			return packager.Run(ctx, &packager.Options{
				Root:        args[0],
				Destination: args[1],
				Settings:    settings,
			})
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	packageFlags.register(packageCmd)
	rootCmd.AddCommand(packageCmd)
}
