package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oshokin/plugin-packager/internal/config"
)

// errConfigExists is returned when init would overwrite a configuration file.
var errConfigExists = errors.New("configuration file already exists")

var (
	// initForce allows init to replace an existing file.
	initForce bool

	// initCmd writes a configuration file populated with defaults.
	initCmd = &cobra.Command{
		Use:   "init [config-path]",
		Short: "Write a configuration file with the default exclusions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultConfigFilename
			if len(args) > 0 {
				path = args[0]
			}

			if _, err := os.Stat(path); err == nil && !initForce {
				return fmt.Errorf("%w: %s", errConfigExists, path)
			}

			if err := config.Save(path, config.Default()); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)

			return nil
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "replace an existing file")
	rootCmd.AddCommand(initCmd)
}
