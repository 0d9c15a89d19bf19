package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/plugin-packager/internal/config"
)

// packagingFlags are the configuration overrides shared by package, watch and verify.
type packagingFlags struct {
	exclude      []string
	require      []string
	prefix       string
	force        bool
	reproducible bool
	manifest     bool
}

// registerSelection adds the flags that decide which entries an archive holds.
func (f *packagingFlags) registerSelection(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.exclude, "exclude", "e", nil,
		"glob pattern of paths to leave out, repeatable")
	cmd.Flags().StringVar(&f.prefix, "prefix", "", "directory to store entries under inside the archive")
}

// register adds every packaging flag.
func (f *packagingFlags) register(cmd *cobra.Command) {
	f.registerSelection(cmd)

	cmd.Flags().StringArrayVarP(&f.require, "require", "r", nil,
		"relative path that must end up in the archive, repeatable")
	cmd.Flags().BoolVarP(&f.force, "force", "f", false, "replace an existing archive")
	cmd.Flags().BoolVar(&f.reproducible, "reproducible", false, "store entries with a fixed timestamp")
	cmd.Flags().BoolVar(&f.manifest, "manifest", false, "write a checksum manifest next to the archive")
}

// apply merges the flags into settings. Lists are appended, scalars override
// only when set on the command line.
func (f *packagingFlags) apply(cmd *cobra.Command, settings *config.Config) {
	settings.Exclude = append(settings.Exclude, f.exclude...)
	settings.Require = append(settings.Require, f.require...)

	flags := cmd.Flags()

	if flags.Changed("prefix") {
		settings.Prefix = f.prefix
	}

	if flags.Changed("force") {
		settings.Overwrite = f.force
	}

	if flags.Changed("reproducible") {
		settings.Reproducible = f.reproducible
	}

	if flags.Changed("manifest") {
		settings.Manifest = f.manifest
	}
}
