// Package config defines packaging settings used by the CLI and provides
// helpers to load, validate and save them in YAML format.
//
// The Config type holds default exclusion patterns, required entry files,
// the archive prefix and the overwrite, reproducible and manifest switches.
package config
