// Package packager turns a plugin source directory into a ZIP archive.
//
// A run compiles the exclusion rules, scans the source tree, takes the
// destination lock, streams every included file into a temporary archive and
// renames it into place. Optionally it writes a YAML manifest with member
// checksums next to the archive. Failures map to a small set of error kinds
// (ErrSourceNotFound, ErrDestinationUnwritable, ErrPatternSyntax, ...) that
// the CLI turns into exit codes.
package packager
