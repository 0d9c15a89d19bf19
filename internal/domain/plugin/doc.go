// Package plugin contains core domain types for plugin packaging.
//
// It defines Member (one file of a plugin source tree), SourceTree (the
// directory being packaged), Archive (the produced ZIP) and Manifest (the
// optional checksum sidecar), plus set helpers used to compare member lists.
package plugin
