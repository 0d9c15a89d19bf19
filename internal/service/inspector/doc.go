// Package inspector reads archives produced by the packager.
//
// List prints archive members. Verify rebuilds the expected member set from
// the source tree and exclusions, then reports missing, unexpected and
// modified entries, and any disagreement with the checksum manifest.
package inspector
