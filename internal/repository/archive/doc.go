// Package archive persists plugin archives as ZIP files on disk.
//
// Writer streams members into a temporary file created next to the
// destination and renames it into place only on Commit, so an interrupted
// or failed run never leaves a truncated archive behind. Reader lists,
// checksums and extracts existing archives.
package archive
