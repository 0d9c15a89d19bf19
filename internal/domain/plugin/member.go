package plugin

import (
	"io/fs"
	"sort"
	"time"
)

// Member is a single regular file of a plugin source tree or archive.
type Member struct {
	// Path is slash separated and relative to the tree root (or archive root).
	Path string
	// Size is the uncompressed size in bytes.
	Size int64
	// Mode holds the file permission bits.
	Mode fs.FileMode
	// ModTime is the last modification time.
	ModTime time.Time
}

// SourceTree is the directory of plugin files to be packaged.
type SourceTree struct {
	// Root is the directory the member paths are relative to.
	Root string
	// Members lists every regular file under Root in lexical walk order.
	Members []Member
}

// Archive describes a produced ZIP artifact.
type Archive struct {
	// Path is the final location of the archive.
	Path string
	// Members lists the stored entries in write order.
	Members []Member
	// Size is the archive size on disk.
	Size int64
}

// Paths returns the member paths in their stored order.
func Paths(members []Member) []string {
	paths := make([]string, 0, len(members))
	for _, m := range members {
		paths = append(paths, m.Path)
	}

	return paths
}

// TotalSize sums the uncompressed size of all members.
func TotalSize(members []Member) int64 {
	var total int64
	for _, m := range members {
		total += m.Size
	}

	return total
}

// Diff compares two path sets and returns the sorted paths present only in
// want (missing) and only in got (unexpected).
func Diff(want, got []string) (missing, unexpected []string) {
	wantSet := toSet(want)
	gotSet := toSet(got)

	for p := range wantSet {
		if _, ok := gotSet[p]; !ok {
			missing = append(missing, p)
		}
	}

	for p := range gotSet {
		if _, ok := wantSet[p]; !ok {
			unexpected = append(unexpected, p)
		}
	}

	sort.Strings(missing)
	sort.Strings(unexpected)

	return missing, unexpected
}

// toSet converts a slice to a set for quick lookups.
func toSet[T comparable](elements []T) map[T]struct{} {
	result := make(map[T]struct{}, len(elements))
	for _, value := range elements {
		result[value] = struct{}{}
	}

	return result
}
