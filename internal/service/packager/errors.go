package packager

import (
	"errors"

	"github.com/oshokin/plugin-packager/internal/repository/archive"
	"github.com/oshokin/plugin-packager/internal/rules"
	"github.com/oshokin/plugin-packager/internal/service/common"
)

var (
	// ErrSourceNotFound means the root is missing, is not a directory, or a file below it cannot be read.
	ErrSourceNotFound = errors.New("source not found or unreadable")
	// ErrDestinationUnwritable means the archive could not be created, written or moved into place.
	ErrDestinationUnwritable = errors.New("destination unwritable")
	// ErrPatternSyntax means an exclusion pattern is malformed.
	ErrPatternSyntax = rules.ErrPatternSyntax
	// ErrRequiredFileMissing means a required entry file is absent after exclusions.
	ErrRequiredFileMissing = errors.New("required file missing")
	// ErrDestinationLocked means another run holds the destination lock.
	ErrDestinationLocked = common.ErrLocked
	// ErrInvalidPrefix means the entry prefix is absolute or leaves the archive root.
	ErrInvalidPrefix = archive.ErrInvalidPrefix

	// errDestinationRequired is returned when no destination path is given.
	errDestinationRequired = errors.New("destination path must be provided")
	// errRootRequired is returned when no root path is given.
	errRootRequired = errors.New("root directory must be provided")
)
