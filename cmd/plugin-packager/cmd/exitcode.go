package cmd

import (
	"errors"

	"github.com/oshokin/plugin-packager/internal/service/inspector"
	"github.com/oshokin/plugin-packager/internal/service/packager"
)

// Process exit statuses per error kind.
const (
	exitFailure               = 1
	exitSourceNotFound        = 2
	exitDestinationUnwritable = 3
	exitPatternSyntax         = 4
	exitRequiredFileMissing   = 5
	exitDestinationLocked     = 6
	exitArchiveMismatch       = 7
)

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, packager.ErrPatternSyntax):
		return exitPatternSyntax
	case errors.Is(err, packager.ErrSourceNotFound):
		return exitSourceNotFound
	case errors.Is(err, packager.ErrDestinationLocked):
		return exitDestinationLocked
	case errors.Is(err, packager.ErrDestinationUnwritable):
		return exitDestinationUnwritable
	case errors.Is(err, packager.ErrRequiredFileMissing):
		return exitRequiredFileMissing
	case errors.Is(err, inspector.ErrArchiveMismatch):
		return exitArchiveMismatch
	default:
		return exitFailure
	}
}
