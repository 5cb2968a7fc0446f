package logging

import (
	"errors"
	"syscall"

	"go.uber.org/multierr"
)

// ignoreSyncErr drops the errors fsync reports for terminals and pipes.
func ignoreSyncErr(err error) error {
	var kept error
	for _, e := range multierr.Errors(err) {
		if errors.Is(e, syscall.EINVAL) || errors.Is(e, syscall.ENOTTY) || errors.Is(e, syscall.EBADF) {
			continue
		}
		kept = multierr.Append(kept, e)
	}
	return kept
}
