package chat

import (
	"errors"
	"fmt"

	"medius/internal/api"
)

// LoadError is a failed initial load. The view shows Message with a retry
// option, and Cached when an older copy of the deal is available.
type LoadError struct {
	DealID string
	Err    error
	Cached *Snapshot
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load deal %s: %v", e.DealID, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) Message() string {
	return errText(e.Err, "Failed to load deal details.")
}

// errText picks the text shown to the user for err.
func errText(err error, fallback string) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return fallback
}
