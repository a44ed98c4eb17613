package ads

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned for missing or malformed request fields, before any resource is touched.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrLoadTimeout resolves a load whose vendor callback did not arrive within the configured window.
	ErrLoadTimeout = errors.New("ad load timed out")
	// ErrStale resolves a load reclaimed by the periodic sweep.
	ErrStale = errors.New("ad load reclaimed as stale")
	// ErrNotReady is returned when show is requested for a session that is not Ready.
	ErrNotReady = errors.New("ad is not ready")
	// ErrNoPresentationSurface is returned when the vendor has nowhere to present a full-screen ad.
	ErrNoPresentationSurface = errors.New("no presentation surface available")
	// ErrNotFound is returned for operations on an unknown identifier.
	ErrNotFound = errors.New("ad not found")
	// ErrDuplicateIdentifier means an identifier was reused; it indicates a broken IdentifierFactory.
	ErrDuplicateIdentifier = errors.New("duplicate identifier")
	// ErrAlreadyPending means a load is already tracked for the identifier.
	ErrAlreadyPending = errors.New("request already pending")
	// ErrLoadAlreadyInProgress rejects a second concurrent load for the same full-screen unit.
	ErrLoadAlreadyInProgress = errors.New("load already in progress")
	// ErrPresentationInProgress rejects a load while the unit's ad is on screen.
	ErrPresentationInProgress = errors.New("presentation in progress")
	// ErrClosed is returned once the manager has been torn down.
	ErrClosed = errors.New("ad manager closed")
)

// LoadError is a load failure reported by the vendor SDK.
type LoadError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
	Domain  string `json:"domain,omitempty"`
}

func (e *LoadError) Error() string {
	if e.Domain != "" {
		return fmt.Sprintf("ad load error %s/%d: %s", e.Domain, e.Code, e.Message)
	}
	return fmt.Sprintf("ad load error %d: %s", e.Code, e.Message)
}

func invalidArgument(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, msg)
}
