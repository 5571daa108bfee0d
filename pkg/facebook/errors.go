package facebook

import (
	"errors"
	"fmt"
)

// Errors returned by the engine. Callers match them with errors.Is.
var (
	// ErrFetch wraps any transport or HTTP status failure.
	ErrFetch = errors.New("fetch failed")
	// ErrEnvelope means a JSON envelope no longer has the expected shape.
	ErrEnvelope = errors.New("unexpected response envelope")
	// ErrParse means markup could not be parsed.
	ErrParse = errors.New("markup parse failed")
	// ErrExtraction means an expected region is missing from one item.
	ErrExtraction = errors.New("expected markup missing")
	// ErrPageResolution means a profile's page id could not be determined.
	ErrPageResolution = errors.New("page id not resolved")
	// ErrInput means the caller supplied unusable arguments.
	ErrInput = errors.New("invalid input")
)

// ItemError locates a failure inside a batch.
type ItemError struct {
	URL   string // listing the item came from
	Err   error
	Index int
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d of %s: %v", e.Index, e.URL, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

func missing(what string) error {
	return fmt.Errorf("%w: %s", ErrExtraction, what)
}
