package style

import "fmt"

// ErrInvalidLayer reports a style layer that could not be parsed.
type ErrInvalidLayer struct {
	Index int
	ID    string
	Err   error
}

func (e *ErrInvalidLayer) Error() string {
	return fmt.Sprintf("style layer %d (%q): %v", e.Index, e.ID, e.Err)
}

func (e *ErrInvalidLayer) Unwrap() error { return e.Err }

// ErrInvalidProperty reports a malformed property value or filter.
type ErrInvalidProperty struct {
	Reason string
}

func (e *ErrInvalidProperty) Error() string {
	return "invalid property value: " + e.Reason
}
