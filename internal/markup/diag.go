package markup

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedMatch reports an extension that claimed zero (or more than
	// the remaining) bytes. The position is re-read as plain text.
	ErrMalformedMatch = errors.New("malformed extension match")
	// ErrUnparseableDate leaves a SCHEDULED or NOTIFY tag as literal text.
	ErrUnparseableDate = errors.New("unparseable date")
	// ErrDuplicateAttributeKey is informational; the last value wins.
	ErrDuplicateAttributeKey = errors.New("duplicate attribute key")
)

// Diagnostic is a local, recovered problem found while tokenizing.
type Diagnostic struct {
	Extension string
	Offset    int
	Line      int
	Err       error
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("line %d: %s: %v", d.Line+1, d.Extension, d.Err)
}

func (d Diagnostic) Unwrap() error { return d.Err }
