// Package edit applies line-addressed changes to documents. Every change
// rewrites exactly one checkbox marker and leaves all other bytes as they
// were.
package edit

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"planmark/internal/docstore"
)

var (
	ErrNoCheckbox     = errors.New("line has no checkbox")
	ErrLineOutOfRange = errors.New("line out of range")
)

var (
	blockMarkerRE = regexp.MustCompile(`^[ \t]*- \[([ xX])\]`)
	cellMarkerRE  = regexp.MustCompile(`\[([ xX])\]`)
)

// markerIndex returns the index of the state byte (between the brackets) on
// line, or -1. A "- [ ]" marker wins over a cell marker; for table rows the
// first cell marker is used.
func markerIndex(line string) int {
	if m := blockMarkerRE.FindStringSubmatchIndex(line); m != nil {
		return m[2]
	}
	if strings.HasPrefix(strings.TrimLeft(line, " \t"), "|") {
		if m := cellMarkerRE.FindStringSubmatchIndex(line); m != nil {
			return m[2]
		}
	}
	return -1
}

// locate returns the byte offset of the state byte on the zero-based line.
func locate(text string, line int) (int, error) {
	if line < 0 {
		return 0, fmt.Errorf("%w: %d", ErrLineOutOfRange, line)
	}
	start := 0
	for i := 0; i < line; i++ {
		j := strings.IndexByte(text[start:], '\n')
		if j < 0 {
			return 0, fmt.Errorf("%w: %d", ErrLineOutOfRange, line)
		}
		start += j + 1
	}
	end := len(text)
	if j := strings.IndexByte(text[start:], '\n'); j >= 0 {
		end = start + j
	}
	idx := markerIndex(text[start:end])
	if idx < 0 {
		return 0, fmt.Errorf("%w: line %d", ErrNoCheckbox, line)
	}
	return start + idx, nil
}

// SetCheckbox sets the checkbox on line to checked. The marker is written
// as "[x]" or "[ ]"; an already matching marker is left untouched.
func SetCheckbox(text string, line int, checked bool) (string, error) {
	at, err := locate(text, line)
	if err != nil {
		return "", err
	}
	if (text[at] != ' ') == checked {
		return text, nil
	}
	state := byte(' ')
	if checked {
		state = 'x'
	}
	return text[:at] + string(state) + text[at+1:], nil
}

// ToggleCheckbox flips the checkbox on line and reports the new state.
func ToggleCheckbox(text string, line int) (string, bool, error) {
	at, err := locate(text, line)
	if err != nil {
		return "", false, err
	}
	checked := text[at] == ' '
	out, err := SetCheckbox(text, line, checked)
	return out, checked, err
}

// Toggle flips the checkbox at (key, line) in store.
func Toggle(ctx context.Context, store docstore.Store, key string, line int) (bool, error) {
	text, err := store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	out, checked, err := ToggleCheckbox(text, line)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	if err := store.Set(ctx, key, out); err != nil {
		return false, fmt.Errorf("write %s: %w", key, err)
	}
	return checked, nil
}

// Set writes an explicit state at (key, line) in store.
func Set(ctx context.Context, store docstore.Store, key string, line int, checked bool) error {
	text, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	out, err := SetCheckbox(text, line, checked)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if out == text {
		return nil
	}
	if err := store.Set(ctx, key, out); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}
