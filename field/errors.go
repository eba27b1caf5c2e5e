package field

import (
	"fmt"
)

// FormatError reports a value that cannot be represented by a field kind:
// a malformed address string, an integer out of range or a string wider
// than its fixed length.
type FormatError struct {
	Kind   string // Kind the value was checked against
	Value  any    // Offending value
	Reason string
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid %s value %#v: %s", e.Kind, e.Value, e.Reason)
}

// DecodeError reports a buffer too short for a field's declared width.
type DecodeError struct {
	Kind string
	Need int // Bytes required
	Have int // Bytes available
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("truncated %s: need %d bytes, have %d", e.Kind, e.Need, e.Have)
}

func unsupported(kind Kind, v any) error {
	return &FormatError{Kind: kind.String(), Value: v, Reason: fmt.Sprintf("unsupported type %T", v)}
}
