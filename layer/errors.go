package layer

import (
	"errors"
	"fmt"
)

// ErrFieldType is returned by typed accessors when the field holds a value
// of a different kind.
var ErrFieldType = errors.New("field type mismatch")

// LookupError reports a layer or field name absent from a packet or a
// layer definition.
type LookupError struct {
	Layer string // Requested layer name or index
	Field string // Requested field name; empty when the layer is missing
}

// Error implements the error interface.
func (e *LookupError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("layer %q not found", e.Layer)
	}
	return fmt.Sprintf("field %q not found in layer %q", e.Field, e.Layer)
}
