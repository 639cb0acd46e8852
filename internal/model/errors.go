package model

import (
	"errors"
	"fmt"
)

// ErrInvalidValue is wrapped by every Parse function when the input is not a
// member of the enumeration.
var ErrInvalidValue = errors.New("invalid value")

func unhandled(typ, v string) string {
	return fmt.Sprintf("programming error: %s value %q is not handled", typ, v)
}
