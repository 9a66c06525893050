package entity

import "errors"

// ErrUnknownAttribute is returned by Set when no snapshot field matches the
// case-folded name.
var ErrUnknownAttribute = errors.New("entity: unknown attribute")
