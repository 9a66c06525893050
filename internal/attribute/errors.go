package attribute

import "errors"

// Domain-specific errors for the attribute map.
var (
	// ErrEmptyMap is returned when a map is built from no definitions.
	ErrEmptyMap = errors.New("attribute: map has no definitions")

	// ErrInvalidDefinition is returned for a definition with an empty name or address.
	ErrInvalidDefinition = errors.New("attribute: invalid definition")

	// ErrDuplicateName is returned when two definitions share a name (case-insensitive).
	ErrDuplicateName = errors.New("attribute: duplicate name")

	// ErrDuplicateAddress is returned when two attributes map to the same address.
	ErrDuplicateAddress = errors.New("attribute: duplicate address")

	// ErrUnknownKind is returned when a kind name cannot be parsed.
	ErrUnknownKind = errors.New("attribute: unknown kind")
)
