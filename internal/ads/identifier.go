package ads

import "github.com/google/uuid"

// IdentifierFactory mints identifiers for loaded ads. Identifiers must be unique for the process lifetime.
type IdentifierFactory interface {
	New() Identifier
}

// UUIDFactory mints random UUID identifiers.
type UUIDFactory struct{}

// New returns a fresh UUIDv4 identifier.
func (UUIDFactory) New() Identifier {
	return Identifier(uuid.NewString())
}
