package identity

import "github.com/google/uuid"

// Provider mints unique identifiers. Injected so tests can use
// deterministic ids.
type Provider interface {
	NewID() string
}

type uuidProvider struct{}

func (uuidProvider) NewID() string {
	return uuid.NewString()
}

func NewUUIDProvider() Provider {
	return uuidProvider{}
}
