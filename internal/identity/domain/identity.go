package domain

import "time"

// Identity is a user's login credential. Only the local password provider is supported.
type Identity struct {
	ID           string
	UserID       string
	Provider     IdentityProvider
	ProviderID   string // normalized email for local identities
	PasswordHash string
	CreatedAt    time.Time
}

type IdentityProvider string

const (
	IdentityProviderLocal IdentityProvider = "local"
)

// HasPassword reports whether the identity can be used for password login.
func (i *Identity) HasPassword() bool {
	return i != nil && i.Provider == IdentityProviderLocal && i.PasswordHash != ""
}
