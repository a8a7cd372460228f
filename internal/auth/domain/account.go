package domain

import (
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// Account is a registered user identified by email.
type Account struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string // argon2id PHC encoded

	// UserHandle is the stable random 32-byte WebAuthn user handle.
	// Generated once at signup, immutable and unique across accounts.
	UserHandle []byte

	TOTPSecret  *string // base32 encoded, nil when TOTP never enrolled
	TOTPEnabled bool

	VerifiedAt *time.Time // email verification timestamp (nullable)

	// Credentials is the owned set of WebAuthn credentials. Populated by
	// the account store on lookup.
	Credentials []Credential

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Credential is a registered WebAuthn (FIDO2) credential. The AccountID is a
// non-owning back-pointer; Account owns the collection.
type Credential struct {
	ID           string
	AccountID    string
	CredentialID []byte // unique raw credential id
	PublicKey    []byte // COSE encoded public key
	SignCount    uint32 // monotonically non-decreasing signature counter
	CreatedAt    time.Time
}

// Account implements webauthn.User so the relying-party library can drive
// ceremonies directly off the domain type.

func (a *Account) WebAuthnID() []byte { return a.UserHandle }

func (a *Account) WebAuthnName() string { return a.Email }

func (a *Account) WebAuthnDisplayName() string { return a.FirstName + " " + a.LastName }

func (a *Account) WebAuthnCredentials() []webauthn.Credential {
	creds := make([]webauthn.Credential, 0, len(a.Credentials))
	for _, c := range a.Credentials {
		creds = append(creds, webauthn.Credential{
			ID:        c.CredentialID,
			PublicKey: c.PublicKey,
			Authenticator: webauthn.Authenticator{
				SignCount: c.SignCount,
			},
		})
	}
	return creds
}
