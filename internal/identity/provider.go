package identity

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrProviderCredentialsRejected is returned by IdentityProvider
// implementations when an email/password pair is refused. Every other
// provider failure is passed through with its upstream message intact.
var ErrProviderCredentialsRejected = errors.New("identity: provider rejected credentials")

// ProviderAccount identifies a credential-bearing record held by the
// external identity provider.
type ProviderAccount struct {
	Handle string
	Email  string
}

// IdentityProvider abstracts the hosted authority that owns credentials and
// sessions. Session payloads are opaque to this package and forwarded to the
// caller unmodified.
type IdentityProvider interface {
	CreateAccount(ctx context.Context, email, password string) (ProviderAccount, json.RawMessage, error)
	Authenticate(ctx context.Context, email, password string) (ProviderAccount, json.RawMessage, error)
	InvalidateSession(ctx context.Context, accessToken string) error
	RequestPasswordReset(ctx context.Context, email, redirectTo string) error
	// DeleteAccount exists for compensation only; the service never deletes
	// accounts outside a failed signup.
	DeleteAccount(ctx context.Context, handle string) error
}
