package identity

import (
	"errors"
	"fmt"
)

// Kind is the closed set of failure categories surfaced by the identity
// service. Callers branch on kinds, never on upstream error shapes.
type Kind string

const (
	KindDuplicateEmail     Kind = "duplicate_email"
	KindDuplicateNomadID   Kind = "duplicate_nomad_id"
	KindProviderFailure    Kind = "identity_provider_failure"
	KindProfileCreation    Kind = "profile_creation_failed"
	KindProfileNotFound    Kind = "profile_not_found"
	KindInvalidToken       Kind = "invalid_token"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindSignOutFailure     Kind = "sign_out_failed"
	KindResetRequest       Kind = "reset_request_failed"
	KindProfileStore       Kind = "profile_store_failure"
)

const (
	opSignup         = "identity.signup"
	opLogin          = "identity.login"
	opLogout         = "identity.logout"
	opVerifyToken    = "identity.verify_token"
	opResetPassword  = "identity.reset_password"
	opEmailAvailable = "identity.email_available"
	opServiceNew     = "identity.service.new"
)

// Error carries the operation that failed, its kind, and the upstream cause.
type Error struct {
	op   string
	kind Kind
	err  error
}

func newError(op string, kind Kind, cause error) error {
	return &Error{op: op, kind: kind, err: cause}
}

func (e *Error) Error() string {
	if e.err == nil {
		return fmt.Sprintf("%s: %s", e.op, e.kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.op, e.kind, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

// Kind returns the failure category.
func (e *Error) Kind() Kind {
	return e.kind
}

// KindOf extracts the failure kind from an error chain, or "" when the error
// did not originate in this package.
func KindOf(err error) Kind {
	var serviceErr *Error
	if errors.As(err, &serviceErr) {
		return serviceErr.kind
	}
	return ""
}
