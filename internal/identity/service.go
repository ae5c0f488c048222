package identity

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	errMissingProvider     = errors.New("identity provider is required")
	errMissingProfileStore = errors.New("profile store is required")
	noOpLogger             = zap.NewNop()
)

// Insert-time nomad id conflicts regenerate the id this many times before
// the signup is declared an invariant violation.
const maxNomadIDInsertRetries = 3

// ServiceConfig describes the collaborators behind the identity service.
type ServiceConfig struct {
	Provider         IdentityProvider
	Profiles         ProfileStore
	ResetRedirectURL string
	Clock            func() time.Time
	Logger           *zap.Logger
}

// Service owns the account lifecycle: signup, login, logout, token
// verification, password-reset initiation, and nomad id allocation. It holds
// no mutable state of its own; every operation is a round trip through the
// identity provider, the profile store, or both.
type Service struct {
	provider         IdentityProvider
	profiles         ProfileStore
	resetRedirectURL string
	clock            func() time.Time
	logger           *zap.Logger
	nomadIDs         *nomadIDGenerator
}

// NewService validates the configuration and constructs the service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Provider == nil {
		return nil, newError(opServiceNew, KindProviderFailure, errMissingProvider)
	}
	if cfg.Profiles == nil {
		return nil, newError(opServiceNew, KindProfileStore, errMissingProfileStore)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		provider:         cfg.Provider,
		profiles:         cfg.Profiles,
		resetRedirectURL: cfg.ResetRedirectURL,
		clock:            clock,
		logger:           logger,
		nomadIDs:         newNomadIDGenerator(cfg.Profiles),
	}, nil
}

// SignupInput carries the caller-supplied attributes for a new account.
type SignupInput struct {
	Email     string
	Password  string
	Username  string
	Bio       string
	AvatarURL string
}

// Credentials bundles the profile projection with the provider's opaque
// session payload.
type Credentials struct {
	User    User            `json:"user"`
	Session json.RawMessage `json:"session"`
}

// Signup creates an account with the identity provider and its matching
// profile record. The two writes are not atomic: when the profile insert
// fails, the freshly created provider account is deleted again so the stores
// do not diverge. That compensation is best effort and its own failure is
// only logged.
func (s *Service) Signup(ctx context.Context, input SignupInput) (Credentials, error) {
	email := normalizeEmail(input.Email)

	_, err := s.profiles.FindByField(ctx, FieldEmail, email)
	if err == nil {
		return Credentials{}, newError(opSignup, KindDuplicateEmail, errors.New("email already registered"))
	}
	if !errors.Is(err, ErrProfileNotFound) {
		return Credentials{}, newError(opSignup, KindProfileStore, err)
	}

	nomadID, err := s.nomadIDs.Generate(ctx, nomadIDSeed(input.Username, email))
	if err != nil {
		if errors.Is(err, errNomadIDExhausted) {
			return Credentials{}, newError(opSignup, KindDuplicateNomadID, err)
		}
		return Credentials{}, newError(opSignup, KindProfileStore, err)
	}

	var (
		account ProviderAccount
		session json.RawMessage
		profile Profile
	)

	signupSaga := &saga{
		logger: s.logger,
		steps: []sagaStep{
			{
				name: "create_provider_account",
				run: func(ctx context.Context) error {
					created, createdSession, createErr := s.provider.CreateAccount(ctx, email, input.Password)
					if createErr != nil {
						return newError(opSignup, KindProviderFailure, createErr)
					}
					account = created
					session = createdSession
					return nil
				},
				compensate: func(ctx context.Context) error {
					return s.provider.DeleteAccount(ctx, account.Handle)
				},
			},
			{
				name: "insert_profile",
				run: func(ctx context.Context) error {
					inserted, insertErr := s.insertProfile(ctx, account, email, nomadID, input)
					if insertErr != nil {
						return insertErr
					}
					profile = inserted
					return nil
				},
			},
		},
	}

	if err := signupSaga.execute(ctx); err != nil {
		return Credentials{}, err
	}

	s.logger.Info("account created",
		zap.String("account_id", profile.AccountID),
		zap.String("nomad_id", profile.NomadID))
	return Credentials{User: profile.projection(), Session: session}, nil
}

// insertProfile stores the new profile. The pre-checked nomad id can still
// collide with a concurrent signup; the store's constraint is authoritative,
// so a nomad id conflict regenerates the id and retries.
func (s *Service) insertProfile(ctx context.Context, account ProviderAccount, email, nomadID string, input SignupInput) (Profile, error) {
	for attempt := 0; ; attempt++ {
		now := s.clock()
		profile := Profile{
			AccountID:     account.Handle,
			Email:         email,
			NomadID:       nomadID,
			DisplayName:   input.Username,
			Bio:           input.Bio,
			AvatarURL:     input.AvatarURL,
			Preferences:   map[string]any{},
			VisitedPlaces: []string{},
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if username := strings.TrimSpace(input.Username); username != "" {
			profile.Username = &username
		}

		err := s.profiles.Insert(ctx, &profile)
		if err == nil {
			return profile, nil
		}

		var conflict *ConflictError
		if errors.As(err, &conflict) && conflict.Field == FieldNomadID && attempt < maxNomadIDInsertRetries {
			s.logger.Warn("nomad id collided at insert, regenerating",
				zap.String("nomad_id", nomadID),
				zap.Int("attempt", attempt+1))
			regenerated, genErr := s.nomadIDs.Generate(ctx, nomadIDSeed(input.Username, email))
			if genErr != nil {
				return Profile{}, newError(opSignup, KindProfileCreation, genErr)
			}
			nomadID = regenerated
			continue
		}
		if errors.As(err, &conflict) && conflict.Field == FieldNomadID {
			return Profile{}, newError(opSignup, KindDuplicateNomadID, err)
		}
		return Profile{}, newError(opSignup, KindProfileCreation, err)
	}
}

// Login authenticates the pair with the provider and resolves the matching
// profile. A valid credential pair with no profile record is a consistency
// anomaly and reported as profile_not_found, never as bad credentials.
func (s *Service) Login(ctx context.Context, email, password string) (Credentials, error) {
	account, session, err := s.provider.Authenticate(ctx, normalizeEmail(email), password)
	if err != nil {
		if errors.Is(err, ErrProviderCredentialsRejected) {
			return Credentials{}, newError(opLogin, KindInvalidCredentials, err)
		}
		return Credentials{}, newError(opLogin, KindProviderFailure, err)
	}

	profile, err := s.profiles.FindByField(ctx, FieldAccountID, account.Handle)
	if errors.Is(err, ErrProfileNotFound) {
		return Credentials{}, newError(opLogin, KindProfileNotFound, err)
	}
	if err != nil {
		return Credentials{}, newError(opLogin, KindProfileStore, err)
	}

	return Credentials{User: profile.projection(), Session: session}, nil
}

// Logout invalidates the supplied provider session. The service keeps no
// session state of its own, so there is nothing local to clean up.
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	if err := s.provider.InvalidateSession(ctx, accessToken); err != nil {
		return newError(opLogout, KindSignOutFailure, err)
	}
	return nil
}

// VerifyToken confirms the profile behind an already signature-checked
// token still exists. It layers a liveness check under the caller's
// cryptographic verification; it does not replace it.
func (s *Service) VerifyToken(ctx context.Context, accountHandle string) (Profile, error) {
	profile, err := s.profiles.FindByField(ctx, FieldAccountID, accountHandle)
	if errors.Is(err, ErrProfileNotFound) {
		return Profile{}, newError(opVerifyToken, KindInvalidToken, err)
	}
	if err != nil {
		return Profile{}, newError(opVerifyToken, KindProfileStore, err)
	}
	return profile, nil
}

// ResetPassword asks the provider to dispatch a reset email. The provider
// silently ignores unknown addresses, so no existence check happens here;
// doing one would turn the endpoint into an account-enumeration oracle.
func (s *Service) ResetPassword(ctx context.Context, email string) error {
	if err := s.provider.RequestPasswordReset(ctx, normalizeEmail(email), s.resetRedirectURL); err != nil {
		return newError(opResetPassword, KindResetRequest, err)
	}
	return nil
}

// CheckEmailAvailable reports whether the normalized address is free and
// returns the normalized form.
func (s *Service) CheckEmailAvailable(ctx context.Context, email string) (string, error) {
	normalized := normalizeEmail(email)

	_, err := s.profiles.FindByField(ctx, FieldEmail, normalized)
	if err == nil {
		return normalized, newError(opEmailAvailable, KindDuplicateEmail, errors.New("email already registered"))
	}
	if !errors.Is(err, ErrProfileNotFound) {
		return normalized, newError(opEmailAvailable, KindProfileStore, err)
	}
	return normalized, nil
}

// nomadIDSeed prefers the chosen username and falls back to the local part
// of the email address.
func nomadIDSeed(username, email string) string {
	if trimmed := strings.TrimSpace(username); trimmed != "" {
		return trimmed
	}
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}
