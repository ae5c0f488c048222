// Package provider implements identity.IdentityProvider against a hosted
// GoTrue-compatible authentication API (Supabase and friends).
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/roamlabs/roam/backend/internal/identity"
	"go.uber.org/zap"
)

var (
	ErrInvalidSupabaseConfig = errors.New("provider: invalid supabase client config")

	errMissingBaseURL    = errors.New("base url configuration required")
	errMissingAnonKey    = errors.New("anon key configuration required")
	errMissingServiceKey = errors.New("service role key configuration required")
	errMissingHandle     = errors.New("provider response missing account handle")
)

// SupabaseConfig bundles everything needed to reach the hosted auth API.
type SupabaseConfig struct {
	// BaseURL is the project root, e.g. https://abc.supabase.co.
	BaseURL string
	// AnonKey authorizes the public auth endpoints.
	AnonKey string
	// ServiceRoleKey authorizes the admin endpoint used for the
	// compensating account delete.
	ServiceRoleKey string
	HTTPClient     *http.Client
	Logger         *zap.Logger
}

// SupabaseClient talks to the GoTrue endpoints under /auth/v1.
type SupabaseClient struct {
	baseURL        string
	anonKey        string
	serviceRoleKey string
	httpClient     *http.Client
	logger         *zap.Logger
}

// NewSupabaseClient constructs a client with validated configuration.
func NewSupabaseClient(cfg SupabaseConfig) (*SupabaseClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSupabaseConfig, errMissingBaseURL)
	}
	anonKey := strings.TrimSpace(cfg.AnonKey)
	if anonKey == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSupabaseConfig, errMissingAnonKey)
	}
	serviceRoleKey := strings.TrimSpace(cfg.ServiceRoleKey)
	if serviceRoleKey == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSupabaseConfig, errMissingServiceKey)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SupabaseClient{
		baseURL:        baseURL,
		anonKey:        anonKey,
		serviceRoleKey: serviceRoleKey,
		httpClient:     httpClient,
		logger:         logger,
	}, nil
}

// sessionEnvelope is the slice of the GoTrue session payload this package
// needs; the full payload is forwarded to callers untouched.
type sessionEnvelope struct {
	User struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

type errorEnvelope struct {
	Message          string `json:"msg"`
	AltMessage       string `json:"message"`
	ErrorDescription string `json:"error_description"`
}

func (e errorEnvelope) text() string {
	for _, candidate := range []string{e.Message, e.AltMessage, e.ErrorDescription} {
		if strings.TrimSpace(candidate) != "" {
			return candidate
		}
	}
	return ""
}

// CreateAccount registers the email/password pair and returns the new
// account alongside the provider's raw session payload.
func (c *SupabaseClient) CreateAccount(ctx context.Context, email, password string) (identity.ProviderAccount, json.RawMessage, error) {
	body, status, err := c.postJSON(ctx, c.baseURL+"/auth/v1/signup", c.anonKey, "", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return identity.ProviderAccount{}, nil, err
	}
	if status != http.StatusOK {
		return identity.ProviderAccount{}, nil, upstreamError("signup", status, body)
	}
	return parseSession(body)
}

// Authenticate runs the password grant. Rejected credentials surface as
// identity.ErrProviderCredentialsRejected.
func (c *SupabaseClient) Authenticate(ctx context.Context, email, password string) (identity.ProviderAccount, json.RawMessage, error) {
	body, status, err := c.postJSON(ctx, c.baseURL+"/auth/v1/token?grant_type=password", c.anonKey, "", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return identity.ProviderAccount{}, nil, err
	}
	if status == http.StatusBadRequest || status == http.StatusUnauthorized {
		return identity.ProviderAccount{}, nil, fmt.Errorf("%w: %s", identity.ErrProviderCredentialsRejected, upstreamMessage(body))
	}
	if status != http.StatusOK {
		return identity.ProviderAccount{}, nil, upstreamError("token", status, body)
	}
	return parseSession(body)
}

// InvalidateSession revokes the session behind the access token.
func (c *SupabaseClient) InvalidateSession(ctx context.Context, accessToken string) error {
	body, status, err := c.postJSON(ctx, c.baseURL+"/auth/v1/logout", c.anonKey, accessToken, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return upstreamError("logout", status, body)
	}
	return nil
}

// RequestPasswordReset asks the provider to send a reset email. Unknown
// addresses are ignored upstream, so a success here carries no enumeration
// signal.
func (c *SupabaseClient) RequestPasswordReset(ctx context.Context, email, redirectTo string) error {
	endpoint := c.baseURL + "/auth/v1/recover"
	if strings.TrimSpace(redirectTo) != "" {
		endpoint += "?redirect_to=" + url.QueryEscape(redirectTo)
	}
	body, status, err := c.postJSON(ctx, endpoint, c.anonKey, "", map[string]string{"email": email})
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return upstreamError("recover", status, body)
	}
	return nil
}

// DeleteAccount removes the account through the admin API. Only the signup
// compensation path calls this.
func (c *SupabaseClient) DeleteAccount(ctx context.Context, handle string) error {
	endpoint := c.baseURL + "/auth/v1/admin/users/" + url.PathEscape(handle)
	request, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	request.Header.Set("apikey", c.serviceRoleKey)
	request.Header.Set("Authorization", "Bearer "+c.serviceRoleKey)

	body, status, err := c.do(request)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return upstreamError("admin_delete", status, body)
	}
	c.logger.Info("provider account deleted", zap.String("handle", handle))
	return nil
}

func (c *SupabaseClient) postJSON(ctx context.Context, endpoint, apiKey, bearer string, payload map[string]string) ([]byte, int, error) {
	requestBody := io.Reader(http.NoBody)
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, err
		}
		requestBody = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, requestBody)
	if err != nil {
		return nil, 0, err
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("apikey", apiKey)
	if bearer != "" {
		request.Header.Set("Authorization", "Bearer "+bearer)
	}

	return c.do(request)
}

func (c *SupabaseClient) do(request *http.Request) ([]byte, int, error) {
	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, 0, err
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, response.StatusCode, err
	}
	return body, response.StatusCode, nil
}

func parseSession(body []byte) (identity.ProviderAccount, json.RawMessage, error) {
	var envelope sessionEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return identity.ProviderAccount{}, nil, fmt.Errorf("provider: malformed session payload: %w", err)
	}
	if envelope.User.ID == "" {
		return identity.ProviderAccount{}, nil, errMissingHandle
	}
	account := identity.ProviderAccount{
		Handle: envelope.User.ID,
		Email:  envelope.User.Email,
	}
	return account, json.RawMessage(append([]byte(nil), body...)), nil
}

func upstreamMessage(body []byte) string {
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil {
		if text := envelope.text(); text != "" {
			return text
		}
	}
	return strings.TrimSpace(string(body))
}

func upstreamError(operation string, status int, body []byte) error {
	message := upstreamMessage(body)
	if message == "" {
		message = "no error detail"
	}
	return fmt.Errorf("provider: %s returned status %d: %s", operation, status, message)
}
