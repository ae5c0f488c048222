package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/roamlabs/roam/backend/internal/identity"
)

func performJSON(t *testing.T, handler http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(method, target, strings.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		request.Header.Set(key, value)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func TestSignupEndpointCreatesAccount(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fixture := newRouterFixture(t, &scriptedProvider{})

	recorder := performJSON(t, fixture.handler, http.MethodPost, "/auth/signup",
		`{"email":"Ana@Example.com","password":"strong-password","username":"Ana"}`, nil)

	if recorder.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}

	var response struct {
		User        identity.User   `json:"user"`
		Session     json.RawMessage `json:"session"`
		AccessToken string          `json:"access_token"`
		ExpiresIn   int64           `json:"expires_in"`
		TokenType   string          `json:"token_type"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.User.Email != "ana@example.com" {
		t.Fatalf("expected normalized email, got %q", response.User.Email)
	}
	if response.User.NomadID != "ana" {
		t.Fatalf("unexpected nomad id %q", response.User.NomadID)
	}
	if response.AccessToken == "" || response.TokenType != "Bearer" || response.ExpiresIn <= 0 {
		t.Fatalf("expected backend token in response, got %+v", response)
	}
	if len(response.Session) == 0 {
		t.Fatalf("expected provider session forwarded")
	}
}

func TestSignupEndpointRejectsDuplicateEmail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fixture := newRouterFixture(t, &scriptedProvider{})

	first := performJSON(t, fixture.handler, http.MethodPost, "/auth/signup",
		`{"email":"ana@example.com","password":"strong-password"}`, nil)
	if first.Code != http.StatusCreated {
		t.Fatalf("seed signup failed with %d: %s", first.Code, first.Body.String())
	}

	second := performJSON(t, fixture.handler, http.MethodPost, "/auth/signup",
		`{"email":"ANA@example.com","password":"strong-password"}`, nil)
	if second.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", second.Code, second.Body.String())
	}
	if !strings.Contains(second.Body.String(), string(identity.KindDuplicateEmail)) {
		t.Fatalf("expected duplicate_email kind in body, got %s", second.Body.String())
	}
}

func TestLoginEndpointMapsRejectedCredentials(t *testing.T) {
	gin.SetMode(gin.TestMode)
	provider := &scriptedProvider{
		authErr: fmt.Errorf("%w: invalid grant", identity.ErrProviderCredentialsRejected),
	}
	fixture := newRouterFixture(t, provider)

	recorder := performJSON(t, fixture.handler, http.MethodPost, "/auth/login",
		`{"email":"ana@example.com","password":"wrong"}`, nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if !strings.Contains(recorder.Body.String(), string(identity.KindInvalidCredentials)) {
		t.Fatalf("expected invalid_credentials kind, got %s", recorder.Body.String())
	}
}

func TestSessionEndpointRoundTrip(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fixture := newRouterFixture(t, &scriptedProvider{})

	signup := performJSON(t, fixture.handler, http.MethodPost, "/auth/signup",
		`{"email":"ana@example.com","password":"strong-password"}`, nil)
	if signup.Code != http.StatusCreated {
		t.Fatalf("signup failed with %d: %s", signup.Code, signup.Body.String())
	}
	var created struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(signup.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode signup response: %v", err)
	}

	session := performJSON(t, fixture.handler, http.MethodGet, "/auth/session", "",
		map[string]string{"Authorization": "Bearer " + created.AccessToken})
	if session.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", session.Code, session.Body.String())
	}
	var verified struct {
		Valid bool             `json:"valid"`
		User  identity.Profile `json:"user"`
	}
	if err := json.Unmarshal(session.Body.Bytes(), &verified); err != nil {
		t.Fatalf("failed to decode session response: %v", err)
	}
	if !verified.Valid || verified.User.Email != "ana@example.com" {
		t.Fatalf("unexpected session payload %+v", verified)
	}
}

func TestSessionEndpointRejectsForgedToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fixture := newRouterFixture(t, &scriptedProvider{})

	recorder := performJSON(t, fixture.handler, http.MethodGet, "/auth/session", "",
		map[string]string{"Authorization": "Bearer not-a-token"})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestEmailAvailableEndpointNormalizes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fixture := newRouterFixture(t, &scriptedProvider{})

	recorder := performJSON(t, fixture.handler, http.MethodGet,
		"/auth/email-available?email=Test%40Example.com%20", "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var response struct {
		Available bool   `json:"available"`
		Email     string `json:"email"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !response.Available || response.Email != "test@example.com" {
		t.Fatalf("unexpected availability payload %+v", response)
	}
}

func TestPasswordResetEndpointAlwaysSucceeds(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fixture := newRouterFixture(t, &scriptedProvider{})

	for attempt := 0; attempt < 2; attempt++ {
		recorder := performJSON(t, fixture.handler, http.MethodPost, "/auth/password-reset",
			`{"email":"missing@example.com"}`, nil)
		if recorder.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200, got %d", attempt, recorder.Code)
		}
	}
}
