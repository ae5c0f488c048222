package server

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/roamlabs/roam/backend/internal/auth"
	"github.com/roamlabs/roam/backend/internal/identity"
	"gorm.io/gorm"
)

// scriptedProvider implements identity.IdentityProvider for router tests.
type scriptedProvider struct {
	mu         sync.Mutex
	handleSeq  int
	authErr    error
	deleteLogs []string
}

func (p *scriptedProvider) CreateAccount(_ context.Context, email, _ string) (identity.ProviderAccount, json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handleSeq++
	account := identity.ProviderAccount{Handle: testHandle(p.handleSeq), Email: email}
	return account, json.RawMessage(`{"access_token":"provider-token"}`), nil
}

func (p *scriptedProvider) Authenticate(_ context.Context, email, _ string) (identity.ProviderAccount, json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.authErr != nil {
		return identity.ProviderAccount{}, nil, p.authErr
	}
	return identity.ProviderAccount{Handle: testHandle(1), Email: email}, json.RawMessage(`{"access_token":"provider-token"}`), nil
}

func (p *scriptedProvider) InvalidateSession(context.Context, string) error { return nil }

func (p *scriptedProvider) RequestPasswordReset(context.Context, string, string) error { return nil }

func (p *scriptedProvider) DeleteAccount(_ context.Context, handle string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleteLogs = append(p.deleteLogs, handle)
	return nil
}

func testHandle(sequence int) string {
	return "account-" + string(rune('0'+sequence))
}

type routerFixture struct {
	handler http.Handler
	tokens  *auth.TokenIssuer
	service *identity.Service
}

func newRouterFixture(t *testing.T, provider identity.IdentityProvider) routerFixture {
	t.Helper()

	databasePath := filepath.Join(t.TempDir(), "router.db")
	db, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&identity.Profile{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	store, err := identity.NewGormProfileStore(db)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	service, err := identity.NewService(identity.ServiceConfig{
		Provider: provider,
		Profiles: store,
		Clock:    time.Now,
	})
	if err != nil {
		t.Fatalf("failed to create identity service: %v", err)
	}

	tokens, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("router-test-secret"),
		Issuer:        "roam-auth",
		Audience:      "roam-api",
		TokenTTL:      time.Minute,
	})
	if err != nil {
		t.Fatalf("failed to create token issuer: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		TokenManager:    tokens,
		IdentityService: service,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}

	return routerFixture{handler: handler, tokens: tokens, service: service}
}
