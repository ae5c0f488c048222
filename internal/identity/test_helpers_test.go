package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// fakeProfileStore is an in-memory ProfileStore recording every insert. The
// optional insertHook runs before the default conflict checks and lets a
// test force failures.
type fakeProfileStore struct {
	mu         sync.Mutex
	records    []Profile
	findErr    error
	insertHook func(*Profile) error
}

func (s *fakeProfileStore) FindByField(_ context.Context, field, value string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return Profile{}, s.findErr
	}
	for _, record := range s.records {
		if fieldValue(record, field) == value {
			return record, nil
		}
	}
	return Profile{}, ErrProfileNotFound
}

func (s *fakeProfileStore) Insert(_ context.Context, profile *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertHook != nil {
		if err := s.insertHook(profile); err != nil {
			return err
		}
	}
	for _, record := range s.records {
		if record.Email == profile.Email {
			return &ConflictError{Field: FieldEmail, cause: fmt.Errorf("duplicate %s", profile.Email)}
		}
		if record.NomadID == profile.NomadID {
			return &ConflictError{Field: FieldNomadID, cause: fmt.Errorf("duplicate %s", profile.NomadID)}
		}
	}
	s.records = append(s.records, *profile)
	return nil
}

func (s *fakeProfileStore) seed(profiles ...Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, profiles...)
}

func fieldValue(record Profile, field string) string {
	switch field {
	case FieldAccountID:
		return record.AccountID
	case FieldEmail:
		return record.Email
	case FieldNomadID:
		return record.NomadID
	case FieldUsername:
		if record.Username == nil {
			return ""
		}
		return *record.Username
	}
	return ""
}

// fakeProvider records calls and returns scripted results.
type fakeProvider struct {
	mu sync.Mutex

	createErr  error
	authErr    error
	signOutErr error
	resetErr   error
	deleteErr  error

	nextHandle string
	session    json.RawMessage

	createCalls []string
	authCalls   []string
	deleteCalls []string
	logoutCalls []string
	resetCalls  []resetCall
}

type resetCall struct {
	email      string
	redirectTo string
}

func (p *fakeProvider) CreateAccount(_ context.Context, email, _ string) (ProviderAccount, json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.createCalls = append(p.createCalls, email)
	if p.createErr != nil {
		return ProviderAccount{}, nil, p.createErr
	}
	return ProviderAccount{Handle: p.handle(), Email: email}, p.sessionPayload(), nil
}

func (p *fakeProvider) Authenticate(_ context.Context, email, _ string) (ProviderAccount, json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authCalls = append(p.authCalls, email)
	if p.authErr != nil {
		return ProviderAccount{}, nil, p.authErr
	}
	return ProviderAccount{Handle: p.handle(), Email: email}, p.sessionPayload(), nil
}

func (p *fakeProvider) InvalidateSession(_ context.Context, accessToken string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logoutCalls = append(p.logoutCalls, accessToken)
	return p.signOutErr
}

func (p *fakeProvider) RequestPasswordReset(_ context.Context, email, redirectTo string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetCalls = append(p.resetCalls, resetCall{email: email, redirectTo: redirectTo})
	return p.resetErr
}

func (p *fakeProvider) DeleteAccount(_ context.Context, handle string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleteCalls = append(p.deleteCalls, handle)
	return p.deleteErr
}

func (p *fakeProvider) handle() string {
	if p.nextHandle != "" {
		return p.nextHandle
	}
	return "account-1"
}

func (p *fakeProvider) sessionPayload() json.RawMessage {
	if p.session != nil {
		return p.session
	}
	return json.RawMessage(`{"access_token":"provider-token"}`)
}

func profileWith(accountID, email, nomadID string) Profile {
	return Profile{AccountID: accountID, Email: email, NomadID: nomadID}
}
