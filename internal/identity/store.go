package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Queryable profile columns. FindByField rejects anything outside this set.
const (
	FieldAccountID = "account_id"
	FieldEmail     = "email"
	FieldNomadID   = "nomad_id"
	FieldUsername  = "username"
)

// ErrProfileNotFound reports a point lookup that matched no record.
var ErrProfileNotFound = errors.New("identity: profile not found")

var errUnknownField = errors.New("identity: unknown profile field")

// ConflictError reports an insert rejected by a uniqueness constraint,
// identifying the violated column.
type ConflictError struct {
	Field string
	cause error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("identity: conflict on %s: %v", e.Field, e.cause)
}

func (e *ConflictError) Unwrap() error {
	return e.cause
}

// ProfileStore is the keyed record store backing user profiles. The
// uniqueness constraints it enforces at insert time are authoritative;
// pre-checks only shrink the conflict window.
type ProfileStore interface {
	FindByField(ctx context.Context, field, value string) (Profile, error)
	Insert(ctx context.Context, profile *Profile) error
}

// GormProfileStore persists profiles through a gorm connection.
type GormProfileStore struct {
	db *gorm.DB
}

// NewGormProfileStore wraps the provided database handle.
func NewGormProfileStore(db *gorm.DB) (*GormProfileStore, error) {
	if db == nil {
		return nil, errors.New("identity: database handle is required")
	}
	return &GormProfileStore{db: db}, nil
}

// FindByField returns the profile whose column equals value, or
// ErrProfileNotFound.
func (s *GormProfileStore) FindByField(ctx context.Context, field, value string) (Profile, error) {
	switch field {
	case FieldAccountID, FieldEmail, FieldNomadID, FieldUsername:
	default:
		return Profile{}, fmt.Errorf("%w: %s", errUnknownField, field)
	}

	var profile Profile
	err := s.db.WithContext(ctx).
		Where(fmt.Sprintf("%s = ?", field), value).
		First(&profile).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, ErrProfileNotFound
	}
	if err != nil {
		return Profile{}, err
	}
	return profile, nil
}

// Insert stores a new profile, translating uniqueness violations into
// ConflictError.
func (s *GormProfileStore) Insert(ctx context.Context, profile *Profile) error {
	err := s.db.WithContext(ctx).Create(profile).Error
	if err == nil {
		return nil
	}
	if field, ok := conflictColumn(err); ok {
		return &ConflictError{Field: field, cause: err}
	}
	return err
}

// conflictColumn extracts the violated column from a SQLite uniqueness
// error ("UNIQUE constraint failed: user_profiles.email").
func conflictColumn(err error) (string, bool) {
	message := err.Error()
	const marker = "UNIQUE constraint failed:"
	index := strings.Index(message, marker)
	if index < 0 {
		return "", false
	}
	remainder := strings.TrimSpace(message[index+len(marker):])
	if remainder == "" {
		return "", false
	}
	column := remainder
	if fields := strings.FieldsFunc(remainder, func(r rune) bool {
		return r == ',' || r == ' ' || r == ')' || r == ';'
	}); len(fields) > 0 {
		column = fields[0]
	}
	if dot := strings.LastIndex(column, "."); dot >= 0 {
		column = column[dot+1:]
	}
	if column == "" {
		return "", false
	}
	return column, true
}
