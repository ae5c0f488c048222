package identity

import (
	"strings"
	"time"
)

// Profile is the application-owned record describing a Roam user. Its primary
// key equals the account handle held by the identity provider, which keeps the
// two stores in 1:1 correspondence.
type Profile struct {
	AccountID     string         `gorm:"column:account_id;primaryKey;size:64;not null" json:"account_id"`
	Email         string         `gorm:"column:email;size:320;not null;uniqueIndex" json:"email"`
	NomadID       string         `gorm:"column:nomad_id;size:32;not null;uniqueIndex" json:"nomad_id"`
	Username      *string        `gorm:"column:username;size:64;uniqueIndex" json:"username,omitempty"`
	DisplayName   string         `gorm:"column:display_name;size:320" json:"display_name,omitempty"`
	Bio           string         `gorm:"column:bio;size:2048" json:"bio,omitempty"`
	AvatarURL     string         `gorm:"column:avatar_url;size:512" json:"avatar_url,omitempty"`
	Preferences   map[string]any `gorm:"column:preferences;serializer:json" json:"preferences"`
	VisitedPlaces []string       `gorm:"column:visited_places;serializer:json" json:"visited_places"`
	CreatedAt     time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName exposes the table backing user profiles.
func (Profile) TableName() string {
	return "user_profiles"
}

// User is the outward projection of a Profile returned by service operations.
type User struct {
	AccountID string `json:"account_id"`
	NomadID   string `json:"nomad_id"`
	Username  string `json:"username,omitempty"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

func (p Profile) projection() User {
	username := ""
	if p.Username != nil {
		username = *p.Username
	}
	return User{
		AccountID: p.AccountID,
		NomadID:   p.NomadID,
		Username:  username,
		Email:     p.Email,
		AvatarURL: p.AvatarURL,
	}
}

// normalizeEmail canonicalizes an address before any store or provider call.
func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
