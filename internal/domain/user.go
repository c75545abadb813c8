// Package domain contains entities without logic, just meta-data.
package domain

import "errors"

const (
	MaxUserIDLen   = 64
	MaxUsernameLen = 64

	// DefaultTheme is applied when a joining client supplies no theme.
	DefaultTheme = "#6366f1"
)

var (
	ErrUserIDEmpty     = errors.New("user id empty")
	ErrUserIDTooLong   = errors.New("user id too long")
	ErrUsernameEmpty   = errors.New("username empty")
	ErrUsernameTooLong = errors.New("username too long")
)

// User is the persisted profile record, upserted on every join.
type User struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	AvatarURL  string `json:"avatarUrl,omitempty"`
	ThemeColor string `json:"themeColor"`
}

// NewUser validates identity fields and fills theme defaults.
func NewUser(id, username, avatarURL, theme string) (*User, error) {
	if id == "" {
		return nil, ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		return nil, ErrUserIDTooLong
	}
	if username == "" {
		return nil, ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return nil, ErrUsernameTooLong
	}
	if theme == "" {
		theme = DefaultTheme
	}
	return &User{ID: id, Username: username, AvatarURL: avatarURL, ThemeColor: theme}, nil
}
