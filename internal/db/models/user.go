// Package models contains database model definitions.
package models

import "time"

// User is a profile received from the identity provider, keyed by email.
type User struct {
	// ID is the surrogate key assigned on insert.
	ID uint64 `gorm:"primaryKey"`
	// Email is the natural identity key, one row per address.
	Email string `gorm:"uniqueIndex:idx_users_email;size:255;not null"`
	// EmailVerified is reported by the provider, nil when not supplied.
	EmailVerified *bool
	// Name, Nickname and Picture are provider supplied display metadata.
	Name     *string `gorm:"size:255"`
	Nickname *string `gorm:"size:255"`
	Picture  *string `gorm:"size:2048"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PublicUser is the JSON shape of a User returned by the api.
// It never carries the id or email_verified.
type PublicUser struct {
	Email    string  `json:"email"`
	Name     *string `json:"name"`
	Nickname *string `json:"nickname"`
	Picture  *string `json:"picture"`
}

// NewUser builds a User ready for insert.
func NewUser(email string, name, nickname *string, emailVerified *bool, picture *string) *User {
	return &User{
		Email:         email,
		EmailVerified: emailVerified,
		Name:          name,
		Nickname:      nickname,
		Picture:       picture,
	}
}

// Public projects the user to its serialized form.
func (u *User) Public() PublicUser {
	return PublicUser{
		Email:    u.Email,
		Name:     u.Name,
		Nickname: u.Nickname,
		Picture:  u.Picture,
	}
}
