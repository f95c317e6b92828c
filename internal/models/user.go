// Package models contains data models for the auth service.
package models

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"
)

// User roles. Role is carried in access-token claims and is never
// mutable through the public profile path.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents an account. PasswordHash is empty for accounts that
// only ever signed in through Google; GoogleID is empty for
// password-only accounts. At least one of the two is set.
type User struct {
	ID                   string     `json:"id" gorm:"primaryKey;type:uuid"`
	Name                 string     `json:"name" gorm:"not null"`
	Email                string     `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash         string     `json:"-" gorm:"column:password_hash"`
	GoogleID             *string    `json:"-" gorm:"uniqueIndex;default:null"`
	AvatarURL            string     `json:"avatar_url"`
	Role                 string     `json:"role" gorm:"not null;default:user"`
	IsEmailVerified      bool       `json:"is_email_verified" gorm:"not null;default:false"`
	IsActive             bool       `json:"is_active" gorm:"not null;default:true"`
	LastLoginAt          *time.Time `json:"last_login_at"`
	FailedLoginAttempts  int        `json:"-" gorm:"not null;default:0"`
	LockedUntil          *time.Time `json:"-"`
	ResetTokenHash       string     `json:"-"`
	ResetTokenExpiresAt  *time.Time `json:"-"`
	VerifyTokenHash      string     `json:"-"`
	VerifyTokenExpiresAt *time.Time `json:"-"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// TableName returns the database table name for the User model.
func (User) TableName() string {
	return "users"
}

// IsLocked reports whether the account is inside a lockout window.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// IsAdmin reports whether the account has the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// HasPassword reports whether the account can authenticate with a
// password at all (Google-only accounts cannot).
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// NormalizeEmail lowercases and trims an email so uniqueness is
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HashToken returns the hex SHA-256 of a plaintext reset/verification
// token. Only the hash is ever persisted.
func HashToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// TokenHashMatches compares a candidate plaintext token against a
// stored hash in constant time.
func TokenHashMatches(storedHash, candidate string) bool {
	if storedHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(HashToken(candidate))) == 1
}
