// Package identity defines the persisted identity entities.
//
// Every entity is generic over its key type K, which is either a string or a
// 128-bit uuid.UUID. The same field layout backs both variants; only the key
// generation strategy differs, and that is chosen by the mapping descriptor.
//
// # Entities
//
//   - User: account record owning claims, external logins and role membership
//   - Role: named role, unique case-insensitively
//   - UserClaim: type/value pair owned by a user
//   - UserLogin: external login (provider, key) owned by a user
//   - UserRole: junction row representing membership
//
// Owned children (claims, logins) and membership rows are written by the
// GORM hooks in hooks.go whenever a user is saved or deleted. Roles is not a
// GORM association: membership is read and written through UserRole rows.
package identity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Key is the set of supported primary key types.
type Key interface {
	string | uuid.UUID
}

// ParseKey converts the textual form of a key into K.
func ParseKey[K Key](s string) (K, error) {
	var k K
	switch p := any(&k).(type) {
	case *string:
		*p = s
	case *uuid.UUID:
		id, err := uuid.Parse(s)
		if err != nil {
			return k, fmt.Errorf("identity: invalid key %q: %w", s, err)
		}
		*p = id
	}
	return k, nil
}

// IsZeroKey reports whether k is the zero value of its type.
func IsZeroKey[K Key](k K) bool {
	var zero K
	return k == zero
}

// User represents an account.
type User[K Key] struct {
	ID                   K          `gorm:"primaryKey;size:36" json:"id"`
	UserName             string     `gorm:"size:256;not null" json:"user_name"`
	NormalizedUserName   string     `gorm:"size:256;not null;unique" json:"-"`
	Email                *string    `gorm:"size:256" json:"email,omitempty"`
	NormalizedEmail      *string    `gorm:"size:256;index" json:"-"`
	EmailConfirmed       bool       `json:"email_confirmed"`
	PasswordHash         *string    `json:"-"`
	SecurityStamp        *string    `json:"-"`
	PhoneNumber          *string    `gorm:"size:64" json:"phone_number,omitempty"`
	PhoneNumberConfirmed bool       `json:"phone_number_confirmed"`
	TwoFactorEnabled     bool       `json:"two_factor_enabled"`
	LockoutEndDateUTC    *time.Time `gorm:"column:lockout_end_date_utc" json:"lockout_end_date_utc,omitempty"`
	LockoutEnabled       bool       `json:"lockout_enabled"`
	AccessFailedCount    int        `gorm:"not null;default:0" json:"access_failed_count"`

	// Roles is backed by user_roles rows and loaded by the user store.
	Roles  []Role[K]      `gorm:"-" json:"roles,omitempty"`
	Claims []UserClaim[K] `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"claims,omitempty"`
	Logins []UserLogin[K] `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"logins,omitempty"`

	hydration hydration
}

func (User[K]) TableName() string { return "users" }

// NewUser returns an in-memory user with the given name.
func NewUser[K Key](userName string) *User[K] {
	return &User[K]{UserName: userName}
}

// Role represents a named role.
type Role[K Key] struct {
	ID             K      `gorm:"primaryKey;size:36" json:"id"`
	Name           string `gorm:"size:256;not null" json:"name"`
	NormalizedName string `gorm:"size:256;not null;unique" json:"-"`
}

func (Role[K]) TableName() string { return "roles" }

// NewRole returns an in-memory role with the given name.
func NewRole[K Key](name string) *Role[K] {
	return &Role[K]{Name: name}
}

// UserClaim is a claim owned by a user.
type UserClaim[K Key] struct {
	ID         K      `gorm:"primaryKey;size:36" json:"id"`
	UserID     K      `gorm:"size:36;index;not null" json:"user_id"`
	ClaimType  string `json:"claim_type"`
	ClaimValue string `json:"claim_value"`
}

func (UserClaim[K]) TableName() string { return "user_claims" }

// UserLogin is an external login owned by a user. The (provider, key) pair
// is unique across all users.
type UserLogin[K Key] struct {
	LoginProvider string `gorm:"primaryKey;size:128" json:"login_provider"`
	ProviderKey   string `gorm:"primaryKey;size:128" json:"provider_key"`
	UserID        K      `gorm:"size:36;index;not null" json:"user_id"`
}

func (UserLogin[K]) TableName() string { return "user_logins" }

// UserRole is a membership row.
type UserRole[K Key] struct {
	UserID K `gorm:"primaryKey;size:36"`
	RoleID K `gorm:"primaryKey;size:36;index"`
}

func (UserRole[K]) TableName() string { return "user_roles" }

// Claim is a claim value as exchanged with callers.
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// LoginInfo identifies an external login.
type LoginInfo struct {
	LoginProvider string `json:"login_provider"`
	ProviderKey   string `json:"provider_key"`
}
