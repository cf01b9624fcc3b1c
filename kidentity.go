// Package kidentity persists users, roles, claims, external logins and role
// membership through GORM.
//
// The aliases and constructors here cover the common string-keyed setup:
//
//	desc, _ := kidentity.NewDefaultDescriptor()
//	sess, err := kgorm.OpenSession("sqlite", "identity.db", desc, kgorm.Options{})
//	if err != nil {
//	    return err
//	}
//	users, _ := kidentity.NewDefaultUserStore(sess)
//	defer users.Close()
//
// Use the generic packages directly for uuid.UUID keys.
package kidentity

import (
	"github.com/getkayan/kidentity/domain"
	"github.com/getkayan/kidentity/identity"
	"github.com/getkayan/kidentity/mapping"
	"github.com/getkayan/kidentity/store"
	"github.com/google/uuid"
)

// Default types for convenience
type (
	ID               = string
	IdentityUser     = identity.User[string]
	IdentityRole     = identity.Role[string]
	IdentityClaim    = identity.UserClaim[string]
	IdentityLogin    = identity.UserLogin[string]
	IdentityUserRole = identity.UserRole[string]
	RoleStore        = store.RoleStore[string]
	UserStore        = store.UserStore[string]
)

// NewDefaultDescriptor maps string keys generated as hyphenated hex combs.
func NewDefaultDescriptor(additional ...any) (*mapping.Descriptor[string], error) {
	return mapping.New[string](mapping.KeyHexComb, additional...)
}

// NewGuidDescriptor maps uuid.UUID keys generated as combs.
func NewGuidDescriptor(additional ...any) (*mapping.Descriptor[uuid.UUID], error) {
	return mapping.New[uuid.UUID](mapping.KeyGuidComb, additional...)
}

// NewDefaultRoleStore creates a string-keyed role store over session.
func NewDefaultRoleStore(session domain.Session) (*RoleStore, error) {
	return store.NewRoleStore[string](session)
}

// NewDefaultUserStore creates a string-keyed user store over session.
func NewDefaultUserStore(session domain.Session) (*UserStore, error) {
	return store.NewUserStore[string](session)
}
