package store

import (
	"context"
	"errors"
	"testing"

	"github.com/getkayan/kidentity/identity"
	"github.com/getkayan/kidentity/kgorm"
	"github.com/getkayan/kidentity/mapping"
)

func openSession[K identity.Key](t *testing.T, strategy mapping.KeyStrategy) *kgorm.Session {
	t.Helper()
	desc, err := mapping.New[K](strategy)
	if err != nil {
		t.Fatalf("descriptor: %v", err)
	}
	s, err := kgorm.OpenSession("sqlite", ":memory:", desc, kgorm.Options{})
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type fixture[K identity.Key] struct {
	session *kgorm.Session
	roles   *RoleStore[K]
	users   *UserStore[K]
}

func newFixture[K identity.Key](t *testing.T, strategy mapping.KeyStrategy) *fixture[K] {
	t.Helper()
	s := openSession[K](t, strategy)
	roles, err := NewRoleStore[K](s)
	if err != nil {
		t.Fatalf("role store: %v", err)
	}
	users, err := NewUserStore[K](s)
	if err != nil {
		t.Fatalf("user store: %v", err)
	}
	roles.ShouldCloseSession = false
	users.ShouldCloseSession = false
	return &fixture[K]{session: s, roles: roles, users: users}
}

func (f *fixture[K]) mustRole(t *testing.T, name string) *identity.Role[K] {
	t.Helper()
	r := identity.NewRole[K](name)
	if err := f.roles.Create(context.Background(), r); err != nil {
		t.Fatalf("create role %q: %v", name, err)
	}
	return r
}

func (f *fixture[K]) mustUser(t *testing.T, name string) *identity.User[K] {
	t.Helper()
	u := identity.NewUser[K](name)
	if err := f.users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user %q: %v", name, err)
	}
	return u
}

func TestNewStores_NilSession(t *testing.T) {
	if _, err := NewRoleStore[string](nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("role store: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := NewUserStore[string](nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("user store: expected ErrInvalidArgument, got %v", err)
	}
}

func TestStores_DefaultCloseSession(t *testing.T) {
	s := openSession[string](t, mapping.KeyHexComb)
	roles, _ := NewRoleStore[string](s)
	if !roles.ShouldCloseSession {
		t.Fatal("expected ShouldCloseSession to default to true")
	}
	if err := roles.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if roles.Session() != nil {
		t.Fatal("expected no session after close")
	}
	if err := s.Save(identity.NewRole[string]("x")); !errors.Is(err, kgorm.ErrSessionClosed) {
		t.Fatalf("expected the session to be closed with the store, got %v", err)
	}
}

func TestStores_KeepSessionOpen(t *testing.T) {
	f := newFixture[string](t, mapping.KeyHexComb)
	if err := f.roles.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// The user store still works on the shared session.
	f.mustUser(t, "alice")
}
