package store

import (
	"context"
	"errors"
	"testing"

	"github.com/getkayan/kidentity/identity"
	"github.com/getkayan/kidentity/mapping"
	"github.com/google/uuid"
)

func TestRoleStore_FindByNameIgnoresCase(t *testing.T) {
	ctx := context.Background()
	names := []string{"Admin", "power user", "Éditeur", "r"}

	for _, name := range names {
		f := newFixture[string](t, mapping.KeyHexComb)
		created := f.mustRole(t, name)

		variants := []string{name, identity.NormalizeKey(name), swapCase(name)}
		for _, v := range variants {
			got, err := f.roles.FindByName(ctx, v)
			if err != nil {
				t.Fatalf("FindByName(%q): %v", v, err)
			}
			if got == nil {
				t.Fatalf("FindByName(%q): role %q not found", v, name)
			}
			if got.ID != created.ID || got.Name != name {
				t.Errorf("FindByName(%q) = %+v, want id %s name %q", v, got, created.ID, name)
			}
		}
	}
}

func swapCase(s string) string {
	out := []rune(s)
	for i, r := range out {
		switch {
		case r >= 'a' && r <= 'z':
			out[i] = r - 'a' + 'A'
		case r >= 'A' && r <= 'Z':
			out[i] = r - 'A' + 'a'
		}
	}
	return string(out)
}

func TestRoleStore_DuplicateNameByCaseFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture[string](t, mapping.KeyHexComb)
	f.mustRole(t, "Admin")

	err := f.roles.Create(ctx, identity.NewRole[string]("ADMIN"))
	if err == nil {
		t.Fatal("expected unique violation for a name differing only by case")
	}
	if errors.Is(err, ErrInvalidArgument) || errors.Is(err, ErrDisposed) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestRoleStore_FreshReadAfterCreate(t *testing.T) {
	ctx := context.Background()
	f := newFixture[string](t, mapping.KeyHexComb)
	f.mustRole(t, "Admin")

	var found []identity.Role[string]
	err := f.session.Query(ctx).
		Where("normalized_name = ?", identity.NormalizeKey("admin")).
		Find(&found).Error
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("expected exactly one role, got %d", len(found))
	}
	if found[0].Name != "Admin" {
		t.Fatalf("expected name %q, got %q", "Admin", found[0].Name)
	}
}

func TestRoleStore_FindByID(t *testing.T) {
	ctx := context.Background()
	f := newFixture[uuid.UUID](t, mapping.KeyGuidComb)
	created := f.mustRole(t, "Auditor")
	if created.ID == uuid.Nil {
		t.Fatal("expected a generated key")
	}

	got, err := f.roles.FindByID(ctx, created.ID)
	if err != nil || got == nil {
		t.Fatalf("FindByID: %v, %v", got, err)
	}
	if got.Name != "Auditor" {
		t.Fatalf("unexpected role %+v", got)
	}

	missing, err := f.roles.FindByID(ctx, uuid.New())
	if err != nil || missing != nil {
		t.Fatalf("expected nil for unknown key, got %v, %v", missing, err)
	}
}

func TestRoleStore_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture[string](t, mapping.KeyHexComb)
	role := f.mustRole(t, "Editor")

	role.Name = "Publisher"
	if err := f.roles.Update(ctx, role); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got, _ := f.roles.FindByName(ctx, "publisher"); got == nil || got.ID != role.ID {
		t.Fatalf("expected renamed role, got %+v", got)
	}
	if got, _ := f.roles.FindByName(ctx, "editor"); got != nil {
		t.Fatalf("old name must not resolve, got %+v", got)
	}

	if err := f.roles.Delete(ctx, role); err != nil {
		t.Fatalf("delete: %v", err)
	}
	q, err := f.roles.Roles(ctx)
	if err != nil {
		t.Fatalf("roles: %v", err)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil || count != 0 {
		t.Fatalf("expected no roles, got %d (%v)", count, err)
	}
}

func TestRoleStore_DeleteRemovesMembershipOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture[string](t, mapping.KeyHexComb)
	role := f.mustRole(t, "Admin")
	user := f.mustUser(t, "alice")

	if err := f.users.AddToRole(ctx, user, "admin"); err != nil {
		t.Fatalf("add to role: %v", err)
	}
	if err := f.users.Update(ctx, user); err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := f.roles.Delete(ctx, role); err != nil {
		t.Fatalf("delete role: %v", err)
	}

	reloaded, err := f.users.FindByID(ctx, user.ID)
	if err != nil || reloaded == nil {
		t.Fatalf("user must survive role deletion: %v, %v", reloaded, err)
	}
	if len(reloaded.Roles) != 0 {
		t.Fatalf("expected membership to be gone, got %v", reloaded.Roles)
	}
}

func TestRoleStore_InvalidArguments(t *testing.T) {
	ctx := context.Background()
	f := newFixture[string](t, mapping.KeyHexComb)

	checks := map[string]error{
		"create nil": f.roles.Create(ctx, nil),
		"update nil": f.roles.Update(ctx, nil),
		"delete nil": f.roles.Delete(ctx, nil),
	}
	_, err := f.roles.FindByName(ctx, "  ")
	checks["find blank"] = err

	for name, err := range checks {
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("%s: expected ErrInvalidArgument, got %v", name, err)
		}
	}
}

func TestRoleStore_Disposed(t *testing.T) {
	ctx := context.Background()
	f := newFixture[string](t, mapping.KeyHexComb)
	role := f.mustRole(t, "Admin")
	if err := f.roles.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	ops := map[string]func() error{
		"FindByID":   func() error { _, err := f.roles.FindByID(ctx, role.ID); return err },
		"FindByName": func() error { _, err := f.roles.FindByName(ctx, "Admin"); return err },
		"Create":     func() error { return f.roles.Create(ctx, identity.NewRole[string]("x")) },
		"Update":     func() error { return f.roles.Update(ctx, role) },
		"Delete":     func() error { return f.roles.Delete(ctx, role) },
		"Roles":      func() error { _, err := f.roles.Roles(ctx); return err },
		"nil arg":    func() error { return f.roles.Create(ctx, nil) },
	}
	for name, op := range ops {
		if err := op(); !errors.Is(err, ErrDisposed) {
			t.Errorf("%s: expected ErrDisposed, got %v", name, err)
		}
	}
	if err := f.roles.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}
