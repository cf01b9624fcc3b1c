package kidentity

import (
	"context"
	"testing"

	"github.com/getkayan/kidentity/kgorm"
	"github.com/getkayan/kidentity/mapping"
)

func TestDefaultStores(t *testing.T) {
	ctx := context.Background()
	desc, err := NewDefaultDescriptor()
	if err != nil {
		t.Fatalf("descriptor: %v", err)
	}
	if desc.Strategy() != mapping.KeyHexComb {
		t.Fatalf("unexpected strategy %v", desc.Strategy())
	}

	sess, err := kgorm.OpenSession("sqlite", ":memory:", desc, kgorm.Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	roles, err := NewDefaultRoleStore(sess)
	if err != nil {
		t.Fatalf("role store: %v", err)
	}
	roles.ShouldCloseSession = false
	users, err := NewDefaultUserStore(sess)
	if err != nil {
		t.Fatalf("user store: %v", err)
	}
	defer users.Close()

	if err := roles.Create(ctx, &IdentityRole{Name: "Admin"}); err != nil {
		t.Fatalf("create role: %v", err)
	}
	user := &IdentityUser{UserName: "alice"}
	if err := users.AddToRole(ctx, user, "admin"); err != nil {
		t.Fatalf("add to role: %v", err)
	}
	if err := users.Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	got, err := users.FindByName(ctx, "ALICE")
	if err != nil || got == nil {
		t.Fatalf("find: %v, %v", got, err)
	}
	if ok, _ := users.IsInRole(ctx, got, "Admin"); !ok {
		t.Fatal("expected membership to persist")
	}
}

func TestGuidDescriptor(t *testing.T) {
	desc, err := NewGuidDescriptor()
	if err != nil {
		t.Fatalf("descriptor: %v", err)
	}
	k, err := desc.NewKey()
	if err != nil || k.Version() != 7 {
		t.Fatalf("expected v7 key, got %v, %v", k, err)
	}
}
