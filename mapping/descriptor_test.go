package mapping

import (
	"context"
	"errors"
	"testing"

	"github.com/getkayan/kidentity/identity"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

type auditEntry struct {
	ID     string `gorm:"primaryKey;size:36"`
	Action string
}

func (auditEntry) TableName() string { return "audit_entries" }

func TestDescriptor_ApplyValidates(t *testing.T) {
	db := openDB(t)
	d, err := New[string](KeyHexComb, &auditEntry{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := d.Apply(db); err != nil {
		t.Fatalf("apply: %v", err)
	}

	tables := make(map[string]bool)
	for _, tbl := range d.Tables() {
		tables[tbl] = true
	}
	for _, want := range []string{"users", "roles", "user_claims", "user_logins", "user_roles", "audit_entries"} {
		if !tables[want] {
			t.Errorf("expected table %q in %v", want, d.Tables())
		}
	}
}

func TestDescriptor_ApplyBothKeyTypes(t *testing.T) {
	tests := []struct {
		name  string
		apply func(*gorm.DB) error
	}{
		{"string", func(db *gorm.DB) error {
			d, err := New[string](KeyKSUID)
			if err != nil {
				return err
			}
			if err := d.Apply(db); err != nil {
				return err
			}
			return d.Migrate(db)
		}},
		{"uuid", func(db *gorm.DB) error {
			d, err := New[uuid.UUID](KeyGuidComb)
			if err != nil {
				return err
			}
			if err := d.Apply(db); err != nil {
				return err
			}
			return d.Migrate(db)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := openDB(t)
			if err := tt.apply(db); err != nil {
				t.Fatalf("apply: %v", err)
			}
			if !db.Migrator().HasTable("user_roles") {
				t.Fatal("user_roles not created")
			}
		})
	}
}

func TestDescriptor_ApplyTwice(t *testing.T) {
	db := openDB(t)
	d, _ := New[string](KeyHexComb)
	if err := d.Apply(db); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := d.Apply(db); err != nil {
		t.Fatalf("reapplying the same descriptor: %v", err)
	}

	other, _ := New[string](KeySnowflake)
	if err := other.Apply(db); !errors.Is(err, ErrAlreadyApplied) {
		t.Fatalf("expected ErrAlreadyApplied, got %v", err)
	}
}

type badUserRole struct {
	UserID string `gorm:"primaryKey;size:36"`
	RoleID string `gorm:"size:36"`
}

func (badUserRole) TableName() string { return "user_roles" }

func TestDescriptor_ValidateJunction(t *testing.T) {
	db := openDB(t)
	d, _ := New[string](KeyHexComb)
	users := d.entities[1]
	assocs := make([]Association, len(users.Associations))
	copy(assocs, users.Associations)
	assocs[2].Through = &badUserRole{}
	users.Associations = assocs
	d.entities[1] = users

	if err := d.Validate(db); err == nil {
		t.Fatal("expected error for junction without composite key")
	}
}

func TestDescriptor_Associations(t *testing.T) {
	d, err := New[uuid.UUID](KeyGuidComb)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	var users *Entity
	for _, e := range d.Entities() {
		if e.Table == "users" {
			e := e
			users = &e
		}
	}
	if users == nil {
		t.Fatal("users entity missing")
	}

	cascades := map[string]Cascade{}
	for _, a := range users.Associations {
		cascades[a.Field] = a.Cascade
	}
	if cascades["Claims"] != CascadeAllDeleteOrphans || cascades["Logins"] != CascadeAllDeleteOrphans {
		t.Errorf("claims and logins must cascade, got %v", cascades)
	}
	if cascades["Roles"] != CascadeNone {
		t.Errorf("roles must not cascade, got %v", cascades["Roles"])
	}
}

type badRole struct {
	ID             string `gorm:"primaryKey;size:36"`
	Name           string `gorm:"size:64"`
	NormalizedName string
}

func (badRole) TableName() string { return "roles" }

func TestDescriptor_ValidateRejectsDrift(t *testing.T) {
	db := openDB(t)
	d, _ := New[string](KeyHexComb)
	d.entities[0] = Entity{
		Model:   &badRole{},
		Table:   "roles",
		Columns: d.entities[0].Columns,
	}
	if err := d.Validate(db); err == nil {
		t.Fatal("expected validation error for mismatched column length")
	}
}

func TestDescriptor_AssignsKeysOnCreate(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	d, _ := New[uuid.UUID](KeyGuidComb)
	if err := d.Apply(db); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := d.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	roles := []identity.Role[uuid.UUID]{{Name: "a"}, {Name: "b"}}
	if err := db.WithContext(ctx).Create(&roles).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	if roles[0].ID == uuid.Nil || roles[1].ID == uuid.Nil || roles[0].ID == roles[1].ID {
		t.Fatalf("expected distinct generated keys, got %v %v", roles[0].ID, roles[1].ID)
	}

	fixed := uuid.New()
	role := identity.Role[uuid.UUID]{ID: fixed, Name: "c"}
	if err := db.Create(&role).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	if role.ID != fixed {
		t.Fatalf("expected caller key to be kept, got %v", role.ID)
	}

	var loaded identity.Role[uuid.UUID]
	if err := db.First(&loaded, "normalized_name = ?", "C").Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.ID != fixed {
		t.Fatalf("expected %v after round trip, got %v", fixed, loaded.ID)
	}
}

func TestNew_RejectsMismatchedStrategy(t *testing.T) {
	if _, err := New[uuid.UUID](KeyHexComb); err == nil {
		t.Fatal("expected mismatch error")
	}
	if _, err := New[string](KeyHexComb, nil); err == nil {
		t.Fatal("expected nil model error")
	}
}
