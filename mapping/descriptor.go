// Package mapping binds the identity entities to relational tables.
//
// A Descriptor lists every mapped entity with its table, constrained columns
// and associations, and carries the key generation strategy chosen for the
// key type. Apply installs the descriptor on a *gorm.DB as a plugin: it
// validates the parsed GORM schemas against the descriptor and hooks key
// generation into GORM's create pipeline.
//
//	desc, err := mapping.New[uuid.UUID](mapping.KeyGuidComb)
//	if err != nil {
//	    return err
//	}
//	if err := desc.Apply(db); err != nil {
//	    return err
//	}
//	if err := desc.Migrate(db); err != nil {
//	    return err
//	}
package mapping

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/getkayan/kidentity/identity"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Relation is the kind of an association.
type Relation int

const (
	OneToMany Relation = iota + 1
	ManyToMany
)

func (r Relation) String() string {
	switch r {
	case OneToMany:
		return "one-to-many"
	case ManyToMany:
		return "many-to-many"
	}
	return fmt.Sprintf("Relation(%d)", int(r))
}

// Cascade tells which parent lifecycle operations reach associated rows.
type Cascade int

const (
	// CascadeNone leaves associated rows alone; only link rows are written.
	CascadeNone Cascade = iota
	// CascadeAllDeleteOrphans propagates insert, update and delete, and
	// deletes children removed from the parent's collection.
	CascadeAllDeleteOrphans
)

// Column describes a constrained column.
type Column struct {
	Field   string
	Name    string
	Length  int
	NotNull bool
	Unique  bool
}

// Association describes a collection-valued field. A ManyToMany
// association names its junction model in Through; the field itself is
// not a GORM relation.
type Association struct {
	Field     string
	Relation  Relation
	Table     string
	KeyColumn string
	Through   any
	Cascade   Cascade
}

// Entity is the mapping of one model.
type Entity struct {
	Model        any
	Table        string
	Columns      []Column
	Associations []Association
}

const (
	pluginName        = "kidentity:mapping"
	assignKeyCallback = "kidentity:assign_key"
)

// ErrAlreadyApplied is returned by Apply when another descriptor is
// installed on the same database.
var ErrAlreadyApplied = errors.New("mapping: a different descriptor is already applied")

// Descriptor is the complete mapping for key type K.
type Descriptor[K identity.Key] struct {
	strategy KeyStrategy
	newKey   KeyGenerator[K]
	entities []Entity
	tables   map[string]bool
	resolved []string
}

// New builds the descriptor for the identity entities plus any additional
// models that should share the key strategy.
func New[K identity.Key](strategy KeyStrategy, additional ...any) (*Descriptor[K], error) {
	return NewWithOptions[K](strategy, GeneratorOptions{}, additional...)
}

// NewWithOptions is New with generator options.
func NewWithOptions[K identity.Key](strategy KeyStrategy, opts GeneratorOptions, additional ...any) (*Descriptor[K], error) {
	gen, err := NewKeyGenerator[K](strategy, opts)
	if err != nil {
		return nil, err
	}

	entities := identityEntities[K]()
	for _, m := range additional {
		if m == nil {
			return nil, fmt.Errorf("mapping: nil model")
		}
		entities = append(entities, Entity{Model: m})
	}

	return &Descriptor[K]{
		strategy: strategy,
		newKey:   gen,
		entities: entities,
		tables:   make(map[string]bool),
	}, nil
}

func identityEntities[K identity.Key]() []Entity {
	return []Entity{
		{
			Model: &identity.Role[K]{},
			Table: "roles",
			Columns: []Column{
				{Field: "Name", Name: "name", Length: 256, NotNull: true},
				{Field: "NormalizedName", Name: "normalized_name", Length: 256, NotNull: true, Unique: true},
			},
		},
		{
			Model: &identity.User[K]{},
			Table: "users",
			Columns: []Column{
				{Field: "UserName", Name: "user_name", Length: 256, NotNull: true},
				{Field: "NormalizedUserName", Name: "normalized_user_name", Length: 256, NotNull: true, Unique: true},
				{Field: "Email", Name: "email", Length: 256},
				{Field: "NormalizedEmail", Name: "normalized_email", Length: 256},
				{Field: "LockoutEndDateUTC", Name: "lockout_end_date_utc"},
				{Field: "AccessFailedCount", Name: "access_failed_count", NotNull: true},
			},
			Associations: []Association{
				{Field: "Claims", Relation: OneToMany, Table: "user_claims", KeyColumn: "user_id", Cascade: CascadeAllDeleteOrphans},
				{Field: "Logins", Relation: OneToMany, Table: "user_logins", KeyColumn: "user_id", Cascade: CascadeAllDeleteOrphans},
				{Field: "Roles", Relation: ManyToMany, Table: "user_roles", KeyColumn: "user_id", Through: &identity.UserRole[K]{}, Cascade: CascadeNone},
			},
		},
		{
			Model: &identity.UserClaim[K]{},
			Table: "user_claims",
			Columns: []Column{
				{Field: "UserID", Name: "user_id", NotNull: true},
				{Field: "ClaimType", Name: "claim_type"},
				{Field: "ClaimValue", Name: "claim_value"},
			},
		},
		{
			Model: &identity.UserLogin[K]{},
			Table: "user_logins",
			Columns: []Column{
				{Field: "LoginProvider", Name: "login_provider", Length: 128},
				{Field: "ProviderKey", Name: "provider_key", Length: 128},
				{Field: "UserID", Name: "user_id", NotNull: true},
			},
		},
		{
			Model: &identity.UserRole[K]{},
			Table: "user_roles",
			Columns: []Column{
				{Field: "UserID", Name: "user_id"},
				{Field: "RoleID", Name: "role_id"},
			},
		},
	}
}

// Strategy returns the key strategy.
func (d *Descriptor[K]) Strategy() KeyStrategy { return d.strategy }

// Entities returns the mapped entities.
func (d *Descriptor[K]) Entities() []Entity {
	out := make([]Entity, len(d.entities))
	copy(out, d.entities)
	return out
}

// Models returns the mapped models in migration order.
func (d *Descriptor[K]) Models() []any {
	models := make([]any, 0, len(d.entities))
	for _, e := range d.entities {
		models = append(models, e.Model)
	}
	return models
}

// Tables returns the table names resolved by the last Apply or Validate,
// in migration order.
func (d *Descriptor[K]) Tables() []string {
	out := make([]string, len(d.resolved))
	copy(out, d.resolved)
	return out
}

// NewKey returns a fresh key from the descriptor's generator.
func (d *Descriptor[K]) NewKey() (K, error) {
	return d.newKey()
}

// Apply installs the descriptor on db. It must run before the stores use
// db, and before Migrate. One descriptor serves a database: applying the
// same descriptor again only revalidates, applying a different one fails
// with ErrAlreadyApplied.
func (d *Descriptor[K]) Apply(db *gorm.DB) error {
	if p, ok := db.Config.Plugins[pluginName]; ok {
		if p != gorm.Plugin(d) {
			return ErrAlreadyApplied
		}
		return d.Validate(db)
	}
	if err := d.Validate(db); err != nil {
		return err
	}
	return db.Use(d)
}

// Name implements gorm.Plugin.
func (d *Descriptor[K]) Name() string { return pluginName }

// Initialize implements gorm.Plugin by registering key assignment before
// GORM's create callback.
func (d *Descriptor[K]) Initialize(db *gorm.DB) error {
	return db.Callback().Create().Before("gorm:create").Register(assignKeyCallback, d.assignKeys)
}

// Migrate creates or updates the tables of every mapped model.
func (d *Descriptor[K]) Migrate(db *gorm.DB) error {
	return db.AutoMigrate(d.Models()...)
}

// Validate parses every mapped model with db's naming strategy and checks
// the result against the descriptor.
func (d *Descriptor[K]) Validate(db *gorm.DB) error {
	tables := make(map[string]bool, len(d.entities))
	resolved := make([]string, 0, len(d.entities))
	for _, e := range d.entities {
		sch, err := parseModel(db, e.Model)
		if err != nil {
			return err
		}
		if e.Table != "" && sch.Table != e.Table {
			return fmt.Errorf("mapping: %s maps to table %q, want %q", sch.Name, sch.Table, e.Table)
		}
		if sch.PrioritizedPrimaryField == nil && len(sch.PrimaryFields) == 0 {
			return fmt.Errorf("mapping: table %q has no primary key", sch.Table)
		}
		for _, c := range e.Columns {
			if err := checkColumn(sch, c); err != nil {
				return err
			}
		}
		for _, a := range e.Associations {
			if err := checkAssociation(db, sch, a); err != nil {
				return err
			}
		}
		if !tables[sch.Table] {
			resolved = append(resolved, sch.Table)
		}
		tables[sch.Table] = true
	}
	d.tables = tables
	d.resolved = resolved
	return nil
}

func parseModel(db *gorm.DB, model any) (*schema.Schema, error) {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(model); err != nil {
		return nil, fmt.Errorf("mapping: parse %T: %w", model, err)
	}
	return stmt.Schema, nil
}

func checkColumn(sch *schema.Schema, c Column) error {
	f := sch.LookUpField(c.Field)
	if f == nil {
		return fmt.Errorf("mapping: %s: missing field %s", sch.Table, c.Field)
	}
	if c.Name != "" && f.DBName != c.Name {
		return fmt.Errorf("mapping: %s.%s: column %q, want %q", sch.Table, c.Field, f.DBName, c.Name)
	}
	if c.Length > 0 && f.Size != c.Length {
		return fmt.Errorf("mapping: %s.%s: length %d, want %d", sch.Table, c.Field, f.Size, c.Length)
	}
	if c.NotNull && !f.NotNull && !f.PrimaryKey {
		return fmt.Errorf("mapping: %s.%s: must be not null", sch.Table, c.Field)
	}
	if c.Unique && !f.Unique {
		return fmt.Errorf("mapping: %s.%s: must be unique", sch.Table, c.Field)
	}
	return nil
}

func checkAssociation(db *gorm.DB, sch *schema.Schema, a Association) error {
	switch a.Relation {
	case OneToMany:
		return checkOneToMany(sch, a)
	case ManyToMany:
		return checkManyToMany(db, sch, a)
	}
	return fmt.Errorf("mapping: %s.%s: unknown relation %s", sch.Table, a.Field, a.Relation)
}

func checkOneToMany(sch *schema.Schema, a Association) error {
	rel, ok := sch.Relationships.Relations[a.Field]
	if !ok {
		return fmt.Errorf("mapping: %s: missing association %s", sch.Table, a.Field)
	}
	if rel.Type != schema.HasMany {
		return fmt.Errorf("mapping: %s.%s: relation %s, want %s", sch.Table, a.Field, rel.Type, a.Relation)
	}
	if rel.FieldSchema.Table != a.Table {
		return fmt.Errorf("mapping: %s.%s: table %q, want %q", sch.Table, a.Field, rel.FieldSchema.Table, a.Table)
	}
	if a.KeyColumn == "" {
		return nil
	}
	for _, ref := range rel.References {
		if ref.OwnPrimaryKey && ref.ForeignKey != nil && ref.ForeignKey.DBName == a.KeyColumn {
			return nil
		}
	}
	return fmt.Errorf("mapping: %s.%s: no key column %q", sch.Table, a.Field, a.KeyColumn)
}

// checkManyToMany validates the junction model: it must map to the
// association table with a composite primary key that includes the
// owner's key column.
func checkManyToMany(db *gorm.DB, sch *schema.Schema, a Association) error {
	if _, ok := sch.Relationships.Relations[a.Field]; ok {
		return fmt.Errorf("mapping: %s.%s: must not be a GORM relation", sch.Table, a.Field)
	}
	if a.Through == nil {
		return fmt.Errorf("mapping: %s.%s: no junction model", sch.Table, a.Field)
	}
	join, err := parseModel(db, a.Through)
	if err != nil {
		return err
	}
	if join.Table != a.Table {
		return fmt.Errorf("mapping: %s.%s: junction table %q, want %q", sch.Table, a.Field, join.Table, a.Table)
	}
	if len(join.PrimaryFields) != 2 {
		return fmt.Errorf("mapping: %s: junction needs a two-column primary key", join.Table)
	}
	if a.KeyColumn == "" {
		return nil
	}
	for _, f := range join.PrimaryFields {
		if f.DBName == a.KeyColumn {
			return nil
		}
	}
	return fmt.Errorf("mapping: %s.%s: no key column %q in %s", sch.Table, a.Field, a.KeyColumn, join.Table)
}

// assignKeys fills zero primary keys of mapped models before insert.
func (d *Descriptor[K]) assignKeys(db *gorm.DB) {
	if db.Error != nil || db.Statement.Schema == nil {
		return
	}
	if !d.tables[db.Statement.Schema.Table] {
		return
	}
	field := db.Statement.Schema.PrioritizedPrimaryField
	if field == nil || field.FieldType != reflect.TypeOf(*new(K)) {
		return
	}

	rv := db.Statement.ReflectValue
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			d.assignKey(db, field, rv.Index(i))
		}
	case reflect.Struct:
		d.assignKey(db, field, rv)
	}
}

func (d *Descriptor[K]) assignKey(db *gorm.DB, field *schema.Field, rv reflect.Value) {
	ctx := db.Statement.Context
	if _, zero := field.ValueOf(ctx, rv); !zero {
		return
	}
	key, err := d.newKey()
	if err != nil {
		db.AddError(fmt.Errorf("mapping: generate key: %w", err))
		return
	}
	if err := field.Set(ctx, rv, key); err != nil {
		db.AddError(err)
	}
}
