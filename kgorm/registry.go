package kgorm

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/getkayan/kidentity/logger"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// DialectorOpener returns a gorm.Dialector for a DSN.
type DialectorOpener = func(string) gorm.Dialector

var (
	registryMu sync.RWMutex
	providers  = make(map[string]DialectorOpener)
)

func init() {
	Register("sqlite", sqlite.Open)
	Register("postgres", postgres.Open)
	Register("mysql", mysql.Open)
}

// Register adds a dialect to the registry, replacing any previous entry
// with the same name.
func Register(name string, opener DialectorOpener) {
	registryMu.Lock()
	defer registryMu.Unlock()
	providers[name] = opener
}

// Dialects returns the registered dialect names, sorted.
func Dialects() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open connects to dsn with the named dialect. A nil cfg logs through the
// package logger.
func Open(name, dsn string, cfg *gorm.Config) (*gorm.DB, error) {
	registryMu.RLock()
	opener, ok := providers[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("gorm: unknown storage provider %q", name)
	}

	if cfg == nil {
		cfg = &gorm.Config{Logger: logger.NewGormLogger(logger.Log)}
	}

	db, err := gorm.Open(opener(dsn), cfg)
	if err != nil {
		return nil, err
	}

	// Every connection to an in-memory SQLite database sees its own
	// database, so the pool is pinned to one connection.
	if name == "sqlite" && isMemoryDSN(dsn) {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

func isMemoryDSN(dsn string) bool {
	return dsn == "" || strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// Mapping installs entity mappings on a connection.
type Mapping interface {
	Apply(db *gorm.DB) error
	Migrate(db *gorm.DB) error
}

// Options configures OpenSession.
type Options struct {
	Config      *gorm.Config
	SkipMigrate bool
}

// OpenSession opens a connection, applies m and, unless opts.SkipMigrate is
// set, migrates the mapped tables. The returned session owns the
// connection and closes it on Close.
func OpenSession(name, dsn string, m Mapping, opts Options) (*Session, error) {
	db, err := Open(name, dsn, opts.Config)
	if err != nil {
		return nil, err
	}

	if err := setup(db, m, opts.SkipMigrate); err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, err
	}

	s := NewSession(db)
	s.owned = true
	return s, nil
}

func setup(db *gorm.DB, m Mapping, skipMigrate bool) error {
	if m == nil {
		return nil
	}
	if err := m.Apply(db); err != nil {
		return fmt.Errorf("gorm: apply mapping: %w", err)
	}
	if skipMigrate {
		return nil
	}
	if err := m.Migrate(db); err != nil {
		return fmt.Errorf("gorm: migrate: %w", err)
	}
	return nil
}
