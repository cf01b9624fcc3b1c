package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/getkayan/kidentity/config"
	"github.com/getkayan/kidentity/identity"
	"github.com/getkayan/kidentity/kgorm"
	"github.com/getkayan/kidentity/mapping"
	"github.com/getkayan/kidentity/store"
)

type app[K identity.Key] struct {
	out     io.Writer
	session *kgorm.Session
	roles   *store.RoleStore[K]
	users   *store.UserStore[K]
}

// runWith executes cmd against the configured database, writing results
// to out.
func runWith[K identity.Key](ctx context.Context, out io.Writer, cfg *config.Config, cmd string, args []string) error {
	strategy, err := cfg.Strategy()
	if err != nil {
		return err
	}
	desc, err := mapping.NewWithOptions[K](strategy, cfg.GeneratorOptions())
	if err != nil {
		return err
	}

	skip := (cfg.SkipAutoMigrate && cmd != "migrate") || cmd == "health"
	sess, err := kgorm.OpenSession(cfg.DBType, cfg.DSN, desc, kgorm.Options{SkipMigrate: skip})
	if err != nil {
		return err
	}

	a := &app[K]{out: out, session: sess}
	if a.roles, err = store.NewRoleStore[K](sess); err != nil {
		_ = sess.Close()
		return err
	}
	a.roles.ShouldCloseSession = false
	if a.users, err = store.NewUserStore[K](sess); err != nil {
		_ = sess.Close()
		return err
	}
	defer func() {
		_ = a.roles.Close()
		_ = a.users.Close()
	}()

	switch cmd {
	case "migrate":
		fmt.Fprintf(a.out, "Migrated %d tables: %s\n", len(desc.Tables()), strings.Join(desc.Tables(), ", "))
		return nil
	case "health":
		return a.healthCommand(ctx, desc.Tables())
	case "role", "roles":
		return a.roleCommand(ctx, args)
	default:
		return a.userCommand(ctx, args)
	}
}

// resolveKey parses s as a key of type K.
func resolveKey[K identity.Key](s string) (K, bool) {
	k, err := identity.ParseKey[K](s)
	if err != nil {
		return k, false
	}
	return k, true
}
