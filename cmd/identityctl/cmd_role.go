package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/getkayan/kidentity/identity"
)

// ---- Role Commands ----

func (a *app[K]) roleCommand(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: identityctl role <subcommand>")
	}

	sub := args[0]
	_, rest := parseArgs(args[1:])

	switch sub {
	case "list":
		return a.listRoles(ctx)
	case "get":
		if len(rest) < 1 {
			return fmt.Errorf("usage: identityctl role get <name>")
		}
		return a.getRole(ctx, rest[0])
	case "create":
		if len(rest) < 1 {
			return fmt.Errorf("usage: identityctl role create <name>")
		}
		return a.createRole(ctx, rest[0])
	case "rename":
		if len(rest) < 2 {
			return fmt.Errorf("usage: identityctl role rename <name> <new-name>")
		}
		return a.renameRole(ctx, rest[0], rest[1])
	case "delete":
		if len(rest) < 1 {
			return fmt.Errorf("usage: identityctl role delete <name>")
		}
		return a.deleteRole(ctx, rest[0])
	default:
		return fmt.Errorf("unknown role subcommand: %s", sub)
	}
}

func (a *app[K]) findRole(ctx context.Context, ref string) (*identity.Role[K], error) {
	role, err := a.roles.FindByName(ctx, ref)
	if err != nil {
		return nil, err
	}
	if role == nil {
		if id, ok := resolveKey[K](ref); ok {
			role, err = a.roles.FindByID(ctx, id)
			if err != nil {
				return nil, err
			}
		}
	}
	if role == nil {
		return nil, fmt.Errorf("role %q not found", ref)
	}
	return role, nil
}

func (a *app[K]) listRoles(ctx context.Context) error {
	q, err := a.roles.Roles(ctx)
	if err != nil {
		return err
	}
	var roles []identity.Role[K]
	if err := q.Order("normalized_name").Find(&roles).Error; err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME")
	for _, r := range roles {
		fmt.Fprintf(w, "%v\t%s\n", r.ID, r.Name)
	}
	w.Flush()
	fmt.Fprintf(a.out, "\nTotal: %d\n", len(roles))
	return nil
}

func (a *app[K]) getRole(ctx context.Context, ref string) error {
	role, err := a.findRole(ctx, ref)
	if err != nil {
		return err
	}

	var members int64
	if err := a.session.Query(ctx).Model(&identity.UserRole[K]{}).
		Where("role_id = ?", role.ID).Count(&members).Error; err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%v\n", role.ID)
	fmt.Fprintf(w, "Name:\t%s\n", role.Name)
	fmt.Fprintf(w, "Members:\t%d\n", members)
	return w.Flush()
}

func (a *app[K]) createRole(ctx context.Context, name string) error {
	role := identity.NewRole[K](name)
	if err := a.roles.Create(ctx, role); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Role created: %v (%s)\n", role.ID, role.Name)
	return nil
}

func (a *app[K]) renameRole(ctx context.Context, ref, name string) error {
	role, err := a.findRole(ctx, ref)
	if err != nil {
		return err
	}
	role.Name = name
	if err := a.roles.Update(ctx, role); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Role %v renamed to %s\n", role.ID, role.Name)
	return nil
}

func (a *app[K]) deleteRole(ctx context.Context, ref string) error {
	role, err := a.findRole(ctx, ref)
	if err != nil {
		return err
	}
	if err := a.roles.Delete(ctx, role); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Role %s deleted\n", role.Name)
	return nil
}
