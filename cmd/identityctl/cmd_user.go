package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/getkayan/kidentity/identity"
)

// ---- User Commands ----

func (a *app[K]) userCommand(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: identityctl user <subcommand>")
	}

	sub := args[0]
	opts, rest := parseArgs(args[1:])

	need := func(n int, usage string) error {
		if len(rest) < n {
			return fmt.Errorf("usage: identityctl user %s %s", sub, usage)
		}
		return nil
	}

	switch sub {
	case "list":
		return a.listUsers(ctx)
	case "get":
		if err := need(1, "<name>"); err != nil {
			return err
		}
		return a.getUser(ctx, rest[0])
	case "create":
		if err := need(1, "<name> [--email=EMAIL] [--phone=PHONE]"); err != nil {
			return err
		}
		return a.createUser(ctx, rest[0], opts)
	case "delete":
		if err := need(1, "<name>"); err != nil {
			return err
		}
		return a.deleteUser(ctx, rest[0])
	case "add-role", "remove-role":
		if err := need(2, "<name> <role>"); err != nil {
			return err
		}
		return a.changeRole(ctx, sub == "add-role", rest[0], rest[1])
	case "add-claim", "remove-claim":
		if err := need(3, "<name> <type> <value>"); err != nil {
			return err
		}
		claim := identity.Claim{Type: rest[1], Value: rest[2]}
		return a.changeClaim(ctx, sub == "add-claim", rest[0], claim)
	case "add-login", "remove-login":
		if err := need(3, "<name> <provider> <key>"); err != nil {
			return err
		}
		login := identity.LoginInfo{LoginProvider: rest[1], ProviderKey: rest[2]}
		return a.changeLogin(ctx, sub == "add-login", rest[0], login)
	case "find-login":
		if err := need(2, "<provider> <key>"); err != nil {
			return err
		}
		return a.findLogin(ctx, identity.LoginInfo{LoginProvider: rest[0], ProviderKey: rest[1]})
	case "lock":
		if err := need(1, "<name> [--until=RFC3339]"); err != nil {
			return err
		}
		return a.lockUser(ctx, rest[0], opts["until"])
	case "unlock":
		if err := need(1, "<name>"); err != nil {
			return err
		}
		return a.unlockUser(ctx, rest[0])
	default:
		return fmt.Errorf("unknown user subcommand: %s", sub)
	}
}

func (a *app[K]) findUser(ctx context.Context, ref string) (*identity.User[K], error) {
	user, err := a.users.FindByName(ctx, ref)
	if err != nil {
		return nil, err
	}
	if user == nil && strings.Contains(ref, "@") {
		if user, err = a.users.FindByEmail(ctx, ref); err != nil {
			return nil, err
		}
	}
	if user == nil {
		if id, ok := resolveKey[K](ref); ok {
			if user, err = a.users.FindByID(ctx, id); err != nil {
				return nil, err
			}
		}
	}
	if user == nil {
		return nil, fmt.Errorf("user %q not found", ref)
	}
	return user, nil
}

func (a *app[K]) listUsers(ctx context.Context) error {
	q, err := a.users.Users(ctx)
	if err != nil {
		return err
	}
	var users []identity.User[K]
	if err := q.Order("normalized_user_name").Find(&users).Error; err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSER NAME\tEMAIL\tLOCKED")
	for i := range users {
		u := &users[i]
		email, _ := a.users.GetEmail(u)
		fmt.Fprintf(w, "%v\t%s\t%s\t%t\n", u.ID, u.UserName, email, locked(u))
	}
	w.Flush()
	fmt.Fprintf(a.out, "\nTotal: %d\n", len(users))
	return nil
}

func locked[K identity.Key](u *identity.User[K]) bool {
	return u.LockoutEnabled && u.LockoutEndDateUTC != nil && u.LockoutEndDateUTC.After(time.Now())
}

func (a *app[K]) getUser(ctx context.Context, ref string) error {
	user, err := a.findUser(ctx, ref)
	if err != nil {
		return err
	}

	email, _ := a.users.GetEmail(user)
	phone, _ := a.users.GetPhoneNumber(user)
	roles, _ := a.users.GetRoles(ctx, user)
	claims, _ := a.users.GetClaims(ctx, user)
	logins, _ := a.users.GetLogins(ctx, user)
	failed, _ := a.users.GetAccessFailedCount(user)
	end, _ := a.users.GetLockoutEndDate(user)
	hasPassword, _ := a.users.HasPassword(user)

	lockoutEnd := "-"
	if !end.IsZero() {
		lockoutEnd = end.Format(time.RFC3339)
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%v\n", user.ID)
	fmt.Fprintf(w, "User name:\t%s\n", user.UserName)
	fmt.Fprintf(w, "Email:\t%s (confirmed: %t)\n", email, user.EmailConfirmed)
	fmt.Fprintf(w, "Phone:\t%s (confirmed: %t)\n", phone, user.PhoneNumberConfirmed)
	fmt.Fprintf(w, "Password:\t%t\n", hasPassword)
	fmt.Fprintf(w, "Two factor:\t%t\n", user.TwoFactorEnabled)
	fmt.Fprintf(w, "Lockout:\tenabled=%t end=%s failed=%d\n", user.LockoutEnabled, lockoutEnd, failed)
	fmt.Fprintf(w, "Roles:\t%s\n", strings.Join(roles, ", "))
	for _, c := range claims {
		fmt.Fprintf(w, "Claim:\t%s=%s\n", c.Type, c.Value)
	}
	for _, l := range logins {
		fmt.Fprintf(w, "Login:\t%s/%s\n", l.LoginProvider, l.ProviderKey)
	}
	return w.Flush()
}

func (a *app[K]) createUser(ctx context.Context, name string, opts map[string]string) error {
	user := identity.NewUser[K](name)
	if err := a.users.SetEmail(user, opts["email"]); err != nil {
		return err
	}
	if err := a.users.SetPhoneNumber(user, opts["phone"]); err != nil {
		return err
	}
	if err := a.users.Create(ctx, user); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "User created: %v (%s)\n", user.ID, user.UserName)
	return nil
}

func (a *app[K]) deleteUser(ctx context.Context, ref string) error {
	user, err := a.findUser(ctx, ref)
	if err != nil {
		return err
	}
	if err := a.users.Delete(ctx, user); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "User %s deleted\n", user.UserName)
	return nil
}

// edit loads the user, applies fn and persists the result.
func (a *app[K]) edit(ctx context.Context, ref string, fn func(*identity.User[K]) error) (*identity.User[K], error) {
	user, err := a.findUser(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := fn(user); err != nil {
		return nil, err
	}
	if err := a.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (a *app[K]) changeRole(ctx context.Context, add bool, ref, role string) error {
	user, err := a.edit(ctx, ref, func(u *identity.User[K]) error {
		if add {
			return a.users.AddToRole(ctx, u, role)
		}
		return a.users.RemoveFromRole(ctx, u, role)
	})
	if err != nil {
		return err
	}
	roles, _ := a.users.GetRoles(ctx, user)
	fmt.Fprintf(a.out, "Roles of %s: %s\n", user.UserName, strings.Join(roles, ", "))
	return nil
}

func (a *app[K]) changeClaim(ctx context.Context, add bool, ref string, claim identity.Claim) error {
	user, err := a.edit(ctx, ref, func(u *identity.User[K]) error {
		if add {
			return a.users.AddClaim(ctx, u, claim)
		}
		return a.users.RemoveClaim(ctx, u, claim)
	})
	if err != nil {
		return err
	}
	claims, _ := a.users.GetClaims(ctx, user)
	fmt.Fprintf(a.out, "%s has %d claims\n", user.UserName, len(claims))
	return nil
}

func (a *app[K]) changeLogin(ctx context.Context, add bool, ref string, login identity.LoginInfo) error {
	user, err := a.edit(ctx, ref, func(u *identity.User[K]) error {
		if add {
			return a.users.AddLogin(ctx, u, login)
		}
		return a.users.RemoveLogin(ctx, u, login)
	})
	if err != nil {
		return err
	}
	logins, _ := a.users.GetLogins(ctx, user)
	fmt.Fprintf(a.out, "%s has %d logins\n", user.UserName, len(logins))
	return nil
}

func (a *app[K]) findLogin(ctx context.Context, login identity.LoginInfo) error {
	user, err := a.users.FindByLogin(ctx, login)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("no user with login %s/%s", login.LoginProvider, login.ProviderKey)
	}
	fmt.Fprintf(a.out, "%v\t%s\n", user.ID, user.UserName)
	return nil
}

func (a *app[K]) lockUser(ctx context.Context, ref, until string) error {
	end := time.Now().Add(24 * time.Hour)
	if until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return fmt.Errorf("invalid --until: %w", err)
		}
		end = t
	}

	user, err := a.edit(ctx, ref, func(u *identity.User[K]) error {
		if err := a.users.SetLockoutEnabled(u, true); err != nil {
			return err
		}
		return a.users.SetLockoutEndDate(u, end)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "User %s locked until %s\n", user.UserName, end.UTC().Format(time.RFC3339))
	return nil
}

func (a *app[K]) unlockUser(ctx context.Context, ref string) error {
	user, err := a.edit(ctx, ref, func(u *identity.User[K]) error {
		if err := a.users.SetLockoutEndDate(u, time.Time{}); err != nil {
			return err
		}
		return a.users.ResetAccessFailedCount(u)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "User %s unlocked\n", user.UserName)
	return nil
}
