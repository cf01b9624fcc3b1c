package store

import (
	"context"
	"time"

	"github.com/getkayan/kidentity/domain"
	"github.com/getkayan/kidentity/identity"
	"github.com/getkayan/kidentity/telemetry"
	"gorm.io/gorm"
)

// UserStore persists users together with their claims, logins and role
// membership.
type UserStore[K identity.Key] struct {
	lifecycle
}

// NewUserStore returns a user store over session.
func NewUserStore[K identity.Key](session domain.Session) (*UserStore[K], error) {
	l, err := newLifecycle(session)
	if err != nil {
		return nil, err
	}
	return &UserStore[K]{lifecycle: l}, nil
}

// aggregate preloads the owned collections. Preloads run as one batched
// query per collection; roles follow through loadRoles.
func aggregate(q *gorm.DB) *gorm.DB {
	return q.Preload("Claims").Preload("Logins")
}

func (s *UserStore[K]) findOne(ctx context.Context, by string, query any, args ...any) (user *identity.User[K], err error) {
	sess, err := s.live()
	if err != nil {
		return nil, err
	}
	ctx, span := telemetry.SpanLookup(ctx, "user", by)
	defer func() { telemetry.EndSpan(span, err) }()

	var u identity.User[K]
	res := aggregate(sess.Query(ctx)).Where(query, args...).Limit(1).Find(&u)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	if err := loadRoles(sess.Query(ctx), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// FindByID returns the user with the given key, or nil.
func (s *UserStore[K]) FindByID(ctx context.Context, id K) (*identity.User[K], error) {
	return s.findOne(ctx, "id", "id = ?", id)
}

// FindByName returns the user whose name equals userName ignoring case.
func (s *UserStore[K]) FindByName(ctx context.Context, userName string) (*identity.User[K], error) {
	if _, err := s.live(); err != nil {
		return nil, err
	}
	if blank(userName) {
		return nil, invalid("userName")
	}
	return s.findOne(ctx, "name", "normalized_user_name = ?", identity.NormalizeKey(userName))
}

// FindByEmail returns the first user whose email equals email ignoring case.
func (s *UserStore[K]) FindByEmail(ctx context.Context, email string) (*identity.User[K], error) {
	if _, err := s.live(); err != nil {
		return nil, err
	}
	if blank(email) {
		return nil, invalid("email")
	}
	return s.findOne(ctx, "email", "normalized_email = ?", identity.NormalizeKey(email))
}

// FindByLogin returns the user owning the external login, or nil.
func (s *UserStore[K]) FindByLogin(ctx context.Context, login identity.LoginInfo) (*identity.User[K], error) {
	sess, err := s.live()
	if err != nil {
		return nil, err
	}
	if blank(login.LoginProvider) || blank(login.ProviderKey) {
		return nil, invalid("login")
	}
	owner := sess.Query(ctx).Model(&identity.UserLogin[K]{}).
		Select("user_id").
		Where("login_provider = ? AND provider_key = ?", login.LoginProvider, login.ProviderKey)
	return s.findOne(ctx, "login", "id IN (?)", owner)
}

func (s *UserStore[K]) Create(ctx context.Context, user *identity.User[K]) error {
	if _, err := s.live(); err != nil {
		return err
	}
	if user == nil {
		return invalid("user")
	}
	return s.commit(ctx, "user.create", saveOp, user)
}

// Update writes the user and synchronizes the collections that belong to
// it: orphaned claims and logins are deleted, membership rows follow Roles.
func (s *UserStore[K]) Update(ctx context.Context, user *identity.User[K]) error {
	if _, err := s.live(); err != nil {
		return err
	}
	if user == nil {
		return invalid("user")
	}
	return s.commit(ctx, "user.update", updateOp, user)
}

// Delete removes the user with its claims, logins and memberships. Roles
// are not touched.
func (s *UserStore[K]) Delete(ctx context.Context, user *identity.User[K]) error {
	if _, err := s.live(); err != nil {
		return err
	}
	if user == nil {
		return invalid("user")
	}
	return s.commit(ctx, "user.delete", deleteOp, user)
}

// Users returns a query over all users. Collections are not preloaded;
// the collection operations load them on first use.
func (s *UserStore[K]) Users(ctx context.Context) (*gorm.DB, error) {
	sess, err := s.live()
	if err != nil {
		return nil, err
	}
	return sess.Query(ctx).Model(&identity.User[K]{}), nil
}

// check is the common guard of the in-memory operations.
func (s *UserStore[K]) check(user *identity.User[K]) error {
	if _, err := s.live(); err != nil {
		return err
	}
	if user == nil {
		return invalid("user")
	}
	return nil
}

// Logins

func (s *UserStore[K]) AddLogin(ctx context.Context, user *identity.User[K], login identity.LoginInfo) error {
	if err := s.check(user); err != nil {
		return err
	}
	if blank(login.LoginProvider) || blank(login.ProviderKey) {
		return invalid("login")
	}
	if err := s.ensure(ctx, user, identity.CollectionLogins); err != nil {
		return err
	}
	for _, l := range user.Logins {
		if l.Info() == login {
			return nil
		}
	}
	user.Logins = append(user.Logins, identity.UserLogin[K]{
		LoginProvider: login.LoginProvider,
		ProviderKey:   login.ProviderKey,
		UserID:        user.ID,
	})
	return nil
}

// RemoveLogin drops the login from the user. Unknown logins are ignored.
func (s *UserStore[K]) RemoveLogin(ctx context.Context, user *identity.User[K], login identity.LoginInfo) error {
	if err := s.check(user); err != nil {
		return err
	}
	if blank(login.LoginProvider) || blank(login.ProviderKey) {
		return invalid("login")
	}
	if err := s.ensure(ctx, user, identity.CollectionLogins); err != nil {
		return err
	}
	kept := user.Logins[:0]
	for _, l := range user.Logins {
		if l.Info() != login {
			kept = append(kept, l)
		}
	}
	user.Logins = kept
	return nil
}

func (s *UserStore[K]) GetLogins(ctx context.Context, user *identity.User[K]) ([]identity.LoginInfo, error) {
	if err := s.check(user); err != nil {
		return nil, err
	}
	if err := s.ensure(ctx, user, identity.CollectionLogins); err != nil {
		return nil, err
	}
	out := make([]identity.LoginInfo, 0, len(user.Logins))
	for _, l := range user.Logins {
		out = append(out, l.Info())
	}
	return out, nil
}

// Claims

func (s *UserStore[K]) AddClaim(ctx context.Context, user *identity.User[K], claim identity.Claim) error {
	if err := s.check(user); err != nil {
		return err
	}
	if blank(claim.Type) {
		return invalid("claim")
	}
	if err := s.ensure(ctx, user, identity.CollectionClaims); err != nil {
		return err
	}
	user.Claims = append(user.Claims, identity.UserClaim[K]{
		UserID:     user.ID,
		ClaimType:  claim.Type,
		ClaimValue: claim.Value,
	})
	return nil
}

// RemoveClaim drops every claim with the same type and value.
func (s *UserStore[K]) RemoveClaim(ctx context.Context, user *identity.User[K], claim identity.Claim) error {
	if err := s.check(user); err != nil {
		return err
	}
	if blank(claim.Type) {
		return invalid("claim")
	}
	if err := s.ensure(ctx, user, identity.CollectionClaims); err != nil {
		return err
	}
	kept := user.Claims[:0]
	for _, c := range user.Claims {
		if c.ClaimType != claim.Type || c.ClaimValue != claim.Value {
			kept = append(kept, c)
		}
	}
	user.Claims = kept
	return nil
}

func (s *UserStore[K]) GetClaims(ctx context.Context, user *identity.User[K]) ([]identity.Claim, error) {
	if err := s.check(user); err != nil {
		return nil, err
	}
	if err := s.ensure(ctx, user, identity.CollectionClaims); err != nil {
		return nil, err
	}
	out := make([]identity.Claim, 0, len(user.Claims))
	for _, c := range user.Claims {
		out = append(out, identity.Claim{Type: c.ClaimType, Value: c.ClaimValue})
	}
	return out, nil
}

// Roles

// AddToRole adds the role named roleName, matched ignoring case, to the
// user's roles. It fails with ErrRoleNotFound when no such role exists.
func (s *UserStore[K]) AddToRole(ctx context.Context, user *identity.User[K], roleName string) error {
	if err := s.check(user); err != nil {
		return err
	}
	if blank(roleName) {
		return invalid("roleName")
	}
	if err := s.ensure(ctx, user, identity.CollectionRoles); err != nil {
		return err
	}
	if hasRole(user, roleName) {
		return nil
	}

	sess, _ := s.live()
	role, err := findRoleByName[K](sess.Query(ctx), roleName)
	if err != nil {
		return err
	}
	if role == nil {
		return roleNotFound(roleName)
	}
	user.Roles = append(user.Roles, *role)
	return nil
}

// RemoveFromRole drops the role from the user's roles. Roles the user does
// not hold are ignored.
func (s *UserStore[K]) RemoveFromRole(ctx context.Context, user *identity.User[K], roleName string) error {
	if err := s.check(user); err != nil {
		return err
	}
	if blank(roleName) {
		return invalid("roleName")
	}
	if err := s.ensure(ctx, user, identity.CollectionRoles); err != nil {
		return err
	}
	if !hasRole(user, roleName) {
		return nil
	}
	kept := user.Roles[:0]
	for _, r := range user.Roles {
		if !identity.EqualFold(r.Name, roleName) {
			kept = append(kept, r)
		}
	}
	user.Roles = kept
	return nil
}

func (s *UserStore[K]) GetRoles(ctx context.Context, user *identity.User[K]) ([]string, error) {
	if err := s.check(user); err != nil {
		return nil, err
	}
	if err := s.ensure(ctx, user, identity.CollectionRoles); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(user.Roles))
	for _, r := range user.Roles {
		names = append(names, r.Name)
	}
	return names, nil
}

func (s *UserStore[K]) IsInRole(ctx context.Context, user *identity.User[K], roleName string) (bool, error) {
	if err := s.check(user); err != nil {
		return false, err
	}
	if blank(roleName) {
		return false, invalid("roleName")
	}
	if err := s.ensure(ctx, user, identity.CollectionRoles); err != nil {
		return false, err
	}
	return hasRole(user, roleName), nil
}

func hasRole[K identity.Key](user *identity.User[K], roleName string) bool {
	for _, r := range user.Roles {
		if identity.EqualFold(r.Name, roleName) {
			return true
		}
	}
	return false
}

// ensure loads collection c of a user that was read without it, so that
// edits do not drop stored rows. Entries the caller already added in
// memory are kept.
func (s *UserStore[K]) ensure(ctx context.Context, user *identity.User[K], c identity.Collection) error {
	if user.Loaded(c) {
		return nil
	}
	sess, err := s.live()
	if err != nil {
		return err
	}
	q := sess.Query(ctx)

	switch c {
	case identity.CollectionClaims:
		var claims []identity.UserClaim[K]
		if err := q.Where("user_id = ?", user.ID).Find(&claims).Error; err != nil {
			return err
		}
		for _, pending := range user.Claims {
			if identity.IsZeroKey(pending.ID) {
				claims = append(claims, pending)
			}
		}
		user.Claims = claims

	case identity.CollectionLogins:
		var logins []identity.UserLogin[K]
		if err := q.Where("user_id = ?", user.ID).Find(&logins).Error; err != nil {
			return err
		}
		seen := make(map[identity.LoginInfo]bool, len(logins))
		for _, l := range logins {
			seen[l.Info()] = true
		}
		for _, pending := range user.Logins {
			if !seen[pending.Info()] {
				logins = append(logins, pending)
			}
		}
		user.Logins = logins

	case identity.CollectionRoles:
		pending := user.Roles
		if err := loadRoles(q, user); err != nil {
			return err
		}
		for _, r := range pending {
			if !hasRole(user, r.Name) {
				user.Roles = append(user.Roles, r)
			}
		}
	}

	user.MarkLoaded(c)
	return nil
}

// loadRoles replaces the roles of users with their stored membership,
// ordered by normalized role name. It runs one query over user_roles and
// one batched query over roles.
func loadRoles[K identity.Key](q *gorm.DB, users ...*identity.User[K]) error {
	if len(users) == 0 {
		return nil
	}
	byUser := make(map[K]*identity.User[K], len(users))
	ids := make([]K, 0, len(users))
	for _, u := range users {
		u.Roles = nil
		u.MarkLoaded(identity.CollectionRoles)
		byUser[u.ID] = u
		ids = append(ids, u.ID)
	}

	var links []identity.UserRole[K]
	if err := q.Where("user_id IN ?", ids).Find(&links).Error; err != nil {
		return err
	}
	if len(links) == 0 {
		return nil
	}

	members := make(map[K][]K, len(links))
	roleIDs := make([]K, 0, len(links))
	for _, l := range links {
		if _, ok := members[l.RoleID]; !ok {
			roleIDs = append(roleIDs, l.RoleID)
		}
		members[l.RoleID] = append(members[l.RoleID], l.UserID)
	}

	var roles []identity.Role[K]
	if err := q.Where("id IN ?", roleIDs).Order("normalized_name").Find(&roles).Error; err != nil {
		return err
	}
	for _, r := range roles {
		for _, uid := range members[r.ID] {
			if u := byUser[uid]; u != nil {
				u.Roles = append(u.Roles, r)
			}
		}
	}
	return nil
}

// Credentials

// SetPasswordHash stores hash as given. HasPassword is false only for a
// user whose hash was never set.
func (s *UserStore[K]) SetPasswordHash(user *identity.User[K], hash string) error {
	if err := s.check(user); err != nil {
		return err
	}
	user.PasswordHash = &hash
	return nil
}

func (s *UserStore[K]) GetPasswordHash(user *identity.User[K]) (string, error) {
	if err := s.check(user); err != nil {
		return "", err
	}
	return deref(user.PasswordHash), nil
}

func (s *UserStore[K]) HasPassword(user *identity.User[K]) (bool, error) {
	if err := s.check(user); err != nil {
		return false, err
	}
	return user.PasswordHash != nil, nil
}

func (s *UserStore[K]) SetSecurityStamp(user *identity.User[K], stamp string) error {
	if err := s.check(user); err != nil {
		return err
	}
	user.SecurityStamp = optional(stamp)
	return nil
}

func (s *UserStore[K]) GetSecurityStamp(user *identity.User[K]) (string, error) {
	if err := s.check(user); err != nil {
		return "", err
	}
	return deref(user.SecurityStamp), nil
}

// Lockout

func (s *UserStore[K]) GetAccessFailedCount(user *identity.User[K]) (int, error) {
	if err := s.check(user); err != nil {
		return 0, err
	}
	return user.AccessFailedCount, nil
}

// IncrementAccessFailedCount adds one failed attempt and returns the new
// count.
func (s *UserStore[K]) IncrementAccessFailedCount(user *identity.User[K]) (int, error) {
	if err := s.check(user); err != nil {
		return 0, err
	}
	user.AccessFailedCount++
	return user.AccessFailedCount, nil
}

func (s *UserStore[K]) ResetAccessFailedCount(user *identity.User[K]) error {
	if err := s.check(user); err != nil {
		return err
	}
	user.AccessFailedCount = 0
	return nil
}

func (s *UserStore[K]) GetLockoutEnabled(user *identity.User[K]) (bool, error) {
	if err := s.check(user); err != nil {
		return false, err
	}
	return user.LockoutEnabled, nil
}

func (s *UserStore[K]) SetLockoutEnabled(user *identity.User[K], enabled bool) error {
	if err := s.check(user); err != nil {
		return err
	}
	user.LockoutEnabled = enabled
	return nil
}

// GetLockoutEndDate returns the lockout end in UTC. The zero time means no
// lockout end is set.
func (s *UserStore[K]) GetLockoutEndDate(user *identity.User[K]) (time.Time, error) {
	if err := s.check(user); err != nil {
		return time.Time{}, err
	}
	if user.LockoutEndDateUTC == nil {
		return time.Time{}, nil
	}
	return user.LockoutEndDateUTC.UTC(), nil
}

// SetLockoutEndDate stores end in UTC. The zero time clears it.
func (s *UserStore[K]) SetLockoutEndDate(user *identity.User[K], end time.Time) error {
	if err := s.check(user); err != nil {
		return err
	}
	if end.IsZero() {
		user.LockoutEndDateUTC = nil
		return nil
	}
	utc := end.UTC()
	user.LockoutEndDateUTC = &utc
	return nil
}

// Email, phone and two-factor

func (s *UserStore[K]) GetEmail(user *identity.User[K]) (string, error) {
	if err := s.check(user); err != nil {
		return "", err
	}
	return deref(user.Email), nil
}

func (s *UserStore[K]) SetEmail(user *identity.User[K], email string) error {
	if err := s.check(user); err != nil {
		return err
	}
	user.Email = optional(email)
	return nil
}

func (s *UserStore[K]) GetEmailConfirmed(user *identity.User[K]) (bool, error) {
	if err := s.check(user); err != nil {
		return false, err
	}
	return user.EmailConfirmed, nil
}

func (s *UserStore[K]) SetEmailConfirmed(user *identity.User[K], confirmed bool) error {
	if err := s.check(user); err != nil {
		return err
	}
	user.EmailConfirmed = confirmed
	return nil
}

func (s *UserStore[K]) GetPhoneNumber(user *identity.User[K]) (string, error) {
	if err := s.check(user); err != nil {
		return "", err
	}
	return deref(user.PhoneNumber), nil
}

func (s *UserStore[K]) SetPhoneNumber(user *identity.User[K], phone string) error {
	if err := s.check(user); err != nil {
		return err
	}
	user.PhoneNumber = optional(phone)
	return nil
}

func (s *UserStore[K]) GetPhoneNumberConfirmed(user *identity.User[K]) (bool, error) {
	if err := s.check(user); err != nil {
		return false, err
	}
	return user.PhoneNumberConfirmed, nil
}

func (s *UserStore[K]) SetPhoneNumberConfirmed(user *identity.User[K], confirmed bool) error {
	if err := s.check(user); err != nil {
		return err
	}
	user.PhoneNumberConfirmed = confirmed
	return nil
}

func (s *UserStore[K]) GetTwoFactorEnabled(user *identity.User[K]) (bool, error) {
	if err := s.check(user); err != nil {
		return false, err
	}
	return user.TwoFactorEnabled, nil
}

func (s *UserStore[K]) SetTwoFactorEnabled(user *identity.User[K], enabled bool) error {
	if err := s.check(user); err != nil {
		return err
	}
	user.TwoFactorEnabled = enabled
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
