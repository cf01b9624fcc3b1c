package identity

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// hydration records which collections of a stored user were loaded. A user
// that was never read from storage owns all of its collections.
type hydration struct {
	fetched bool
	roles   bool
	claims  bool
	logins  bool
}

func (h hydration) owns(loaded bool) bool {
	return !h.fetched || loaded
}

// Collection names a collection of User.
type Collection int

const (
	CollectionRoles Collection = iota + 1
	CollectionClaims
	CollectionLogins
)

func (c Collection) String() string {
	switch c {
	case CollectionRoles:
		return "Roles"
	case CollectionClaims:
		return "Claims"
	case CollectionLogins:
		return "Logins"
	}
	return fmt.Sprintf("Collection(%d)", int(c))
}

// Loaded reports whether c holds the stored state of the collection. It is
// true for users that were never read from storage.
func (u *User[K]) Loaded(c Collection) bool {
	switch c {
	case CollectionRoles:
		return u.hydration.owns(u.hydration.roles)
	case CollectionClaims:
		return u.hydration.owns(u.hydration.claims)
	case CollectionLogins:
		return u.hydration.owns(u.hydration.logins)
	}
	return false
}

// MarkLoaded records that c now holds the stored state of the collection,
// so the next save writes it back.
func (u *User[K]) MarkLoaded(c Collection) {
	switch c {
	case CollectionRoles:
		u.hydration.roles = true
	case CollectionClaims:
		u.hydration.claims = true
	case CollectionLogins:
		u.hydration.logins = true
	}
}

// AfterFind marks the user as read from storage and remembers which
// collections were preloaded with it. Roles are never preloaded by GORM;
// the loader marks them with MarkLoaded.
func (u *User[K]) AfterFind(tx *gorm.DB) error {
	u.hydration = hydration{fetched: true}
	if tx.Statement == nil {
		return nil
	}
	preloads := tx.Statement.Preloads
	_, all := preloads[clause.Associations]
	_, claims := preloads["Claims"]
	_, logins := preloads["Logins"]
	u.hydration.claims = all || claims
	u.hydration.logins = all || logins
	return nil
}

func (u *User[K]) BeforeSave(tx *gorm.DB) error {
	u.NormalizedUserName = NormalizeKey(u.UserName)
	u.NormalizedEmail = normalizePtr(u.Email)
	if u.LockoutEndDateUTC != nil {
		end := u.LockoutEndDateUTC.UTC()
		u.LockoutEndDateUTC = &end
	}
	return nil
}

// AfterSave writes the owned collections. Claims and logins removed from
// the in-memory collections are deleted; membership rows are added or
// removed to match Roles without touching the role rows themselves.
func (u *User[K]) AfterSave(tx *gorm.DB) error {
	if u.Loaded(CollectionClaims) {
		if err := u.syncClaims(tx); err != nil {
			return err
		}
	}
	if u.Loaded(CollectionLogins) {
		if err := u.syncLogins(tx); err != nil {
			return err
		}
	}
	if u.Loaded(CollectionRoles) {
		if err := u.syncRoles(tx); err != nil {
			return err
		}
	}
	return nil
}

// BeforeDelete removes every row owned by the user.
func (u *User[K]) BeforeDelete(tx *gorm.DB) error {
	if err := tx.Where("user_id = ?", u.ID).Delete(&UserClaim[K]{}).Error; err != nil {
		return err
	}
	if err := tx.Where("user_id = ?", u.ID).Delete(&UserLogin[K]{}).Error; err != nil {
		return err
	}
	return tx.Where("user_id = ?", u.ID).Delete(&UserRole[K]{}).Error
}

func (u *User[K]) syncClaims(tx *gorm.DB) error {
	keep := make([]K, 0, len(u.Claims))
	for _, c := range u.Claims {
		if !IsZeroKey(c.ID) {
			keep = append(keep, c.ID)
		}
	}

	orphans := tx.Where("user_id = ?", u.ID)
	if len(keep) > 0 {
		orphans = orphans.Where("id NOT IN ?", keep)
	}
	if err := orphans.Delete(&UserClaim[K]{}).Error; err != nil {
		return err
	}

	for i := range u.Claims {
		c := &u.Claims[i]
		c.UserID = u.ID
		var err error
		if IsZeroKey(c.ID) {
			err = tx.Create(c).Error
		} else {
			err = tx.Save(c).Error
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (u *User[K]) syncLogins(tx *gorm.DB) error {
	var existing []UserLogin[K]
	if err := tx.Where("user_id = ?", u.ID).Find(&existing).Error; err != nil {
		return err
	}

	want := make(map[LoginInfo]bool, len(u.Logins))
	for i := range u.Logins {
		u.Logins[i].UserID = u.ID
		want[u.Logins[i].Info()] = true
	}

	have := make(map[LoginInfo]bool, len(existing))
	for _, l := range existing {
		info := l.Info()
		have[info] = true
		if want[info] {
			continue
		}
		if err := tx.Where("login_provider = ? AND provider_key = ?", info.LoginProvider, info.ProviderKey).
			Delete(&UserLogin[K]{}).Error; err != nil {
			return err
		}
	}

	for i := range u.Logins {
		info := u.Logins[i].Info()
		if have[info] {
			continue
		}
		if err := tx.Create(&u.Logins[i]).Error; err != nil {
			return err
		}
		have[info] = true
	}
	return nil
}

func (u *User[K]) syncRoles(tx *gorm.DB) error {
	var existing []UserRole[K]
	if err := tx.Where("user_id = ?", u.ID).Find(&existing).Error; err != nil {
		return err
	}

	want := make(map[K]bool, len(u.Roles))
	for _, r := range u.Roles {
		want[r.ID] = true
	}

	have := make(map[K]bool, len(existing))
	for _, ur := range existing {
		have[ur.RoleID] = true
		if want[ur.RoleID] {
			continue
		}
		if err := tx.Where("user_id = ? AND role_id = ?", u.ID, ur.RoleID).Delete(&UserRole[K]{}).Error; err != nil {
			return err
		}
	}

	for _, r := range u.Roles {
		if have[r.ID] {
			continue
		}
		if err := tx.Create(&UserRole[K]{UserID: u.ID, RoleID: r.ID}).Error; err != nil {
			return err
		}
		have[r.ID] = true
	}
	return nil
}

// Info returns the login as a LoginInfo value.
func (l UserLogin[K]) Info() LoginInfo {
	return LoginInfo{LoginProvider: l.LoginProvider, ProviderKey: l.ProviderKey}
}

func (r *Role[K]) BeforeSave(tx *gorm.DB) error {
	r.NormalizedName = NormalizeKey(r.Name)
	return nil
}

// BeforeDelete drops the membership rows pointing at the role.
func (r *Role[K]) BeforeDelete(tx *gorm.DB) error {
	return tx.Where("role_id = ?", r.ID).Delete(&UserRole[K]{}).Error
}
