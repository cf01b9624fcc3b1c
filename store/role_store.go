package store

import (
	"context"

	"github.com/getkayan/kidentity/domain"
	"github.com/getkayan/kidentity/identity"
	"github.com/getkayan/kidentity/telemetry"
	"gorm.io/gorm"
)

// RoleStore persists roles.
type RoleStore[K identity.Key] struct {
	lifecycle
}

// NewRoleStore returns a role store over session.
func NewRoleStore[K identity.Key](session domain.Session) (*RoleStore[K], error) {
	l, err := newLifecycle(session)
	if err != nil {
		return nil, err
	}
	return &RoleStore[K]{lifecycle: l}, nil
}

// FindByID returns the role with the given key, or nil.
func (s *RoleStore[K]) FindByID(ctx context.Context, id K) (role *identity.Role[K], err error) {
	sess, err := s.live()
	if err != nil {
		return nil, err
	}
	ctx, span := telemetry.SpanLookup(ctx, "role", "id")
	defer func() { telemetry.EndSpan(span, err) }()

	var r identity.Role[K]
	found, err := sess.Get(ctx, &r, id)
	if err != nil || !found {
		return nil, err
	}
	return &r, nil
}

// FindByName returns the role whose name equals name ignoring case, or nil.
func (s *RoleStore[K]) FindByName(ctx context.Context, name string) (role *identity.Role[K], err error) {
	sess, err := s.live()
	if err != nil {
		return nil, err
	}
	if blank(name) {
		return nil, invalid("name")
	}
	ctx, span := telemetry.SpanLookup(ctx, "role", "name")
	defer func() { telemetry.EndSpan(span, err) }()

	return findRoleByName[K](sess.Query(ctx), name)
}

func findRoleByName[K identity.Key](q *gorm.DB, name string) (*identity.Role[K], error) {
	var r identity.Role[K]
	res := q.Where("normalized_name = ?", identity.NormalizeKey(name)).Limit(1).Find(&r)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &r, nil
}

func (s *RoleStore[K]) Create(ctx context.Context, role *identity.Role[K]) error {
	if _, err := s.live(); err != nil {
		return err
	}
	if role == nil {
		return invalid("role")
	}
	return s.commit(ctx, "role.create", saveOp, role)
}

func (s *RoleStore[K]) Update(ctx context.Context, role *identity.Role[K]) error {
	if _, err := s.live(); err != nil {
		return err
	}
	if role == nil {
		return invalid("role")
	}
	return s.commit(ctx, "role.update", updateOp, role)
}

// Delete removes the role and every membership pointing at it. Users are
// not touched.
func (s *RoleStore[K]) Delete(ctx context.Context, role *identity.Role[K]) error {
	if _, err := s.live(); err != nil {
		return err
	}
	if role == nil {
		return invalid("role")
	}
	return s.commit(ctx, "role.delete", deleteOp, role)
}

// Roles returns a query over all roles.
func (s *RoleStore[K]) Roles(ctx context.Context) (*gorm.DB, error) {
	sess, err := s.live()
	if err != nil {
		return nil, err
	}
	return sess.Query(ctx).Model(&identity.Role[K]{}), nil
}
