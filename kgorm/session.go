package kgorm

import (
	"context"
	"sync"

	"github.com/getkayan/kidentity/domain"
	"github.com/getkayan/kidentity/logger"
	"github.com/getkayan/kidentity/telemetry"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrSessionClosed is returned by every operation on a closed session.
var ErrSessionClosed = domain.ErrSessionClosed

type opKind int

const (
	opSave opKind = iota
	opUpdate
	opDelete
)

func (k opKind) String() string {
	switch k {
	case opSave:
		return "save"
	case opUpdate:
		return "update"
	default:
		return "delete"
	}
}

type operation struct {
	kind   opKind
	entity any
}

// Session implements domain.Session on top of a *gorm.DB.
//
// Associations are never written by GORM's own association handling; the
// entity hooks own that, so every write omits clause.Associations.
type Session struct {
	db *gorm.DB

	mu      sync.Mutex
	pending []operation
	closed  bool
	owned   bool
}

var _ domain.Session = (*Session)(nil)

// NewSession returns a session over db. Closing the session leaves db open.
func NewSession(db *gorm.DB) *Session {
	return &Session{db: db}
}

// DB returns the underlying connection.
func (s *Session) DB() *gorm.DB {
	return s.db
}

func (s *Session) Get(ctx context.Context, dest any, id any) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	res := s.db.WithContext(ctx).Limit(1).Find(dest, "id = ?", id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Session) Query(ctx context.Context) *gorm.DB {
	db := s.db.WithContext(ctx)
	if err := s.checkOpen(); err != nil {
		db.AddError(err)
	}
	return db
}

func (s *Session) Save(entity any) error {
	return s.enqueue(opSave, entity)
}

func (s *Session) Update(entity any) error {
	return s.enqueue(opUpdate, entity)
}

func (s *Session) Delete(entity any) error {
	return s.enqueue(opDelete, entity)
}

func (s *Session) enqueue(kind opKind, entity any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.pending = append(s.pending, operation{kind: kind, entity: entity})
	return nil
}

// Pending returns the number of queued operations.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Session) Flush(ctx context.Context) (err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	ops := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(ops) == 0 {
		return nil
	}

	ctx, span := telemetry.SpanFlush(ctx, len(ops))
	defer func() { telemetry.EndSpan(span, err) }()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, op := range ops {
			if err := apply(tx, op); err != nil {
				logger.Log.Debug("flush failed",
					zap.Stringer("op", op.kind),
					zap.String("entity", entityName(op.entity)),
					zap.Error(err),
				)
				return err
			}
		}
		return nil
	})
	if err == nil {
		logger.Log.Debug("flushed", zap.Int("operations", len(ops)))
	}
	return err
}

func apply(tx *gorm.DB, op operation) error {
	switch op.kind {
	case opSave:
		return tx.Omit(clause.Associations).Create(op.entity).Error
	case opUpdate:
		return tx.Omit(clause.Associations).Save(op.entity).Error
	default:
		return tx.Delete(op.entity).Error
	}
}

func entityName(entity any) string {
	if t, ok := entity.(interface{ TableName() string }); ok {
		return t.TableName()
	}
	return "unknown"
}

func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
}

// Close discards pending work. A session created by OpenSession also closes
// its connection.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.pending = nil
	if !s.owned {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}
