// Package store implements role and user stores over a domain.Session.
//
// A store validates its arguments, edits the in-memory entity graph or
// queries the session, and flushes on Create, Update and Delete. Collection
// and field mutations (AddClaim, SetEmail, ...) never flush; the caller's
// next Update persists them together.
//
// Stores are not safe for concurrent use. Close releases the session when
// ShouldCloseSession is set; every later call fails with ErrDisposed.
package store

import (
	"context"
	"strings"

	"github.com/getkayan/kidentity/domain"
	"github.com/getkayan/kidentity/logger"
	"go.uber.org/zap"
)

type lifecycle struct {
	session  domain.Session
	disposed bool

	// ShouldCloseSession makes Close close the session as well. Defaults
	// to true.
	ShouldCloseSession bool
}

func newLifecycle(session domain.Session) (lifecycle, error) {
	if session == nil {
		return lifecycle{}, invalid("session")
	}
	return lifecycle{session: session, ShouldCloseSession: true}, nil
}

// Session returns the underlying session, or nil once the store is closed.
func (l *lifecycle) Session() domain.Session {
	return l.session
}

func (l *lifecycle) live() (domain.Session, error) {
	if l.disposed {
		return nil, ErrDisposed
	}
	return l.session, nil
}

// Close disposes the store. Closing twice is a no-op.
func (l *lifecycle) Close() error {
	if l.disposed {
		return nil
	}
	l.disposed = true
	s := l.session
	l.session = nil
	if s != nil && l.ShouldCloseSession {
		return s.Close()
	}
	return nil
}

type writeFunc func(domain.Session, any) error

func saveOp(s domain.Session, e any) error   { return s.Save(e) }
func updateOp(s domain.Session, e any) error { return s.Update(e) }
func deleteOp(s domain.Session, e any) error { return s.Delete(e) }

// commit queues one write and flushes it.
func (l *lifecycle) commit(ctx context.Context, op string, write writeFunc, entity any) error {
	s, err := l.live()
	if err != nil {
		return err
	}
	if err := write(s, entity); err != nil {
		return err
	}
	if err := s.Flush(ctx); err != nil {
		logger.Log.Debug("store write failed", zap.String("op", op), zap.Error(err))
		return err
	}
	return nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
