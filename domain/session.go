package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// ErrSessionClosed is returned by every Session operation after Close.
var ErrSessionClosed = errors.New("session closed")

// Session is a unit of work over the identity tables. Save, Update and
// Delete only queue work; nothing reaches storage until Flush, which runs
// the queued operations in a single transaction.
type Session interface {
	// Get loads the entity with primary key id into dest. It reports false
	// when no row matches.
	Get(ctx context.Context, dest any, id any) (bool, error)
	// Query returns a query builder bound to ctx.
	Query(ctx context.Context) *gorm.DB
	Save(entity any) error
	Update(entity any) error
	Delete(entity any) error
	// Flush writes the queued operations. Pending work is discarded
	// whether or not the flush succeeds.
	Flush(ctx context.Context) error
	// Clear discards queued operations without writing them.
	Clear()
	Close() error
}
