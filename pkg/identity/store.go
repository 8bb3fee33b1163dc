package identity

import (
	"context"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Store is the persistence contract of the identify flow.
// Every lookup excludes tombstoned rows and returns contacts oldest first (created_at, then id).
// Inside RunExclusive, lookups lock the rows they return.
type Store interface {
	FindActiveByEmailOrPhone(ctx context.Context, email, phone *string) ([]models.Contact, error)
	FindActiveChildrenOf(ctx context.Context, primaryID int64) ([]models.Contact, error)
	FindActiveByID(ctx context.Context, id int64) (*models.Contact, error)
	// Insert assigns the id and timestamps.
	Insert(ctx context.Context, contact *models.Contact) (*models.Contact, error)
	// Update persists precedence and linkage and refreshes updated_at.
	Update(ctx context.Context, contact *models.Contact) error
}

// Transactor runs fn atomically while holding exclusive locks on keys.
// Any error returned by fn rolls back every write made through the Store.
type Transactor interface {
	RunExclusive(ctx context.Context, keys []string, fn func(ctx context.Context) error) error
}

// KeyLocker serializes callers across processes by key.
type KeyLocker interface {
	LockKeys(ctx context.Context, keys []string) (unlock func(context.Context), err error)
}

type lockedTransactor struct {
	locker KeyLocker
	inner  Transactor
}

// WithKeyLocks holds locker's locks around every inner transaction.
func WithKeyLocks(locker KeyLocker, inner Transactor) Transactor {
	return &lockedTransactor{locker: locker, inner: inner}
}

func (t *lockedTransactor) RunExclusive(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	unlock, err := t.locker.LockKeys(ctx, keys)
	if err != nil {
		return err
	}
	defer unlock(context.WithoutCancel(ctx))

	return t.inner.RunExclusive(ctx, keys, fn)
}
