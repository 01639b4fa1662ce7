package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"scriptoria/internal/domain"
)

// DefaultLockTTL bounds how long a crashed process can keep a breaker lock.
// A lock is held for the whole streaming call.
const DefaultLockTTL = 15 * time.Minute

// BreakerStore keeps circuit breaker state in the kv table so that failures
// count across separate runs of the CLI. Locks are rows whose value is the
// expiry in Unix nanoseconds; an expired lock can be taken over.
type BreakerStore struct {
	kv  *SQLiteStore
	ttl time.Duration
	now func() time.Time
}

// NewBreakerStore returns a gobreaker.SharedDataStore backed by kv.
func NewBreakerStore(kv *SQLiteStore) *BreakerStore {
	return &BreakerStore{kv: kv, ttl: DefaultLockTTL, now: time.Now}
}

// Lock takes the named lock or fails with domain.ErrLockHeld.
func (b *BreakerStore) Lock(name string) error {
	now := b.now()
	expiry := strconv.FormatInt(now.Add(b.ttl).UnixNano(), 10)
	res, err := b.kv.db.ExecContext(context.Background(),
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		 WHERE CAST(kv.value AS INTEGER) < ?`,
		name, expiry, now.UTC().Format(time.RFC3339Nano), now.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("%w: lock %s: %v", domain.ErrStore, name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: lock %s: %v", domain.ErrStore, name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrLockHeld, name)
	}
	return nil
}

// Unlock releases the named lock.
func (b *BreakerStore) Unlock(name string) error {
	return b.kv.Delete(context.Background(), name)
}

// GetData returns nil without error for unknown names, which gobreaker
// treats as "no shared state yet".
func (b *BreakerStore) GetData(name string) ([]byte, error) {
	v, err := b.kv.Get(context.Background(), name)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(v), nil
}

func (b *BreakerStore) SetData(name string, data []byte) error {
	return b.kv.Set(context.Background(), name, string(data))
}

var _ gobreaker.SharedDataStore = (*BreakerStore)(nil)
