package service

import (
	"context"
	"sync"
	"time"

	id "dplay/pkg/domain"
	dErrors "dplay/pkg/domain-errors"
)

// shardedTx serializes writes with sharded mutexes instead of a single
// global lock: listing operations lock the shard their listing ID hashes
// to, so unrelated listings proceed concurrently, while account operations
// (registration, withdrawal) take a dedicated account lock.
const numListingShards = 64

// defaultTxTimeout bounds how long one operation may hold its shard.
const defaultTxTimeout = 5 * time.Second

type shardedTx struct {
	shards  [numListingShards]sync.Mutex
	account sync.Mutex
	timeout time.Duration
}

// NewMemoryTx returns the in-memory transactional boundary used with the
// in-memory stores.
func NewMemoryTx() StoreTx {
	return &shardedTx{timeout: defaultTxTimeout}
}

func (t *shardedTx) RunInListingTx(ctx context.Context, listingID id.ListingID, fn func(ctx context.Context) error) error {
	shard := uint64(listingID) % numListingShards
	return t.run(ctx, &t.shards[shard], fn)
}

func (t *shardedTx) RunInAccountTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return t.run(ctx, &t.account, fn)
}

func (t *shardedTx) run(ctx context.Context, mu *sync.Mutex, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "transaction aborted: context cancelled")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	mu.Lock()
	defer mu.Unlock()

	// Check again after acquiring the lock.
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "transaction aborted: context cancelled")
	}

	return fn(ctx)
}
