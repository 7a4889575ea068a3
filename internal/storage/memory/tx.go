package memory

import (
	"context"
	"sync"
	"time"

	"assent/internal/storage"
	pkgerrors "assent/pkg/domain-errors"
)

// Tx provides the unit-of-work boundary over the in-memory stores using
// sharded mutexes. Operations are distributed across shards by a hash of the
// mutated record id, so concurrent units of work on unrelated records do not
// contend while mutations on the same record serialize.
const numShards = 128

// defaultTxTimeout bounds a unit of work when the caller set no deadline.
const defaultTxTimeout = 5 * time.Second

type Tx struct {
	shards  [numShards]sync.Mutex
	stores  storage.Stores
	timeout time.Duration
}

func NewTx(stores storage.Stores) *Tx {
	return &Tx{stores: stores}
}

func (t *Tx) RunInTx(ctx context.Context, fn func(ctx context.Context, s storage.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "unit of work aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shard := t.selectShard(ctx)
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	// Check again after acquiring the lock.
	if err := ctx.Err(); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "unit of work aborted: context cancelled")
	}

	return fn(ctx, t.stores)
}

func (t *Tx) selectShard(ctx context.Context) int {
	if key, ok := storage.MutationKey(ctx); ok {
		return int(fnvHash(key) % numShards)
	}
	return 0
}

// fnvHash is FNV-1a; good distribution for uuid strings.
func fnvHash(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
