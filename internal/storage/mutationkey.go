package storage

import "context"

type mutationKey struct{}

var mutationKeyCtx = mutationKey{}

// WithMutationKey tags the context with the id the unit of work mutates.
// The in-memory Tx uses it to pick a lock shard so unrelated records do not
// contend; the postgres Tx ignores it.
func WithMutationKey(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, mutationKeyCtx, key)
}

// MutationKey returns the tag set by WithMutationKey, if any.
func MutationKey(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(mutationKeyCtx).(string)
	return key, ok && key != ""
}
