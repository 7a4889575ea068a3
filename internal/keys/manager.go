// Package keys manages encryption key lifecycle: issuance, rotation, and
// expiry. Rotation never invalidates historical references; a consent
// record sealed under key v1 still resolves v1 after v2 becomes active.
package keys

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"assent/internal/domain"
	"assent/internal/platform/metrics"
	"assent/internal/storage"
	pkgerrors "assent/pkg/domain-errors"
	"assent/pkg/platform/sentinel"
)

// DefaultAlgorithm is used when issuance does not name one.
const DefaultAlgorithm = "XChaCha20-Poly1305"

type Manager struct {
	tx      storage.Tx
	stores  storage.Stores
	cache   resolveCache
	crypter *Crypter
	logger  *slog.Logger
	now     func() time.Time
}

// NewManager builds a Manager. redisClient may be nil, in which case every
// resolve goes to the store.
func NewManager(tx storage.Tx, stores storage.Stores, redisClient *redis.Client, crypter *Crypter, logger *slog.Logger, m *metrics.Metrics) *Manager {
	var cache resolveCache = noopCache{}
	if redisClient != nil {
		cache = NewRedisCache(redisClient, m)
	}
	return &Manager{
		tx:      tx,
		stores:  stores,
		cache:   cache,
		crypter: crypter,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Issue creates version 1 of a key type. At most one active key exists per
// type; issuing a second one is a conflict, rotate instead.
func (m *Manager) Issue(ctx context.Context, keyType, algorithm, creator string) (domain.EncryptionKey, error) {
	if keyType == "" {
		return domain.EncryptionKey{}, pkgerrors.New(pkgerrors.CodeValidation, "key type is required")
	}
	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}

	handle, err := m.crypter.Mint()
	if err != nil {
		return domain.EncryptionKey{}, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "mint key material")
	}
	key := domain.EncryptionKey{
		ID:        domain.NewKeyID(),
		KeyType:   keyType,
		Algorithm: algorithm,
		HandleRef: handle,
		Version:   1,
		Active:    true,
		CreatedAt: m.now(),
		CreatedBy: actorOrSystem(creator),
	}

	ctx = storage.WithMutationKey(ctx, "key-type:"+keyType)
	err = m.tx.RunInTx(ctx, func(ctx context.Context, st storage.Stores) error {
		if _, err := st.Keys.FindActiveByType(ctx, keyType); err == nil {
			return pkgerrors.Newf(pkgerrors.CodeConflict,
				"an active key of type %q already exists", keyType)
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "check active keys")
		}
		if err := st.Keys.Insert(ctx, key); err != nil {
			return pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "persist encryption key")
		}
		return nil
	})
	if err != nil {
		return domain.EncryptionKey{}, err
	}

	m.logger.InfoContext(ctx, "encryption key issued",
		"key_id", key.ID.String(),
		"key_type", keyType,
		"algorithm", algorithm,
	)
	return key, nil
}

// Rotate deactivates the active key of the type and issues its successor in
// one unit of work. The old key remains resolvable for existing records.
func (m *Manager) Rotate(ctx context.Context, keyType, actor string) (domain.EncryptionKey, error) {
	handle, err := m.crypter.Mint()
	if err != nil {
		return domain.EncryptionKey{}, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "mint key material")
	}

	var (
		old     domain.EncryptionKey
		rotated domain.EncryptionKey
	)
	ctx = storage.WithMutationKey(ctx, "key-type:"+keyType)
	err = m.tx.RunInTx(ctx, func(ctx context.Context, st storage.Stores) error {
		var err error
		old, err = st.Keys.FindActiveByType(ctx, keyType)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return pkgerrors.Newf(pkgerrors.CodeKeyNotFound, "no active key of type %q", keyType)
			}
			return pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "find active key")
		}

		now := m.now()
		old.Active = false
		old.RotatedAt = &now
		if err := st.Keys.Update(ctx, old); err != nil {
			return pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "deactivate rotated key")
		}

		rotated = domain.EncryptionKey{
			ID:        domain.NewKeyID(),
			KeyType:   keyType,
			Algorithm: old.Algorithm,
			HandleRef: handle,
			Version:   old.Version + 1,
			Active:    true,
			CreatedAt: now,
			CreatedBy: actorOrSystem(actor),
		}
		if err := st.Keys.Insert(ctx, rotated); err != nil {
			return pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "persist rotated key")
		}
		return nil
	})
	if err != nil {
		return domain.EncryptionKey{}, err
	}

	m.cache.Invalidate(ctx, old.ID)
	m.logger.InfoContext(ctx, "encryption key rotated",
		"key_type", keyType,
		"old_key_id", old.ID.String(),
		"new_key_id", rotated.ID.String(),
		"version", rotated.Version,
	)
	return rotated, nil
}

// Resolve returns key metadata by id, serving from cache when possible.
// Inactive keys resolve too; consumers decide whether inactive is
// acceptable for their use.
func (m *Manager) Resolve(ctx context.Context, id domain.KeyID) (domain.EncryptionKey, error) {
	if key, ok := m.cache.Get(ctx, id); ok {
		return key, nil
	}
	key, err := m.stores.Keys.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return domain.EncryptionKey{}, pkgerrors.New(pkgerrors.CodeKeyNotFound, "encryption key not found").WithEntity(id.String())
		}
		return domain.EncryptionKey{}, pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "read encryption key")
	}
	m.cache.Set(ctx, key)
	return key, nil
}

// Expire retires a key outright. Refused while any non-withdrawn consent
// record still references it.
func (m *Manager) Expire(ctx context.Context, id domain.KeyID, actor string) (domain.EncryptionKey, error) {
	var key domain.EncryptionKey
	ctx = storage.WithMutationKey(ctx, "key:"+id.String())
	err := m.tx.RunInTx(ctx, func(ctx context.Context, st storage.Stores) error {
		var err error
		key, err = st.Keys.Get(ctx, id)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return pkgerrors.New(pkgerrors.CodeKeyNotFound, "encryption key not found").WithEntity(id.String())
			}
			return pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "read encryption key")
		}

		referencing, err := st.Consents.CountActiveByKey(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "count key references")
		}
		if referencing > 0 {
			return pkgerrors.Newf(pkgerrors.CodeConflict,
				"key is referenced by %d active consent records", referencing).WithEntity(id.String())
		}

		now := m.now()
		key.Active = false
		key.ExpiresAt = &now
		if err := st.Keys.Update(ctx, key); err != nil {
			return pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "expire encryption key")
		}
		return nil
	})
	if err != nil {
		return domain.EncryptionKey{}, err
	}

	m.cache.Invalidate(ctx, id)
	m.logger.InfoContext(ctx, "encryption key expired",
		"key_id", id.String(),
		"expired_by", actorOrSystem(actor),
	)
	return key, nil
}

func actorOrSystem(actor string) string {
	if actor == "" {
		return "system"
	}
	return actor
}
