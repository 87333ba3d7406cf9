// Package rediscache decorates a storage.Storage with a Redis read-through
// cache for user lookups by id. Writes made through the decorator invalidate
// the cached entry; writes made inside a transaction invalidate on commit.
//
// Every invalidation bumps a per-user version key. A miss records the version
// before reading the backend and fills the cache only if the version is
// unchanged, so a slow reader cannot write back a row older than an
// invalidation it raced with.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"usermgmt/pkg/domain"
	"usermgmt/pkg/logger"
	"usermgmt/pkg/storage"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Options configures the cache.
type Options struct {
	// TTL bounds how long a cached user may be served. Zero means no expiry.
	TTL time.Duration
	// Prefix is prepended to every key.
	Prefix string
}

// versionTTL bounds the life of a version key. It only has to outlive the
// slowest backend read.
const versionTTL = 24 * time.Hour

// errStale aborts a fill whose version moved since the read started.
var errStale = errors.New("cached user invalidated during read")

// cachedUser is the JSON snapshot stored in Redis.
type cachedUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func snapshot(u *domain.User) cachedUser {
	return cachedUser{
		ID:        u.ID().Value(),
		Email:     u.Email().Value(),
		FirstName: u.Name().FirstName(),
		LastName:  u.Name().LastName(),
		Active:    u.IsActive(),
		CreatedAt: u.CreatedAt(),
		UpdatedAt: u.UpdatedAt(),
	}
}

func (c cachedUser) toDomain() (*domain.User, error) {
	id, err := domain.NewUserID(c.ID)
	if err != nil {
		return nil, err //nolint: wrapcheck
	}
	email, err := domain.NewEmail(c.Email)
	if err != nil {
		return nil, err //nolint: wrapcheck
	}
	name, err := domain.NewName(c.FirstName, c.LastName)
	if err != nil {
		return nil, err //nolint: wrapcheck
	}

	return domain.ReconstituteUser(id, email, name, c.Active, domain.WithTimestamps(c.CreatedAt, c.UpdatedAt))
}

// Cache is a storage.Storage whose UserByID is served from Redis when
// possible. Redis failures are logged and never fail a call.
type Cache struct {
	storage.Storage

	client  redis.UniversalClient
	options Options
}

// Ensure Cache implements storage.Storage.
var _ storage.Storage = (*Cache)(nil)

func New(next storage.Storage, client redis.UniversalClient, options Options) *Cache {
	if options.Prefix == "" {
		options.Prefix = "usermgmt:user:"
	}

	return &Cache{
		Storage: next,
		client:  client,
		options: options,
	}
}

// key and versionKey share a hash tag so both land in one cluster slot.
func (c *Cache) key(id domain.UserID) string { return c.options.Prefix + "{" + id.Value() + "}" }

func (c *Cache) versionKey(id domain.UserID) string { return c.key(id) + ":v" }

func versionOf(cmd *redis.StringCmd) (int64, error) {
	v, err := cmd.Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}

	return v, err //nolint: wrapcheck
}

func (c *Cache) get(ctx context.Context, id domain.UserID) *domain.User {
	data, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn(ctx, "could not read user from redis", zap.String("userID", id.Value()), zap.Error(err))
		}

		return nil
	}

	var cu cachedUser
	if err := json.Unmarshal(data, &cu); err != nil {
		logger.Warn(ctx, "could not decode cached user", zap.String("userID", id.Value()), zap.Error(err))

		return nil
	}
	u, err := cu.toDomain()
	if err != nil {
		logger.Warn(ctx, "cached user is invalid", zap.String("userID", id.Value()), zap.Error(err))

		return nil
	}

	return u
}

// fill caches u unless the user was invalidated after version seen was read.
func (c *Cache) fill(ctx context.Context, u *domain.User, seen int64) {
	data, err := json.Marshal(snapshot(u))
	if err != nil {
		logger.Warn(ctx, "could not encode user for redis", zap.Error(err))

		return
	}

	key, versionKey := c.key(u.ID()), c.versionKey(u.ID())
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := versionOf(tx.Get(ctx, versionKey))
		if err != nil {
			return err
		}
		if current != seen {
			return errStale
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, c.options.TTL)

			return nil
		})

		return err //nolint: wrapcheck
	}, versionKey)

	switch {
	case err == nil:
	case errors.Is(err, errStale), errors.Is(err, redis.TxFailedErr):
		logger.Debug(ctx, "skipped caching user invalidated during read", zap.String("userID", u.ID().Value()))
	default:
		logger.Warn(ctx, "could not write user to redis", zap.String("userID", u.ID().Value()), zap.Error(err))
	}
}

// invalidate bumps the version before dropping the entry: a fill that checked
// the old version either lands before the delete or fails its watch.
func (c *Cache) invalidate(ctx context.Context, ids ...domain.UserID) {
	if len(ids) == 0 {
		return
	}

	keys := make([]string, 0, len(ids))
	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.Incr(ctx, c.versionKey(id))
			pipe.Expire(ctx, c.versionKey(id), versionTTL)
			pipe.Del(ctx, c.key(id))
			keys = append(keys, c.key(id))
		}

		return nil
	})
	if err != nil {
		logger.Warn(ctx, "could not invalidate cached users", zap.Strings("keys", keys), zap.Error(err))
	}
}

// UserByID serves the user from Redis, falling back to the wrapped storage
// and populating the cache on a miss. Missing users are not cached, and
// neither are reads that raced with an invalidation.
func (c *Cache) UserByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	if u := c.get(ctx, id); u != nil {
		return u, nil
	}

	seen, verErr := versionOf(c.client.Get(ctx, c.versionKey(id)))
	if verErr != nil {
		logger.Warn(ctx, "could not read cached user version", zap.String("userID", id.Value()), zap.Error(verErr))
	}

	u, err := c.Storage.UserByID(ctx, id)
	if err != nil || u == nil {
		return u, err //nolint: wrapcheck
	}
	if verErr == nil {
		c.fill(ctx, u, seen)
	}

	return u, nil
}

func (c *Cache) SaveUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	saved, err := c.Storage.SaveUser(ctx, user)
	if err != nil {
		return nil, err //nolint: wrapcheck
	}
	c.invalidate(ctx, user.ID())

	return saved, nil
}

func (c *Cache) DeleteUser(ctx context.Context, id domain.UserID) error {
	if err := c.Storage.DeleteUser(ctx, id); err != nil {
		return err //nolint: wrapcheck
	}
	c.invalidate(ctx, id)

	return nil
}

func (c *Cache) Begin(ctx context.Context) (storage.TxStorage, error) {
	tx, err := c.Storage.Begin(ctx)
	if err != nil {
		return nil, err //nolint: wrapcheck
	}

	return &cacheTx{TxStorage: tx, cache: c, ctx: ctx}, nil
}

func (c *Cache) WithTx(ctx context.Context, cb func(storage storage.AllStorage) error) error {
	tx, err := c.Begin(ctx)
	if err != nil {
		return err
	}

	if err := cb(tx); err != nil {
		_ = tx.Rollback()

		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit tx: %w", err)
	}

	return nil
}

// cacheTx collects the users written in a transaction and drops their cache
// entries once the transaction commits. Reads bypass the cache.
type cacheTx struct {
	storage.TxStorage

	cache   *Cache
	ctx     context.Context //nolint: containedctx
	touched []domain.UserID
}

func (t *cacheTx) SaveUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	saved, err := t.TxStorage.SaveUser(ctx, user)
	if err != nil {
		return nil, err //nolint: wrapcheck
	}
	t.touched = append(t.touched, user.ID())

	return saved, nil
}

func (t *cacheTx) DeleteUser(ctx context.Context, id domain.UserID) error {
	if err := t.TxStorage.DeleteUser(ctx, id); err != nil {
		return err //nolint: wrapcheck
	}
	t.touched = append(t.touched, id)

	return nil
}

func (t *cacheTx) Commit() error {
	if err := t.TxStorage.Commit(); err != nil {
		return err //nolint: wrapcheck
	}
	t.cache.invalidate(context.WithoutCancel(t.ctx), t.touched...)
	t.touched = nil

	return nil
}
