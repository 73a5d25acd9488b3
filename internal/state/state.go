package state

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"storefront/menusync/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	fingerprintKey  = "catalog.fingerprint"
	versionKey      = "catalog.version"
	lastModifiedKey = "catalog.lastModified"
)

// FingerprintStore reads the last applied catalog fingerprint, version and
// modification time per scope. Writes go through the catalog index's
// transaction, so each backend exposes its own queued write.
type FingerprintStore interface {
	LoadMeta(ctx context.Context, scope domain.Scope) (domain.CatalogMeta, error)
}

var (
	_ FingerprintStore = (*RedisFingerprintStore)(nil)
	_ FingerprintStore = (*PostgresFingerprintStore)(nil)
)

type RedisFingerprintStore struct {
	redisClient *redis.Client
	keyPrefix   string
}

func NewRedisFingerprintStore(redisClient *redis.Client, keyPrefix string) *RedisFingerprintStore {
	if keyPrefix == "" {
		keyPrefix = "menusync:"
	}
	return &RedisFingerprintStore{
		redisClient: redisClient,
		keyPrefix:   keyPrefix,
	}
}

func (s *RedisFingerprintStore) key(scope domain.Scope, name string) string {
	return s.keyPrefix + scope.String() + ":" + name
}

func (s *RedisFingerprintStore) LoadMeta(ctx context.Context, scope domain.Scope) (domain.CatalogMeta, error) {
	vals, err := s.redisClient.MGet(ctx,
		s.key(scope, fingerprintKey),
		s.key(scope, versionKey),
		s.key(scope, lastModifiedKey),
	).Result()
	if err != nil {
		return domain.CatalogMeta{}, Unavailable(fmt.Errorf("failed to load catalog meta for %s: %w", scope, err))
	}

	var meta domain.CatalogMeta
	if v, ok := vals[0].(string); ok {
		meta.Fingerprint = v
	}
	if v, ok := vals[1].(string); ok {
		meta.Version = v
	}
	if v, ok := vals[2].(string); ok {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return domain.CatalogMeta{}, fmt.Errorf("failed to parse last modified for %s: %w", scope, err)
		}
		meta.LastModified = time.UnixMilli(ms)
	}

	return meta, nil
}

// QueueMeta adds the meta writes to cmd, typically a transaction pipeline
// that also carries the product writes of the same apply.
func (s *RedisFingerprintStore) QueueMeta(ctx context.Context, cmd redis.Cmdable, scope domain.Scope, meta domain.CatalogMeta) {
	cmd.MSet(ctx,
		s.key(scope, fingerprintKey), meta.Fingerprint,
		s.key(scope, versionKey), meta.Version,
		s.key(scope, lastModifiedKey), strconv.FormatInt(meta.LastModified.UnixMilli(), 10),
	)
}
