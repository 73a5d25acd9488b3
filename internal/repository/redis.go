package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"storefront/menusync/internal/domain"
	"storefront/menusync/internal/state"

	"github.com/redis/go-redis/v9"
)

// Short field aliases of a stored product record.
const (
	fieldPayload  = "p"
	fieldModified = "m"
	fieldKind     = "k"
	fieldID       = "i"
)

type redisCatalogIndex struct {
	redisClient *redis.Client
	keyPrefix   string
	meta        *state.RedisFingerprintStore
}

func NewRedisCatalogIndex(redisClient *redis.Client, keyPrefix string) CatalogIndex {
	if keyPrefix == "" {
		keyPrefix = "menusync:"
	}
	return &redisCatalogIndex{
		redisClient: redisClient,
		keyPrefix:   keyPrefix,
		meta:        state.NewRedisFingerprintStore(redisClient, keyPrefix),
	}
}

func (r *redisCatalogIndex) productKey(scope domain.Scope, encoded string) string {
	return r.keyPrefix + scope.String() + ":product:" + encoded
}

func (r *redisCatalogIndex) idIndexKey(scope domain.Scope) string {
	return r.keyPrefix + scope.String() + ":idx:id"
}

func (r *redisCatalogIndex) kindIndexKey(scope domain.Scope, kind domain.Kind) string {
	return r.keyPrefix + scope.String() + ":idx:kind:" + kind.String()
}

// Init is a no-op: Redis index keys are created on first write.
func (r *redisCatalogIndex) Init(ctx context.Context) error {
	return nil
}

func (r *redisCatalogIndex) Get(ctx context.Context, scope domain.Scope, key domain.ProductKey) (*domain.ProductRecord, error) {
	fields, err := r.redisClient.HGetAll(ctx, r.productKey(scope, key.Encode())).Result()
	if err != nil {
		return nil, state.Unavailable(fmt.Errorf("failed to get product %s: %w", key, err))
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	record := &domain.ProductRecord{Key: key}
	if payload, ok := fields[fieldPayload]; ok {
		record.Payload = []byte(payload)
	}
	if modified, ok := fields[fieldModified]; ok {
		ms, err := strconv.ParseInt(modified, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse modified time of %s: %w", key, err)
		}
		record.Modified = time.UnixMilli(ms)
	}

	return record, nil
}

func (r *redisCatalogIndex) ByID(ctx context.Context, scope domain.Scope, id string) (domain.ProductKey, error) {
	encoded, err := r.redisClient.HGet(ctx, r.idIndexKey(scope), id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ProductKey{}, ErrNotFound
		}
		return domain.ProductKey{}, state.Unavailable(fmt.Errorf("failed to look up product id %s: %w", id, err))
	}

	return domain.DecodeProductKey(encoded)
}

func (r *redisCatalogIndex) ByKind(ctx context.Context, scope domain.Scope, kind domain.Kind) ([]domain.ProductKey, error) {
	members, err := r.redisClient.SMembers(ctx, r.kindIndexKey(scope, kind)).Result()
	if err != nil {
		return nil, state.Unavailable(fmt.Errorf("failed to list products of kind %s: %w", kind, err))
	}
	sort.Strings(members)

	keys := make([]domain.ProductKey, 0, len(members))
	for _, encoded := range members {
		key, err := domain.DecodeProductKey(encoded)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	return keys, nil
}

func (r *redisCatalogIndex) LoadMeta(ctx context.Context, scope domain.Scope) (domain.CatalogMeta, error) {
	return r.meta.LoadMeta(ctx, scope)
}

func (r *redisCatalogIndex) Update(ctx context.Context, scope domain.Scope, fn func(tx Tx) error) error {
	pipe := r.redisClient.TxPipeline()
	tx := &redisTx{
		ctx:     ctx,
		index:   r,
		scope:   scope,
		pipe:    pipe,
		claims:  make(map[string]string),
		deleted: make(map[string]bool),
	}

	if err := fn(tx); err != nil {
		pipe.Discard()
		return err
	}
	if err := tx.checkClaims(); err != nil {
		pipe.Discard()
		return err
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return state.Unavailable(fmt.Errorf("failed to commit catalog update for %s: %w", scope, err))
	}

	return nil
}

// redisTx queues every write on a MULTI/EXEC pipeline.
type redisTx struct {
	ctx   context.Context
	index *redisCatalogIndex
	scope domain.Scope
	pipe  redis.Pipeliner

	claims  map[string]string // raw id -> encoded key upserted in this tx
	deleted map[string]bool   // encoded keys deleted in this tx
}

func (tx *redisTx) Upsert(rec domain.ProductRecord) error {
	encoded := rec.Key.Encode()
	key := tx.index.productKey(tx.scope, encoded)

	if owner, ok := tx.claims[rec.Key.ID]; ok && owner != encoded {
		return fmt.Errorf("failed to upsert product %s: %w", rec.Key, ErrDuplicateID)
	}
	tx.claims[rec.Key.ID] = encoded

	values := []any{
		fieldModified, strconv.FormatInt(rec.Modified.UnixMilli(), 10),
		fieldKind, rec.Key.Kind.String(),
		fieldID, rec.Key.ID,
	}
	if rec.Payload != nil {
		values = append(values, fieldPayload, rec.Payload)
	}

	// Replace the whole record so a keys-only write drops a stale payload
	tx.pipe.Del(tx.ctx, key)
	tx.pipe.HSet(tx.ctx, key, values...)
	tx.pipe.HSet(tx.ctx, tx.index.idIndexKey(tx.scope), rec.Key.ID, encoded)
	tx.pipe.SAdd(tx.ctx, tx.index.kindIndexKey(tx.scope, rec.Key.Kind), encoded)
	return nil
}

func (tx *redisTx) Delete(key domain.ProductKey) error {
	encoded := key.Encode()
	if tx.claims[key.ID] == encoded {
		delete(tx.claims, key.ID)
	}
	tx.deleted[encoded] = true
	tx.pipe.Del(tx.ctx, tx.index.productKey(tx.scope, encoded))
	tx.pipe.HDel(tx.ctx, tx.index.idIndexKey(tx.scope), key.ID)
	tx.pipe.SRem(tx.ctx, tx.index.kindIndexKey(tx.scope, key.Kind), encoded)
	return nil
}

func (tx *redisTx) SaveMeta(meta domain.CatalogMeta) error {
	tx.index.meta.QueueMeta(tx.ctx, tx.pipe, tx.scope, meta)
	return nil
}

// checkClaims fails when an id upserted in this tx already belongs to
// another stored product that the tx does not delete.
func (tx *redisTx) checkClaims() error {
	if len(tx.claims) == 0 {
		return nil
	}

	ids := make([]string, 0, len(tx.claims))
	for id := range tx.claims {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	owners, err := tx.index.redisClient.HMGet(tx.ctx, tx.index.idIndexKey(tx.scope), ids...).Result()
	if err != nil {
		return state.Unavailable(fmt.Errorf("failed to check product ids for %s: %w", tx.scope, err))
	}

	for i, id := range ids {
		owner, _ := owners[i].(string)
		if owner != "" && owner != tx.claims[id] && !tx.deleted[owner] {
			return fmt.Errorf("product id %s of %s belongs to %s: %w", id, tx.claims[id], owner, ErrDuplicateID)
		}
	}
	return nil
}
