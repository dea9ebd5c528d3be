package challenge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "challenge"

// discardChallengeLua はスロットが指定の secret を保持している場合のみ DEL します。
// KEYS[1] = スロットのキー
// ARGV[1] = 削除対象の secret
var discardChallengeLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return 0
end
local ok, decoded = pcall(cjson.decode, data)
if not ok then
  return 0
end
if decoded['secret'] ~= ARGV[1] then
  return 0
end
return redis.call('DEL', KEYS[1])
`)

type redisRecord struct {
	Secret    string `json:"secret"`
	Subject   string `json:"subject,omitempty"`
	CreatedAt int64  `json:"createdAt"` // unix ミリ秒
}

// RedisBackend は Redis にコードを保持します。有効期限は Redis の TTL に任せます。
type RedisBackend struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisBackend は RedisBackend を作成します。
func NewRedisBackend(rdb redis.UniversalClient, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisBackend{
		rdb:    rdb,
		prefix: prefix,
	}
}

func (b *RedisBackend) key(key Key) string {
	return b.prefix + ":" + string(key.Kind) + ":" + key.SessionID
}

// Put はスロットにコードを保存します。
func (b *RedisBackend) Put(ctx context.Context, key Key, ch Challenge, ttl time.Duration) error {
	payload, err := json.Marshal(redisRecord{
		Secret:    ch.Secret,
		Subject:   ch.Subject,
		CreatedAt: ch.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return err
	}
	if err := b.rdb.Set(ctx, b.key(key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store challenge: %w", err)
	}
	return nil
}

// Take は GETDEL でコードを取り出して削除します。
func (b *RedisBackend) Take(ctx context.Context, key Key) (*Challenge, error) {
	data, err := b.rdb.GetDel(ctx, b.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to take challenge: %w", err)
	}

	var record redisRecord
	if err := json.Unmarshal(data, &record); err != nil {
		// 壊れたレコードは既に削除済みなので存在しないものとして扱う
		return nil, nil
	}
	return &Challenge{
		Kind:      key.Kind,
		Secret:    record.Secret,
		Subject:   record.Subject,
		CreatedAt: time.UnixMilli(record.CreatedAt),
	}, nil
}

// Discard はスロットがまだ secret を保持している場合に限り削除します。
func (b *RedisBackend) Discard(ctx context.Context, key Key, secret string) error {
	if err := discardChallengeLua.Run(ctx, b.rdb, []string{b.key(key)}, secret).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to discard challenge: %w", err)
	}
	return nil
}
