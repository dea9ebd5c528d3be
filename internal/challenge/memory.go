package challenge

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const memoryShardCount = 64

type memoryEntry struct {
	challenge Challenge
	expiresAt time.Time
}

type memoryShard struct {
	lock    sync.Mutex
	entries map[Key]memoryEntry
}

// MemoryBackend はプロセス内のマップにコードを保持します。
// キーはシャードに振り分けられ、異なるシャードの操作は互いにロックを取り合いません。
type MemoryBackend struct {
	shards [memoryShardCount]*memoryShard
	now    func() time.Time
}

// NewMemoryBackend は MemoryBackend を作成します。
func NewMemoryBackend() *MemoryBackend {
	b := &MemoryBackend{now: time.Now}
	for i := range b.shards {
		b.shards[i] = &memoryShard{entries: make(map[Key]memoryEntry)}
	}
	return b
}

func (b *MemoryBackend) shardFor(key Key) *memoryShard {
	return b.shards[xxhash.Sum64String(key.String())%memoryShardCount]
}

// Put はスロットにコードを保存します。
func (b *MemoryBackend) Put(ctx context.Context, key Key, ch Challenge, ttl time.Duration) error {
	shard := b.shardFor(key)
	shard.lock.Lock()
	defer shard.lock.Unlock()

	shard.entries[key] = memoryEntry{
		challenge: ch,
		expiresAt: b.now().Add(ttl),
	}
	return nil
}

// Take はコードを取り出して削除します。期限切れのコードは削除して nil を返します。
func (b *MemoryBackend) Take(ctx context.Context, key Key) (*Challenge, error) {
	shard := b.shardFor(key)
	shard.lock.Lock()
	defer shard.lock.Unlock()

	entry, ok := shard.entries[key]
	if !ok {
		return nil, nil
	}
	delete(shard.entries, key)
	if !b.now().Before(entry.expiresAt) {
		return nil, nil
	}
	ch := entry.challenge
	return &ch, nil
}

// Discard はスロットがまだ secret を保持している場合に限り削除します。
func (b *MemoryBackend) Discard(ctx context.Context, key Key, secret string) error {
	shard := b.shardFor(key)
	shard.lock.Lock()
	defer shard.lock.Unlock()

	if entry, ok := shard.entries[key]; ok && entry.challenge.Secret == secret {
		delete(shard.entries, key)
	}
	return nil
}

// Len は保持しているコードの件数を返します（期限切れを含む）。
func (b *MemoryBackend) Len() int {
	total := 0
	for _, shard := range b.shards {
		shard.lock.Lock()
		total += len(shard.entries)
		shard.lock.Unlock()
	}
	return total
}

// Sweep は期限切れのコードを削除し、削除件数を返します。
func (b *MemoryBackend) Sweep() int {
	now := b.now()
	removed := 0
	for _, shard := range b.shards {
		shard.lock.Lock()
		for key, entry := range shard.entries {
			if !now.Before(entry.expiresAt) {
				delete(shard.entries, key)
				removed++
			}
		}
		shard.lock.Unlock()
	}
	return removed
}

// StartReaper は interval ごとに Sweep を実行するゴルーチンを起動します。
// ctx がキャンセルされると停止します。
func (b *MemoryBackend) StartReaper(ctx context.Context, interval time.Duration, logger *log.Logger) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := b.Sweep(); removed > 0 && logger != nil {
					logger.Printf("challenge reaper removed %d expired entries", removed)
				}
			}
		}
	}()
}
