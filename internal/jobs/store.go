package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	dispatchKeyPrefix = "dispatch:"
	maxUpdateRetries  = 8
)

// ErrRecordNotFound は送信ジョブが存在しないことを表します。
var ErrRecordNotFound = errors.New("dispatch record not found")

// Store は送信ジョブの状態を Redis に保存します。
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore は Store を作成します。
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{
		rdb: rdb,
		ttl: ttl,
	}
}

// Get は送信ジョブを取得します。存在しない場合は nil を返します。
func (s *Store) Get(ctx context.Context, dispatchID string) (*Record, error) {
	if dispatchID == "" {
		return nil, fmt.Errorf("dispatchID is required")
	}
	data, err := s.rdb.Get(ctx, dispatchKey(dispatchID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Upsert は送信ジョブを保存します（存在しない場合は作成）。
func (s *Store) Upsert(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.ExpiresAt.IsZero() && s.ttl > 0 {
		record.ExpiresAt = record.CreatedAt.Add(s.ttl)
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, dispatchKey(record.DispatchID), payload, s.ttl).Err()
}

// MarkRunning は送信開始を記録し、試行回数を増やします。
func (s *Store) MarkRunning(ctx context.Context, dispatchID string) error {
	return s.updatePartial(ctx, dispatchID, func(record *Record) {
		record.Status = StatusRunning
		record.Attempts++
	})
}

// MarkSent は送信完了を記録します。
func (s *Store) MarkSent(ctx context.Context, dispatchID, gatewayID string) error {
	return s.updatePartial(ctx, dispatchID, func(record *Record) {
		record.Status = StatusSent
		record.GatewayID = gatewayID
		record.Error = nil
	})
}

// MarkFailed は送信失敗を記録します。
func (s *Store) MarkFailed(ctx context.Context, dispatchID string, errInfo *ErrorInfo) error {
	return s.updatePartial(ctx, dispatchID, func(record *Record) {
		record.Status = StatusFailed
		if errInfo != nil {
			record.Error = errInfo
		}
	})
}

// updatePartial は WATCH による楽観ロックでレコードを更新します。
func (s *Store) updatePartial(ctx context.Context, dispatchID string, mutate func(*Record)) error {
	key := dispatchKey(dispatchID)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return fmt.Errorf("%w: %s", ErrRecordNotFound, dispatchID)
			}
			return err
		}
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			return err
		}
		mutate(&record)
		record.UpdatedAt = time.Now().UTC()
		payload, err := json.Marshal(&record)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, redis.KeepTTL)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("dispatch record %s: too many concurrent updates", dispatchID)
}

func dispatchKey(id string) string {
	return dispatchKeyPrefix + id
}
