package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/yourusername/news-portal/internal/config"
)

const queueSMS = "sms"

// Manager は SMS 送信ジョブの投入と状態管理を担います。
// Send を実装しているため、そのまま認証コードの送信ドライバーとして使えます。
type Manager struct {
	client  *asynq.Client
	server  *asynq.Server
	mux     *asynq.ServeMux
	store   *Store
	worker  *Worker
	timeout time.Duration
	logger  *log.Logger
}

// NewManager は Manager を初期化します。
func NewManager(cfg *config.Config, gateway Gateway, store *Store, logger *log.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if gateway == nil {
		return nil, errors.New("gateway is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				queueSMS: 1,
			},
		},
	)

	worker := NewWorker(gateway, store, cfg.SMSDispatchTimeout, logger)
	mux := asynq.NewServeMux()
	mux.HandleFunc(taskTypeSMS, worker.HandleDispatchTask)

	return &Manager{
		client:  client,
		server:  server,
		mux:     mux,
		store:   store,
		worker:  worker,
		timeout: cfg.SMSDispatchTimeout,
		logger:  logger,
	}, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			m.logger.Printf("asynq server stopped with error: %v", err)
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.server.Shutdown()
	return m.client.Close()
}

// Send は送信ジョブを記録してキューに投入し、送信IDを返します。
// 投入できなかった場合はエラーを返します（呼び出し側でコードを取り消す）。
func (m *Manager) Send(ctx context.Context, mobile, code string) (string, error) {
	if mobile == "" || code == "" {
		return "", fmt.Errorf("mobile and code are required")
	}

	dispatchID := uuid.NewString()
	if err := m.store.Upsert(ctx, &Record{
		DispatchID: dispatchID,
		Mobile:     MaskMobile(mobile),
		Status:     StatusQueued,
	}); err != nil {
		return "", err
	}

	body, err := json.Marshal(&TaskPayload{
		DispatchID: dispatchID,
		Mobile:     mobile,
		Code:       code,
	})
	if err != nil {
		return "", err
	}

	opts := []asynq.Option{
		asynq.Queue(queueSMS),
		asynq.TaskID(dispatchID),
		asynq.MaxRetry(2),
	}
	if m.timeout > 0 {
		opts = append(opts, asynq.Timeout(m.timeout))
	}
	task := asynq.NewTask(taskTypeSMS, body)
	if _, err := m.client.EnqueueContext(ctx, task, opts...); err != nil {
		if markErr := m.store.MarkFailed(context.WithoutCancel(ctx), dispatchID, &ErrorInfo{
			Code:    "ENQUEUE_FAILED",
			Message: err.Error(),
		}); markErr != nil {
			m.logger.Printf("failed to mark dispatch failed id=%s: %v", dispatchID, markErr)
		}
		return "", err
	}
	return dispatchID, nil
}

// GetRecord は送信ジョブの状態を取得します。
func (m *Manager) GetRecord(ctx context.Context, dispatchID string) (*Record, error) {
	return m.store.Get(ctx, dispatchID)
}
