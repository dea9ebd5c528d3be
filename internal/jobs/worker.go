// Package jobs は SMS 認証コードの非同期送信を提供します。
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
)

const taskTypeSMS = "sms:dispatch"

// Gateway は実際に SMS を送信するクライアントです。
type Gateway interface {
	Send(ctx context.Context, mobile, code string) (string, error)
}

// TaskPayload は SMS 送信ジョブのペイロードです。
type TaskPayload struct {
	DispatchID string `json:"dispatchId"`
	Mobile     string `json:"mobile"`
	Code       string `json:"code"`
}

// Worker はキューから取り出した送信ジョブを処理します。
type Worker struct {
	gateway Gateway
	store   *Store
	timeout time.Duration
	logger  *log.Logger
}

// NewWorker は Worker を作成します。
func NewWorker(gateway Gateway, store *Store, timeout time.Duration, logger *log.Logger) *Worker {
	if logger == nil {
		logger = log.Default()
	}
	return &Worker{
		gateway: gateway,
		store:   store,
		timeout: timeout,
		logger:  logger,
	}
}

// HandleDispatchTask は asynq のハンドラーです。エラーを返すと asynq が再試行します。
func (w *Worker) HandleDispatchTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if payload.DispatchID == "" || payload.Mobile == "" || payload.Code == "" {
		return fmt.Errorf("%w: incomplete payload", asynq.SkipRetry)
	}

	if err := w.store.MarkRunning(ctx, payload.DispatchID); err != nil {
		w.logger.Printf("failed to mark dispatch running id=%s: %v", payload.DispatchID, err)
	}

	sendCtx := ctx
	if w.timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	gatewayID, err := w.gateway.Send(sendCtx, payload.Mobile, payload.Code)
	if err != nil {
		if markErr := w.store.MarkFailed(ctx, payload.DispatchID, &ErrorInfo{
			Code:    "GATEWAY_ERROR",
			Message: err.Error(),
		}); markErr != nil {
			w.logger.Printf("failed to mark dispatch failed id=%s: %v", payload.DispatchID, markErr)
		}
		return err
	}

	if err := w.store.MarkSent(ctx, payload.DispatchID, gatewayID); err != nil {
		w.logger.Printf("failed to mark dispatch sent id=%s: %v", payload.DispatchID, err)
	}
	return nil
}
