// Package sms は SMS 認証コードの送信クライアントを提供します。
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	defaultBaseURL = "https://www.smslocal.com/dev/bulkV2"
	defaultTimeout = 15 * time.Second
)

// ErrNotConfigured は API キーが設定されていないことを表します。
var ErrNotConfigured = errors.New("sms: API key not configured")

// GatewayClient は HTTP の SMS ゲートウェイ経由でコードを送信します。
type GatewayClient struct {
	APIKey     string
	BaseURL    string
	Sender     string
	HTTPClient *http.Client
}

// NewGatewayClient は GatewayClient を作成します。
func NewGatewayClient(apiKey, baseURL, sender string, timeout time.Duration) *GatewayClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &GatewayClient{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		Sender:     sender,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type gatewayRequest struct {
	Route     string `json:"route"`
	Numbers   string `json:"numbers"`
	Variables string `json:"variables"`
	SenderID  string `json:"sender_id,omitempty"`
}

// Send はコードを送信し、送信IDを返します。コードはログに出しません。
func (c *GatewayClient) Send(ctx context.Context, mobile, code string) (string, error) {
	if c.APIKey == "" {
		return "", ErrNotConfigured
	}
	raw, err := json.Marshal(gatewayRequest{
		Route:     "otp",
		Numbers:   mobile,
		Variables: code,
		SenderID:  c.Sender,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("sms: request failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return uuid.NewString(), nil
}

// LogSender は送信せずにログへ出力するだけの開発用ドライバーです。
// 本番モードでは設定で禁止されています。
type LogSender struct {
	Logger *log.Logger
}

// Send はコードをログに出力し、送信IDを返します。
func (s *LogSender) Send(ctx context.Context, mobile, code string) (string, error) {
	logger := s.Logger
	if logger == nil {
		logger = log.Default()
	}
	id := uuid.NewString()
	logger.Printf("[sms:log] dispatch=%s mobile=%s code=%s", id, mobile, code)
	return id, nil
}
