package challenge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// Policy は認証コードの有効期限などの方針を表します。
type Policy struct {
	ImageTTL        time.Duration
	SmsTTL          time.Duration
	DispatchTimeout time.Duration
	// CaseInsensitiveImage が true の場合、画像認証コードの大文字小文字を区別しません。
	CaseInsensitiveImage bool
	// DebugLogCodes が true の場合、発行したコードをログに出力します（開発用）。
	DebugLogCodes bool
	// ValidateMobile は送信先番号の形式を検証します。nil の場合は ValidMobile を使います。
	ValidateMobile func(mobile string) error
}

// DefaultPolicy はデフォルトの Policy を返します。
func DefaultPolicy() Policy {
	return Policy{
		ImageTTL:        5 * time.Minute,
		SmsTTL:          10 * time.Minute,
		DispatchTimeout: 10 * time.Second,
	}
}

// Service は画像認証コードと SMS 認証コードの発行・照合を行います。
type Service struct {
	backend  Backend
	renderer Renderer
	sender   Sender
	policy   Policy
	logger   *log.Logger
	now      func() time.Time
}

// NewService は Service を初期化します。
func NewService(backend Backend, renderer Renderer, sender Sender, policy Policy, logger *log.Logger) (*Service, error) {
	if backend == nil {
		return nil, errors.New("backend is nil")
	}
	if renderer == nil {
		return nil, errors.New("renderer is nil")
	}
	if sender == nil {
		return nil, errors.New("sender is nil")
	}
	defaults := DefaultPolicy()
	if policy.ImageTTL <= 0 {
		policy.ImageTTL = defaults.ImageTTL
	}
	if policy.SmsTTL <= 0 {
		policy.SmsTTL = defaults.SmsTTL
	}
	if policy.DispatchTimeout <= 0 {
		policy.DispatchTimeout = defaults.DispatchTimeout
	}
	if policy.ValidateMobile == nil {
		policy.ValidateMobile = ValidMobile
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		backend:  backend,
		renderer: renderer,
		sender:   sender,
		policy:   policy,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// IssueImageChallenge は画像認証コードを発行し、画像だけを返します。
// 同じセッションの既存の画像認証コードは上書きされます。
func (s *Service) IssueImageChallenge(ctx context.Context, sessionID string) (*Image, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}

	text, data, err := s.renderer.Render()
	if err != nil {
		return nil, fmt.Errorf("failed to render captcha: %w", err)
	}
	if text == "" || len(data) == 0 {
		return nil, errors.New("renderer returned empty captcha")
	}

	key := Key{SessionID: sessionID, Kind: KindImage}
	if err := s.backend.Put(ctx, key, Challenge{
		Kind:      KindImage,
		Secret:    text,
		CreatedAt: s.now(),
	}, s.policy.ImageTTL); err != nil {
		return nil, err
	}
	s.debugf("issued image code session=%s code=%s", sessionID, text)

	return &Image{
		Data:        data,
		ContentType: detectContentType(data),
	}, nil
}

// IssueSmsChallenge は画像認証コードを照合したうえで SMS 認証コードを発行・送信します。
//
// 画像認証コードは照合前に削除されるため、失敗した場合は画像の再取得が必要です。
// 送信に失敗した場合、保存した SMS 認証コードは取り消され ErrDispatchFailure を返します。
func (s *Service) IssueSmsChallenge(ctx context.Context, sessionID, mobile, imageAnswer string) (*Dispatch, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	if mobile == "" || imageAnswer == "" {
		return nil, fmt.Errorf("%w: mobile and image code are required", ErrInvalidInput)
	}
	// 番号が不正な場合は画像認証コードを消費しない
	if err := s.policy.ValidateMobile(mobile); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if _, err := s.consume(ctx, Key{SessionID: sessionID, Kind: KindImage}, imageAnswer, s.policy.ImageTTL, s.policy.CaseInsensitiveImage); err != nil {
		return nil, err
	}

	code, err := NewSMSCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate sms code: %w", err)
	}

	createdAt := s.now()
	key := Key{SessionID: sessionID, Kind: KindSMS}
	if err := s.backend.Put(ctx, key, Challenge{
		Kind:      KindSMS,
		Secret:    code,
		Subject:   mobile,
		CreatedAt: createdAt,
	}, s.policy.SmsTTL); err != nil {
		return nil, err
	}
	s.debugf("issued sms code session=%s mobile=%s code=%s", sessionID, mobile, code)

	sendCtx, cancel := context.WithTimeout(ctx, s.policy.DispatchTimeout)
	dispatchID, sendErr := s.sender.Send(sendCtx, mobile, code)
	cancel()
	if sendErr != nil {
		// 送信できなかったコードは残さない（同時に再発行された別のコードは消さない）
		rollbackCtx, rollbackCancel := context.WithTimeout(context.WithoutCancel(ctx), s.policy.DispatchTimeout)
		defer rollbackCancel()
		if err := s.backend.Discard(rollbackCtx, key, code); err != nil {
			s.logger.Printf("failed to roll back sms challenge session=%s: %v", sessionID, err)
			return nil, fmt.Errorf("%w: %v (rollback failed: %v)", ErrDispatchFailure, sendErr, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrDispatchFailure, sendErr)
	}

	return &Dispatch{
		ID:        dispatchID,
		Mobile:    mobile,
		ExpiresAt: createdAt.Add(s.policy.SmsTTL),
	}, nil
}

// ConsumeSmsChallenge は SMS 認証コードを照合します。
// コードは照合前に削除されるため、同じコードで2回成功することはありません。
func (s *Service) ConsumeSmsChallenge(ctx context.Context, sessionID, answer string) (*Verified, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	if answer == "" {
		return nil, fmt.Errorf("%w: sms code is required", ErrInvalidInput)
	}

	ch, err := s.consume(ctx, Key{SessionID: sessionID, Kind: KindSMS}, answer, s.policy.SmsTTL, false)
	if err != nil {
		return nil, err
	}
	return &Verified{Mobile: ch.Subject}, nil
}

// consume はスロットからコードを取り出して（削除して）から照合します。
func (s *Service) consume(ctx context.Context, key Key, answer string, ttl time.Duration, foldCase bool) (*Challenge, error) {
	ch, err := s.backend.Take(ctx, key)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, ErrNoChallenge
	}
	if s.now().Sub(ch.CreatedAt) >= ttl {
		return nil, ErrNoChallenge
	}
	if !answersEqual(ch.Secret, answer, foldCase) {
		return nil, ErrMismatch
	}
	return ch, nil
}

func (s *Service) debugf(format string, args ...any) {
	if s.policy.DebugLogCodes {
		s.logger.Printf("[debug] "+format, args...)
	}
}

func detectContentType(data []byte) string {
	if mtype := mimetype.Detect(data); mtype != nil && mtype.String() != "application/octet-stream" {
		return mtype.String()
	}
	return http.DetectContentType(data)
}
