// Package challenge は画像認証コードと SMS 認証コードの発行・照合を提供します。
//
// コードはセッションIDと種別の組ごとに高々1つだけ保持され、照合の成否にかかわらず
// 最初の読み出しで必ず削除されます（照合前に消費する）。
package challenge

import (
	"context"
	"errors"
	"time"
)

// Kind は認証コードの種別を表します。
type Kind string

const (
	KindImage Kind = "image"
	KindSMS   Kind = "sms"
)

var (
	// ErrNoChallenge はコードが存在しない、または期限切れであることを表します。
	ErrNoChallenge = errors.New("challenge: no live challenge")
	// ErrMismatch は提示されたコードが一致しないことを表します。
	ErrMismatch = errors.New("challenge: answer mismatch")
	// ErrDispatchFailure は SMS の送信に失敗したことを表します。
	ErrDispatchFailure = errors.New("challenge: dispatch failed")
	// ErrInvalidInput は入力値が欠けているか不正であることを表します。
	ErrInvalidInput = errors.New("challenge: invalid input")
)

// Challenge は発行済みの認証コード1件です。
// 消費済みのフラグは持ちません。Backend.Take でスロットから取り除かれたことが消費を表し、
// 取り除かれたコードが再び読まれることはありません。
type Challenge struct {
	Kind      Kind      `json:"kind"`
	Secret    string    `json:"secret"`
	Subject   string    `json:"subject,omitempty"` // SMS の送信先番号
	CreatedAt time.Time `json:"createdAt"`
}

// Key はコードを保持するスロットを表します。
type Key struct {
	SessionID string
	Kind      Kind
}

func (k Key) String() string {
	return string(k.Kind) + ":" + k.SessionID
}

// Backend はスロットごとのコードを保持します。
// 同じキーに対する操作はすべて原子的でなければなりません。
type Backend interface {
	// Put はスロットにコードを保存します（既存のコードは上書き）。
	Put(ctx context.Context, key Key, ch Challenge, ttl time.Duration) error
	// Take はコードを取り出して削除します。存在しない場合は nil を返します。
	Take(ctx context.Context, key Key) (*Challenge, error)
	// Discard はスロットがまだ secret を保持している場合に限り削除します。
	Discard(ctx context.Context, key Key, secret string) error
}

// Renderer は画像認証コードを生成します。
type Renderer interface {
	Render() (text string, image []byte, err error)
}

// Sender は SMS 認証コードを送信し、送信IDを返します。
type Sender interface {
	Send(ctx context.Context, mobile, code string) (string, error)
}

// Image は画像認証コードのレスポンスです。答えは含みません。
type Image struct {
	Data        []byte
	ContentType string
}

// Dispatch は SMS 送信の受付結果です。
type Dispatch struct {
	ID        string
	Mobile    string
	ExpiresAt time.Time
}

// Verified は SMS 認証コードの照合結果です。
type Verified struct {
	Mobile string
}
