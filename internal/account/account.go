// Package account はユーザー登録・ログイン・プロフィール編集を提供します。
package account

import (
	"errors"
	"time"
)

var (
	ErrUserNotFound   = errors.New("account: user not found")
	ErrMobileTaken    = errors.New("account: mobile already registered")
	ErrWrongPassword  = errors.New("account: wrong password")
	ErrWeakPassword   = errors.New("account: password does not satisfy policy")
	ErrInvalidMobile  = errors.New("account: invalid mobile number")
	ErrInvalidProfile = errors.New("account: invalid profile")
)

// User は登録済みユーザーです。
type User struct {
	ID           int64
	Mobile       string
	NickName     string
	PasswordHash string
	AvatarURL    string
	Signature    string
	Gender       int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile はユーザーが編集できる基本情報です。
type Profile struct {
	Signature string
	NickName  string
	Gender    int
}
