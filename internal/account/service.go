package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const maxNickNameLength = 32

// Service はユーザー登録・認証・プロフィール編集を行います。
type Service struct {
	store  *Store
	policy PasswordPolicy
	cost   int
}

// NewService は Service を作成します。
func NewService(store *Store, policy PasswordPolicy) *Service {
	return &Service{
		store:  store,
		policy: policy,
		cost:   bcrypt.DefaultCost,
	}
}

// Register はパスワードポリシーと電話番号の重複を確認してユーザーを作成します。
func (s *Service) Register(ctx context.Context, mobile, password string) (*User, error) {
	if err := ValidateMobile(mobile); err != nil {
		return nil, err
	}
	if err := s.policy.Validate(password); err != nil {
		return nil, err
	}

	exists, err := s.store.ExistsMobile(ctx, mobile)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrMobileTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	// 同時登録は UNIQUE 制約で ErrMobileTaken になる
	return s.store.Create(ctx, mobile, string(hash))
}

// Authenticate は電話番号とパスワードを検証します。
func (s *Service) Authenticate(ctx context.Context, mobile, password string) (*User, error) {
	user, err := s.store.GetByMobile(ctx, mobile)
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrWrongPassword
		}
		return nil, fmt.Errorf("compare password: %w", err)
	}
	return user, nil
}

// Profile はユーザー情報を取得します。
func (s *Service) Profile(ctx context.Context, id int64) (*User, error) {
	return s.store.GetByID(ctx, id)
}

// UpdateProfile は署名・ニックネーム・性別を更新します。すべて必須です。
func (s *Service) UpdateProfile(ctx context.Context, id int64, profile Profile) (*User, error) {
	profile.Signature = strings.TrimSpace(profile.Signature)
	profile.NickName = strings.TrimSpace(profile.NickName)
	if profile.Signature == "" || profile.NickName == "" {
		return nil, fmt.Errorf("%w: signature and nick name are required", ErrInvalidProfile)
	}
	if utf8.RuneCountInString(profile.NickName) > maxNickNameLength {
		return nil, fmt.Errorf("%w: nick name is too long", ErrInvalidProfile)
	}
	if profile.Gender != 0 && profile.Gender != 1 {
		return nil, fmt.Errorf("%w: gender must be 0 or 1", ErrInvalidProfile)
	}

	if err := s.store.UpdateProfile(ctx, id, profile); err != nil {
		return nil, err
	}
	return s.store.GetByID(ctx, id)
}
