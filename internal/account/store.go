package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const userColumns = `id, mobile, nick_name, password_hash, avatar_url, signature, gender, created_at, updated_at`

// Store は users テーブルへのアクセスを提供します。
type Store struct {
	db *sql.DB
}

// NewStore は Store を作成します。db は storage.OpenSQLite で開いたものを渡します。
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create はユーザーを作成します。ニックネームの初期値は電話番号です。
func (s *Store) Create(ctx context.Context, mobile, passwordHash string) (*User, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (mobile, nick_name, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		mobile, mobile, passwordHash, now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrMobileTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return s.GetByID(ctx, id)
}

// ExistsMobile は電話番号が登録済みかどうかを返します。
func (s *Store) ExistsMobile(ctx context.Context, mobile string) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE mobile = ?`, mobile).Scan(&count); err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	return count > 0, nil
}

// GetByID は ID でユーザーを取得します。
func (s *Store) GetByID(ctx context.Context, id int64) (*User, error) {
	return s.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GetByMobile は電話番号でユーザーを取得します。
func (s *Store) GetByMobile(ctx context.Context, mobile string) (*User, error) {
	return s.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE mobile = ?`, mobile)
}

// UpdateProfile は基本情報を更新します。
func (s *Store) UpdateProfile(ctx context.Context, id int64, profile Profile) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET signature = ?, nick_name = ?, gender = ?, updated_at = ? WHERE id = ?`,
		profile.Signature, profile.NickName, profile.Gender, time.Now().UTC().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *Store) getOne(ctx context.Context, query string, arg any) (*User, error) {
	var (
		u         User
		createdAt int64
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Mobile, &u.NickName, &u.PasswordHash, &u.AvatarURL,
		&u.Signature, &u.Gender, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	u.CreatedAt = time.UnixMilli(createdAt).UTC()
	u.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &u, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	// ドライバーがエラーを包み直した場合のフォールバック
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
