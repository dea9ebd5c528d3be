package account

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
	msqlite "modernc.org/sqlite"

	"github.com/yourusername/news-portal/internal/config"
	"github.com/yourusername/news-portal/internal/storage"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "news.db"))
	if err != nil {
		t.Fatalf("OpenSQLite returned error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	svc := NewService(NewStore(db), DefaultPasswordPolicy(config.DefaultPasswordPunctuation))
	svc.cost = bcrypt.MinCost
	return svc
}

func TestPasswordPolicy(t *testing.T) {
	policy := DefaultPasswordPolicy(config.DefaultPasswordPunctuation)
	valid := []string{"abc123", "Pass_word/1", "!@#$%^&*,.?:-=+_/", strings.Repeat("a", 20)}
	for _, pw := range valid {
		if err := policy.Validate(pw); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", pw, err)
		}
	}

	invalid := []string{"", "abc12", strings.Repeat("a", 21), "pass word", "パスワード123", "abc123~", "abc123;"}
	for _, pw := range invalid {
		if err := policy.Validate(pw); !errors.Is(err, ErrWeakPassword) {
			t.Errorf("Validate(%q) = %v, want ErrWeakPassword", pw, err)
		}
	}

	custom := DefaultPasswordPolicy("~")
	if err := custom.Validate("abc123~"); err != nil {
		t.Errorf("custom punctuation rejected: %v", err)
	}
	if err := custom.Validate("abc123!"); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("punctuation outside the custom set accepted: %v", err)
	}
}

func TestValidateMobile(t *testing.T) {
	for _, m := range []string{"13800000000", "+8613800000000", "123456"} {
		if err := ValidateMobile(m); err != nil {
			t.Errorf("ValidateMobile(%q) = %v", m, err)
		}
	}
	for _, m := range []string{"", "12345", "138-0000-0000", "abc", "+", strings.Repeat("1", 16)} {
		if err := ValidateMobile(m); !errors.Is(err, ErrInvalidMobile) {
			t.Errorf("ValidateMobile(%q) = %v, want ErrInvalidMobile", m, err)
		}
	}
}

func TestRegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	user, err := svc.Register(ctx, "13800000000", "secret1")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if user.ID == 0 || user.NickName != "13800000000" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if user.PasswordHash == "secret1" {
		t.Fatal("password must be hashed")
	}

	if _, err := svc.Register(ctx, "13800000000", "another1"); !errors.Is(err, ErrMobileTaken) {
		t.Fatalf("duplicate Register err = %v, want ErrMobileTaken", err)
	}

	got, err := svc.Authenticate(ctx, "13800000000", "secret1")
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("Authenticate returned user %d, want %d", got.ID, user.ID)
	}
	if _, err := svc.Authenticate(ctx, "13800000000", "wrong-password"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("err = %v, want ErrWrongPassword", err)
	}
	if _, err := svc.Authenticate(ctx, "13900000000", "secret1"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	if _, err := svc.Register(ctx, "not-a-number", "secret1"); !errors.Is(err, ErrInvalidMobile) {
		t.Fatalf("err = %v, want ErrInvalidMobile", err)
	}
	if _, err := svc.Register(ctx, "13800000000", "short"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("err = %v, want ErrWeakPassword", err)
	}
}

func TestStoreCreateDetectsUniqueViolation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	if _, err := svc.store.Create(ctx, "13800000000", "hash"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.store.Create(ctx, "13800000000", "hash"); !errors.Is(err, ErrMobileTaken) {
		t.Fatalf("err = %v, want ErrMobileTaken", err)
	}
}

func TestIsUniqueViolationUsesDriverCode(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	insert := `INSERT INTO users (mobile, nick_name, password_hash, created_at, updated_at) VALUES (?, ?, ?, 0, 0)`
	if _, err := svc.store.db.ExecContext(ctx, insert, "13800000000", "n", "h"); err != nil {
		t.Fatal(err)
	}
	_, err := svc.store.db.ExecContext(ctx, insert, "13800000000", "n", "h")
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		t.Fatalf("err = %T %v, want *sqlite.Error", err, err)
	}
	if !isUniqueViolation(err) {
		t.Fatalf("isUniqueViolation(%v) = false", err)
	}

	for _, err := range []error{nil, errors.New("disk I/O error")} {
		if isUniqueViolation(err) {
			t.Fatalf("isUniqueViolation(%v) = true", err)
		}
	}
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	user, err := svc.Register(ctx, "13800000000", "secret1")
	if err != nil {
		t.Fatal(err)
	}

	updated, err := svc.UpdateProfile(ctx, user.ID, Profile{Signature: " hello ", NickName: "reader", Gender: 1})
	if err != nil {
		t.Fatalf("UpdateProfile returned error: %v", err)
	}
	if updated.Signature != "hello" || updated.NickName != "reader" || updated.Gender != 1 {
		t.Fatalf("unexpected profile: %+v", updated)
	}

	invalid := []Profile{
		{Signature: "", NickName: "reader", Gender: 0},
		{Signature: "hi", NickName: " ", Gender: 0},
		{Signature: "hi", NickName: "reader", Gender: 2},
		{Signature: "hi", NickName: strings.Repeat("n", 33), Gender: 0},
	}
	for _, p := range invalid {
		if _, err := svc.UpdateProfile(ctx, user.ID, p); !errors.Is(err, ErrInvalidProfile) {
			t.Errorf("UpdateProfile(%+v) = %v, want ErrInvalidProfile", p, err)
		}
	}

	if _, err := svc.UpdateProfile(ctx, user.ID+100, Profile{Signature: "hi", NickName: "x"}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}
