package account

import (
	"fmt"
	"regexp"
	"strings"
)

var mobilePattern = regexp.MustCompile(`^\+?[0-9]{6,15}$`)

// ValidateMobile は電話番号の形式を検証します。
func ValidateMobile(mobile string) error {
	if !mobilePattern.MatchString(mobile) {
		return ErrInvalidMobile
	}
	return nil
}

// PasswordPolicy はパスワードの長さと使用可能な文字を表します。
// 英字・数字と Punctuation に含まれる記号のみ使用できます。
type PasswordPolicy struct {
	MinLength   int
	MaxLength   int
	Punctuation string
}

// DefaultPasswordPolicy は 6〜20 文字のポリシーを返します。
func DefaultPasswordPolicy(punctuation string) PasswordPolicy {
	return PasswordPolicy{
		MinLength:   6,
		MaxLength:   20,
		Punctuation: punctuation,
	}
}

// Validate はパスワードがポリシーを満たすか検証します。
func (p PasswordPolicy) Validate(password string) error {
	if len(password) < p.MinLength || len(password) > p.MaxLength {
		return fmt.Errorf("%w: length must be between %d and %d", ErrWeakPassword, p.MinLength, p.MaxLength)
	}
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r < 0x80 && strings.ContainsRune(p.Punctuation, r):
		default:
			return fmt.Errorf("%w: character %q is not allowed", ErrWeakPassword, r)
		}
	}
	return nil
}
