package challenge

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"errors"
	"math/big"
	"regexp"
	"strings"
)

const smsCodeDigits = 6

var smsCodeSpace = big.NewInt(1_000_000)

// NewSMSCode は 000000〜999999 から一様に選んだ6桁のコードを返します。
func NewSMSCode() (string, error) {
	n, err := rand.Int(rand.Reader, smsCodeSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", smsCodeDigits, n.Int64()), nil
}

var mobilePattern = regexp.MustCompile(`^\+?[0-9]{6,15}$`)

// ValidMobile は先頭の + を除いて6〜15桁の数字かどうかを検証します。
func ValidMobile(mobile string) error {
	if !mobilePattern.MatchString(mobile) {
		return errors.New("malformed mobile number")
	}
	return nil
}

func answersEqual(expected, presented string, foldCase bool) bool {
	if foldCase {
		expected = strings.ToLower(expected)
		presented = strings.ToLower(presented)
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}
