// Package captcha は画像認証コードの画像を生成します。
package captcha

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dchest/captcha"
)

const (
	MinLength = 4
	MaxLength = 6
)

// DigitRenderer は数字の歪み画像（PNG）を生成します。
type DigitRenderer struct {
	length int
	width  int
	height int
}

// NewDigitRenderer は DigitRenderer を作成します。
// width, height が0以下の場合は標準サイズを使います。
func NewDigitRenderer(length, width, height int) (*DigitRenderer, error) {
	if length < MinLength || length > MaxLength {
		return nil, fmt.Errorf("captcha length must be between %d and %d", MinLength, MaxLength)
	}
	if width <= 0 {
		width = captcha.StdWidth
	}
	if height <= 0 {
		height = captcha.StdHeight
	}
	return &DigitRenderer{
		length: length,
		width:  width,
		height: height,
	}, nil
}

// Render は答えの文字列とPNG画像を返します。
func (r *DigitRenderer) Render() (string, []byte, error) {
	digits := captcha.RandomDigits(r.length)

	var text strings.Builder
	text.Grow(len(digits))
	for _, d := range digits {
		text.WriteByte('0' + d)
	}

	var buf bytes.Buffer
	img := captcha.NewImage(text.String(), digits, r.width, r.height)
	if _, err := img.WriteTo(&buf); err != nil {
		return "", nil, fmt.Errorf("failed to encode captcha image: %w", err)
	}
	return text.String(), buf.Bytes(), nil
}
