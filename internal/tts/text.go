package tts

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/iabetor/accentts/internal/core"
)

// DefaultMaxRunes 是单次合成允许的最大字符数。
const DefaultMaxRunes = 5000

// ValidateText 检查输入文本：必须是合法 UTF-8、去除空白后非空、不超过 maxRunes 个字符。
// maxRunes <= 0 时使用 DefaultMaxRunes。
func ValidateText(text string, maxRunes int) error {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxRunes
	}
	if !utf8.ValidString(text) {
		return core.E(core.KindTextValidation, "validate", errors.New("文本不是合法的 UTF-8"))
	}
	if strings.TrimSpace(text) == "" {
		return core.E(core.KindTextValidation, "validate", errors.New("文本为空"))
	}
	if n := utf8.RuneCountInString(text); n > maxRunes {
		return core.E(core.KindTextValidation, "validate", fmt.Errorf("文本过长: %d 个字符，上限 %d", n, maxRunes))
	}
	return nil
}

// NormalizeText 做 NFC 规范化（分解的字母组合成音节），去掉控制字符，合并连续空白。
func NormalizeText(text string) string {
	text = norm.NFC.String(text)

	var b strings.Builder
	b.Grow(len(text))
	space := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsControl(r), r == '\ufeff':
		default:
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		}
	}
	return b.String()
}
