package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はユーザーが入力したメモ等の自由記述からHTMLを除去する。
// bluemondayのStrictPolicyで全タグを除去した後、エスケープされた実体参照を元に戻す。
type TextSanitizer struct {
	policy    *bluemonday.Policy
	maxLength int
}

// NewTextSanitizer はTextSanitizerを生成する。
// maxLengthが0以下の場合は長さを制限しない。
func NewTextSanitizer(maxLength int) *TextSanitizer {
	return &TextSanitizer{
		policy:    bluemonday.StrictPolicy(),
		maxLength: maxLength,
	}
}

// Sanitize はタグを除去し、前後の空白を取り除いたプレーンテキストを返す。
// maxLength（文字数）を超える場合は切り詰める。
func (s *TextSanitizer) Sanitize(input string) string {
	if input == "" {
		return ""
	}

	cleaned := html.UnescapeString(s.policy.Sanitize(input))
	cleaned = strings.TrimSpace(cleaned)

	if s.maxLength > 0 {
		if runes := []rune(cleaned); len(runes) > s.maxLength {
			cleaned = strings.TrimSpace(string(runes[:s.maxLength]))
		}
	}
	return cleaned
}
