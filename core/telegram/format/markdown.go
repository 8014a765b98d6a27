package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	// MarkdownV1 denotes Telegram markdown version 1.
	MarkdownV1 = 1
	// MarkdownV2 denotes Telegram markdown version 2.
	MarkdownV2 = 2
)

var (
	mdV1Re = regexp.MustCompile("([_*`\\[])")
	mdV2Re = regexp.MustCompile("([_*\\[\\]()~`>#+\\-=|{}.!\\\\])")
)

// EscapeMarkdown escapes special characters for MarkdownV1 or V2.
func EscapeMarkdown(text string, version int) (string, error) {
	switch version {
	case MarkdownV1:
		return mdV1Re.ReplaceAllString(text, `\$1`), nil
	case MarkdownV2:
		return mdV2Re.ReplaceAllString(text, `\$1`), nil
	}
	return "", fmt.Errorf("unsupported markdown version: %d", version)
}

// MD escapes text for Telegram Markdown (v1), the parse mode used by SendMD.
func MD(text string) string {
	s, _ := EscapeMarkdown(text, MarkdownV1)
	return s
}

// Rupiah renders an amount as "Rp 12.500".
func Rupiah(amount int64) string {
	return "Rp " + Grouped(amount)
}

// Grouped renders n with dot thousand separators, e.g. "1.250.000".
func Grouped(n int64) string {
	neg := n < 0
	if neg {
		n = -n
	}
	digits := strconv.FormatInt(n, 10)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return b.String()
}
