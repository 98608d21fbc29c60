package controller

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/zapleads/zapleads/internal/identity"
)

// translateOption maps a bare numeric reply onto the label of the last set of
// options offered to that identity, so "2" and the full text of option 2 drive
// the engine identically. Anything that is not a clean in-bounds number passes
// through unchanged.
func (c *Controller) translateOption(key identity.Key, text string) string {
	n, ok := extractOptionNumber(text)
	if !ok {
		return text
	}
	labels := c.buttons.Get(key)
	if n < 1 || n > len(labels) {
		return text
	}
	return labels[n-1]
}

// extractOptionNumber parses a short reply as an option index, tolerating the
// emoji and punctuation people wrap digits in ("2️⃣", "(1)", "1."). Replies
// containing any letter are never treated as numeric.
func extractOptionNumber(text string) (int, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0, false
	}
	var digits strings.Builder
	for _, r := range trimmed {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case unicode.IsLetter(r):
			return 0, false
		}
	}
	s := digits.String()
	if s == "" || len(s) > 2 {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
