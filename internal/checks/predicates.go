package checks

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	emailPattern   = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phonePattern   = regexp.MustCompile(`^\+?1?[0-9]{9,14}$`)
	nonDigit       = regexp.MustCompile(`[^0-9]`)
	specialPattern = regexp.MustCompile(`[^\p{L}\p{N}_\s\v\p{Z}\x1c-\x1f\x{85}\-.,@():/]`)
)

// dateLayouts are tried in order; single-digit month and day are accepted
// wherever the layout has a separator.
var dateLayouts = []string{
	"2006-1-2",
	"1/2/2006",
	"2/1/2006",
	"2006-1-2 15:4:5",
	"1-2-2006",
	"2-1-2006",
	"20060102",
	"2.1.2006",
	"2006",
	"1/2006",
	"2006-1",
}

// IsValidEmail reports whether s looks like a deliverable address
func IsValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// IsValidPhone strips everything but digits and accepts 10 to 15 of them
func IsValidPhone(s string) bool {
	digits := nonDigit.ReplaceAllString(s, "")
	if len(digits) < 10 || len(digits) > 15 {
		return false
	}
	return phonePattern.MatchString(digits)
}

// IsValidDate reports whether s parses as a calendar date in one of the
// supported layouts
func IsValidDate(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// IsNumeric reports whether s parses as a floating point number
func IsNumeric(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	// ParseFloat also reads hex floats
	if digits := strings.TrimLeft(s, "+-"); len(digits) > 1 && digits[0] == '0' && (digits[1] == 'x' || digits[1] == 'X') {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// HasSpecialCharacters reports whether s contains a character outside word
// characters, whitespace and - . , @ ( ) : /
func HasSpecialCharacters(s string) bool {
	return specialPattern.MatchString(s)
}

// IsASCII reports whether every character of s is below 128
func IsASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// Length counts characters, not bytes
func Length(s string) int {
	return utf8.RuneCountInString(s)
}

// Truncate shortens s to n characters and appends an ellipsis when it was cut
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
