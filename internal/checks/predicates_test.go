package checks

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"user@example.com", true},
		{"first.last+tag@sub.example.org", true},
		{"user@example", false},
		{"user@@example.com", false},
		{"user example@example.com", false},
		{"@example.com", false},
		{"user@example.c", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsValidEmail(tt.input), "IsValidEmail(%q)", tt.input)
	}
}

func TestIsValidPhone(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"(503) 555-7555", true},
		{"+1 503 555 7555", true},
		{"030-0074321", true},
		{"555-1234", false},
		{"12345678901234567", false},
		{"abcdefghij", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsValidPhone(tt.input), "IsValidPhone(%q)", tt.input)
	}
}

func TestIsValidDate(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"2016-07-04", true},
		{"7/4/2016", true},
		{"25/12/2016", true},
		{"2016-07-04 13:45:00", true},
		{"20160704", true},
		{"04.07.2016", true},
		{"2016", true},
		{"07/2016", true},
		{"2016-07", true},
		{"2016-13-45", false},
		{"2016-02-30", false},
		{"not a date", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsValidDate(tt.input), "IsValidDate(%q)", tt.input)
	}
}

func TestIsNumeric(t *testing.T) {
	assert.True(t, IsNumeric("42"))
	assert.True(t, IsNumeric("-3.14"))
	assert.True(t, IsNumeric(" 1e5 "))
	assert.False(t, IsNumeric("12abc"))
	assert.False(t, IsNumeric(""))
	assert.False(t, IsNumeric("0x1p-2"))
	assert.False(t, IsNumeric("-0X10"))
	assert.True(t, IsNumeric("0.5"))
}

func TestHasSpecialCharacters(t *testing.T) {
	assert.False(t, HasSpecialCharacters("Alfreds Futterkiste"))
	assert.False(t, HasSpecialCharacters("Obere Str. 57, (Berlin): a@b/c-d"))
	assert.False(t, HasSpecialCharacters("Café Señor"))
	assert.False(t, HasSpecialCharacters("a\x1cb\x1fc"))
	assert.False(t, HasSpecialCharacters("line\u0085break"))
	assert.True(t, HasSpecialCharacters("Rock & Roll"))
	assert.True(t, HasSpecialCharacters("50%"))
	assert.True(t, HasSpecialCharacters("#hash"))
}

func TestIsASCII(t *testing.T) {
	assert.True(t, IsASCII("plain text 123"))
	assert.False(t, IsASCII("Café"))
	assert.False(t, IsASCII("東京"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 20))
	assert.Equal(t, "abcde...", Truncate("abcdefgh", 5))
	assert.Equal(t, "äöü...", Truncate("äöüß", 3))
	assert.Equal(t, 4, Length("äöüß"))
}

func TestCodesPreview(t *testing.T) {
	assert.Equal(t, "A, B", CodesPreview([]string{"A", "B"}))
	assert.Equal(t, "A, B, C... (5 total)", CodesPreview([]string{"A", "B", "C", "D", "E"}))
}
