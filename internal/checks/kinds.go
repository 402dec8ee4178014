// Package checks holds the catalog of field validators. Every check kind is
// bound to one function; the set of kinds is fixed and evaluated in the order
// of the Kind constants.
package checks

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind identifies one check of the catalog
type Kind int

const (
	NullCheck Kind = iota
	BlankCheck
	EmailCheck
	PhoneNumberCheck
	DuplicateCheck
	NumericCheck
	DateCheck
	SystemCodesCheck
	SpecialCharactersCheck
	MaxValueCheck
	MinValueCheck
	MaxCountCheck
	LanguageCheck

	kindCount
)

var kindNames = [kindCount]string{
	NullCheck:              "null_check",
	BlankCheck:             "blank_check",
	EmailCheck:             "email_check",
	PhoneNumberCheck:       "phone_number_check",
	DuplicateCheck:         "duplicate_check",
	NumericCheck:           "numeric_check",
	DateCheck:              "date_check",
	SystemCodesCheck:       "system_codes_check",
	SpecialCharactersCheck: "special_characters_check",
	MaxValueCheck:          "max_value_check",
	MinValueCheck:          "min_value_check",
	MaxCountCheck:          "max_count_check",
	LanguageCheck:          "language_check",
}

// aliases accepted in configuration headers
var kindAliases = map[string]Kind{
	"phone_check": PhoneNumberCheck,
}

// String returns the identifier used in configuration and findings
func (k Kind) String() string {
	if k < 0 || k >= kindCount {
		return "unknown_check"
	}
	return kindNames[k]
}

// MarshalText implements encoding.TextMarshaler
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParseKind resolves a check identifier (case-insensitive)
func ParseKind(name string) (Kind, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range kindNames {
		if n == name {
			return Kind(k), true
		}
	}
	k, ok := kindAliases[name]
	return k, ok
}

// Kinds returns every check kind in evaluation order
func Kinds() []Kind {
	kinds := make([]Kind, kindCount)
	for i := range kinds {
		kinds[i] = Kind(i)
	}
	return kinds
}

// Set is a set of enabled check kinds
type Set uint32

// NewSet builds a set from the given kinds
func NewSet(kinds ...Kind) Set {
	var s Set
	for _, k := range kinds {
		s = s.With(k)
	}
	return s
}

// With returns the set with k added
func (s Set) With(k Kind) Set {
	if k < 0 || k >= kindCount {
		return s
	}
	return s | 1<<uint(k)
}

// Has reports whether k is enabled
func (s Set) Has(k Kind) bool {
	return k >= 0 && k < kindCount && s&(1<<uint(k)) != 0
}

// Kinds returns the enabled kinds in evaluation order
func (s Set) Kinds() []Kind {
	var kinds []Kind
	for k := Kind(0); k < kindCount; k++ {
		if s.Has(k) {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Names returns the identifiers of the enabled kinds in evaluation order
func (s Set) Names() []string {
	var names []string
	for _, k := range s.Kinds() {
		names = append(names, k.String())
	}
	return names
}

// Len returns the number of enabled kinds
func (s Set) Len() int {
	return len(s.Kinds())
}

// MarshalYAML renders the set as a list of identifiers
func (s Set) MarshalYAML() (interface{}, error) {
	return s.Names(), nil
}

// UnmarshalYAML reads a list of identifiers
func (s *Set) UnmarshalYAML(node *yaml.Node) error {
	var names []string
	if err := node.Decode(&names); err != nil {
		return err
	}
	*s = 0
	for _, name := range names {
		if k, ok := ParseKind(name); ok {
			*s = s.With(k)
		}
	}
	return nil
}

// Limits are the thresholds used by the length and row-count checks
type Limits struct {
	MaxLength   int   `json:"max_length" yaml:"max_length"`
	MinLength   int   `json:"min_length" yaml:"min_length"`
	MaxRowCount int64 `json:"max_row_count" yaml:"max_row_count"`
}

// DefaultLimits returns the stock thresholds
func DefaultLimits() Limits {
	return Limits{
		MaxLength:   20000,
		MinLength:   1,
		MaxRowCount: 20000,
	}
}
