package checks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseKind(t *testing.T) {
	k, ok := ParseKind("email_check")
	require.True(t, ok)
	assert.Equal(t, EmailCheck, k)

	k, ok = ParseKind(" Phone_Check ")
	require.True(t, ok)
	assert.Equal(t, PhoneNumberCheck, k)

	_, ok = ParseKind("spelling_check")
	assert.False(t, ok)
}

func TestKindsCoverCatalog(t *testing.T) {
	kinds := Kinds()
	require.Len(t, kinds, 13)
	assert.Equal(t, NullCheck, kinds[0])
	assert.Equal(t, LanguageCheck, kinds[len(kinds)-1])

	for _, k := range kinds {
		spec, ok := Lookup(k)
		require.True(t, ok, k.String())
		assert.Equal(t, k, spec.Kind)
		assert.NotEmpty(t, spec.Severity)

		parsed, ok := ParseKind(k.String())
		require.True(t, ok)
		assert.Equal(t, k, parsed)
	}

	_, ok := Lookup(kindCount)
	assert.False(t, ok)
	assert.Equal(t, "unknown_check", Kind(99).String())
}

func TestSetKeepsEvaluationOrder(t *testing.T) {
	s := NewSet(LanguageCheck, NullCheck, DuplicateCheck, NullCheck)

	assert.Equal(t, 3, s.Len())
	assert.True(t, s.Has(DuplicateCheck))
	assert.False(t, s.Has(EmailCheck))
	assert.False(t, s.Has(Kind(-1)))
	assert.Equal(t, []Kind{NullCheck, DuplicateCheck, LanguageCheck}, s.Kinds())
	assert.Equal(t, []string{"null_check", "duplicate_check", "language_check"}, s.Names())
}

func TestSetYAML(t *testing.T) {
	out, err := yaml.Marshal(NewSet(BlankCheck, EmailCheck))
	require.NoError(t, err)

	var s Set
	require.NoError(t, yaml.Unmarshal(out, &s))
	assert.Equal(t, NewSet(BlankCheck, EmailCheck), s)
}

func TestDefaultLimits(t *testing.T) {
	l := DefaultLimits()
	assert.Equal(t, 20000, l.MaxLength)
	assert.Equal(t, 1, l.MinLength)
	assert.Equal(t, int64(20000), l.MaxRowCount)
}
