package ircmsg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeUnescapeInvertibility(t *testing.T) {
	cases := []string{
		"plain",
		"a;b",
		"a b",
		"a\\b",
		"a\rb",
		"a\nb",
		"mix;\\ \r\n done",
	}
	for _, s := range cases {
		escaped, err := EscapeValue(s)
		require.NoError(t, err)
		assert.Equal(t, s, UnescapeValue(escaped), "round trip of %q", s)
	}
}

func TestEscapeValueRejectsNUL(t *testing.T) {
	_, err := EscapeValue("a\x00b")
	require.Error(t, err)
}

func TestUnescapeValueUnknownEscape(t *testing.T) {
	// any other "\x" decodes to "x", per spec.md §6.
	assert.Equal(t, "x", UnescapeValue(`\x`))
}

func TestTagMapSetGetUnset(t *testing.T) {
	var tm TagMap
	v := "a;b\\c\r"
	require.NoError(t, tm.Set("k", &v))

	got, has := tm.Get("k")
	require.True(t, has)
	assert.Equal(t, v, got)
	assert.Equal(t, `k=a\:b\\c\r`, tm.Raw())

	tm.Unset("k")
	assert.False(t, tm.HasTag("k"))
}

func TestTagMapValuelessTag(t *testing.T) {
	var tm TagMap
	require.NoError(t, tm.Set("rose", nil))
	assert.True(t, tm.HasTag("rose"))
	_, has := tm.Get("rose")
	assert.False(t, has, "valueless tag should report hasValue=false")
}

func TestTagMapSetMovesKeyToEnd(t *testing.T) {
	var tm TagMap
	a, b := "1", "2"
	require.NoError(t, tm.Set("a", &a))
	require.NoError(t, tm.Set("b", &b))
	c := "3"
	require.NoError(t, tm.Set("a", &c))
	assert.Equal(t, "b=2;a=3", tm.Raw())
}

func TestTagMapOrderPreservedAcrossOps(t *testing.T) {
	var tm TagMap
	require.NoError(t, tm.Set("one", nil))
	require.NoError(t, tm.Set("two", nil))
	require.NoError(t, tm.Set("three", nil))
	tm.Unset("two")
	assert.Equal(t, "one;three", tm.Raw())
	assert.Equal(t, 2, tm.Count())
}

func TestTagMapSetExceedsMax(t *testing.T) {
	var tm TagMap
	big := make([]byte, MaxTagsBytes)
	for i := range big {
		big[i] = 'a'
	}
	v := string(big)
	err := tm.Set("k", &v)
	require.Error(t, err)
}

func TestParsePreludeBasic(t *testing.T) {
	tm, n, err := ParsePrelude([]byte("@id=234AB;rose :rest"))
	require.NoError(t, err)
	assert.Equal(t, len("@id=234AB;rose "), n)

	v, has := tm.Get("id")
	require.True(t, has)
	assert.Equal(t, "234AB", v)
	assert.True(t, tm.HasTag("rose"))
	_, has = tm.Get("rose")
	assert.False(t, has)
}

func TestParsePreludeAbsent(t *testing.T) {
	tm, n, err := ParsePrelude([]byte(":prefix COMMAND"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.True(t, tm.Empty())
}

func TestParsePreludeEmptyRejected(t *testing.T) {
	_, _, err := ParsePrelude([]byte("@ :prefix COMMAND"))
	require.Error(t, err)
}

func TestParsePreludeTooLong(t *testing.T) {
	big := make([]byte, MaxTagsBytes+1)
	for i := range big {
		big[i] = 'a'
	}
	line := append([]byte("@"), big...)
	line = append(line, ' ')
	_, _, err := ParsePrelude(line)
	require.Error(t, err)
}
