package ircmsg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrivmsgWithPrefixAndTrailing(t *testing.T) {
	m, err := Parse([]byte(":anne PRIVMSG #goat :hello there\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "anne", m.Prefix)
	assert.True(t, m.HasCommand)
	assert.Equal(t, PRIVMSG, m.CommandID)
	assert.Equal(t, []string{"#goat", "hello there"}, m.Params)

	out, err := m.Serialize()
	require.NoError(t, err)
	assert.Equal(t, ":anne PRIVMSG #goat :hello there\r\n", string(out))
}

func TestParsePingNoParams(t *testing.T) {
	m, err := Parse([]byte("PING\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "", m.Prefix)
	assert.Equal(t, PING, m.CommandID)
	assert.Empty(t, m.Params)
}

func TestParseWithTags(t *testing.T) {
	m, err := Parse([]byte("@id=234AB;rose :dan!d@local.host PRIVMSG #chan :Hey\r\n"))
	require.NoError(t, err)

	v, has := m.Tags.Get("id")
	require.True(t, has)
	assert.Equal(t, "234AB", v)
	assert.True(t, m.Tags.HasTag("rose"))
	_, has = m.Tags.Get("rose")
	assert.False(t, has)

	assert.Equal(t, "dan!d@local.host", m.Prefix)
	assert.Equal(t, PRIVMSG, m.CommandID)
	assert.Equal(t, []string{"#chan", "Hey"}, m.Params)
}

func TestNewRejectsSpaceInNonFinalParam(t *testing.T) {
	_, err := New("", "PRIVMSG", []string{"p1", "p 2", "p3"})
	require.Error(t, err)
}

func TestNewAllowsSpaceInFinalParam(t *testing.T) {
	m, err := New("", "PRIVMSG", []string{"#chan", "hello there"})
	require.NoError(t, err)
	out, err := m.Serialize()
	require.NoError(t, err)
	assert.Equal(t, "PRIVMSG #chan :hello there\r\n", string(out))
}

func TestNewTruncatesParams(t *testing.T) {
	params := make([]string, 20)
	for i := range params {
		params[i] = "x"
	}
	m, err := New("", "PRIVMSG", params)
	require.NoError(t, err)
	assert.Len(t, m.Params, MaxParams)
}

func TestNewRejectsOverlongBody(t *testing.T) {
	big := make([]byte, 600)
	for i := range big {
		big[i] = 'a'
	}
	_, err := New("", "PRIVMSG", []string{string(big)})
	require.Error(t, err)
}

func TestNewRejectsCRLFInCommand(t *testing.T) {
	_, err := New("", "PRI\r\nVMSG", nil)
	require.Error(t, err)
}

func TestNewUnrecognisedCommandPreserved(t *testing.T) {
	m, err := New("", "FROBNICATE", []string{"a"})
	require.NoError(t, err)
	assert.False(t, m.HasCommand)
	assert.Equal(t, "FROBNICATE", m.CommandText)
}

func TestRoundTripArbitraryLines(t *testing.T) {
	lines := []string{
		":anne PRIVMSG #goat :hello there\r\n",
		"PING\r\n",
		"CAP LS 302\r\n",
		":irc.example.net 001 nick :Welcome\r\n",
	}
	for _, l := range lines {
		m, err := Parse([]byte(l))
		require.NoError(t, err)
		out, err := m.Serialize()
		require.NoError(t, err)
		assert.Equal(t, l, string(out))
	}
}

func TestParseEmptyCommandFails(t *testing.T) {
	_, err := Parse([]byte("\r\n"))
	require.Error(t, err)
}

func TestParseMiddleParamNeverStartsWithColonExceptLast(t *testing.T) {
	m, err := Parse([]byte("MODE #chan +o nick\r\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"#chan", "+o", "nick"}, m.Params)
}

func TestCloneIsIndependent(t *testing.T) {
	m, err := New("", "PRIVMSG", []string{"a", "b"})
	require.NoError(t, err)
	c := m.Clone()
	c.Params[0] = "changed"
	assert.Equal(t, "a", m.Params[0])
}

func TestMessageFifteenthParamWithoutColon(t *testing.T) {
	// 14 middles then a 15th with no leading colon and no space:
	// the 15th still becomes the final param per spec.md §4.C step 5.
	params := []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8", "p9", "p10", "p11", "p12", "p13", "p14", "p15"}
	line := "CMD"
	for _, p := range params {
		line += " " + p
	}
	m, err := Parse([]byte(line))
	require.NoError(t, err)
	require.Len(t, m.Params, 15)
	assert.Equal(t, "p15", m.Params[14])
}
