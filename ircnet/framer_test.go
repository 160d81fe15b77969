package ircnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestFramerSplitAcrossReads reproduces spec.md §8 scenario 6: "ABC"
// then "DEF\r\nGHI\r" then "\nJ" yields "ABCDEF\r\n", "GHI\r\n", and
// leaves "J" pending.
func TestFramerSplitAcrossReads(t *testing.T) {
	var f Framer

	f.Feed([]byte("ABC"))
	f.EndRead()

	f.Feed([]byte("DEF\r\nGHI\r"))
	f.EndRead()

	f.Feed([]byte("\nJ"))
	f.EndRead()

	line, ok := f.PopLine()
	assert.True(t, ok)
	assert.Equal(t, "ABCDEF\r\n", string(line))

	line, ok = f.PopLine()
	assert.True(t, ok)
	assert.Equal(t, "GHI\r\n", string(line))

	_, ok = f.PopLine()
	assert.False(t, ok, "the trailing \"J\" is an incomplete tail, never poppable")
	assert.True(t, f.Pending())
}

// TestFramerConsecutiveNoEOLReadsBothSurvive guards against the bug
// documented in original_source's _conn_recv_data: two reads in a row
// that each lack a newline must both contribute to the eventual line,
// not just the most recent one.
func TestFramerConsecutiveNoEOLReadsBothSurvive(t *testing.T) {
	var f Framer

	f.Feed([]byte("first-"))
	f.EndRead()
	f.Feed([]byte("second-"))
	f.EndRead()
	f.Feed([]byte("third\r\n"))
	f.EndRead()

	line, ok := f.PopLine()
	assert.True(t, ok)
	assert.Equal(t, "first-second-third\r\n", string(line))
}

func TestFramerWholeLineInOneFeed(t *testing.T) {
	var f Framer
	f.Feed([]byte("PING\r\nPONG\r\n"))

	line, ok := f.PopLine()
	assert.True(t, ok)
	assert.Equal(t, "PING\r\n", string(line))

	line, ok = f.PopLine()
	assert.True(t, ok)
	assert.Equal(t, "PONG\r\n", string(line))

	_, ok = f.PopLine()
	assert.False(t, ok)
}

func TestFramerEmptyFeedIsNoop(t *testing.T) {
	var f Framer
	f.Feed(nil)
	f.EndRead()
	assert.False(t, f.Pending())
	_, ok := f.PopLine()
	assert.False(t, ok)
}

// TestFramerSplitAtArbitraryPositions checks the "framing completeness"
// universal property from spec.md §8: splitting a byte stream at any
// position and feeding it in pieces yields the same lines as feeding
// it whole.
func TestFramerSplitAtArbitraryPositions(t *testing.T) {
	whole := "NICK foo\r\nUSER a 0 * :real name\r\nJOIN #chan\r\n"

	for split := 1; split < len(whole); split++ {
		var f Framer
		f.Feed([]byte(whole[:split]))
		f.EndRead()
		f.Feed([]byte(whole[split:]))
		f.EndRead()

		var got []string
		for {
			line, ok := f.PopLine()
			if !ok {
				break
			}
			got = append(got, string(line))
		}
		assert.Equal(t, []string{
			"NICK foo\r\n",
			"USER a 0 * :real name\r\n",
			"JOIN #chan\r\n",
		}, got, "split at %d", split)
	}
}
