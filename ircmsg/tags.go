package ircmsg

import (
	"strings"

	"github.com/flrl/goat/ircerr"
)

// MaxTagsBytes is the hard cap on a tag prelude's serialized length
// (excluding the leading '@' and trailing space), per IRCv3
// message-tags 3.2 and spec.md §3/§6.
const MaxTagsBytes = 4094

// escaper/unescaper mirror the exactly five-entry escape alphabet from
// original_source/src/tags.c's _escape_value/_unescape_value.
// EscapeValue uses tagEscaper; UnescapeValue does not use tagUnescaper
// but decodes by hand, so that any other backslash-x decodes to x.
var tagEscaper = strings.NewReplacer(
	`;`, `\:`,
	` `, `\s`,
	`\`, `\\`,
	"\r", `\r`,
	"\n", `\n`,
)

var tagUnescaper = strings.NewReplacer(
	`\:`, ";",
	`\s`, " ",
	`\\`, `\`,
	`\r`, "\r",
	`\n`, "\n",
)

// EscapeValue converts a literal tag value into its wire form. NUL
// bytes are rejected (spec.md §9 open question (b)): tag values must
// not decode to an embedded NUL, so goat forbids them at escape time
// rather than leaving the behavior ambiguous.
func EscapeValue(value string) (string, error) {
	if strings.IndexByte(value, 0) >= 0 {
		return "", ircerr.New(ircerr.Inval)
	}
	return tagEscaper.Replace(value), nil
}

// UnescapeValue converts a wire-form tag value back into its literal
// form. Any "\x" pair not in the escape alphabet decodes to "x", per
// spec.md §6.
func UnescapeValue(wire string) string {
	var b strings.Builder
	b.Grow(len(wire))
	for i := 0; i < len(wire); i++ {
		if wire[i] != '\\' || i == len(wire)-1 {
			b.WriteByte(wire[i])
			continue
		}
		switch wire[i+1] {
		case ':':
			b.WriteByte(';')
		case 's':
			b.WriteByte(' ')
		case '\\':
			b.WriteByte('\\')
		case 'r':
			b.WriteByte('\r')
		case 'n':
			b.WriteByte('\n')
		default:
			b.WriteByte(wire[i+1])
		}
		i++
	}
	return b.String()
}

// TagMap is an ordered set of (key, optional value) pairs, preserving
// insertion order, with a serialized form capped at MaxTagsBytes. The
// zero value is an empty TagMap ready to use.
//
// Per spec.md §4.B, TagMap keeps its own serialized wire-form buffer
// (order-preserving across get/set/unset/reparse) rather than a plain
// map, so re-serializing a parsed TagMap is a byte-for-byte identity
// unless it has been mutated.
type TagMap struct {
	raw string // the "k=v;k2;k3=v3" buffer, never including '@' or trailing space
}

// ParsePrelude reads an optional "@tags " prelude from the front of
// line. If line doesn't begin with '@', it returns an empty TagMap,
// zero bytes consumed, and no error: the prelude is optional.
func ParsePrelude(line []byte) (TagMap, int, error) {
	if len(line) == 0 || line[0] != '@' {
		return TagMap{}, 0, nil
	}

	rest := line[1:]
	sp := indexByte(rest, ' ')
	var span []byte
	consumed := 0
	if sp < 0 {
		span = rest
		consumed = len(line)
	} else {
		span = rest[:sp]
		consumed = 1 + sp + 1 // '@' + span + ' '
	}

	if len(span) == 0 {
		return TagMap{}, 0, ircerr.New(ircerr.Inval)
	}
	if hasCRLF(span) {
		return TagMap{}, 0, ircerr.New(ircerr.Inval)
	}
	if len(span) > MaxTagsBytes {
		return TagMap{}, 0, ircerr.New(ircerr.MsgLen)
	}

	return TagMap{raw: string(span)}, consumed, nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

func hasCRLF(b []byte) bool {
	for _, c := range b {
		if c == '\r' || c == '\n' {
			return true
		}
	}
	return false
}

// Raw returns the serialized tag buffer (without the leading '@' or
// trailing space), exactly as it would be emitted on the wire.
func (t TagMap) Raw() string {
	return t.raw
}

// Empty reports whether the tag map carries no entries.
func (t TagMap) Empty() bool {
	return t.raw == ""
}

// Count returns the number of ';'-separated entries.
func (t TagMap) Count() int {
	if t.raw == "" {
		return 0
	}
	return strings.Count(t.raw, ";") + 1
}

// entrySpan locates the [start,end) byte range of key's entry
// (including any "=value") within raw, or ok == false if absent.
func entrySpan(raw, key string) (start, end int, ok bool) {
	pos := 0
	for pos < len(raw) {
		next := strings.IndexByte(raw[pos:], ';')
		var entry string
		entryEnd := len(raw)
		if next >= 0 {
			entry = raw[pos : pos+next]
			entryEnd = pos + next
		} else {
			entry = raw[pos:]
		}

		k := entry
		if eq := strings.IndexByte(entry, '='); eq >= 0 {
			k = entry[:eq]
		}
		if k == key {
			return pos, entryEnd, true
		}

		if next < 0 {
			break
		}
		pos = entryEnd + 1
	}
	return 0, 0, false
}

// HasTag reports whether key is present, with or without a value.
func (t TagMap) HasTag(key string) bool {
	_, _, ok := entrySpan(t.raw, key)
	return ok
}

// Get returns the unescaped value for key. hasValue is false both when
// the key is absent and when it is present without a value ("present
// without value" per spec.md §4.B); callers distinguish those cases
// with HasTag.
func (t TagMap) Get(key string) (value string, hasValue bool) {
	start, end, ok := entrySpan(t.raw, key)
	if !ok {
		return "", false
	}
	entry := t.raw[start:end]
	eq := strings.IndexByte(entry, '=')
	if eq < 0 {
		return "", false
	}
	return UnescapeValue(entry[eq+1:]), true
}

// Set adds or replaces key's value (a nil value means a valueless
// tag). If key already exists, it's removed first and the new entry is
// appended at the end — Set always moves a key to the tail of the
// order, per spec.md §4.B. Fails with MsgLen if the result would
// exceed MaxTagsBytes.
func (t *TagMap) Set(key string, value *string) error {
	if key == "" || strings.ContainsAny(key, ";= \t\r\n") {
		return ircerr.New(ircerr.Inval)
	}

	without := t.raw
	if start, end, ok := entrySpan(without, key); ok {
		without = spliceOut(without, start, end)
	}

	entry := key
	if value != nil {
		escaped, err := EscapeValue(*value)
		if err != nil {
			return err
		}
		entry = key + "=" + escaped
	}

	newRaw := entry
	if without != "" {
		newRaw = without + ";" + entry
	}

	if len(newRaw) > MaxTagsBytes {
		return ircerr.New(ircerr.MsgLen)
	}

	t.raw = newRaw
	return nil
}

// Unset removes key's entry, along with a single bordering separator.
// Idempotent: unsetting a missing key is a no-op.
func (t *TagMap) Unset(key string) {
	start, end, ok := entrySpan(t.raw, key)
	if !ok {
		return
	}
	t.raw = spliceOut(t.raw, start, end)
}

// spliceOut removes raw[start:end] along with one bordering ';' (the
// one that follows, or else the one that precedes, so removing any
// single entry always leaves a well-formed ';'-joined list).
func spliceOut(raw string, start, end int) string {
	if end < len(raw) && raw[end] == ';' {
		end++
	} else if start > 0 && raw[start-1] == ';' {
		start--
	}
	return raw[:start] + raw[end:]
}
