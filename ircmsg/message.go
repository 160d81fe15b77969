package ircmsg

import (
	"strings"

	"github.com/flrl/goat/ircerr"
)

// MaxParams is the RFC 2812 limit on the number of parameters a
// message may carry.
const MaxParams = 15

// MaxBodyBytes is the serialized length limit for everything after an
// optional tag prelude, up to and including the trailing CR-LF.
const MaxBodyBytes = 512

// Message is an immutable-after-construction IRC line: an optional tag
// map, optional prefix, a command (by CommandID when recognised, and
// always by its original mnemonic text), and 0-15 parameters.
//
// Per spec.md §3, Message carries both CommandID and CommandText so
// that an unrecognised command is never an error, only information the
// caller may act on.
type Message struct {
	Tags        TagMap
	Prefix      string
	CommandID   CommandID
	HasCommand  bool // true iff CommandID is a recognised command
	CommandText string
	Params      []string
}

// New constructs a Message from a prefix, command mnemonic, and
// parameters, validating each field per spec.md §4.C. A non-final
// parameter containing a space fails with Inval, as does a prefix or
// command containing CR/LF/space. Params beyond MaxParams are
// truncated, not rejected (the 15th kept parameter absorbs the rest of
// the caller's slice only if the caller does that truncation
// themselves — New truncates the params slice, it does not concatenate
// overflow into the last kept parameter).
func New(prefix, command string, params []string) (*Message, error) {
	if command == "" || hasCRLFSpace(command) {
		return nil, ircerr.New(ircerr.Inval)
	}
	if prefix != "" && hasCRLFSpace(prefix) {
		return nil, ircerr.New(ircerr.Inval)
	}

	if len(params) > MaxParams {
		params = params[:MaxParams]
	}

	for i, p := range params {
		if strings.ContainsAny(p, "\r\n") {
			return nil, ircerr.New(ircerr.Inval)
		}
		if i < len(params)-1 && (strings.ContainsRune(p, ' ') || strings.HasPrefix(p, ":")) {
			return nil, ircerr.New(ircerr.Inval)
		}
	}

	m := &Message{
		Prefix:      prefix,
		CommandText: command,
		Params:      append([]string(nil), params...),
	}
	if id, ok := LookupByMnemonic(command); ok {
		m.CommandID = id
		m.HasCommand = true
		m.CommandText = MnemonicOf(id)
	}

	if bodyLen(m) > MaxBodyBytes-2 {
		return nil, ircerr.New(ircerr.MsgLen)
	}

	return m, nil
}

func hasCRLFSpace(s string) bool {
	return strings.ContainsAny(s, "\r\n ")
}

// bodyLen computes the serialized body length (excluding tags,
// excluding CR-LF) that Serialize would produce, used to enforce the
// 510-byte cap at construction and enqueue time.
func bodyLen(m *Message) int {
	n := 0
	if m.Prefix != "" {
		n += 1 + len(m.Prefix) + 1 // ':' prefix ' '
	}
	n += len(m.CommandText)
	for i, p := range m.Params {
		n += 1 // separating space
		if i == len(m.Params)-1 && needsColon(p) {
			n++
		}
		n += len(p)
	}
	return n
}

func needsColon(p string) bool {
	return p == "" || strings.ContainsRune(p, ' ') || strings.HasPrefix(p, ":")
}

// Serialize renders m to wire bytes: "[@tags ][:prefix ]command[
// params...][ :last]\r\n".
func (m *Message) Serialize() ([]byte, error) {
	if bodyLen(m) > MaxBodyBytes-2 {
		return nil, ircerr.New(ircerr.MsgLen)
	}

	var b strings.Builder
	if !m.Tags.Empty() {
		b.WriteByte('@')
		b.WriteString(m.Tags.Raw())
		b.WriteByte(' ')
	}
	if m.Prefix != "" {
		b.WriteByte(':')
		b.WriteString(m.Prefix)
		b.WriteByte(' ')
	}
	b.WriteString(m.CommandText)
	for i, p := range m.Params {
		b.WriteByte(' ')
		if i == len(m.Params)-1 && needsColon(p) {
			b.WriteByte(':')
		}
		b.WriteString(p)
	}
	b.WriteString("\r\n")

	return []byte(b.String()), nil
}

// Parse reads a single IRC line into a Message. line may optionally
// end in "\r\n" or just "\n"; at most one trailing LF (and, if
// present, one preceding CR) is stripped before parsing. A line with
// no command token fails with Inval.
func Parse(line []byte) (*Message, error) {
	line = trimEOL(line)

	tags, consumed, err := ParsePrelude(line)
	if err != nil {
		return nil, err
	}
	line = line[consumed:]

	var prefix string
	if len(line) > 0 && line[0] == ':' {
		sp := indexByte(line, ' ')
		if sp < 0 {
			prefix = string(line[1:])
			line = nil
		} else {
			prefix = string(line[1:sp])
			line = line[sp+1:]
		}
	}

	line = skipSpaces(line)
	cmdEnd := indexByte(line, ' ')
	var command string
	if cmdEnd < 0 {
		command = string(line)
		line = nil
	} else {
		command = string(line[:cmdEnd])
		line = line[cmdEnd+1:]
	}
	if command == "" {
		return nil, ircerr.New(ircerr.Inval)
	}

	var params []string
	for len(params) < MaxParams-1 {
		line = skipSpaces(line)
		if len(line) == 0 {
			break
		}
		if line[0] == ':' {
			params = append(params, string(line[1:]))
			line = nil
			break
		}
		sp := indexByte(line, ' ')
		if sp < 0 {
			params = append(params, string(line))
			line = nil
			break
		}
		params = append(params, string(line[:sp]))
		line = line[sp+1:]
	}
	if len(line) > 0 {
		line = skipSpaces(line)
		if len(line) > 0 {
			if line[0] == ':' {
				params = append(params, string(line[1:]))
			} else {
				params = append(params, string(line))
			}
		}
	}

	m := &Message{
		Tags:        tags,
		Prefix:      prefix,
		CommandText: command,
		Params:      params,
	}
	if id, ok := LookupByMnemonic(command); ok {
		m.CommandID = id
		m.HasCommand = true
	}

	return m, nil
}

func trimEOL(line []byte) []byte {
	if len(line) > 0 && line[len(line)-1] == '\n' {
		line = line[:len(line)-1]
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
	}
	return line
}

func skipSpaces(line []byte) []byte {
	for len(line) > 0 && line[0] == ' ' {
		line = line[1:]
	}
	return line
}

// Clone produces a deep copy of m with independent buffers.
func (m *Message) Clone() *Message {
	c := *m
	c.Params = append([]string(nil), m.Params...)
	return &c
}
