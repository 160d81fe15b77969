// Package ircnet implements the transport-facing half of goat: the
// line framer, the abstract resolver and secure-transport interfaces,
// and the per-connection state machine.
package ircnet

import "bytes"

// chunk is one FIFO entry in a Framer's queue: a run of bytes, tagged
// with whether it ends in a complete line (CR-LF or LF).
type chunk struct {
	data      []byte
	endsInEOL bool
}

// Framer turns a raw byte stream, delivered via repeated reads, into a
// sequence of complete lines. It preserves a partial trailing line
// across reads (the "carry") and across Feed calls, fixing the bug
// documented in original_source's _conn_recv_data (see spec.md §9 open
// question (a) and DESIGN.md): two reads in a row that each lack an
// EOL must both be retained, not just the most recent one.
type Framer struct {
	queue []chunk
	carry []byte
}

// Feed hands fresh bytes read from the socket to the framer. It may be
// called multiple times per tick (once per successful nonblocking
// read); call EndRead after the last Feed of a tick to flush any
// dangling partial line into the queue as a tagged, incomplete entry.
func (f *Framer) Feed(data []byte) {
	for len(data) > 0 {
		nl := bytes.IndexByte(data, '\n')
		if nl < 0 {
			f.carry = append(f.carry, data...)
			return
		}

		line := data[:nl+1]
		data = data[nl+1:]

		var complete []byte
		if n := len(f.queue); n > 0 && !f.queue[n-1].endsInEOL {
			complete = append(complete, f.queue[n-1].data...)
			f.queue = f.queue[:n-1]
		}
		complete = append(complete, f.carry...)
		f.carry = nil
		complete = append(complete, line...)

		f.queue = append(f.queue, chunk{data: complete, endsInEOL: true})
	}
}

// EndRead finalizes a read burst: if a partial line remains in carry,
// it is folded into the queue's existing incomplete tail entry (if a
// prior tick already left one) or appended as a new one. Two ticks in
// a row that both end without an LF must both survive in the same
// tail entry — appending a second, separate !endsInEOL entry would
// strand the first one behind it, since Feed only ever merges the
// single tail entry into the next complete line.
func (f *Framer) EndRead() {
	if len(f.carry) == 0 {
		return
	}
	if n := len(f.queue); n > 0 && !f.queue[n-1].endsInEOL {
		f.queue[n-1].data = append(f.queue[n-1].data, f.carry...)
		f.carry = nil
		return
	}
	f.queue = append(f.queue, chunk{data: f.carry, endsInEOL: false})
	f.carry = nil
}

// PopLine removes and returns the oldest complete line, if any. An
// incomplete tail entry (the one produced by EndRead) is never popped:
// it only ever sits at the queue's tail, waiting to be merged with the
// next complete line by a subsequent Feed.
func (f *Framer) PopLine() ([]byte, bool) {
	if len(f.queue) == 0 || !f.queue[0].endsInEOL {
		return nil, false
	}
	line := f.queue[0].data
	f.queue = f.queue[1:]
	return line, true
}

// CompleteLineCount reports how many whole lines are queued and ready
// for PopLine, not counting a pending incomplete tail.
func (f *Framer) CompleteLineCount() int {
	n := len(f.queue)
	if n > 0 && !f.queue[n-1].endsInEOL {
		n--
	}
	return n
}

// Pending reports whether an incomplete tail entry is currently held
// (useful for tests and diagnostics; it plays no role in FSM
// transitions).
func (f *Framer) Pending() bool {
	n := len(f.queue)
	return n > 0 && !f.queue[n-1].endsInEOL
}
