package ircpool

import (
	"reflect"

	"github.com/flrl/goat/ircerr"
	"github.com/flrl/goat/ircmsg"
)

// EventCallback is invoked synchronously, on the goroutine that called
// DispatchEvents, for every message matching its registered CommandID
// (or every message at all, for the GENERIC slot).
type EventCallback func(h Handle, m *ircmsg.Message)

// InstallCallback registers fn for id, replacing whatever was there
// before.
func (p *Pool) InstallCallback(id ircmsg.CommandID, fn EventCallback) {
	p.cbMu.Lock()
	defer p.cbMu.Unlock()
	p.callbacks[id] = fn
}

// UninstallCallback removes the callback registered for id, but only
// if fn is the one currently installed; a mismatch means some other
// caller has since replaced it, and reports ircerr.Canceled rather
// than silently removing someone else's handler.
func (p *Pool) UninstallCallback(id ircmsg.CommandID, fn EventCallback) error {
	p.cbMu.Lock()
	defer p.cbMu.Unlock()

	cur, ok := p.callbacks[id]
	if !ok || !sameCallback(cur, fn) {
		return ircerr.New(ircerr.Canceled)
	}
	delete(p.callbacks, id)
	return nil
}

// InstallGenericCallback registers the fallback invoked for any
// message whose CommandID has no specific callback installed, or
// whose command text was not recognized at all.
func (p *Pool) InstallGenericCallback(fn EventCallback) {
	p.cbMu.Lock()
	defer p.cbMu.Unlock()
	p.generic = fn
}

// UninstallGenericCallback removes the GENERIC callback, subject to
// the same identity-match rule as UninstallCallback.
func (p *Pool) UninstallGenericCallback(fn EventCallback) error {
	p.cbMu.Lock()
	defer p.cbMu.Unlock()

	if p.generic == nil || !sameCallback(p.generic, fn) {
		return ircerr.New(ircerr.Canceled)
	}
	p.generic = nil
	return nil
}

// sameCallback compares function values by their underlying code
// pointer, the closest Go gets to the C original's function-pointer
// equality check; callers that need uninstall to succeed must pass
// back the exact value they installed (a bound method value or a
// package-level func, not a freshly-built closure literal).
func sameCallback(a, b EventCallback) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

// DispatchEvents drains every occupied connection's receive queue to
// exhaustion, invoking the registered callback for each message: the
// CommandID-specific one if installed and the command was recognized,
// else GENERIC, else the message is dropped. Invocation is synchronous
// on the calling goroutine, per spec §4.G.
func (p *Pool) DispatchEvents() {
	for _, h := range p.Connections() {
		conn, err := p.Get(h)
		if err != nil {
			continue
		}
		for {
			m, ok := conn.RecvMessage()
			if !ok {
				break
			}
			p.deliver(h, m)
		}
	}
}

func (p *Pool) deliver(h Handle, m *ircmsg.Message) {
	p.cbMu.Lock()
	fn, ok := p.callbacks[m.CommandID]
	if !ok || !m.HasCommand {
		fn = p.generic
		ok = fn != nil
	}
	p.cbMu.Unlock()

	if ok && fn != nil {
		fn(h, m)
	}
}
