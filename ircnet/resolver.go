package ircnet

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"

	"github.com/flrl/goat/ircerr"
)

// ResolveStatus is the three-state contract RESOLVING polls: a lookup
// is either still in flight, has produced an endpoint, or has failed
// outright. There is no fourth "partial" state.
type ResolveStatus int

const (
	ResolvePending ResolveStatus = iota
	ResolveReady
	ResolveFailed
)

// Resolver looks up a host/service pair in the background and reports
// readiness via Poll, so the RESOLVING state's driver can remain
// nonblocking. Implementations own whatever goroutine or channel does
// the actual lookup; Poll must never block.
type Resolver interface {
	// Start begins resolving host for the given network ("tcp",
	// "tcp4", "tcp6"). Calling Start a second time before the first
	// resolution settles is undefined; callers only do this once per
	// RESOLVING entry.
	Start(network, host, service string)

	// Poll reports the current status. When ResolveReady, addr holds
	// a dialable address. When ResolveFailed, err holds the failure.
	Poll() (status ResolveStatus, addr string, err error)
}

// DNSResolver backs Resolver with github.com/miekg/dns when a
// recursive resolver address is configured, falling back to
// net.DefaultResolver's getaddrinfo-style lookup otherwise. Each
// lookup runs in its own goroutine; Poll reads the result off a
// once-written channel, so it never blocks the driver.
type DNSResolver struct {
	// Server is a "host:port" recursive resolver to query directly via
	// miekg/dns. Empty means use the system resolver.
	Server  string
	Timeout time.Duration

	mu     sync.Mutex
	done   chan struct{}
	addr   string
	err    error
	polled bool
}

// NewDNSResolver returns a Resolver. server may be empty to use the
// system resolver; non-empty must be a "host:port" address of a
// recursive nameserver queried directly over UDP.
func NewDNSResolver(server string, timeout time.Duration) *DNSResolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DNSResolver{Server: server, Timeout: timeout}
}

func (r *DNSResolver) Start(network, host, service string) {
	r.mu.Lock()
	r.done = make(chan struct{})
	r.addr, r.err, r.polled = "", nil, false
	done := r.done
	r.mu.Unlock()

	go r.resolve(network, host, service, done)
}

func (r *DNSResolver) resolve(network, host, service string, done chan struct{}) {
	var ip string
	var err error

	if r.Server != "" {
		ip, err = r.lookupViaServer(host)
	} else {
		ip, err = r.lookupViaSystem(network, host)
	}

	r.mu.Lock()
	if err != nil {
		r.err = ircerr.Wrap(ircerr.Resolv, err)
	} else {
		r.addr = net.JoinHostPort(ip, service)
	}
	r.mu.Unlock()
	close(done)
}

// lookupViaServer queries Server directly for an A record, bypassing
// the system resolver. Grounded on protonuke's dns.go Exchange usage:
// build a dns.Msg, call dns.Exchange, pull the first A answer.
func (r *DNSResolver) lookupViaServer(host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), nil
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)
	m.RecursionDesired = true

	c := &dns.Client{Timeout: r.Timeout}
	in, _, err := c.Exchange(m, r.Server)
	if err != nil {
		return "", err
	}
	for _, ans := range in.Answer {
		if a, ok := ans.(*dns.A); ok {
			return a.A.String(), nil
		}
	}
	return "", &net.DNSError{Err: "no A records found", Name: host}
}

func (r *DNSResolver) lookupViaSystem(network, host string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.Timeout)
	defer cancel()

	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return "", err
	}
	for _, ip := range ips {
		if network == "tcp6" && ip.IP.To4() != nil {
			continue
		}
		if network == "tcp4" && ip.IP.To4() == nil {
			continue
		}
		return ip.IP.String(), nil
	}
	return "", &net.DNSError{Err: "no suitable address found", Name: host}
}

func (r *DNSResolver) Poll() (ResolveStatus, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done == nil {
		return ResolvePending, "", nil
	}
	select {
	case <-r.done:
	default:
		return ResolvePending, "", nil
	}

	if r.err != nil {
		return ResolveFailed, "", r.err
	}
	return ResolveReady, r.addr, nil
}
