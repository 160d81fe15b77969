package ircnet

import (
	"crypto/tls"
	"crypto/x509"
	"net"
	"os"

	"github.com/flrl/goat/ircerr"
)

// tlsVersionMap mirrors smtpd's configuration-text-to-tls.Version
// table, minus ssl3.0 (removed from crypto/tls; client connections
// have no business asking for it).
var tlsVersionMap = map[string]uint16{
	"tls1.0": tls.VersionTLS10,
	"tls1.1": tls.VersionTLS11,
	"tls1.2": tls.VersionTLS12,
	"tls1.3": tls.VersionTLS13,
}

// TlsConfig is the client-side subset of smtpd's TlsConfig: a
// connecting client verifies the server's certificate, and optionally
// presents its own, but there is no ClientAuth strategy to configure
// since this side is never the one demanding client certs.
type TlsConfig struct {
	ServerName string // overrides SNI / verification name; defaults to the dial host
	CertFile   string // optional client certificate
	KeyFile    string // optional client key
	CaCertFile string // optional CA bundle; defaults to the system pool
	MinVersion string // key into tlsVersionMap; defaults to tls1.2
	MaxVersion string // key into tlsVersionMap; zero value means "no cap"
}

// Build resolves a TlsConfig into a *tls.Config ready to hand to
// SecureTransport.Wrap.
func (c TlsConfig) Build(dialHost string) (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName: c.ServerName,
		MinVersion: tls.VersionTLS12,
	}
	if cfg.ServerName == "" {
		cfg.ServerName = dialHost
	}

	if c.MinVersion != "" {
		v, ok := tlsVersionMap[c.MinVersion]
		if !ok {
			return nil, ircerr.New(ircerr.Inval)
		}
		cfg.MinVersion = v
	}
	if c.MaxVersion != "" {
		v, ok := tlsVersionMap[c.MaxVersion]
		if !ok {
			return nil, ircerr.New(ircerr.Inval)
		}
		cfg.MaxVersion = v
	}

	if c.CertFile != "" || c.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, ircerr.Wrap(ircerr.Inval, err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	if c.CaCertFile != "" {
		pem, err := os.ReadFile(c.CaCertFile)
		if err != nil {
			return nil, ircerr.Wrap(ircerr.Inval, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, ircerr.New(ircerr.Inval)
		}
		cfg.RootCAs = pool
	}

	return cfg, nil
}

// SecureTransport wraps a plain net.Conn in a secure layer once the
// underlying TCP connect has completed. It exists so the CONNECTING
// state can drive a handshake without the FSM itself knowing anything
// about crypto/tls.
type SecureTransport interface {
	// Wrap starts (or continues) a handshake on conn. ok=true means
	// the handshake has completed and out should replace conn for all
	// further I/O; ok=false with a nil error means the handshake needs
	// another readiness round; a non-nil error is fatal.
	Wrap(conn net.Conn, serverName string) (out net.Conn, ok bool, err error)
}

// TLSTransport is the crypto/tls-backed SecureTransport used whenever
// a connection is opened with secure=true.
type TLSTransport struct {
	Config TlsConfig
}

func (t TLSTransport) Wrap(conn net.Conn, serverName string) (net.Conn, bool, error) {
	cfg, err := t.Config.Build(serverName)
	if err != nil {
		return nil, false, err
	}

	tc := tls.Client(conn, cfg)
	if err := tc.Handshake(); err != nil {
		return nil, false, ircerr.Wrap(ircerr.Connect, err)
	}
	return tc, true, nil
}

// PlainTransport is the no-op SecureTransport used for secure=false
// connections: it hands the connection back unchanged.
type PlainTransport struct{}

func (PlainTransport) Wrap(conn net.Conn, _ string) (net.Conn, bool, error) {
	return conn, true, nil
}
