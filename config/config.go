// Package config loads goat's YAML configuration file: which IRC
// networks to pool connections to, how each one connects, and where
// logging goes. Ported from smtpd's config.go, generalized from
// "servers" (SMTP listeners) to "networks" (IRC networks to dial).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/flrl/goat/ircnet"
	"github.com/flrl/goat/logging"
)

// DefaultPort is used when a network entry gives no port and secure
// is false; DefaultSecurePort is used when secure is true.
const (
	DefaultPort       = 6667
	DefaultSecurePort = 6697
)

// Config is the top-level document: the set of networks to connect
// to, plus process-wide logging configuration.
type Config struct {
	Networks []NetworkConfig `yaml:"networks"`
	Resolver ResolverConfig  `yaml:"resolver"`
	Logging  logging.Config  `yaml:"logging"`
}

// NetworkConfig describes one IRC network goat should maintain a
// connection to.
type NetworkConfig struct {
	Name     string           `yaml:"name"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Secure   bool             `yaml:"secure"`
	Tls      ircnet.TlsConfig `yaml:"tls"`
	Nick     string           `yaml:"nick"`
	Ident    string           `yaml:"ident"`
	RealName string           `yaml:"realname"`
	Channels []string         `yaml:"channels"`
}

// ResolverConfig configures the name resolution backend shared by
// every network connection.
type ResolverConfig struct {
	// Server is a "host:port" recursive resolver queried directly via
	// miekg/dns; empty means use the system resolver.
	Server         string `yaml:"server"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Parse reads and validates the YAML document at path, filling in
// port defaults exactly as smtpd.ParseConfig fills in protocol/address
// defaults: a zero Port becomes DefaultSecurePort or DefaultPort
// depending on Secure.
func Parse(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	c := &Config{}
	if err := yaml.Unmarshal(buf, c); err != nil {
		return nil, err
	}

	for i := range c.Networks {
		n := &c.Networks[i]
		if n.Name == "" {
			return nil, fmt.Errorf("network %d: name is required", i)
		}
		if n.Host == "" {
			return nil, fmt.Errorf("network %q: host is required", n.Name)
		}
		if n.Port == 0 {
			if n.Secure {
				n.Port = DefaultSecurePort
			} else {
				n.Port = DefaultPort
			}
		}
		if n.Nick == "" {
			return nil, fmt.Errorf("network %q: nick is required", n.Name)
		}
		if n.Ident == "" {
			n.Ident = n.Nick
		}
		if n.RealName == "" {
			n.RealName = n.Nick
		}
	}

	return c, nil
}
