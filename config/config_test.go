package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "goat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestParseFillsPortDefaults(t *testing.T) {
	path := writeConfig(t, `
networks:
- name: libera
  host: irc.libera.chat
  nick: watcher
- name: oldnet
  host: irc.oldnet.example
  secure: true
  nick: watcher2
`)

	c, err := Parse(path)
	require.NoError(t, err)
	require.Len(t, c.Networks, 2)
	assert.Equal(t, DefaultPort, c.Networks[0].Port)
	assert.Equal(t, DefaultSecurePort, c.Networks[1].Port)
	assert.Equal(t, "watcher2", c.Networks[1].Ident)
}

func TestParseRejectsMissingNick(t *testing.T) {
	path := writeConfig(t, `
networks:
- name: libera
  host: irc.libera.chat
`)
	_, err := Parse(path)
	require.Error(t, err)
}

func TestParseRejectsMissingHost(t *testing.T) {
	path := writeConfig(t, `
networks:
- name: libera
  nick: watcher
`)
	_, err := Parse(path)
	require.Error(t, err)
}

func TestParseMissingFile(t *testing.T) {
	_, err := Parse("/nonexistent/path/goat.yaml")
	require.Error(t, err)
}

func TestParseExplicitPortPreserved(t *testing.T) {
	path := writeConfig(t, `
networks:
- name: libera
  host: irc.libera.chat
  port: 7000
  nick: watcher
`)
	c, err := Parse(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, c.Networks[0].Port)
}
