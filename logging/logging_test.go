package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsToStderr(t *testing.T) {
	logger, closer, err := New(Config{})
	require.NoError(t, err)
	assert.Nil(t, closer)
	assert.NotNil(t, logger)
}

func TestNewFileDestination(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "goat.log")

	logger, closer, err := New(Config{File: path, FileMode: "0640"})
	require.NoError(t, err)
	require.NotNil(t, closer)
	defer closer.Close()

	logger.Print("hello")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0640), info.Mode().Perm())
}

func TestNewFileBadMode(t *testing.T) {
	dir := t.TempDir()
	_, _, err := New(Config{File: filepath.Join(dir, "x.log"), FileMode: "not-octal"})
	require.Error(t, err)
}

func TestSyslogWriterStripsLevelPrefix(t *testing.T) {
	// exercises the regex-driven level extraction without requiring a
	// real syslog daemon: the facility map lookup and Write parsing are
	// independent of whether syslog.New can actually dial /dev/log, so
	// only the pure string-handling half is under test here.
	var got string
	level := ""
	line := "[WARN] disk getting full"

	stripped := deletePrefix.ReplaceAllString(line, "")
	got = replaceLevel.ReplaceAllStringFunc(stripped, func(l string) string {
		level = l
		return ""
	})

	assert.Equal(t, "[WARN] ", level)
	assert.Equal(t, "disk getting full", got)
}
