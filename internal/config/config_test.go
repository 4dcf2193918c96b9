package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	v, err := New("", nil)
	require.NoError(t, err)
	c, err := LoadClient(v)
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8000", c.ServerURL)
	assert.Equal(t, 30*time.Second, c.Timeout)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, filepath.Join(home, ".ragchat", "ragchat.log"), c.LogFile)
}

func TestClientPrecedence(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_url: http://from-file:9000\ntimeout: 5s\nlog_level: debug\n"), 0644))
	t.Setenv("RAGCHAT_LOG_LEVEL", "warn")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("server-url", "", "")
	require.NoError(t, flags.Parse([]string{"--server-url", "http://from-flag:1234"}))

	v, err := New(path, flags)
	require.NoError(t, err)
	c, err := LoadClient(v)
	require.NoError(t, err)

	assert.Equal(t, "http://from-flag:1234", c.ServerURL)
	assert.Equal(t, 5*time.Second, c.Timeout)
	assert.Equal(t, "warn", c.LogLevel)
}

func TestUnsetFlagDoesNotOverrideFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_url: http://from-file:9000\n"), 0644))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("server-url", "http://flag-default", "")
	require.NoError(t, flags.Parse(nil))

	v, err := New(path, flags)
	require.NoError(t, err)
	c, err := LoadClient(v)
	require.NoError(t, err)

	assert.Equal(t, "http://from-file:9000", c.ServerURL)
}

func TestExplicitConfigMustExist(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
}

func TestServerConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("RAGCHAT_TOP_K", "5")

	v, err := New("", nil)
	require.NoError(t, err)
	s, err := LoadServer(v)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8000", s.Addr)
	assert.Equal(t, filepath.Join(home, ".ragchat", "chats.db"), s.DBPath)
	assert.Equal(t, "sk-test", s.OpenAIAPIKey)
	assert.Equal(t, 5, s.TopK)
	assert.Equal(t, 1000, s.MaxTokens)
}

func TestServerConfigRejectsNegativeTopK(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("RAGCHAT_TOP_K", "-1")

	v, err := New("", nil)
	require.NoError(t, err)
	_, err = LoadServer(v)
	require.Error(t, err)
}
