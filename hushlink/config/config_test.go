package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/TheusHen/hushlink/hushlink/custody"
	"github.com/TheusHen/hushlink/hushlink/fault"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, RoleClient, c.Role)
	assert.Equal(t, 6, c.LiveCount)
	assert.Equal(t, "192.168.137.1:8087", c.Server.Address)
	assert.Equal(t, 10*time.Second, c.Server.ConnectTimeout)
	assert.Equal(t, 400, c.Chat.LineMax)
	assert.Equal(t, 500, c.Chat.BufferMax)
	assert.Equal(t, "exit", c.Chat.StopPhrase)
	assert.Equal(t, 64, c.Crypto.SeedSize)
	assert.Equal(t, 128, c.Crypto.ElligatorAttempts)
	assert.Equal(t, 5, c.Network.DHCPRetries)
	assert.Equal(t, custody.DefaultParams(), c.Custody)
}

func TestLoadFileEnvFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hushlink.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
role: server
live_count: 3
chat:
  stop_phrase: bye
server:
  listen: 127.0.0.1:9000
`), 0o600))

	t.Setenv("HUSHLINK_LIVE_COUNT", "4")
	t.Setenv("HUSHLINK_CHAT_LINE_MAX", "200")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", path, "--transport", "quic"}))

	c, err := Load("", fs)
	require.NoError(t, err)
	assert.Equal(t, RoleServer, c.Role)
	assert.Equal(t, "bye", c.Chat.StopPhrase)
	assert.Equal(t, "127.0.0.1:9000", c.Server.Listen)
	assert.Equal(t, 4, c.LiveCount, "environment beats file")
	assert.Equal(t, 200, c.Chat.LineMax)
	assert.Equal(t, TransportQUIC, c.Transport, "flag beats default")
}

func TestLoadUnsetFlagsKeepFileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("role: server\n"), 0o600))

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(nil))

	c, err := Load(path, fs)
	require.NoError(t, err)
	assert.Equal(t, RoleServer, c.Role)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindInput))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"role", func(c *Config) { c.Role = "relay" }},
		{"transport", func(c *Config) { c.Transport = "udp" }},
		{"live count", func(c *Config) { c.LiveCount = 0 }},
		{"allocation", func(c *Config) { c.Storage.Allocation = "stack" }},
		{"network mode", func(c *Config) { c.Network.Mode = "static" }},
		{"server address", func(c *Config) { c.Server.Address = "192.168.137.1:80" }},
		{"line bound", func(c *Config) { c.Chat.LineMax = 600 }},
		{"compression", func(c *Config) { c.Chat.Compression = "max" }},
		{"seed size", func(c *Config) { c.Crypto.SeedSize = 111 }},
		{"pin length", func(c *Config) { c.Custody.PINLength = 30 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			require.ErrorIs(t, err, ErrInvalid)
			assert.True(t, fault.Is(err, fault.KindInput))
		})
	}
}
