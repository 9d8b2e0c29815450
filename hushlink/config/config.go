// Package config loads the endpoint's runtime settings from defaults, an
// optional YAML file, HUSHLINK_* environment variables and command-line
// flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/TheusHen/hushlink/hushlink/compress"
	"github.com/TheusHen/hushlink/hushlink/custody"
	"github.com/TheusHen/hushlink/hushlink/drbg"
	"github.com/TheusHen/hushlink/hushlink/fault"
	"github.com/TheusHen/hushlink/hushlink/netconf"
	"github.com/TheusHen/hushlink/hushlink/scratch"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	RoleClient = "client"
	RoleServer = "server"

	TransportTCP  = "tcp"
	TransportQUIC = "quic"
)

var (
	ErrInvalid = errors.New("config: invalid setting")
)

// Config holds every runtime setting.
type Config struct {
	Role      string `mapstructure:"role"`
	Transport string `mapstructure:"transport"`
	Debug     bool   `mapstructure:"debug"`
	JSONLog   bool   `mapstructure:"json_log"`
	LiveCount int    `mapstructure:"live_count"`

	Storage StorageConfig  `mapstructure:"storage"`
	Network NetworkConfig  `mapstructure:"network"`
	Server  ServerConfig   `mapstructure:"server"`
	Chat    ChatConfig     `mapstructure:"chat"`
	Crypto  CryptoConfig   `mapstructure:"crypto"`
	Custody custody.Params `mapstructure:"custody"`
}

type StorageConfig struct {
	Path       string `mapstructure:"path"`
	Allocation string `mapstructure:"allocation"`
}

type NetworkConfig struct {
	Mode        string        `mapstructure:"mode"`
	Interface   string        `mapstructure:"interface"`
	DHCPRetries int           `mapstructure:"dhcp_retries"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	BindLocal   bool          `mapstructure:"bind_local"`
}

type ServerConfig struct {
	Mode           string        `mapstructure:"mode"`
	Address        string        `mapstructure:"address"`
	Listen         string        `mapstructure:"listen"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type ChatConfig struct {
	LineMax     int    `mapstructure:"line_max"`
	BufferMax   int    `mapstructure:"buffer_max"`
	StopPhrase  string `mapstructure:"stop_phrase"`
	Compression string `mapstructure:"compression"`
}

type CryptoConfig struct {
	SeedSize          int `mapstructure:"seed_size"`
	ElligatorAttempts int `mapstructure:"elligator_attempts"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("role", RoleClient)
	v.SetDefault("transport", TransportTCP)
	v.SetDefault("debug", false)
	v.SetDefault("json_log", false)
	v.SetDefault("live_count", 6)

	v.SetDefault("storage.path", "hushlink.img")
	v.SetDefault("storage.allocation", string(scratch.Heap))

	v.SetDefault("network.mode", "ask")
	v.SetDefault("network.interface", "")
	v.SetDefault("network.dhcp_retries", netconf.DefaultLeaseRetries)
	v.SetDefault("network.retry_delay", "1s")
	v.SetDefault("network.bind_local", false)

	v.SetDefault("server.mode", "ask")
	v.SetDefault("server.address", netconf.DefaultServer().String())
	v.SetDefault("server.listen", fmt.Sprintf("0.0.0.0:%d", netconf.DefaultPort))
	v.SetDefault("server.connect_timeout", "10s")

	v.SetDefault("chat.line_max", 400)
	v.SetDefault("chat.buffer_max", 500)
	v.SetDefault("chat.stop_phrase", "exit")
	v.SetDefault("chat.compression", "default")

	v.SetDefault("crypto.seed_size", drbg.DefaultSeedSize)
	v.SetDefault("crypto.elligator_attempts", 128)

	p := custody.DefaultParams()
	v.SetDefault("custody.memory_kib", p.MemoryKiB)
	v.SetDefault("custody.iterations", p.Iterations)
	v.SetDefault("custody.lanes", p.Lanes)
	v.SetDefault("custody.pin_length", p.PINLength)
	v.SetDefault("custody.pin_buffer_size", p.PINBufferSize)
	v.SetDefault("custody.salt_size", p.SaltSize)
}

// Default returns the built-in settings.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		panic(err)
	}
	return &c
}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"role":         "role",
	"transport":    "transport",
	"debug":        "debug",
	"json-log":     "json_log",
	"live-count":   "live_count",
	"storage":      "storage.path",
	"allocation":   "storage.allocation",
	"network-mode": "network.mode",
	"interface":    "network.interface",
	"server-mode":  "server.mode",
	"server":       "server.address",
	"listen":       "server.listen",
}

// RegisterFlags adds the endpoint's flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a YAML config file")
	fs.String("role", RoleClient, "client dials, server listens")
	fs.String("transport", TransportTCP, "tcp or quic")
	fs.Bool("debug", false, "Log every protocol step")
	fs.Bool("json-log", false, "Log as JSON")
	fs.Int("live-count", 6, "Sessions before a restart is required")
	fs.String("storage", "hushlink.img", "Path to the flash image")
	fs.String("allocation", string(scratch.Heap), "Scratch allocation: heap, static or locked")
	fs.String("network-mode", "ask", "Network settings: ask, last, auto, manual or default")
	fs.String("interface", "", "Interface used by auto network mode")
	fs.String("server-mode", "ask", "Server address: ask, last, manual or default")
	fs.String("server", netconf.DefaultServer().String(), "Server address for manual mode")
	fs.String("listen", fmt.Sprintf("0.0.0.0:%d", netconf.DefaultPort), "Listen address in server role")
}

// Load reads the configuration. path may be empty, in which case
// hushlink.yaml is looked up in the working directory and $HOME/.hushlink. A
// --config flag in fs overrides path. Only flags set on the command line
// override file and environment values.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("HUSHLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
			path = f.Value.String()
		}
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fault.E(fault.KindInput, "config.Load", err)
				}
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fault.E(fault.KindInput, "config.Load", fmt.Errorf("reading %s: %w", path, err))
		}
	} else {
		v.SetConfigName("hushlink")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.hushlink")
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return nil, fault.E(fault.KindInput, "config.Load", err)
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fault.E(fault.KindInput, "config.Load", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalid}, args...)...))
	}

	if c.Role != RoleClient && c.Role != RoleServer {
		bad("role %q", c.Role)
	}
	if c.Transport != TransportTCP && c.Transport != TransportQUIC {
		bad("transport %q", c.Transport)
	}
	if c.LiveCount < 1 {
		bad("live_count %d", c.LiveCount)
	}
	if _, err := scratch.New(scratch.Strategy(c.Storage.Allocation)); err != nil {
		bad("allocation %q", c.Storage.Allocation)
	}
	if c.Storage.Path == "" {
		bad("empty storage path")
	}
	if _, err := netconf.ParseMode(c.Network.Mode); err != nil {
		bad("network mode %q", c.Network.Mode)
	}
	if c.Network.DHCPRetries < 0 {
		bad("dhcp_retries %d", c.Network.DHCPRetries)
	}
	if _, err := netconf.ParseServerMode(c.Server.Mode); err != nil {
		bad("server mode %q", c.Server.Mode)
	}
	if _, err := netconf.ParseServerAddr(c.Server.Address); err != nil {
		bad("server address %q", c.Server.Address)
	}
	if c.Chat.LineMax < 2 || c.Chat.BufferMax <= c.Chat.LineMax {
		bad("line_max %d must be at least 2 and below buffer_max %d", c.Chat.LineMax, c.Chat.BufferMax)
	}
	if _, err := compress.ParseLevel(c.Chat.Compression); err != nil {
		bad("compression %q", c.Chat.Compression)
	}
	if c.Crypto.SeedSize < 1 || c.Crypto.SeedSize > drbg.MaxSeedSize {
		bad("seed_size %d", c.Crypto.SeedSize)
	}
	if c.Crypto.ElligatorAttempts < 1 {
		bad("elligator_attempts %d", c.Crypto.ElligatorAttempts)
	}
	if c.Custody.PINLength < 1 || c.Custody.PINLength+1 > c.Custody.PINBufferSize {
		bad("pin_length %d", c.Custody.PINLength)
	}
	if c.Custody.Iterations < 1 || c.Custody.Lanes < 1 || c.Custody.SaltSize < 8 {
		bad("argon2 parameters")
	}
	if len(errs) > 0 {
		return fault.E(fault.KindInput, "config.Validate", errors.Join(errs...))
	}
	return nil
}

// CompressionLevel returns the chat compression level. Validate has checked it.
func (c *Config) CompressionLevel() compress.Level {
	l, _ := compress.ParseLevel(c.Chat.Compression)
	return l
}
