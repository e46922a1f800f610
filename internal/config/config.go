package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// InlineCredentials is an optional credentials block embedded directly in the
// configuration file. It is the fallback source consulted when the system
// keyring has no entry for a server.
type InlineCredentials struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
}

// ServerConfig holds the per-server settings for one configured mail account.
type ServerConfig struct {
	// Watch enables the change-watch loop for this server.
	Watch bool `mapstructure:"watch" yaml:"watch"`

	// WatchMailbox is the mailbox monitored by the watch loop.
	// Defaults to "INBOX" when empty.
	WatchMailbox string `mapstructure:"watch_mailbox" yaml:"watch_mailbox"`

	// HookCommand is an optional shell command invoked for every new
	// message detected by the watch loop.
	HookCommand string `mapstructure:"hook_command" yaml:"hook_command"`

	// Credentials is the optional inline credentials block. The system
	// keyring takes precedence when both are present.
	Credentials *InlineCredentials `mapstructure:"credentials" yaml:"credentials"`
}

// Config is the top-level daemon configuration. A loaded Config is treated as
// an immutable generation: reload produces a fresh value rather than mutating
// fields in place, so concurrent readers never observe a torn update.
type Config struct {
	// Servers maps each server identity to its settings. Identities are
	// normalized to lower case at load time.
	Servers map[string]ServerConfig `mapstructure:"servers" yaml:"servers"`

	// Socket is the path of the Unix socket the RPC listener binds.
	Socket string `mapstructure:"socket" yaml:"socket"`

	// TCPPort, when non-zero, enables the alternate TCP transport on
	// 127.0.0.1:port in addition to the Unix socket.
	TCPPort int `mapstructure:"tcp_port" yaml:"tcp_port"`

	// DataDir is the directory holding daemon state (event journal).
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`

	// LogLevel selects the zerolog level (trace..error). Default "info".
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
}

// WatchSpec is the derived tuple defining one independent change-watch loop.
type WatchSpec struct {
	Server      string
	Mailbox     string
	HookCommand string
}

// DefaultConfigPath returns the default configuration file path,
// located at ~/.config/mailmux/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailmux", "config.yaml")
}

// DefaultSocketPath returns the default Unix socket path, preferring the
// XDG runtime directory when available.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "mailmux.sock")
	}
	return filepath.Join(os.TempDir(), "mailmux.sock")
}

// DefaultDataDir returns the default state directory,
// located at ~/.local/share/mailmux.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "mailmux")
}

// Load reads the configuration from the given YAML file path using Viper.
// A missing file, an empty servers section, and the legacy array-shaped
// servers format are all reported as distinct errors.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("socket", DefaultSocketPath())
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return nil, &NotFoundError{Path: path}
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, &NotFoundError{Path: path}
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	// Older releases used an array of server blocks. Detect it before
	// unmarshaling so the failure is actionable instead of a silent
	// misparse into an empty map.
	if raw := v.Get("servers"); raw != nil {
		if _, isList := raw.([]interface{}); isList {
			return nil, ErrLegacyFormat
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if len(cfg.Servers) == 0 {
		return nil, ErrNoServers
	}

	// Viper lower-cases map keys; normalize explicitly so lookups are
	// deterministic regardless of how the file was written.
	servers := make(map[string]ServerConfig, len(cfg.Servers))
	for id, sc := range cfg.Servers {
		if sc.WatchMailbox == "" {
			sc.WatchMailbox = "INBOX"
		}
		servers[strings.ToLower(id)] = sc
	}
	cfg.Servers = servers

	return cfg, nil
}

// Server looks up the settings for a server identity. The lookup is
// case-insensitive, matching the normalization applied at load time.
func (c *Config) Server(id string) (ServerConfig, error) {
	sc, ok := c.Servers[strings.ToLower(id)]
	if !ok {
		return ServerConfig{}, &UnknownServerError{ID: id}
	}
	return sc, nil
}

// ServerIDs returns the configured server identities in sorted order.
func (c *Config) ServerIDs() []string {
	ids := make([]string, 0, len(c.Servers))
	for id := range c.Servers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// WatchSpecs derives the watch loop definitions for every server with
// watching enabled, in sorted server order.
func (c *Config) WatchSpecs() []WatchSpec {
	var specs []WatchSpec
	for _, id := range c.ServerIDs() {
		sc := c.Servers[id]
		if !sc.Watch {
			continue
		}
		specs = append(specs, WatchSpec{
			Server:      id,
			Mailbox:     sc.WatchMailbox,
			HookCommand: sc.HookCommand,
		})
	}
	return specs
}
