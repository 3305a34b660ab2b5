package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/toolgate/toolgate/internal/models"
	"github.com/toolgate/toolgate/internal/sandbox"
)

// Config is the full gateway configuration, loaded from YAML with
// TOOLGATE_* environment overrides.
type Config struct {
	Server ServerConfig `mapstructure:"server" json:"server"`
	Auth   AuthConfig   `mapstructure:"auth" json:"auth"`
	Audit  AuditConfig  `mapstructure:"audit" json:"audit"`
	Log    LogConfig    `mapstructure:"log" json:"log"`

	// WorkspaceRoot bounds every path a tool may be asked to touch.
	WorkspaceRoot string `mapstructure:"workspace_root" json:"workspace_root"`

	// ToolsRoot is where relative native tool commands are resolved.
	ToolsRoot string `mapstructure:"tools_root" json:"tools_root"`

	Tools map[string]models.ToolSpec `mapstructure:"tools" json:"tools"`

	v *viper.Viper
}

type ServerConfig struct {
	Host string `mapstructure:"host" json:"host"`
	Port int    `mapstructure:"port" json:"port"`

	// BodyLimit caps request bodies in bytes. A tool input is one JSON
	// line; anything bigger is not a tool request.
	BodyLimit int `mapstructure:"body_limit" json:"body_limit"`
}

// Addr returns the host:port the HTTP server binds to.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type AuthConfig struct {
	Enabled         bool     `mapstructure:"enabled" json:"enabled"`
	JWTSecret       string   `mapstructure:"jwt_secret" json:"-"`
	TokenTTLMinutes int      `mapstructure:"token_ttl_minutes" json:"token_ttl_minutes"`
	Keys            []APIKey `mapstructure:"keys" json:"keys"`
}

// APIKey is one accepted client credential. Hash holds either
// "sha256:<hex>" or "bcrypt:<hash>"; plaintext keys never appear in config.
type APIKey struct {
	Name string `mapstructure:"name" json:"name"`
	Hash string `mapstructure:"hash" json:"-"`
}

type AuditConfig struct {
	// Driver selects the audit store: sqlite, postgres or none.
	Driver string `mapstructure:"driver" json:"driver"`
	DSN    string `mapstructure:"dsn" json:"-"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

// Load reads the gateway config. With an explicit path only that file is
// accepted; otherwise toolgate.yaml is searched in ., ./configs and
// ~/.toolgate. Environment variables prefixed TOOLGATE_ override file
// values (TOOLGATE_SERVER_PORT, TOOLGATE_AUTH_JWT_SECRET, ...).
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("toolgate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".toolgate"))
		}
	}

	v.SetEnvPrefix("TOOLGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.v = v
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.body_limit", 1<<20)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.token_ttl_minutes", 60)
	v.SetDefault("audit.driver", "sqlite")
	v.SetDefault("audit.dsn", "file:toolgate.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("workspace_root", "./workspace")
	v.SetDefault("tools_root", "./tools")
}

// Validate rejects configs the gateway cannot run safely. Tool names go
// through the same sandbox check the transports use, so a name that fails
// here could never have been routed anyway.
func (c *Config) Validate() error {
	if c.WorkspaceRoot == "" {
		return fmt.Errorf("config: workspace_root is required")
	}
	if c.ToolsRoot == "" {
		return fmt.Errorf("config: tools_root is required")
	}
	if len(c.Tools) == 0 {
		return fmt.Errorf("config: tools must not be empty")
	}

	for name, t := range c.Tools {
		if err := sandbox.ValidateToolName(name); err != nil {
			return fmt.Errorf("config: tools[%s]: %w", name, err)
		}

		switch t.Runtime {
		case models.RuntimeNative:
			if t.Cmd == "" {
				return fmt.Errorf("config: tools[%s].cmd is required for native runtime", name)
			}
		case models.RuntimeContainer:
			if t.Image == "" {
				return fmt.Errorf("config: tools[%s].image is required for container runtime", name)
			}
		default:
			return fmt.Errorf("config: tools[%s].runtime must be native or container", name)
		}

		if t.Mode != "" && t.Mode != models.ModeLauncher && t.Mode != models.ModeDaemon {
			return fmt.Errorf("config: tools[%s].mode must be launcher or daemon", name)
		}
		if t.TimeoutMS < 0 {
			return fmt.Errorf("config: tools[%s].timeout_ms must be >= 0", name)
		}
		if t.MaxConcurrent < 0 {
			return fmt.Errorf("config: tools[%s].max_concurrent must be >= 0", name)
		}
		if t.MaxConcurrent > models.MaxAllowedConcurrent {
			return fmt.Errorf("config: tools[%s].max_concurrent must be <= %d", name, models.MaxAllowedConcurrent)
		}
	}

	if c.Auth.Enabled {
		if len(c.Auth.JWTSecret) < 16 {
			return fmt.Errorf("config: auth.jwt_secret must be at least 16 bytes when auth is enabled")
		}
		if len(c.Auth.Keys) == 0 {
			return fmt.Errorf("config: auth.keys must not be empty when auth is enabled")
		}
		for i, k := range c.Auth.Keys {
			if k.Name == "" {
				return fmt.Errorf("config: auth.keys[%d].name is required", i)
			}
			if !strings.HasPrefix(k.Hash, "sha256:") && !strings.HasPrefix(k.Hash, "bcrypt:") {
				return fmt.Errorf("config: auth.keys[%d].hash must start with sha256: or bcrypt:", i)
			}
		}
	}

	switch c.Audit.Driver {
	case "sqlite", "postgres":
		if c.Audit.DSN == "" {
			return fmt.Errorf("config: audit.dsn is required for driver %s", c.Audit.Driver)
		}
	case "none":
	default:
		return fmt.Errorf("config: audit.driver must be sqlite, postgres or none")
	}

	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: log.format must be text or json")
	}

	return nil
}

// ToolInfos returns the public listing of configured tools with effective
// limits filled in.
func (c *Config) ToolInfos() []models.ToolInfo {
	infos := make([]models.ToolInfo, 0, len(c.Tools))
	for name, t := range c.Tools {
		infos = append(infos, models.ToolInfo{
			Name:          name,
			Runtime:       t.Runtime,
			Mode:          t.Mode,
			TimeoutMS:     int(t.Timeout().Milliseconds()),
			MaxConcurrent: t.MaxConc(),
		})
	}
	return infos
}

// Watch re-reads the config file whenever it changes on disk and hands each
// valid snapshot to apply. An edit that fails validation is logged and
// skipped; the running config stays as it was.
func (c *Config) Watch(log *logrus.Logger, apply func(*Config)) {
	if c.v == nil {
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		fresh := &Config{}
		if err := c.v.Unmarshal(fresh); err != nil {
			log.WithError(err).Warn("config change ignored: parse failed")
			return
		}
		if err := fresh.Validate(); err != nil {
			log.WithError(err).Warn("config change ignored: validation failed")
			return
		}
		fresh.v = c.v
		log.WithField("file", e.Name).Info("config reloaded")
		apply(fresh)
	})
	c.v.WatchConfig()
}
