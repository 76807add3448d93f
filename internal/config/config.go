// Package config loads sttray settings from a TOML file, STTRAY_* environment
// variables and built-in defaults, in that order of precedence (env wins).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/loykin/sttray/internal/logger"
	"github.com/loykin/sttray/internal/process"
)

// EnvPrefix is prepended to every environment override, e.g. STTRAY_SERVER_LISTEN.
const EnvPrefix = "STTRAY"

// Config is the top-level TOML structure.
type Config struct {
	// StateDir holds the single-instance lock and, by default, the history database.
	StateDir string `toml:"state_dir" mapstructure:"state_dir"`

	Daemon  DaemonConfig      `toml:"daemon" mapstructure:"daemon"`
	Log     logger.SlogConfig `toml:"log" mapstructure:"log"`
	Server  ServerConfig      `toml:"server" mapstructure:"server"`
	Metrics MetricsConfig     `toml:"metrics" mapstructure:"metrics"`
	History HistoryConfig     `toml:"history" mapstructure:"history"`
	Tray    TrayConfig        `toml:"tray" mapstructure:"tray"`
}

// DaemonConfig describes how to launch the STT daemon.
type DaemonConfig struct {
	Name     string            `toml:"name" mapstructure:"name"`
	Command  string            `toml:"command" mapstructure:"command"`
	Args     []string          `toml:"args" mapstructure:"args"`
	WorkDir  string            `toml:"workdir" mapstructure:"workdir"`
	Env      []string          `toml:"env" mapstructure:"env"`
	EnvFiles []string          `toml:"env_files" mapstructure:"env_files"`
	Log      logger.FileConfig `toml:"log" mapstructure:"log"`
}

type ServerConfig struct {
	Enabled  bool   `toml:"enabled" mapstructure:"enabled"`
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

type MetricsConfig struct {
	Enabled bool `toml:"enabled" mapstructure:"enabled"`
}

// HistoryConfig enables the lifecycle audit log when DSN is non-empty.
type HistoryConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type TrayConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Tooltip string `toml:"tooltip" mapstructure:"tooltip"`
	// ShowURL is opened by the "show" item; empty means the bridge root.
	ShowURL string `toml:"show_url" mapstructure:"show_url"`
	Notify  bool   `toml:"notify" mapstructure:"notify"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		StateDir: defaultStateDir(),
		Daemon: DaemonConfig{
			Name:    "stt",
			Command: "python3",
			Args:    []string{"system_stt_daemon.py"},
		},
		Log: logger.SlogConfig{
			Level:  logger.LevelInfo,
			Format: logger.FormatText,
			Color:  term.IsTerminal(int(os.Stderr.Fd())),
		},
		Server: ServerConfig{
			Enabled:  true,
			Listen:   "127.0.0.1:8765",
			BasePath: "/api",
		},
		Metrics: MetricsConfig{Enabled: true},
		Tray: TrayConfig{
			Enabled: true,
			Tooltip: "STT daemon",
			Notify:  true,
		},
	}
}

func defaultStateDir() string {
	if d, err := os.UserConfigDir(); err == nil {
		return filepath.Join(d, "sttray")
	}
	return filepath.Join(os.TempDir(), "sttray")
}

// Loader reads and optionally watches one config source.
type Loader struct {
	v    *viper.Viper
	path string
}

// NewLoader prepares a loader for path; an empty path uses defaults and env only.
func NewLoader(path string) *Loader {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v, path: path}
}

// Load reads the file (when set) and decodes the merged settings.
func (l *Loader) Load() (*Config, error) {
	if l.path != "" {
		l.v.SetConfigFile(l.path)
		l.v.SetConfigType("toml")
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", l.path, err)
		}
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var c Config
	if err := l.v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Watch calls fn with the re-decoded config every time the file changes.
// Invalid edits are reported through onErr and otherwise ignored.
// It is a no-op when the loader has no file.
func (l *Loader) Watch(fn func(*Config), onErr func(error)) {
	if l.path == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		c, err := l.decode()
		if err != nil {
			if onErr != nil {
				onErr(err)
			}
			return
		}
		fn(c)
	})
	l.v.WatchConfig()
}

// Load is shorthand for NewLoader(path).Load().
func Load(path string) (*Config, error) { return NewLoader(path).Load() }

// Validate checks the fields the application cannot run without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Daemon.Command) == "" {
		return fmt.Errorf("daemon.command is required")
	}
	if c.Server.Enabled && strings.TrimSpace(c.Server.Listen) == "" {
		return fmt.Errorf("server.listen is required when the server is enabled")
	}
	return nil
}

// LockPath is the single-instance lock file.
func (c *Config) LockPath() string { return filepath.Join(c.StateDir, "sttray.lock") }

// DaemonSpec builds the process spec for the STT daemon. Variables from
// env_files are applied in order, then env entries override them; ${VAR}
// references are expanded against the OS environment and earlier entries.
func (c *Config) DaemonSpec() (process.Spec, error) {
	envs, err := c.daemonEnv()
	if err != nil {
		return process.Spec{}, err
	}
	return process.Spec{
		Name:    c.Daemon.Name,
		Command: c.Daemon.Command,
		Args:    c.Daemon.Args,
		WorkDir: c.Daemon.WorkDir,
		Env:     envs,
		Log:     logger.Config{File: c.Daemon.Log},
	}, nil
}

func (c *Config) daemonEnv() ([]string, error) {
	var order []string
	m := make(map[string]string)
	set := func(k, v string) {
		if k == "" {
			return
		}
		if _, ok := m[k]; !ok {
			order = append(order, k)
		}
		m[k] = os.Expand(v, func(name string) string {
			if val, ok := m[name]; ok {
				return val
			}
			return os.Getenv(name)
		})
	}
	for _, p := range c.Daemon.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, fmt.Errorf("env file %s: %w", p, err)
		}
		for _, kv := range pairs {
			set(kv[0], kv[1])
		}
	}
	for _, kv := range c.Daemon.Env {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			set(kv[:i], kv[i+1:])
		}
	}
	out := make([]string, 0, len(order))
	for _, k := range order {
		out = append(out, k+"="+m[k])
	}
	return out, nil
}

// loadEnvFile parses a simple .env file with KEY=VALUE lines (no export, no quotes).
// Lines starting with # are ignored. Pairs are returned in file order.
func loadEnvFile(path string) ([][2]string, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var out [][2]string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			out = append(out, [2]string{strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:])})
		}
	}
	return out, nil
}

// WriteDefault writes the built-in configuration to path as TOML. It refuses
// to overwrite an existing file.
func WriteDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Clean(path), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	enc := toml.NewEncoder(f)
	enc.Indent = ""
	if err := enc.Encode(Default()); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("state_dir", d.StateDir)

	v.SetDefault("daemon.name", d.Daemon.Name)
	v.SetDefault("daemon.command", d.Daemon.Command)
	v.SetDefault("daemon.args", d.Daemon.Args)
	v.SetDefault("daemon.workdir", d.Daemon.WorkDir)
	v.SetDefault("daemon.env", d.Daemon.Env)
	v.SetDefault("daemon.env_files", d.Daemon.EnvFiles)
	v.SetDefault("daemon.log.dir", d.Daemon.Log.Dir)
	v.SetDefault("daemon.log.stdout", d.Daemon.Log.StdoutPath)
	v.SetDefault("daemon.log.stderr", d.Daemon.Log.StderrPath)
	v.SetDefault("daemon.log.max_size_mb", d.Daemon.Log.MaxSizeMB)
	v.SetDefault("daemon.log.max_backups", d.Daemon.Log.MaxBackups)
	v.SetDefault("daemon.log.max_age_days", d.Daemon.Log.MaxAgeDays)
	v.SetDefault("daemon.log.compress", d.Daemon.Log.Compress)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.color", d.Log.Color)
	v.SetDefault("log.path", d.Log.Path)

	v.SetDefault("server.enabled", d.Server.Enabled)
	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.base_path", d.Server.BasePath)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)

	v.SetDefault("history.dsn", d.History.DSN)

	v.SetDefault("tray.enabled", d.Tray.Enabled)
	v.SetDefault("tray.tooltip", d.Tray.Tooltip)
	v.SetDefault("tray.show_url", d.Tray.ShowURL)
	v.SetDefault("tray.notify", d.Tray.Notify)
}
