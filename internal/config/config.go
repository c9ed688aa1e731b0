// Package config loads msgbridge configuration from an optional TOML or
// YAML file and MSGBRIDGE_* environment variables.
//
// Precedence, lowest to highest: built-in defaults, config file, environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"msgbridge/pkg/protocol"
)

// EnvPrefix prefixes every environment variable the config reads.
const EnvPrefix = "MSGBRIDGE_"

// CurrentVersion is the config_version written by this release.
const CurrentVersion = 1

// Log formats.
const (
	LogFormatAuto = "auto" // text on a terminal, JSON otherwise
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config is the complete server configuration.
type Config struct {
	ConfigVersion int `toml:"config_version" yaml:"config_version" env:"CONFIG_VERSION"`

	// Home is the state directory. It comes from MSGBRIDGE_HOME only.
	Home string `toml:"-" yaml:"-" env:"HOME"`

	InstallRoot  string `toml:"install_root" yaml:"install_root" env:"INSTALL_ROOT"`
	ScriptsDir   string `toml:"scripts_dir" yaml:"scripts_dir" env:"SCRIPTS_DIR"`
	WatchScripts bool   `toml:"watch_scripts" yaml:"watch_scripts" env:"WATCH_SCRIPTS"`

	Interpreter   string   `toml:"interpreter" yaml:"interpreter" env:"INTERPRETER"`
	TargetApp     string   `toml:"target_app" yaml:"target_app" env:"TARGET_APP"`
	RestartDelay  Duration `toml:"restart_delay" yaml:"restart_delay" env:"RESTART_DELAY"`
	ScriptTimeout Duration `toml:"script_timeout" yaml:"script_timeout" env:"SCRIPT_TIMEOUT"`

	SocketPath  string `toml:"socket_path" yaml:"socket_path" env:"SOCKET_PATH"`
	PIDPath     string `toml:"pid_path" yaml:"pid_path" env:"PID_PATH"`
	JournalPath string `toml:"journal_path" yaml:"journal_path" env:"JOURNAL_PATH"`

	LogLevel       string `toml:"log_level" yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat      string `toml:"log_format" yaml:"log_format" env:"LOG_FORMAT"`
	CreateLogFiles bool   `toml:"create_log_files" yaml:"create_log_files" env:"CREATE_LOG_FILES"`
	LogDir         string `toml:"log_dir" yaml:"log_dir" env:"LOG_DIR"`

	// Session-layer settings. The dispatch path does not read them; they
	// are carried so one file configures the whole server.
	Port              int    `toml:"port" yaml:"port" env:"PORT"`
	SendNotifications bool   `toml:"send_notifications" yaml:"send_notifications" env:"SEND_NOTIFICATIONS"`
	SyncContactPhotos bool   `toml:"sync_contact_photos" yaml:"sync_contact_photos" env:"SYNC_CONTACT_PHOTOS"`
	TranscodeVideos   bool   `toml:"transcode_videos" yaml:"transcode_videos" env:"TRANSCODE_VIDEOS"`
	FFmpegLocation    string `toml:"ffmpeg_location" yaml:"ffmpeg_location" env:"FFMPEG_LOCATION"`
}

// Default returns the built-in configuration rooted at home.
func Default(home string) Config {
	return Config{
		ConfigVersion:     CurrentVersion,
		Home:              home,
		InstallRoot:       home,
		Interpreter:       "osascript",
		TargetApp:         "Messages",
		RestartDelay:      Duration{200 * time.Millisecond},
		ScriptTimeout:     Duration{2 * time.Minute},
		SocketPath:        filepath.Join(home, "msgbridge.sock"),
		PIDPath:           filepath.Join(home, "msgbridge.pid"),
		JournalPath:       filepath.Join(home, "journal.db"),
		LogLevel:          "info",
		LogFormat:         LogFormatAuto,
		LogDir:            filepath.Join(home, "logs"),
		Port:              22753,
		SendNotifications: true,
		SyncContactPhotos: true,
	}
}

// ResolveHome returns MSGBRIDGE_HOME or ~/.msgbridge.
func ResolveHome() (string, error) {
	if v := os.Getenv(EnvPrefix + "HOME"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, protocol.HomeDir), nil
}

// Load builds the configuration: defaults under the resolved home, then
// path (if non-empty), then environment overrides. When path is empty,
// <home>/config.toml and <home>/config.yaml are tried in that order.
func Load(path string) (Config, error) {
	home, err := ResolveHome()
	if err != nil {
		return Config{}, err
	}
	cfg := Default(home)

	if path == "" {
		path = discover(home)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// discover returns the first existing default config file under home.
func discover(home string) string {
	for _, name := range []string{"config.toml", "config.yaml", "config.yml"} {
		p := filepath.Join(home, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// loadFile decodes path over c, choosing the format by extension.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // config path is operator-supplied
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if err := toml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse toml config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse yaml config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("config %s: unsupported extension %q (want .toml, .yaml or .yml)", path, ext)
	}
	return nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Interpreter) == "" {
		errs = append(errs, errors.New("interpreter must not be empty"))
	}
	if strings.TrimSpace(c.TargetApp) == "" {
		errs = append(errs, errors.New("target_app must not be empty"))
	}
	if c.InstallRoot == "" && c.ScriptsDir == "" {
		errs = append(errs, errors.New("install_root or scripts_dir must be set"))
	}
	if c.RestartDelay.Duration < 0 {
		errs = append(errs, fmt.Errorf("restart_delay must not be negative, got %s", c.RestartDelay))
	}
	if c.ScriptTimeout.Duration < 0 {
		errs = append(errs, fmt.Errorf("script_timeout must not be negative, got %s", c.ScriptTimeout))
	}
	switch c.LogFormat {
	case LogFormatAuto, LogFormatText, LogFormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log_format must be auto, text or json, got %q", c.LogFormat))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port out of range: %d", c.Port))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ScriptsPath returns scripts_dir, or <install_root>/scripts when unset.
func (c *Config) ScriptsPath() string {
	if c.ScriptsDir != "" {
		return c.ScriptsDir
	}
	return filepath.Join(c.InstallRoot, protocol.ScriptsDir)
}

// LogFilePath returns the server log file used when create_log_files is on.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.LogDir, "msgbridge.log")
}
