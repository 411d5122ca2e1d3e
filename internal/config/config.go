// Package config loads the console configuration. Precedence per field:
// config file, then environment variable, then built-in default.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the resolved console configuration.
type Config struct {
	Server  ServerConfig
	Session SessionConfig
	Log     LogConfig
	UI      UIConfig
}

// ServerConfig locates the trading engine server.
type ServerConfig struct {
	BaseURL    string
	StreamPath string
}

// StreamURL is the absolute push-stream endpoint.
func (s ServerConfig) StreamURL() string {
	return s.BaseURL + s.StreamPath
}

// SessionConfig tunes the controller cadences.
type SessionConfig struct {
	StatsInterval  time.Duration
	SignalInterval time.Duration
	ReconnectDelay time.Duration
	TradeLimit     int
}

// LogConfig tunes file logging.
type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// UIConfig carries dashboard settings and the default instrument sets
// sent with start commands.
type UIConfig struct {
	Title              string
	FuturesInstruments []string
	OptionsInstruments []string
}

// fileConfig is the on-disk yaml shape. Durations are in seconds to match
// the engine server's own config conventions.
type fileConfig struct {
	Server struct {
		BaseURL    string `yaml:"base_url"`
		StreamPath string `yaml:"stream_path"`
	} `yaml:"server"`
	Session struct {
		StatsIntervalSec  int `yaml:"stats_interval_sec"`
		SignalIntervalSec int `yaml:"signal_interval_sec"`
		ReconnectDelaySec int `yaml:"reconnect_delay_sec"`
		TradeLimit        int `yaml:"trade_limit"`
	} `yaml:"session"`
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
	UI struct {
		Title              string   `yaml:"title"`
		FuturesInstruments []string `yaml:"futures_instruments"`
		OptionsInstruments []string `yaml:"options_instruments"`
	} `yaml:"ui"`
}

// Load reads path if it exists and resolves the full configuration. A
// missing file is not an error; env vars and defaults cover everything.
func Load(path string) (*Config, error) {
	var file fileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &file); err != nil {
				return nil, errors.Wrapf(err, "parse config %s", path)
			}
		case os.IsNotExist(err):
			// fall through to env + defaults
		default:
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			BaseURL:    pick(file.Server.BaseURL, getEnv("LIVEDESK_SERVER_URL", "http://localhost:5000")),
			StreamPath: pick(file.Server.StreamPath, getEnv("LIVEDESK_STREAM_PATH", "/stream")),
		},
		Session: SessionConfig{
			StatsInterval:  seconds(file.Session.StatsIntervalSec, intEnv("LIVEDESK_STATS_INTERVAL_SEC", 5)),
			SignalInterval: seconds(file.Session.SignalIntervalSec, intEnv("LIVEDESK_SIGNAL_INTERVAL_SEC", 2)),
			ReconnectDelay: seconds(file.Session.ReconnectDelaySec, intEnv("LIVEDESK_RECONNECT_DELAY_SEC", 5)),
			TradeLimit:     pickInt(file.Session.TradeLimit, intEnv("LIVEDESK_TRADE_LIMIT", 50)),
		},
		Log: LogConfig{
			Level:      pick(file.Log.Level, getEnv("LOG_LEVEL", "info")),
			File:       pick(file.Log.File, getEnv("LOG_FILE", "logs/livedesk.log")),
			MaxSizeMB:  pickInt(file.Log.MaxSizeMB, 50),
			MaxBackups: pickInt(file.Log.MaxBackups, 5),
			MaxAgeDays: pickInt(file.Log.MaxAgeDays, 14),
		},
		UI: UIConfig{
			Title:              pick(file.UI.Title, "NIFTY Live Desk"),
			FuturesInstruments: file.UI.FuturesInstruments,
			OptionsInstruments: file.UI.OptionsInstruments,
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func pick(fileValue, fallback string) string {
	if fileValue != "" {
		return fileValue
	}
	return fallback
}

func pickInt(fileValue, fallback int) int {
	if fileValue > 0 {
		return fileValue
	}
	return fallback
}

func seconds(fileValue, fallback int) time.Duration {
	return time.Duration(pickInt(fileValue, fallback)) * time.Second
}
