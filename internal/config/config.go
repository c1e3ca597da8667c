// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads peer and relay configuration from a YAML file and
// command-line flags, flags taking precedence.
package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	koanfyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/theatre/internal/xdg"
)

// CodeInvalidConfig is returned when configuration fails to load or validate.
const CodeInvalidConfig = "INVALID_CONFIG"

// DisplayMode selects how the dock lays out inserts.
type DisplayMode string

// Display modes.
const (
	// DisplayDock picks single, dual or bar layout from the insert count.
	DisplayDock DisplayMode = "dock"
	// DisplayBar always uses the continuous bar.
	DisplayBar DisplayMode = "bar"
)

// Settings is the read-only view the stage consumes.
type Settings interface {
	Mode() DisplayMode
	NarratorBarHeight() int
	// DecayFor returns how long a line of n characters stays visible.
	DecayFor(n int) time.Duration
}

// Config holds everything a theatre process can be configured with.
type Config struct {
	PeerID      string `koanf:"peer-id"`
	UserID      string `koanf:"user-id"`
	GM          bool   `koanf:"gm"`
	Relay       string `koanf:"relay"`
	ListenAddr  string `koanf:"listen-addr"`
	MetricsAddr string `koanf:"metrics-addr"`
	LogFormat   string `koanf:"log-format"`
	LogLevel    string `koanf:"log-level"`
	Locale      string `koanf:"locale"`

	Actors  string   `koanf:"actors"`
	Assets  string   `koanf:"assets"`
	GMs     []string `koanf:"gms"`
	Journal string   `koanf:"journal"`
	Frames  string   `koanf:"frames"`

	DisplayMode    DisplayMode   `koanf:"display-mode"`
	Width          int           `koanf:"width"`
	Height         int           `koanf:"height"`
	NarratorHeight int           `koanf:"narrator-height"`
	TextDecayMin   time.Duration `koanf:"text-decay-min"`
	TextDecayRate  time.Duration `koanf:"text-decay-rate"`
}

var _ Settings = (*Config)(nil)

// Defaults.
const (
	DefaultListenAddr     = "127.0.0.1:7450"
	DefaultMetricsAddr    = "127.0.0.1:9450"
	DefaultLogFormat      = "json"
	DefaultLocale         = "en-US"
	DefaultWidth          = 960
	DefaultHeight         = 400
	DefaultNarratorHeight = 48
	DefaultTextDecayMin   = 30 * time.Second
	DefaultTextDecayRate  = 70 * time.Millisecond
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr:     DefaultListenAddr,
		MetricsAddr:    DefaultMetricsAddr,
		LogFormat:      DefaultLogFormat,
		LogLevel:       "info",
		Locale:         DefaultLocale,
		DisplayMode:    DisplayDock,
		Width:          DefaultWidth,
		Height:         DefaultHeight,
		NarratorHeight: DefaultNarratorHeight,
		TextDecayMin:   DefaultTextDecayMin,
		TextDecayRate:  DefaultTextDecayRate,
	}
}

// RegisterFlags adds the shared flags to fs with their default values.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "config file (default: XDG_CONFIG_HOME/theatre/config.yaml)")
	fs.String("peer-id", "", "peer id (default: random ULID)")
	fs.String("user-id", "", "user this peer acts for")
	fs.Bool("gm", false, "this peer belongs to a game master")
	fs.String("relay", "", "relay websocket URL")
	fs.String("listen-addr", d.ListenAddr, "relay listen address")
	fs.String("metrics-addr", d.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.String("log-format", d.LogFormat, "log format (json or text)")
	fs.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")
	fs.String("locale", d.Locale, "locale for notifications")
	fs.String("actors", "", "actor catalog file (default: XDG_CONFIG_HOME/theatre/actors.yaml)")
	fs.String("assets", "", "asset directory or http(s) base URL")
	fs.StringSlice("gms", nil, "user ids with game master rights")
	fs.String("journal", "", "journal file for sent and received envelopes (\"auto\" = XDG_STATE_HOME/theatre/journal)")
	fs.String("frames", "", "directory for PNG frame dumps")
	fs.String("display-mode", string(d.DisplayMode), "dock or bar")
	fs.Int("width", d.Width, "stage width in pixels")
	fs.Int("height", d.Height, "stage height in pixels")
	fs.Int("narrator-height", d.NarratorHeight, "narrator bar height in pixels")
	fs.Duration("text-decay-min", d.TextDecayMin, "minimum time a line stays visible")
	fs.Duration("text-decay-rate", d.TextDecayRate, "extra visible time per character")
}

// Load reads the config file, then applies flags. The file named by the
// --config flag must exist; the XDG default is optional.
func Load(flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	path, explicit := "", false
	if flags != nil {
		if f := flags.Lookup("config"); f != nil && f.Value.String() != "" {
			path, explicit = f.Value.String(), true
		}
	}
	if path == "" {
		path = xdg.ConfigFile()
	}

	_, statErr := os.Stat(path)
	if explicit || !errors.Is(statErr, fs.ErrNotExist) {
		if err := k.Load(file.Provider(path), koanfyaml.Parser()); err != nil {
			return nil, oops.Code(CodeInvalidConfig).With("path", path).Wrapf(err, "load config file")
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code(CodeInvalidConfig).Wrapf(err, "load flags")
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code(CodeInvalidConfig).Wrapf(err, "decode config")
	}
	if cfg.Actors == "" {
		if _, err := os.Stat(xdg.ActorsFile()); err == nil {
			cfg.Actors = xdg.ActorsFile()
		}
	}
	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return invalid("log-format must be 'json' or 'text', got %q", c.LogFormat)
	}
	if c.DisplayMode != DisplayDock && c.DisplayMode != DisplayBar {
		return invalid("display-mode must be 'dock' or 'bar', got %q", c.DisplayMode)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return invalid("width and height must be positive, got %dx%d", c.Width, c.Height)
	}
	if c.NarratorHeight < 0 || c.NarratorHeight >= c.Height {
		return invalid("narrator-height must be in [0, %d), got %d", c.Height, c.NarratorHeight)
	}
	if c.TextDecayMin <= 0 {
		return invalid("text-decay-min must be positive, got %s", c.TextDecayMin)
	}
	if c.TextDecayRate < 0 {
		return invalid("text-decay-rate must not be negative, got %s", c.TextDecayRate)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return oops.Code(CodeInvalidConfig).Errorf(format, args...)
}

// Mode implements Settings.
func (c *Config) Mode() DisplayMode {
	return c.DisplayMode
}

// NarratorBarHeight implements Settings.
func (c *Config) NarratorBarHeight() int {
	return c.NarratorHeight
}

// DecayFor implements Settings.
func (c *Config) DecayFor(n int) time.Duration {
	d := time.Duration(n) * c.TextDecayRate
	if d < c.TextDecayMin {
		return c.TextDecayMin
	}
	return d
}
