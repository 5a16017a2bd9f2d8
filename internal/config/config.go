/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/kentakayama/subdevice-fota/resources"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Config captures the tunables required to start the firmware update daemon.
type Config struct {
	Identity Identity       `mapstructure:"identity"`
	Database DatabaseConfig `mapstructure:"database"`
	Edge     EdgeConfig     `mapstructure:"edge"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Events   EventsConfig   `mapstructure:"events"`
	Log      LogConfig      `mapstructure:"log"`

	Logger zerolog.Logger `mapstructure:"-"`
}

// Identity is what a manifest must name to be accepted for a subdevice.
type Identity struct {
	VendorID string `mapstructure:"vendor_id"`
	ClassID  string `mapstructure:"class_id"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type EdgeConfig struct {
	URL         string         `mapstructure:"url"`
	Name        string         `mapstructure:"name"`
	DialTimeout time.Duration  `mapstructure:"dial_timeout"`
	Logger      zerolog.Logger `mapstructure:"-"`
}

type LedgerConfig struct {
	MaxInFlight int `mapstructure:"max_in_flight"`
}

type AdminConfig struct {
	Addr string `mapstructure:"addr"`
}

type EventsConfig struct {
	NATSURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads the embedded defaults, merges the optional file at path and
// applies FOTA_* environment overrides (e.g. FOTA_EDGE_URL).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(resources.DefaultConfig)); err != nil {
		return nil, fmt.Errorf("read default config: %w", err)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	v.SetEnvPrefix("FOTA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Identity.VendorID == "" || cfg.Identity.ClassID == "" {
		return nil, fmt.Errorf("identity.vendor_id and identity.class_id are required")
	}

	cfg.Logger = NewLogger(cfg.Log, os.Stderr)
	cfg.Edge.Logger = cfg.Logger.With().Str("component", "edgerpc").Logger()
	return &cfg, nil
}

// NewLogger builds the process logger; unknown levels fall back to info.
func NewLogger(lc LogConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(lc.Level)
	if err != nil || lc.Level == "" {
		level = zerolog.InfoLevel
	}
	if lc.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
