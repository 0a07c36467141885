// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package config loads session configuration from TOML files.
package config // import "mellium.im/engine/config"

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/text/language"

	"mellium.im/engine/internal/logging"
	"mellium.im/xmpp/jid"
)

// Defaults applied by Default and to values missing from a file.
const (
	DefaultPort      = 5222
	DefaultResource  = "engine"
	DefaultPageSize  = 50
	DefaultKeepalive = 5 * time.Minute
	DefaultTimeout   = 30 * time.Second
)

// Config is the configuration of a session.
type Config struct {
	Account   Account         `toml:"account"`
	Logging   LoggingConfig   `toml:"logging"`
	Rooms     []Room          `toml:"rooms"`
	Archive   ArchiveConfig   `toml:"archive"`
	Keepalive KeepaliveConfig `toml:"keepalive"`

	// Lang is the BCP 47 language of the session.
	Lang string `toml:"lang"`
}

// Account is the account to log in as.
type Account struct {
	JID      string `toml:"jid"`
	Password string `toml:"password"`
	Resource string `toml:"resource"`

	// Server and Port skip the SRV lookup of the domain.
	Server string `toml:"server"`
	Port   int    `toml:"port"`

	// Timeout bounds dialing and stream negotiation.
	Timeout time.Duration `toml:"timeout"`
}

// Addr returns the address of the account including the resource.
func (a Account) Addr() (jid.JID, error) {
	j, err := jid.Parse(a.JID)
	if err != nil {
		return jid.JID{}, fmt.Errorf("config: invalid account address %q: %w", a.JID, err)
	}
	if j.Localpart() == "" {
		return jid.JID{}, fmt.Errorf("config: account address %q has no localpart", a.JID)
	}
	if j.Resourcepart() != "" || a.Resource == "" {
		return j, nil
	}
	j, err = j.WithResource(a.Resource)
	if err != nil {
		return jid.JID{}, fmt.Errorf("config: invalid resource %q: %w", a.Resource, err)
	}
	return j, nil
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level   string `toml:"level"`
	File    string `toml:"file"`
	Console bool   `toml:"console"`
}

// Logger returns the configuration of a logger.
func (l LoggingConfig) Logger() logging.Config {
	return logging.Config{
		Level:   l.Level,
		File:    l.File,
		Console: l.Console,
	}
}

// Room is a room that is joined after logging in.
type Room struct {
	JID      string `toml:"jid"`
	Nick     string `toml:"nick"`
	Password string `toml:"password"`
}

// ArchiveConfig controls history loading.
type ArchiveConfig struct {
	// PageSize is the number of messages requested from an archive at once.
	PageSize int `toml:"page_size"`
}

// KeepaliveConfig controls the periodic ping of the server.
type KeepaliveConfig struct {
	// Interval between pings. Zero or less disables the keepalive.
	Interval time.Duration `toml:"interval"`
	Timeout  time.Duration `toml:"timeout"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Account: Account{
			Resource: DefaultResource,
			Port:     DefaultPort,
			Timeout:  DefaultTimeout,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Archive: ArchiveConfig{
			PageSize: DefaultPageSize,
		},
		Keepalive: KeepaliveConfig{
			Interval: DefaultKeepalive,
			Timeout:  DefaultTimeout,
		},
		Lang: "en",
	}
}

// Load reads the configuration file at path on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(expandPath(path), cfg)
	if err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	cfg.Logging.File = expandPath(cfg.Logging.File)
	return cfg, cfg.Validate()
}

// Validate reports configuration that cannot be used to log in.
func (c *Config) Validate() error {
	if c.Account.JID == "" {
		return errors.New("config: missing account jid")
	}
	if _, err := c.Account.Addr(); err != nil {
		return err
	}
	for _, r := range c.Rooms {
		j, err := jid.Parse(r.JID)
		if err != nil {
			return fmt.Errorf("config: invalid room %q: %w", r.JID, err)
		}
		if j.Resourcepart() != "" {
			return fmt.Errorf("config: room %q must be a bare address", r.JID)
		}
	}
	if _, err := language.Parse(c.Lang); c.Lang != "" && err != nil {
		return fmt.Errorf("config: invalid language %q: %w", c.Lang, err)
	}
	if c.Archive.PageSize <= 0 {
		c.Archive.PageSize = DefaultPageSize
	}
	if c.Account.Port == 0 {
		c.Account.Port = DefaultPort
	}
	return nil
}

// Language returns the parsed session language, or English if it is unset or
// invalid.
func (c *Config) Language() language.Tag {
	tag, err := language.Parse(c.Lang)
	if err != nil {
		return language.English
	}
	return tag
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
