// Package config loads the client configuration from an optional TOML file.
package config

import (
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the whole client configuration.
type Config struct {
	Server  Server  `koanf:"server"`
	Session Session `koanf:"session"`
	Page    Page    `koanf:"page"`
	Debug   Debug   `koanf:"debug"`
}

// Server points the panels at the comment/rating API.
type Server struct {
	BaseURL        string `koanf:"base_url"`
	RequestTimeout int    `koanf:"request_timeout"` // Request timeout in milliseconds
}

// Session names the viewer the panels act as. Empty means anonymous:
// everything renders, mutations are inert.
type Session struct {
	Viewer string `koanf:"viewer"`
}

// Page selects which content page to mount the panels on.
type Page struct {
	Type   string `koanf:"type"` // "novel" or "chapter"
	ItemID int64  `koanf:"item_id"`
}

// Debug contains logging configuration. The TUI owns the terminal, so logs
// go to a file; an empty path disables them.
type Debug struct {
	LogLevel string `koanf:"log_level"`
	LogFile  string `koanf:"log_file"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server:  Server{BaseURL: "http://localhost:8940", RequestTimeout: 10000},
		Page:    Page{Type: "novel", ItemID: 1},
		Debug:   Debug{LogLevel: "info"},
		Session: Session{},
	}
}

// Load reads the config file at path on top of the defaults. A missing file
// is only an error when the path was given explicitly.
func Load(path string, explicit bool) (Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if explicit {
			return cfg, fmt.Errorf("config file %s does not exist", path)
		}
		return cfg, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		return cfg, fmt.Errorf("failed to load config file: %w", err)
	}
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}
