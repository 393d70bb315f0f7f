// Package config loads the bridge configuration.
//
// Configuration comes from a single YAML file named by the --config flag
// or the SDCBRIDGE_CONFIG environment variable. Values missing from the
// file keep their defaults; command line flags override both.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ardnew/sdcbridge/pkg"
	"github.com/ardnew/sdcbridge/sdc"
)

// EnvConfig names the environment variable holding the config file path.
const EnvConfig = "SDCBRIDGE_CONFIG"

// Config is the bridge configuration.
type Config struct {
	// Card configures the SD card volume.
	Card CardConfig `yaml:"card"`

	// Images names the image opened in each drive at startup, relative to
	// the volume root. An empty name leaves the drive empty.
	Images ImagesConfig `yaml:"images"`

	// Link configures the transport to the core.
	Link LinkConfig `yaml:"link"`

	// Log configures logging.
	Log LogConfig `yaml:"log"`

	// State is the session file remembering inserted images. Empty
	// disables persistence.
	State string `yaml:"state"`
}

// CardConfig configures the SD card volume.
type CardConfig struct {
	// Mountpoint is the display prefix of the volume.
	// Default: /sd
	Mountpoint string `yaml:"mountpoint"`

	// Extension filters image files in directory listings.
	// Default: .st
	Extension string `yaml:"extension"`

	// LinkTableSize is the initial link table size in 32-bit items.
	// Default: 16
	LinkTableSize int `yaml:"link_table_size"`

	// ReadyTimeout bounds the wait for card initialization.
	// Default: 2s
	ReadyTimeout string `yaml:"ready_timeout"`

	// BusyTimeout bounds each wait for a sector transfer.
	// Default: 1s
	BusyTimeout string `yaml:"busy_timeout"`
}

// ImagesConfig names the default image per drive.
type ImagesConfig struct {
	A     string `yaml:"a"`
	B     string `yaml:"b"`
	ACSI0 string `yaml:"acsi0"`
	ACSI1 string `yaml:"acsi1"`
}

// LinkConfig configures the transport.
type LinkConfig struct {
	// FIFODir holds the named pipes shared with the core.
	// Default: /tmp/sdcbridge
	FIFODir string `yaml:"fifo_dir"`

	// Timeout bounds each byte exchange.
	// Default: 5s
	Timeout string `yaml:"timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`

	// Format is text or json.
	// Default: text
	Format string `yaml:"format"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Card: CardConfig{
			Mountpoint:    sdc.DefaultMountpoint,
			Extension:     sdc.DefaultExtension,
			LinkTableSize: sdc.DefaultLinkTableSize,
			ReadyTimeout:  sdc.DefaultReadyTimeout.String(),
			BusyTimeout:   sdc.DefaultBusyTimeout.String(),
		},
		Images: ImagesConfig{
			A:     "disk_a.st",
			B:     "disk_b.st",
			ACSI0: "harddisk.hd",
		},
		Link: LinkConfig{
			FIFODir: "/tmp/sdcbridge",
			Timeout: "5s",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		State: "${HOME}/.cache/sdcbridge/session.cbor",
	}
}

// Load loads the file named by SDCBRIDGE_CONFIG. Without the variable
// the defaults are returned.
func Load() (*Config, error) {
	path := os.Getenv(EnvConfig)
	if path == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.expandVariables()
	return cfg, nil
}

// Marshal encodes the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVariables expands ${VAR} and ${VAR:-default} in paths.
func (c *Config) expandVariables() {
	c.State = expandVars(c.State)
	c.Link.FIFODir = expandVars(c.Link.FIFODir)
}

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if !strings.HasPrefix(c.Card.Mountpoint, "/") {
		errs = append(errs, fmt.Errorf("card.mountpoint must be absolute: %q", c.Card.Mountpoint))
	}
	if c.Card.Extension != "" && !strings.HasPrefix(c.Card.Extension, ".") {
		errs = append(errs, fmt.Errorf("card.extension must start with a dot: %q", c.Card.Extension))
	}
	if c.Card.LinkTableSize < 4 {
		errs = append(errs, fmt.Errorf("card.link_table_size must be at least 4, got %d", c.Card.LinkTableSize))
	}
	durations := []struct{ name, value string }{
		{"card.ready_timeout", c.Card.ReadyTimeout},
		{"card.busy_timeout", c.Card.BusyTimeout},
		{"link.timeout", c.Link.Timeout},
	}
	for _, d := range durations {
		if v, err := time.ParseDuration(d.value); err != nil || v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be a positive duration: %q", d.name, d.value))
		}
	}
	if c.Link.FIFODir == "" {
		errs = append(errs, errors.New("link.fifo_dir is required"))
	}
	if _, err := pkg.ParseLogLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if _, err := pkg.ParseLogFormat(c.Log.Format); err != nil {
		errs = append(errs, fmt.Errorf("log.format: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Defaults returns the default image names indexed by drive.
func (c *Config) Defaults() [sdc.NumDrives]string {
	return [sdc.NumDrives]string{c.Images.A, c.Images.B, c.Images.ACSI0, c.Images.ACSI1}
}

// LinkTimeout returns the parsed link timeout. Call Validate first.
func (c *Config) LinkTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Link.Timeout)
	return d
}

// Options converts the configuration to controller options. Call
// Validate first.
func (c *Config) Options() sdc.Options {
	opts := sdc.DefaultOptions()
	opts.Mountpoint = c.Card.Mountpoint
	opts.Extension = c.Card.Extension
	opts.LinkTableSize = c.Card.LinkTableSize
	opts.Defaults = c.Defaults()
	if d, err := time.ParseDuration(c.Card.ReadyTimeout); err == nil {
		opts.ReadyTimeout = d
	}
	if d, err := time.ParseDuration(c.Card.BusyTimeout); err == nil {
		opts.BusyTimeout = d
	}
	return opts
}

// ApplyLogging configures the package logger from the log section.
func (c *Config) ApplyLogging() error {
	level, err := pkg.ParseLogLevel(c.Log.Level)
	if err != nil {
		return err
	}
	format, err := pkg.ParseLogFormat(c.Log.Format)
	if err != nil {
		return err
	}
	pkg.SetLogFormat(format)
	pkg.SetLogLevel(level)
	return nil
}
