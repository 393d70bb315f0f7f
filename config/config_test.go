package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ardnew/sdcbridge/sdc"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.Card.Mountpoint != "/sd" {
		t.Errorf("mountpoint = %q, want /sd", cfg.Card.Mountpoint)
	}
	want := [sdc.NumDrives]string{"disk_a.st", "disk_b.st", "harddisk.hd", ""}
	if got := cfg.Defaults(); got != want {
		t.Errorf("Defaults() = %v, want %v", got, want)
	}

	opts := cfg.Options()
	if opts.LinkTableSize != 16 || opts.ReadyTimeout != 2*time.Second || opts.BusyTimeout != time.Second {
		t.Errorf("Options() = %+v", opts)
	}
	if opts.Extension != ".st" || opts.Defaults != want {
		t.Errorf("Options() = %+v", opts)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sdcbridge.yaml")
	content := `
card:
  mountpoint: /card
  link_table_size: 64
  busy_timeout: 250ms
images:
  b: ""
  acsi1: games/second.hd
log:
  level: debug
state: ${SDCBRIDGE_TEST_DIR}/session.cbor
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SDCBRIDGE_TEST_DIR", dir)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.Card.Mountpoint != "/card" || cfg.Card.LinkTableSize != 64 {
		t.Errorf("card = %+v", cfg.Card)
	}
	// Unset fields keep their defaults.
	if cfg.Card.Extension != ".st" || cfg.Card.ReadyTimeout != "2s" {
		t.Errorf("card defaults lost: %+v", cfg.Card)
	}
	want := [sdc.NumDrives]string{"disk_a.st", "", "harddisk.hd", "games/second.hd"}
	if got := cfg.Defaults(); got != want {
		t.Errorf("Defaults() = %v, want %v", got, want)
	}
	if cfg.State != filepath.Join(dir, "session.cbor") {
		t.Errorf("state = %q", cfg.State)
	}
	if cfg.Options().BusyTimeout != 250*time.Millisecond {
		t.Errorf("busy timeout = %v", cfg.Options().BusyTimeout)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv(EnvConfig, "")
	t.Setenv("HOME", "/home/test")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.State != "/home/test/.cache/sdcbridge/session.cbor" {
		t.Errorf("state = %q", cfg.State)
	}

	path := filepath.Join(t.TempDir(), "c.yaml")
	if err := os.WriteFile(path, []byte("link:\n  fifo_dir: /run/x\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfig, path)
	if cfg, err = Load(); err != nil {
		t.Fatal(err)
	}
	if cfg.Link.FIFODir != "/run/x" {
		t.Errorf("fifo_dir = %q", cfg.Link.FIFODir)
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); !os.IsNotExist(err) {
		t.Errorf("missing file error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("card: [not, a, map]\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile() of malformed yaml succeeded")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"relative mountpoint", func(c *Config) { c.Card.Mountpoint = "sd" }, "card.mountpoint"},
		{"extension without dot", func(c *Config) { c.Card.Extension = "st" }, "card.extension"},
		{"small link table", func(c *Config) { c.Card.LinkTableSize = 2 }, "card.link_table_size"},
		{"bad duration", func(c *Config) { c.Card.ReadyTimeout = "soon" }, "card.ready_timeout"},
		{"negative duration", func(c *Config) { c.Link.Timeout = "-1s" }, "link.timeout"},
		{"no fifo dir", func(c *Config) { c.Link.FIFODir = "" }, "link.fifo_dir"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Images.ACSI1 = "second.hd"
	data, err := cfg.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "acsi1: second.hd") {
		t.Errorf("marshalled config missing image:\n%s", data)
	}
}
