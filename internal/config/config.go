package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DataDir   string `yaml:"data_dir"`
	WorldID   string `yaml:"world_id"`
	Pricing   string `yaml:"pricing_file,omitempty"`
	AdminAddr string `yaml:"admin_addr"`

	AutosaveInterval time.Duration `yaml:"autosave_interval"`
	BackupsKeep      int           `yaml:"backups_keep"`
	Compression      string        `yaml:"compression"`
	StrictArity      bool          `yaml:"strict_arity"`

	IndexDB  bool `yaml:"index_db"`
	AuditLog bool `yaml:"audit_log"`
	// AuditRotate is how often the audit log starts a new file.
	AuditRotate time.Duration `yaml:"audit_rotate"`
}

func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("server.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("server.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		DataDir:          "data",
		WorldID:          "angel_island",
		AdminAddr:        "127.0.0.1:8091",
		AutosaveInterval: 30 * time.Minute,
		BackupsKeep:      10,
		Compression:      "default",
		StrictArity:      true,
		IndexDB:          true,
		AuditLog:         true,
		AuditRotate:      time.Hour,
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	c.DataDir = strings.TrimSpace(c.DataDir)
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	c.WorldID = strings.TrimSpace(c.WorldID)
	c.Compression = strings.ToLower(strings.TrimSpace(c.Compression))
	if c.Compression == "" {
		c.Compression = "default"
	}
	if strings.TrimSpace(c.Pricing) == "" {
		c.Pricing = filepath.Join(c.DataDir, "config", "pricing.xml")
	}
	if c.AuditRotate <= 0 {
		c.AuditRotate = time.Hour
	}
	c.AdminAddr = strings.TrimSpace(c.AdminAddr)
}

// SetDataDir moves the data directory. A pricing file that was derived from
// the old data directory follows it; one named explicitly stays put.
func (c *Config) SetDataDir(dir string) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return
	}
	derived := filepath.Join(c.DataDir, "config", "pricing.xml")
	if p := strings.TrimSpace(c.Pricing); p == "" || filepath.Clean(p) == derived {
		c.Pricing = ""
	}
	c.DataDir = dir
	c.Normalize()
}

var worldIDRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func (c Config) Validate() error {
	c.Normalize()
	if !worldIDRe.MatchString(c.WorldID) {
		return fmt.Errorf("world_id %q must match %s", c.WorldID, worldIDRe)
	}
	if c.AutosaveInterval < 0 {
		return fmt.Errorf("autosave_interval must be >= 0")
	}
	if c.AutosaveInterval > 0 && c.AutosaveInterval < time.Minute {
		return fmt.Errorf("autosave_interval must be 0 (off) or at least 1m")
	}
	if c.BackupsKeep < 0 {
		return fmt.Errorf("backups_keep must be >= 0")
	}
	if ok, _ := zstd.EncoderLevelFromString(c.Compression); !ok {
		return fmt.Errorf("compression %q must be one of fastest, default, better, best", c.Compression)
	}
	if c.AdminAddr != "" {
		if err := checkLoopback(c.AdminAddr); err != nil {
			return fmt.Errorf("admin_addr: %w", err)
		}
	}
	return nil
}

// checkLoopback rejects listen addresses reachable from off the host.
func checkLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("%q is not a loopback address", addr)
	}
	return nil
}

func (c Config) Level() zstd.EncoderLevel {
	if ok, lvl := zstd.EncoderLevelFromString(c.Compression); ok {
		return lvl
	}
	return zstd.SpeedDefault
}

// SavesDir holds the current save and its backups.
func (c Config) SavesDir() string { return filepath.Join(c.DataDir, "saves", c.WorldID) }

func (c Config) CurrentDir() string { return filepath.Join(c.SavesDir(), "current") }

func (c Config) BackupsDir() string { return filepath.Join(c.SavesDir(), "backups") }

func (c Config) IndexPath() string {
	return filepath.Join(c.DataDir, "index", c.WorldID+".sqlite")
}

func (c Config) AuditDir() string { return filepath.Join(c.DataDir, "audit", c.WorldID) }
