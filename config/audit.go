package config

import (
	"fmt"

	"github.com/mfvargas/fieldops/infra/audit"
)

// AuditConfig defines settings for the audit trail store and rotation.
type AuditConfig struct {
	// Backend selects the store type: "none", "jsonl", "rotating" or
	// "sqlite".
	Backend string `json:"backend"`
	// Path is the file location of the store.
	Path string `json:"path"`
	// MaxSizeMB triggers rotation when the file exceeds this size in
	// megabytes. Rotating backend only.
	MaxSizeMB int `json:"max_size_mb"`
	// MaxBackups limits the number of rotated files to keep.
	MaxBackups int `json:"max_backups"`
	// MaxAgeDays removes rotated files older than this number of days.
	MaxAgeDays int `json:"max_age_days"`
}

func (c *AuditConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "none"
	}
	if c.Backend != "none" && c.Path == "" {
		c.Path = "audit.log"
	}
}

func (c AuditConfig) Validate() error {
	switch c.Backend {
	case "none", "jsonl", "rotating", "sqlite":
	default:
		return fmt.Errorf("unknown audit backend %s", c.Backend)
	}
	if c.Backend != "none" && c.Path == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}

// Options converts the section into backend options.
func (c AuditConfig) Options() audit.Options {
	return audit.Options{
		Backend:    c.Backend,
		Path:       c.Path,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
	}
}
