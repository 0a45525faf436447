package recon

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fincontrols/navrecon/internal/voucher"
)

// Config is the per-run configuration for a reconciliation. One file per
// entity; the orchestrator passes the path when it schedules the run.
type Config struct {
	// Entity is the company code the run reconciles (e.g. "NG", "EG").
	Entity string `yaml:"entity"`

	// OutDir receives merge-audit CSV dumps.
	OutDir string `yaml:"out_dir"`

	// EvidenceDir receives evidence package directories and archives.
	EvidenceDir string `yaml:"evidence_dir"`

	// AuditLogPath is the persistent append-only merge-audit log.
	AuditLogPath string `yaml:"audit_log_path"`

	// SnapshotMaxRows caps evidence data snapshots.
	SnapshotMaxRows int `yaml:"snapshot_max_rows"`

	// ArchiveBucket, when set, uploads finalized evidence archives to GCS.
	ArchiveBucket string `yaml:"archive_bucket"`

	Voucher voucher.Config `yaml:"voucher"`
}

// LoadConfig reads a run configuration from a YAML file and applies defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("recon.LoadConfig: read %q: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("recon.LoadConfig: decode %q: %w", path, err)
	}
	cfg.applyDefaults()
	if cfg.Entity == "" {
		return nil, fmt.Errorf("recon.LoadConfig: %q: entity is required", path)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.OutDir == "" {
		c.OutDir = "out/merge_audits"
	}
	if c.EvidenceDir == "" {
		c.EvidenceDir = "out/evidence"
	}
	if c.AuditLogPath == "" {
		c.AuditLogPath = "out/merge_audit.log"
	}
	if c.SnapshotMaxRows == 0 {
		c.SnapshotMaxRows = 100
	}
	if len(c.Voucher.IntegrationPrefixes) == 0 {
		c.Voucher = voucher.DefaultConfig()
	}
}
