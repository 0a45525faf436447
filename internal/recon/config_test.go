package recon

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, "entity: NG\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Entity != "NG" {
		t.Errorf("Entity = %q, want NG", cfg.Entity)
	}
	if cfg.SnapshotMaxRows != 100 {
		t.Errorf("SnapshotMaxRows = %d, want default 100", cfg.SnapshotMaxRows)
	}
	if len(cfg.Voucher.IntegrationPrefixes) == 0 {
		t.Error("expected default integration prefixes")
	}
	if cfg.OutDir == "" || cfg.EvidenceDir == "" || cfg.AuditLogPath == "" {
		t.Error("expected default output paths")
	}
}

func TestLoadConfig_Explicit(t *testing.T) {
	path := writeConfig(t, `
entity: EG
out_dir: /var/recon/audits
snapshot_max_rows: 25
voucher:
  integration_prefixes: ["API/"]
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.OutDir != "/var/recon/audits" {
		t.Errorf("OutDir = %q", cfg.OutDir)
	}
	if cfg.SnapshotMaxRows != 25 {
		t.Errorf("SnapshotMaxRows = %d, want 25", cfg.SnapshotMaxRows)
	}
	if len(cfg.Voucher.IntegrationPrefixes) != 1 || cfg.Voucher.IntegrationPrefixes[0] != "API/" {
		t.Errorf("IntegrationPrefixes = %v, want [API/]", cfg.Voucher.IntegrationPrefixes)
	}
	if !cfg.Voucher.IsIntegrated("API/poster") {
		t.Error("configured prefix not applied")
	}
	if cfg.Voucher.IsIntegrated("NAV/batch") {
		t.Error("default prefixes must not leak into an explicit config")
	}
}

func TestLoadConfig_MissingEntity(t *testing.T) {
	path := writeConfig(t, "out_dir: /tmp/x\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig accepted a config without entity")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("LoadConfig accepted a missing file")
	}
}
