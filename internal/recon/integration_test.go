package recon_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fincontrols/navrecon/internal/domain"
	"github.com/fincontrols/navrecon/internal/evidence"
	"github.com/fincontrols/navrecon/internal/logger"
	"github.com/fincontrols/navrecon/internal/recon"
	"github.com/fincontrols/navrecon/internal/table"
	"github.com/fincontrols/navrecon/internal/voucher"
)

// mockExtractor returns canned extracts per call.
type mockExtractor struct {
	GLEntriesFunc    func(ctx context.Context, entity string) (*recon.Extract, error)
	VoucherUsageFunc func(ctx context.Context, entity string) (*recon.Extract, error)
}

func (m *mockExtractor) GLEntries(ctx context.Context, entity string) (*recon.Extract, error) {
	return m.GLEntriesFunc(ctx, entity)
}

func (m *mockExtractor) VoucherUsage(ctx context.Context, entity string) (*recon.Extract, error) {
	return m.VoucherUsageFunc(ctx, entity)
}

type mockArchiver struct {
	UploadFunc func(ctx context.Context, localPath string) (string, error)
}

func (m *mockArchiver) Upload(ctx context.Context, localPath string) (string, error) {
	return m.UploadFunc(ctx, localPath)
}

var glColumns = []string{
	domain.ColAmountLCY,
	domain.ColGLAccount,
	domain.ColUserID,
	domain.ColDescription,
	domain.ColDocumentType,
	domain.ColBalAccountType,
	domain.ColVoucherID,
}

func sampleGL() *table.Table {
	return table.FromRows(glColumns, []table.Row{
		{
			domain.ColAmountLCY: 100.0, domain.ColGLAccount: voucher.AccrualAccount,
			domain.ColUserID: "manual1", domain.ColDescription: "",
			domain.ColDocumentType: "Payment", domain.ColBalAccountType: "Bank Account",
			domain.ColVoucherID: "V1",
		},
		{
			domain.ColAmountLCY: -25000.0, domain.ColGLAccount: voucher.AccrualAccount,
			domain.ColUserID: "manual2", domain.ColDescription: "Apology voucher issued",
			domain.ColDocumentType: "Invoice", domain.ColBalAccountType: "Customer",
			domain.ColVoucherID: "V2",
		},
		{
			domain.ColAmountLCY: 40.0, domain.ColGLAccount: voucher.AccrualAccount,
			domain.ColUserID: "NAV/batch", domain.ColDescription: "Voucher used on order",
			domain.ColDocumentType: "Invoice", domain.ColBalAccountType: "G/L Account",
			domain.ColVoucherID: "V3",
		},
	})
}

func sampleUsage() *table.Table {
	return table.FromRows([]string{domain.ColVoucherID, voucher.ColBusinessUse}, []table.Row{
		{domain.ColVoucherID: "V3", voucher.ColBusinessUse: domain.TypeRefund},
	})
}

func testConfig(t *testing.T) *recon.Config {
	t.Helper()
	dir := t.TempDir()
	return &recon.Config{
		Entity:          "NG",
		OutDir:          filepath.Join(dir, "audits"),
		EvidenceDir:     filepath.Join(dir, "evidence"),
		AuditLogPath:    filepath.Join(dir, "merge_audit.log"),
		SnapshotMaxRows: 10,
		Voucher:         voucher.DefaultConfig(),
	}
}

func testDeps(cfg *recon.Config) *recon.Deps {
	log := logger.NewWithWriter(&bytes.Buffer{})
	return &recon.Deps{
		Evidence:    evidence.NewGenerator(cfg.EvidenceDir, log),
		Categorizer: voucher.NewCategorizer(cfg.Voucher, log),
		AuditLog:    log,
		Log:         log,
	}
}

func happyExtractor() *mockExtractor {
	return &mockExtractor{
		GLEntriesFunc: func(ctx context.Context, entity string) (*recon.Extract, error) {
			return &recon.Extract{
				Table:  sampleGL(),
				Query:  "SELECT * FROM gl_entries WHERE account = @account AND entity = @entity",
				Params: map[string]any{"account": voucher.AccrualAccount, "entity": entity},
			}, nil
		},
		VoucherUsageFunc: func(ctx context.Context, entity string) (*recon.Extract, error) {
			return &recon.Extract{
				Table: sampleUsage(),
				Query: "SELECT voucher_id, business_use FROM voucher_usage WHERE entity = @entity",
			}, nil
		},
	}
}

func TestRun_FullReconciliation(t *testing.T) {
	cfg := testConfig(t)
	res, err := recon.Run(context.Background(), cfg, happyExtractor(), nil, testDeps(cfg))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.Digest == "" {
		t.Error("expected a seal digest")
	}
	if _, err := os.Stat(res.ArchivePath); err != nil {
		t.Errorf("archive not written: %v", err)
	}

	// Spec scenario: the positive manual bank line is VTC/Refund.
	entries := res.Pivot.Entries
	foundVTC := false
	for _, e := range entries {
		if e.Category == domain.BridgeVTC && e.VoucherType == domain.TypeRefund {
			foundVTC = true
		}
	}
	if !foundVTC {
		t.Errorf("pivot missing VTC/Refund entry: %+v", entries)
	}
	if res.Pivot.Total().RowCount != 3 {
		t.Errorf("total row count = %d, want 3", res.Pivot.Total().RowCount)
	}
}

func TestRun_IdenticalInputsIdenticalDigest(t *testing.T) {
	cfg1 := testConfig(t)
	res1, err := recon.Run(context.Background(), cfg1, happyExtractor(), nil, testDeps(cfg1))
	if err != nil {
		t.Fatalf("first Run failed: %v", err)
	}

	cfg2 := testConfig(t)
	res2, err := recon.Run(context.Background(), cfg2, happyExtractor(), nil, testDeps(cfg2))
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	if res1.Digest != res2.Digest {
		t.Errorf("digests differ across identical runs: %s vs %s", res1.Digest, res2.Digest)
	}
	if res1.ArchivePath == res2.ArchivePath {
		t.Error("two runs share an archive path; packages must never overwrite each other")
	}
}

func TestRun_ArchiverUpload(t *testing.T) {
	cfg := testConfig(t)
	arch := &mockArchiver{
		UploadFunc: func(ctx context.Context, localPath string) (string, error) {
			return "gs://evidence-bucket/" + filepath.Base(localPath), nil
		},
	}

	res, err := recon.Run(context.Background(), cfg, happyExtractor(), arch, testDeps(cfg))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.RemotePath == "" {
		t.Error("expected remote path from archiver")
	}
}

func TestRun_ExtractorFailureIsFatal(t *testing.T) {
	cfg := testConfig(t)
	ext := &mockExtractor{
		GLEntriesFunc: func(ctx context.Context, entity string) (*recon.Extract, error) {
			return nil, errors.New("warehouse unavailable")
		},
	}

	if _, err := recon.Run(context.Background(), cfg, ext, nil, testDeps(cfg)); err == nil {
		t.Fatal("Run succeeded despite extraction failure")
	}
}

func TestRun_MissingColumnIsFatalWithPartialEvidence(t *testing.T) {
	cfg := testConfig(t)
	ext := happyExtractor()
	ext.GLEntriesFunc = func(ctx context.Context, entity string) (*recon.Extract, error) {
		// No voucher_id column: the merge audit must fail fast.
		bad := table.FromRows([]string{domain.ColAmountLCY}, []table.Row{
			{domain.ColAmountLCY: 1.0},
		})
		return &recon.Extract{Table: bad, Query: "q"}, nil
	}

	_, err := recon.Run(context.Background(), cfg, ext, nil, testDeps(cfg))
	if err == nil {
		t.Fatal("Run succeeded despite missing join key")
	}
	var missing *table.MissingColumnError
	if !errors.As(err, &missing) {
		t.Errorf("error %v does not unwrap to MissingColumnError", err)
	}

	// The opened evidence package must be retained as a partial package.
	entries, globErr := filepath.Glob(filepath.Join(cfg.EvidenceDir, "voucher-recon-NG_*"))
	if globErr != nil || len(entries) == 0 {
		t.Error("no partial evidence package retained after failed run")
	}
}
