package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fincontrols/navrecon/internal/classify"
	"github.com/fincontrols/navrecon/internal/evidence"
	"github.com/fincontrols/navrecon/internal/gcsarchive"
	infraBQ "github.com/fincontrols/navrecon/internal/infra/bigquery"
	"github.com/fincontrols/navrecon/internal/logger"
	"github.com/fincontrols/navrecon/internal/mergeaudit"
	"github.com/fincontrols/navrecon/internal/pivot"
	"github.com/fincontrols/navrecon/internal/recon"
	"github.com/fincontrols/navrecon/internal/rules"
	"github.com/fincontrols/navrecon/internal/table"
	"github.com/fincontrols/navrecon/internal/voucher"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "reconcile":
		runReconcile(log)
	case "classify":
		runClassify(log)
	case "pivot":
		runPivot(log)
	case "audit-merge":
		runAuditMerge(log)
	case "verify":
		runVerify(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("NAV Reconciliation CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  reconcile    Run the full voucher reconciliation for an entity")
	fmt.Println("  classify     Classify a CSV extract against a rule catalog")
	fmt.Println("  pivot        Build the category pivot from a classified CSV")
	fmt.Println("  audit-merge  Audit a join between two CSV extracts")
	fmt.Println("  verify       Recompute a table digest against a sealed one")
	fmt.Println("  help         Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func runReconcile(log zerolog.Logger) {
	fs := flag.NewFlagSet("reconcile", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to the run configuration YAML")
	projectID := fs.String("project", "", "GCP project hosting the warehouse")
	fs.Parse(os.Args[2:])

	if *configPath == "" || *projectID == "" {
		log.Fatal().Msg("Usage: cli reconcile -config PATH -project ID")
	}

	cfg, err := recon.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	ext, err := infraBQ.NewExtractor(ctx, *projectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create extractor")
	}
	defer ext.Close()

	var arch recon.Archiver
	if cfg.ArchiveBucket != "" {
		arch = gcsarchive.NewUploader(cfg.ArchiveBucket)
	}

	auditLog, closer := logger.NewAuditLogger(cfg.AuditLogPath)
	defer closer.Close()

	deps := &recon.Deps{
		Evidence:    evidence.NewGenerator(cfg.EvidenceDir, log),
		Categorizer: voucher.NewCategorizer(cfg.Voucher, log),
		AuditLog:    auditLog,
		Log:         log,
	}

	log.Info().Str("entity", cfg.Entity).Msg("Starting reconciliation")

	res, err := recon.Run(ctx, cfg, ext, arch, deps)
	if err != nil {
		log.Fatal().Err(err).Msg("Reconciliation failed")
	}

	fmt.Printf("Reconciliation complete for %s\n", res.Entity)
	fmt.Printf("  Digest:  sha256:%s\n", res.Digest)
	fmt.Printf("  Archive: %s\n", res.ArchivePath)
	if res.RemotePath != "" {
		fmt.Printf("  Remote:  %s\n", res.RemotePath)
	}
	printEntries(res.Pivot)
}

func runClassify(log zerolog.Logger) {
	fs := flag.NewFlagSet("classify", flag.ExitOnError)
	inputPath := fs.String("input", "", "CSV extract to classify")
	catalogPath := fs.String("catalog", "", "Rule catalog YAML")
	outPath := fs.String("out", "", "Where to write the classified CSV")
	fs.Parse(os.Args[2:])

	if *inputPath == "" || *catalogPath == "" || *outPath == "" {
		log.Fatal().Msg("Usage: cli classify -input PATH -catalog PATH -out PATH")
	}

	catalog, err := rules.Load(*catalogPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load rule catalog")
	}
	input, err := table.ReadCSV(*inputPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read input")
	}

	res := classify.Classify(input, catalog, log)
	if err := table.WriteCSV(*outPath, res.Table); err != nil {
		log.Fatal().Err(err).Msg("Failed to write classified output")
	}

	fmt.Printf("Classified %d rows with catalog %s\n", res.Table.Len(), catalog.Version)
	if len(res.Errors) > 0 {
		fmt.Printf("  %d rows hit rule errors and fell back to Uncategorized:\n", len(res.Errors))
		for _, re := range res.Errors {
			fmt.Printf("    row %d, rule %s: %v\n", re.RowIndex, re.RuleID, re.Err)
		}
	}
}

func runPivot(log zerolog.Logger) {
	fs := flag.NewFlagSet("pivot", flag.ExitOnError)
	inputPath := fs.String("input", "", "Classified CSV to pivot")
	datasetID := fs.String("dataset", "", "Dataset identifier for the pivot")
	outPath := fs.String("out", "", "Optional path for the pivot CSV")
	fs.Parse(os.Args[2:])

	if *inputPath == "" || *datasetID == "" {
		log.Fatal().Msg("Usage: cli pivot -input PATH -dataset ID [-out PATH]")
	}

	input, err := table.ReadCSV(*inputPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read input")
	}

	res, err := pivot.Build(input, *datasetID, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Pivot failed")
	}

	if *outPath != "" {
		if err := table.WriteCSV(*outPath, res.Pivot); err != nil {
			log.Fatal().Err(err).Msg("Failed to write pivot output")
		}
	}
	printEntries(res)
}

func runAuditMerge(log zerolog.Logger) {
	fs := flag.NewFlagSet("audit-merge", flag.ExitOnError)
	leftPath := fs.String("left", "", "Left CSV extract")
	rightPath := fs.String("right", "", "Right CSV extract")
	keys := fs.String("keys", "", "Comma-separated join key columns")
	name := fs.String("name", "adhoc", "Audit name used for dump files")
	outDir := fs.String("out", "merge_audits", "Directory for duplicate dumps")
	auditLogPath := fs.String("audit-log", "merge_audit.log", "Append-only audit log file")
	fs.Parse(os.Args[2:])

	if *leftPath == "" || *rightPath == "" || *keys == "" {
		log.Fatal().Msg("Usage: cli audit-merge -left PATH -right PATH -keys COLS [-name NAME] [-out DIR]")
	}

	left, err := table.ReadCSV(*leftPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read left input")
	}
	right, err := table.ReadCSV(*rightPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read right input")
	}

	auditLog, closer := logger.NewAuditLogger(*auditLogPath)
	defer closer.Close()

	res, err := mergeaudit.Audit(left, right, strings.Split(*keys, ","), *name, *outDir, auditLog)
	if err != nil {
		log.Fatal().Err(err).Msg("Merge audit failed")
	}

	fmt.Printf("Merge audit %s\n", *name)
	fmt.Printf("  Left:  %d rows, %d duplicate rows on %d keys\n", res.LeftTotalRows, res.LeftDuplicateRows, res.LeftUniqueDupKeys)
	fmt.Printf("  Right: %d rows, %d duplicate rows on %d keys\n", res.RightTotalRows, res.RightDuplicateRows, res.RightUniqueDupKeys)
	if res.CartesianRisk {
		fmt.Println("  WARNING: duplicates on both sides, joining would multiply rows")
	}
}

func runVerify(log zerolog.Logger) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	inputPath := fs.String("input", "", "CSV table to re-digest")
	digest := fs.String("digest", "", "Expected digest (sha256:... or bare hex)")
	digestFile := fs.String("digest-file", "", "Digest artifact file from an evidence package")
	fs.Parse(os.Args[2:])

	if *inputPath == "" || (*digest == "" && *digestFile == "") {
		log.Fatal().Msg("Usage: cli verify -input PATH (-digest HEX | -digest-file PATH)")
	}

	want := *digest
	if want == "" {
		data, err := os.ReadFile(*digestFile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read digest file")
		}
		// First line of the digest artifact carries the sha256 value.
		want = strings.TrimSpace(strings.SplitN(string(data), "\n", 2)[0])
	}

	input, err := table.ReadCSV(*inputPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read input")
	}

	if !evidence.Verify(input, want) {
		fmt.Printf("MISMATCH: table digests to sha256:%s, expected %s\n", evidence.Digest(input), want)
		os.Exit(1)
	}
	fmt.Println("Digest verified.")
}

func printEntries(res *pivot.Result) {
	fmt.Printf("\n=== Pivot (%s) ===\n", res.DatasetID)
	for _, e := range res.Entries {
		fmt.Printf("  %-16s %-24s %14s  (%d rows)\n", e.Category, e.VoucherType, e.AmountLCY.StringFixed(2), e.RowCount)
	}
}
