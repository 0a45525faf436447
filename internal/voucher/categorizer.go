// Package voucher classifies NAV voucher-accrual GL lines (liability account
// 18412) into exactly one of five bridge categories. Unlike the generic rule
// engine, the decision procedure here is fixed: five gates evaluated in
// order, first satisfied wins, with sub-type resolution per gate.
package voucher

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fincontrols/navrecon/internal/domain"
	"github.com/fincontrols/navrecon/internal/mergeaudit"
	"github.com/fincontrols/navrecon/internal/table"
)

// AccrualAccount is the NAV liability account this categorizer is built for.
// Callers extract lines for this account; the categorizer does not re-filter.
const AccrualAccount = "18412"

// ColBusinessUse is the sub-type column the usage extract must carry.
const ColBusinessUse = "business_use"

// Fixed phrases and prefixes from the NAV posting conventions. These are part
// of the decision procedure, not configuration: a convention change upstream
// is a code change here, reviewed like one.
const (
	balTypeBankAccount = "Bank Account"
	cancellationPhrase = "voucher cancelled by integration"
	expirationPrefix   = "voucher expiration: "
)

// usagePhrases are the descriptions integrated posters write on usage lines.
var usagePhrases = map[string]bool{
	"voucher used on order":    true,
	"voucher applied to order": true,
	"voucher usage":            true,
}

// issuancePatterns resolve a negative (issuance) line's sub-type from its
// description. Checked in order; more specific patterns come first so
// "jumia pay store credit" is never swallowed by "store credit".
var issuancePatterns = []struct {
	substr  string
	subType string
}{
	{"jforce", domain.TypeJForce},
	{"jumia pay", domain.TypeJumiaPayStoreCredit},
	{"store credit", domain.TypeStoreCredit},
	{"apology", domain.TypeApology},
	{"refund", domain.TypeRefund},
}

// expirationTypes map the remainder of an expiration description to its
// sub-type.
var expirationTypes = map[string]string{
	"refund":                 domain.TypeRefund,
	"apology":                domain.TypeApology,
	"jforce":                 domain.TypeJForce,
	"store credit":           domain.TypeStoreCredit,
	"jumia pay store credit": domain.TypeJumiaPayStoreCredit,
}

// Config carries the business-specific knobs of the categorizer. The manual
// vs integrated poster distinction is prefix matching on user_id; the prefix
// set varies per entity and new integration sources appear, so it is
// configuration rather than a constant.
type Config struct {
	IntegrationPrefixes []string `yaml:"integration_prefixes"`
}

// DefaultConfig returns the production integration-prefix set.
func DefaultConfig() Config {
	return Config{IntegrationPrefixes: []string{"NAV/", "JOB/", "WS-"}}
}

// IsIntegrated reports whether the posting user is an integration source.
func (c Config) IsIntegrated(userID string) bool {
	for _, p := range c.IntegrationPrefixes {
		if strings.HasPrefix(userID, p) {
			return true
		}
	}
	return false
}

// Categorizer runs the fixed five-gate decision procedure.
type Categorizer struct {
	cfg Config
	log zerolog.Logger
}

// NewCategorizer creates a categorizer with the given poster configuration.
func NewCategorizer(cfg Config, log zerolog.Logger) *Categorizer {
	return &Categorizer{cfg: cfg, log: log}
}

// requiredGLColumns are checked up front; a missing column is a configuration
// error naming the column, never a lookup failure mid-run.
var requiredGLColumns = []string{
	domain.ColAmountLCY,
	domain.ColUserID,
	domain.ColDescription,
	domain.ColDocumentType,
	domain.ColBalAccountType,
	domain.ColVoucherID,
}

// Categorize joins gl against the usage extract on voucher_id and assigns
// bridge_category and voucher_type to every line. usageAudit must be the
// merge-audit result for exactly this join; passing nil means the caller
// skipped the mandatory pre-join audit and is rejected as a configuration
// error. Rows satisfying no gate come back Uncategorized; no row is ever
// dropped.
func (c *Categorizer) Categorize(gl, usage *table.Table, usageAudit *mergeaudit.Result) (*table.Table, error) {
	if usageAudit == nil {
		return nil, fmt.Errorf("voucher.Categorize: usage join was not merge-audited")
	}
	if err := gl.RequireColumns("gl", requiredGLColumns...); err != nil {
		return nil, fmt.Errorf("voucher.Categorize: %w", err)
	}
	if err := usage.RequireColumns("usage", domain.ColVoucherID, ColBusinessUse); err != nil {
		return nil, fmt.Errorf("voucher.Categorize: %w", err)
	}

	if usageAudit.CartesianRisk {
		c.log.Warn().
			Str("merge_name", usageAudit.Name).
			Int("left_duplicate_rows", usageAudit.LeftDuplicateRows).
			Int("right_duplicate_rows", usageAudit.RightDuplicateRows).
			Msg("cartesian-product risk on usage join; totals may inflate")
	}

	enriched, err := table.LeftJoin(gl, usage, domain.ColVoucherID, ColBusinessUse)
	if err != nil {
		return nil, fmt.Errorf("voucher.Categorize: %w", err)
	}

	enriched.AddColumn(domain.ColBridgeCategory)
	enriched.AddColumn(domain.ColVoucherType)
	for _, row := range enriched.Rows() {
		category, subType := c.categorizeRow(row)
		row[domain.ColBridgeCategory] = category
		row[domain.ColVoucherType] = subType
	}

	c.log.Info().
		Int("gl_rows", gl.Len()).
		Int("classified_rows", enriched.Len()).
		Msg("voucher categorization complete")
	return enriched, nil
}

// categorizeRow evaluates the five gates in fixed order. Each gate requires
// all of its conditions; the first satisfied gate wins.
func (c *Categorizer) categorizeRow(row table.Row) (category, subType string) {
	amount := row.Decimal(domain.ColAmountLCY)
	desc := normalize(row.String(domain.ColDescription))
	docType := row.String(domain.ColDocumentType)
	integrated := c.cfg.IsIntegrated(row.String(domain.ColUserID))
	manual := !integrated

	// Gate 1: VTC. A positive bank-settled line posted by a human is a
	// refund voucher cancelled upstream but not yet cash-settled.
	if amount.IsPositive() && row.String(domain.ColBalAccountType) == balTypeBankAccount && manual {
		return domain.BridgeVTC, domain.TypeRefund
	}

	// Gate 2: Usage. Integrated posting with a known usage description;
	// sub-type comes from the usage extract joined on voucher_id.
	if amount.IsPositive() && integrated && usagePhrases[desc] {
		if use := row.String(ColBusinessUse); use != "" {
			return domain.BridgeUsage, use
		}
		return domain.BridgeUsage, domain.TypeUnknown
	}

	// Gate 3: Issuance. Any negative line; sub-type from description or
	// document-type patterns.
	if amount.IsNegative() {
		return domain.BridgeIssuance, issuanceSubType(desc, docType)
	}

	// Gate 4: Cancellation. Either a manual credit memo (store credit
	// returned) or the integration's fixed cancellation posting (apology).
	if amount.IsPositive() {
		if docType == domain.DocTypeCreditMemo && manual {
			return domain.BridgeCancellation, domain.TypeStoreCredit
		}
		if desc == cancellationPhrase && integrated {
			return domain.BridgeCancellation, domain.TypeApology
		}
	}

	// Gate 5: Expiration. Manual posting with the fixed description prefix;
	// the remainder names the expired voucher's type.
	if amount.IsPositive() && manual && strings.HasPrefix(desc, expirationPrefix) {
		remainder := strings.TrimSpace(strings.TrimPrefix(desc, expirationPrefix))
		if sub, ok := expirationTypes[remainder]; ok {
			return domain.BridgeExpiration, sub
		}
		return domain.BridgeExpiration, domain.TypeUnknown
	}

	return domain.BridgeUncategorized, domain.TypeUnknown
}

// issuanceSubType resolves a negative line's business use. Description
// patterns are checked first; a credit memo with no recognizable description
// is a refund issuance.
func issuanceSubType(desc, docType string) string {
	for _, p := range issuancePatterns {
		if strings.Contains(desc, p.substr) {
			return p.subType
		}
	}
	if docType == domain.DocTypeCreditMemo {
		return domain.TypeRefund
	}
	return domain.TypeUnknown
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
