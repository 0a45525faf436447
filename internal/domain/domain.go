// Package domain holds the column contract and closed label sets shared by
// the classification, pivot, and evidence packages.
package domain

// Column names expected on extraction tables. The core depends only on this
// contract, never on how a table was fetched.
const (
	ColAmountLCY      = "amount_lcy"
	ColGLAccount      = "gl_account"
	ColUserID         = "user_id"
	ColDescription    = "description"
	ColDocumentType   = "document_type"
	ColBalAccountType = "bal_account_type"
	ColVoucherID      = "voucher_id"
	ColCustomerID     = "customer_id"
	ColPostingDate    = "posting_date"
	ColDocumentNo     = "document_no"
	ColCountryCode    = "country_code"
)

// Derived columns added by classification. Source columns are never mutated;
// reruns produce a fresh classified table.
const (
	ColBridgeCategory = "bridge_category"
	ColVoucherType    = "voucher_type"
)

// Bridge categories. A row that satisfies no category gate is Uncategorized;
// rows are never dropped, only labelled.
const (
	BridgeVTC           = "VTC"
	BridgeUsage         = "Usage"
	BridgeIssuance      = "Issuance"
	BridgeCancellation  = "Cancellation"
	BridgeExpiration    = "Expiration"
	BridgeUncategorized = "Uncategorized"
)

// Voucher sub-types (business-use labels).
const (
	TypeUnknown             = "Unknown"
	TypeRefund              = "Refund"
	TypeApology             = "Apology"
	TypeJForce              = "JForce"
	TypeJumiaPayStoreCredit = "Jumia Pay Store Credit"
	TypeStoreCredit         = "Store Credit"
)

// PivotTotalKey is the synthetic category key of the pivot grand-total row.
// The underscore prefix sorts after every real category name.
const PivotTotalKey = "__TOTAL__"

// Document types seen on NAV voucher-accrual GL lines.
const (
	DocTypeCreditMemo = "Credit Memo"
	DocTypeInvoice    = "Invoice"
	DocTypePayment    = "Payment"
)
