package rules

import (
	"testing"

	"github.com/fincontrols/navrecon/internal/table"
)

const sampleCatalog = `
version: "2026-07"
rules:
  - id: bank-refund
    category: VTC
    priority: 10
    when:
      all:
        - column: bal_account_type
          equals: "Bank Account"
        - column: amount_lcy
          sign: positive
  - id: negative-issuance
    category: Issuance
    priority: 20
    when:
      all:
        - column: amount_lcy
          sign: negative
  - id: usage-phrases
    category: Usage
    priority: 15
    when:
      any:
        - column: description
          contains: "voucher used"
        - column: description
          contains: "applied to order"
`

func TestParse(t *testing.T) {
	catalog, err := Parse([]byte(sampleCatalog))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if catalog.Version != "2026-07" {
		t.Errorf("Version = %q, want %q", catalog.Version, "2026-07")
	}
	if len(catalog.Rules) != 3 {
		t.Fatalf("got %d rules, want 3", len(catalog.Rules))
	}

	// Rules must come out sorted by ascending priority.
	wantOrder := []string{"bank-refund", "usage-phrases", "negative-issuance"}
	for i, id := range wantOrder {
		if catalog.Rules[i].ID != id {
			t.Errorf("rule[%d].ID = %q, want %q", i, catalog.Rules[i].ID, id)
		}
	}
}

func TestParse_PredicateSemantics(t *testing.T) {
	catalog, err := Parse([]byte(sampleCatalog))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	byID := make(map[string]Rule)
	for _, r := range catalog.Rules {
		byID[r.ID] = r
	}

	tests := []struct {
		name string
		rule string
		row  table.Row
		want bool
	}{
		{
			name: "bank refund matches positive bank line",
			rule: "bank-refund",
			row:  table.Row{"bal_account_type": "Bank Account", "amount_lcy": 100.0},
			want: true,
		},
		{
			name: "bank refund rejects negative amount",
			rule: "bank-refund",
			row:  table.Row{"bal_account_type": "Bank Account", "amount_lcy": -100.0},
			want: false,
		},
		{
			name: "issuance matches negative amount",
			rule: "negative-issuance",
			row:  table.Row{"amount_lcy": -25.5},
			want: true,
		},
		{
			name: "any clause matches second phrase",
			rule: "usage-phrases",
			row:  table.Row{"description": "voucher applied to order 1234"},
			want: true,
		},
		{
			name: "any clause rejects unrelated description",
			rule: "usage-phrases",
			row:  table.Row{"description": "monthly bank fee"},
			want: false,
		},
		{
			name: "missing column is not a match",
			rule: "bank-refund",
			row:  table.Row{"amount_lcy": 100.0},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := byID[tt.rule].Match(tt.row)
			if got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "empty catalog",
			yaml: `version: "1"`,
		},
		{
			name: "missing id",
			yaml: `
rules:
  - category: VTC
    when:
      all:
        - column: amount_lcy
          sign: positive
`,
		},
		{
			name: "duplicate id",
			yaml: `
rules:
  - id: r1
    category: A
    when:
      all:
        - column: x
          equals: "1"
  - id: r1
    category: B
    when:
      all:
        - column: x
          equals: "2"
`,
		},
		{
			name: "missing category",
			yaml: `
rules:
  - id: r1
    when:
      all:
        - column: x
          equals: "1"
`,
		},
		{
			name: "empty when clause",
			yaml: `
rules:
  - id: r1
    category: A
    when: {}
`,
		},
		{
			name: "condition without operator",
			yaml: `
rules:
  - id: r1
    category: A
    when:
      all:
        - column: x
`,
		},
		{
			name: "condition with two operators",
			yaml: `
rules:
  - id: r1
    category: A
    when:
      all:
        - column: x
          equals: "1"
          prefix: "1"
`,
		},
		{
			name: "unknown sign",
			yaml: `
rules:
  - id: r1
    category: A
    when:
      all:
        - column: amount_lcy
          sign: sideways
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Error("Parse succeeded, want error")
			}
		})
	}
}
