package rules

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fincontrols/navrecon/internal/table"
)

// catalogFile is the YAML shape of a versioned rule catalog.
type catalogFile struct {
	Version string     `yaml:"version"`
	Rules   []ruleSpec `yaml:"rules"`
}

type ruleSpec struct {
	ID       string     `yaml:"id"`
	Category string     `yaml:"category"`
	Priority int        `yaml:"priority"`
	When     clauseSpec `yaml:"when"`
}

// clauseSpec combines conditions: every entry under "all" must hold, and at
// least one entry under "any" must hold when "any" is present.
type clauseSpec struct {
	All []conditionSpec `yaml:"all,omitempty"`
	Any []conditionSpec `yaml:"any,omitempty"`
}

// conditionSpec is one leaf condition on a single column. Exactly one
// operator must be set; a malformed condition is a configuration error
// surfaced at load time, never at classification time.
type conditionSpec struct {
	Column    string   `yaml:"column"`
	Equals    *string  `yaml:"equals,omitempty"`
	Prefix    *string  `yaml:"prefix,omitempty"`
	NotPrefix *string  `yaml:"not_prefix,omitempty"`
	Contains  *string  `yaml:"contains,omitempty"`
	In        []string `yaml:"in,omitempty"`
	Sign      *string  `yaml:"sign,omitempty"`
}

// Load reads and compiles a rule catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules.Load: read catalog %q: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("rules.Load: catalog %q: %w", path, err)
	}
	return c, nil
}

// Parse decodes and compiles a rule catalog from YAML bytes. Rules come out
// sorted by ascending priority, ready for the classification engine.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("catalog contains no rules")
	}

	seen := make(map[string]bool, len(file.Rules))
	compiled := make([]Rule, 0, len(file.Rules))
	for i, spec := range file.Rules {
		if spec.ID == "" {
			return nil, fmt.Errorf("rule %d: missing id", i)
		}
		if seen[spec.ID] {
			return nil, fmt.Errorf("rule %q: duplicate id", spec.ID)
		}
		seen[spec.ID] = true
		if spec.Category == "" {
			return nil, fmt.Errorf("rule %q: missing category", spec.ID)
		}
		pred, err := compileClause(spec.When)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", spec.ID, err)
		}
		compiled = append(compiled, Rule{
			ID:       spec.ID,
			Category: spec.Category,
			Priority: spec.Priority,
			Match:    pred,
		})
	}
	return New(file.Version, compiled...), nil
}

func compileClause(clause clauseSpec) (Predicate, error) {
	if len(clause.All) == 0 && len(clause.Any) == 0 {
		return nil, fmt.Errorf("empty when clause")
	}

	all := make([]Predicate, 0, len(clause.All))
	for i, c := range clause.All {
		p, err := compileCondition(c)
		if err != nil {
			return nil, fmt.Errorf("all[%d]: %w", i, err)
		}
		all = append(all, p)
	}
	any := make([]Predicate, 0, len(clause.Any))
	for i, c := range clause.Any {
		p, err := compileCondition(c)
		if err != nil {
			return nil, fmt.Errorf("any[%d]: %w", i, err)
		}
		any = append(any, p)
	}

	return func(row table.Row) bool {
		for _, p := range all {
			if !p(row) {
				return false
			}
		}
		if len(any) == 0 {
			return true
		}
		for _, p := range any {
			if p(row) {
				return true
			}
		}
		return false
	}, nil
}

func compileCondition(c conditionSpec) (Predicate, error) {
	if c.Column == "" {
		return nil, fmt.Errorf("condition missing column")
	}

	ops := 0
	var pred Predicate
	if c.Equals != nil {
		ops++
		want := *c.Equals
		col := c.Column
		pred = func(row table.Row) bool { return row.String(col) == want }
	}
	if c.Prefix != nil {
		ops++
		want := *c.Prefix
		col := c.Column
		pred = func(row table.Row) bool { return strings.HasPrefix(row.String(col), want) }
	}
	if c.NotPrefix != nil {
		ops++
		want := *c.NotPrefix
		col := c.Column
		pred = func(row table.Row) bool { return !strings.HasPrefix(row.String(col), want) }
	}
	if c.Contains != nil {
		ops++
		want := *c.Contains
		col := c.Column
		pred = func(row table.Row) bool { return strings.Contains(row.String(col), want) }
	}
	if len(c.In) > 0 {
		ops++
		set := make(map[string]bool, len(c.In))
		for _, v := range c.In {
			set[v] = true
		}
		col := c.Column
		pred = func(row table.Row) bool { return set[row.String(col)] }
	}
	if c.Sign != nil {
		ops++
		col := c.Column
		switch *c.Sign {
		case "positive":
			pred = func(row table.Row) bool { return row.Decimal(col).IsPositive() }
		case "negative":
			pred = func(row table.Row) bool { return row.Decimal(col).IsNegative() }
		case "zero":
			pred = func(row table.Row) bool { return row.Decimal(col).IsZero() }
		default:
			return nil, fmt.Errorf("condition on %q: unknown sign %q", c.Column, *c.Sign)
		}
	}

	if ops == 0 {
		return nil, fmt.Errorf("condition on %q has no operator", c.Column)
	}
	if ops > 1 {
		return nil, fmt.Errorf("condition on %q has %d operators, want exactly one", c.Column, ops)
	}
	return pred, nil
}
