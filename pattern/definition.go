package pattern

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dnldd/scanner/aggregate"
	"github.com/dnldd/scanner/scan"
	"github.com/dnldd/scanner/shared"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Condition represents a single comparison of a pattern: left + adjust <op> right.
type Condition struct {
	Left        string  `yaml:"left"`
	LeftOffset  int     `yaml:"left_offset"`
	Op          string  `yaml:"op"`
	Right       string  `yaml:"right"`
	RightOffset int     `yaml:"right_offset"`
	Adjust      float64 `yaml:"adjust,omitempty"`
}

// compile converts the condition into a comparison predicate.
func (c *Condition) compile() (*scan.Compare, error) {
	left, err := scan.ParseField(c.Left)
	if err != nil {
		return nil, err
	}
	right, err := scan.ParseField(c.Right)
	if err != nil {
		return nil, err
	}
	op, err := scan.ParseOp(c.Op)
	if err != nil {
		return nil, err
	}

	compare := &scan.Compare{
		Left:   scan.Operand{Field: left, Offset: c.LeftOffset},
		Op:     op,
		Right:  scan.Operand{Field: right, Offset: c.RightOffset},
		Adjust: c.Adjust,
	}
	if err := compare.Validate(); err != nil {
		return nil, err
	}

	return compare, nil
}

// Anchor represents the anchor eligibility rules of a pattern. Both rules are
// optional, an empty anchor accepts every candle.
type Anchor struct {
	MinuteMultipleOf int    `yaml:"minute_multiple_of,omitempty"`
	ClockTime        string `yaml:"clock_time,omitempty"`
}

// compile converts the anchor rules into an anchor filter.
func (a *Anchor) compile() (scan.AnchorFilter, error) {
	var filters []scan.AnchorFilter

	if a.MinuteMultipleOf < 0 {
		return nil, fmt.Errorf("minute multiple cannot be negative: %d", a.MinuteMultipleOf)
	}
	if a.MinuteMultipleOf > 0 {
		filters = append(filters, scan.MinuteMultipleOf(a.MinuteMultipleOf))
	}
	if a.ClockTime != "" {
		tod, err := shared.ParseTimeOfDay(a.ClockTime)
		if err != nil {
			return nil, err
		}
		filters = append(filters, scan.ClockTimeEquals(tod))
	}

	switch len(filters) {
	case 0:
		return nil, nil
	case 1:
		return filters[0], nil
	default:
		return scan.AllAnchors(filters...), nil
	}
}

// Definition represents a pattern as data.
type Definition struct {
	Name  string `yaml:"name"`
	Width int    `yaml:"width"`
	// Match combines the conditions, either "all" (default) or "any".
	Match      string      `yaml:"match,omitempty"`
	Anchor     Anchor      `yaml:"anchor"`
	Conditions []Condition `yaml:"conditions"`
	// TimeFilter names the aggregation time filter, see aggregate.ParseTimeFilter.
	TimeFilter string `yaml:"time_filter"`
}

// Compiled represents a pattern definition resolved into scan and aggregation policies.
type Compiled struct {
	Name         string
	Width        int
	Predicate    scan.Predicate
	AnchorFilter scan.AnchorFilter
	TimeFilter   aggregate.TimeFilter
}

// ScannerConfig returns the scanner configuration for the compiled pattern.
func (c *Compiled) ScannerConfig(logger *zerolog.Logger) *scan.ScannerConfig {
	return &scan.ScannerConfig{
		Pattern:      c.Name,
		Width:        c.Width,
		Predicate:    c.Predicate,
		AnchorFilter: c.AnchorFilter,
		Logger:       logger,
	}
}

// Compile validates the definition and resolves its policies.
func (d *Definition) Compile() (*Compiled, error) {
	var errs error

	if d.Name == "" {
		errs = errors.Join(errs, fmt.Errorf("pattern name cannot be an empty string"))
	}
	if d.Width < 1 {
		errs = errors.Join(errs, fmt.Errorf("pattern %q: width must be positive, got %d", d.Name, d.Width))
	}
	if len(d.Conditions) == 0 {
		errs = errors.Join(errs, fmt.Errorf("pattern %q: no conditions provided", d.Name))
	}

	preds := make([]scan.Predicate, 0, len(d.Conditions))
	for idx := range d.Conditions {
		compare, err := d.Conditions[idx].compile()
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("pattern %q: condition %d: %w", d.Name, idx, err))
			continue
		}
		if compare.MaxOffset() > d.Width {
			errs = errors.Join(errs, fmt.Errorf("pattern %q: condition %d reads offset %d beyond width %d",
				d.Name, idx, compare.MaxOffset(), d.Width))
			continue
		}
		preds = append(preds, compare)
	}

	anchor, err := d.Anchor.compile()
	if err != nil {
		errs = errors.Join(errs, fmt.Errorf("pattern %q: anchor: %w", d.Name, err))
	}

	timeFilter, err := aggregate.ParseTimeFilter(d.TimeFilter)
	if err != nil {
		errs = errors.Join(errs, fmt.Errorf("pattern %q: %w", d.Name, err))
	}

	var pred scan.Predicate
	switch strings.ToLower(d.Match) {
	case "", "all":
		if len(preds) == 1 {
			pred = preds[0]
		} else {
			pred = scan.All(preds...)
		}
	case "any":
		pred = scan.Any(preds...)
	default:
		errs = errors.Join(errs, fmt.Errorf("pattern %q: unknown match mode %q", d.Name, d.Match))
	}

	if errs != nil {
		return nil, errs
	}

	return &Compiled{
		Name:         d.Name,
		Width:        d.Width,
		Predicate:    pred,
		AnchorFilter: anchor,
		TimeFilter:   timeFilter,
	}, nil
}

// file represents a pattern definition file.
type file struct {
	Patterns []Definition `yaml:"patterns"`
}

// ParseDefinitions parses pattern definitions from yaml.
func ParseDefinitions(data []byte) ([]Definition, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing pattern definitions: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Patterns))
	for idx := range f.Patterns {
		name := f.Patterns[idx].Name
		if _, ok := seen[name]; ok {
			return nil, fmt.Errorf("duplicate pattern definition %q", name)
		}
		seen[name] = struct{}{}
	}

	return f.Patterns, nil
}

// LoadDefinitions reads pattern definitions from the yaml file at the provided path.
func LoadDefinitions(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pattern definitions from '%s': %w", path, err)
	}

	return ParseDefinitions(data)
}

// MarshalDefinitions serializes pattern definitions to yaml.
func MarshalDefinitions(defs []Definition) ([]byte, error) {
	data, err := yaml.Marshal(&file{Patterns: defs})
	if err != nil {
		return nil, fmt.Errorf("marshalling pattern definitions: %w", err)
	}

	return data, nil
}
