package scan

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dnldd/scanner/shared"
)

// Field represents a candlestick value a predicate can compare.
type Field int

const (
	Open Field = iota
	High
	Low
	Close
	Volume
)

// String stringifies the provided field.
func (f Field) String() string {
	switch f {
	case Open:
		return "open"
	case High:
		return "high"
	case Low:
		return "low"
	case Close:
		return "close"
	case Volume:
		return "volume"
	default:
		return "unknown"
	}
}

// ParseField parses a field from its name.
func ParseField(name string) (Field, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "open":
		return Open, nil
	case "high":
		return High, nil
	case "low":
		return Low, nil
	case "close":
		return Close, nil
	case "volume":
		return Volume, nil
	default:
		return 0, fmt.Errorf("unknown candle field %q", name)
	}
}

// value returns the field value of the provided candle.
func (f Field) value(c *shared.NormalizedCandle) (float64, bool) {
	switch f {
	case Open:
		return c.Open, true
	case High:
		return c.High, true
	case Low:
		return c.Low, true
	case Close:
		return c.Close, true
	case Volume:
		return c.Volume, true
	default:
		return 0, false
	}
}

// Op represents a comparison operator.
type Op int

const (
	GreaterThan Op = iota
	GreaterOrEqual
	LessThan
	LessOrEqual
	Equal
)

// String stringifies the provided operator.
func (o Op) String() string {
	switch o {
	case GreaterThan:
		return ">"
	case GreaterOrEqual:
		return ">="
	case LessThan:
		return "<"
	case LessOrEqual:
		return "<="
	case Equal:
		return "=="
	default:
		return "?"
	}
}

// ParseOp parses an operator from its symbol.
func ParseOp(symbol string) (Op, error) {
	switch strings.TrimSpace(symbol) {
	case ">":
		return GreaterThan, nil
	case ">=":
		return GreaterOrEqual, nil
	case "<":
		return LessThan, nil
	case "<=":
		return LessOrEqual, nil
	case "==", "=":
		return Equal, nil
	default:
		return 0, fmt.Errorf("unknown comparison operator %q", symbol)
	}
}

// apply evaluates the operator over the provided operands.
func (o Op) apply(left float64, right float64) bool {
	switch o {
	case GreaterThan:
		return left > right
	case GreaterOrEqual:
		return left >= right
	case LessThan:
		return left < right
	case LessOrEqual:
		return left <= right
	case Equal:
		return left == right
	default:
		return false
	}
}

// Window represents the run of candles following an anchor. Offset k addresses
// the k-th candle after the anchor, so offset 1 is window[0].
type Window []shared.NormalizedCandle

// At returns the candle at the provided offset from the anchor.
func (w Window) At(offset int) (*shared.NormalizedCandle, error) {
	if offset < 1 || offset > len(w) {
		return nil, fmt.Errorf("offset %d outside window of %d candles", offset, len(w))
	}

	return &w[offset-1], nil
}

// Predicate defines the requirements for a pattern condition evaluated at an anchor.
type Predicate interface {
	// Match checks whether the pattern holds for the anchor and its window. The
	// window must be treated as read-only.
	Match(anchor *shared.NormalizedCandle, window Window) bool
	// MaxOffset returns the largest offset from the anchor the predicate reads.
	MaxOffset() int
}

// validator is implemented by predicates that can assert their own configuration.
type validator interface {
	Validate() error
}

// Operand addresses a candle field at an offset from the anchor. Offset 0 is the anchor.
type Operand struct {
	Field  Field
	Offset int
}

// String stringifies the operand, e.g. close[9].
func (o Operand) String() string {
	return fmt.Sprintf("%s[%d]", o.Field.String(), o.Offset)
}

// resolve returns the operand value for the provided anchor and window.
func (o Operand) resolve(anchor *shared.NormalizedCandle, window Window) (float64, bool) {
	candle := anchor
	if o.Offset != 0 {
		c, err := window.At(o.Offset)
		if err != nil {
			return 0, false
		}
		candle = c
	}

	return o.Field.value(candle)
}

// Compare is a single comparison between two operands: Left + Adjust <op> Right.
type Compare struct {
	Left   Operand
	Op     Op
	Right  Operand
	Adjust float64
}

// Ensure Compare implements the Predicate interface.
var _ Predicate = (*Compare)(nil)

// OpenAboveCloseAt returns the predicate open[anchor] > close[anchor+k].
func OpenAboveCloseAt(k int) *Compare {
	return &Compare{
		Left:  Operand{Field: Open},
		Op:    GreaterThan,
		Right: Operand{Field: Close, Offset: k},
	}
}

// Validate asserts the comparison is well formed.
func (c *Compare) Validate() error {
	var errs error

	if c.Left.Offset < 0 {
		errs = errors.Join(errs, fmt.Errorf("left offset cannot be negative: %d", c.Left.Offset))
	}
	if c.Right.Offset < 0 {
		errs = errors.Join(errs, fmt.Errorf("right offset cannot be negative: %d", c.Right.Offset))
	}
	if c.Left.Field < Open || c.Left.Field > Volume {
		errs = errors.Join(errs, fmt.Errorf("unknown left field: %d", c.Left.Field))
	}
	if c.Right.Field < Open || c.Right.Field > Volume {
		errs = errors.Join(errs, fmt.Errorf("unknown right field: %d", c.Right.Field))
	}
	if c.Op < GreaterThan || c.Op > Equal {
		errs = errors.Join(errs, fmt.Errorf("unknown operator: %d", c.Op))
	}

	return errs
}

// Match checks whether the comparison holds.
func (c *Compare) Match(anchor *shared.NormalizedCandle, window Window) bool {
	left, ok := c.Left.resolve(anchor, window)
	if !ok {
		return false
	}
	right, ok := c.Right.resolve(anchor, window)
	if !ok {
		return false
	}

	return c.Op.apply(left+c.Adjust, right)
}

// MaxOffset returns the largest offset read by the comparison.
func (c *Compare) MaxOffset() int {
	return max(c.Left.Offset, c.Right.Offset)
}

// String stringifies the comparison.
func (c *Compare) String() string {
	if c.Adjust != 0 {
		return fmt.Sprintf("%s%+g %s %s", c.Left.String(), c.Adjust, c.Op.String(), c.Right.String())
	}

	return fmt.Sprintf("%s %s %s", c.Left.String(), c.Op.String(), c.Right.String())
}

// composite combines predicates with a logical operator.
type composite struct {
	preds []Predicate
	all   bool
}

// All returns a predicate matching when every provided predicate matches.
func All(preds ...Predicate) Predicate {
	return &composite{preds: preds, all: true}
}

// Any returns a predicate matching when at least one provided predicate matches.
func Any(preds ...Predicate) Predicate {
	return &composite{preds: preds}
}

// Validate asserts the composite and its members are well formed.
func (p *composite) Validate() error {
	if len(p.preds) == 0 {
		return fmt.Errorf("composite predicate requires at least one member")
	}

	var errs error
	for idx, pred := range p.preds {
		if pred == nil {
			errs = errors.Join(errs, fmt.Errorf("predicate %d cannot be nil", idx))
			continue
		}
		if v, ok := pred.(validator); ok {
			if err := v.Validate(); err != nil {
				errs = errors.Join(errs, fmt.Errorf("predicate %d: %w", idx, err))
			}
		}
	}

	return errs
}

// Match evaluates the members in order, short-circuiting.
func (p *composite) Match(anchor *shared.NormalizedCandle, window Window) bool {
	for _, pred := range p.preds {
		matched := pred.Match(anchor, window)
		switch {
		case p.all && !matched:
			return false
		case !p.all && matched:
			return true
		}
	}

	return p.all
}

// MaxOffset returns the largest offset read by any member.
func (p *composite) MaxOffset() int {
	var offset int
	for _, pred := range p.preds {
		if pred != nil {
			offset = max(offset, pred.MaxOffset())
		}
	}

	return offset
}

// PredicateFunc adapts a plain function into a predicate reading up to Offset candles.
type PredicateFunc struct {
	Offset int
	Fn     func(anchor *shared.NormalizedCandle, window Window) bool
}

// Validate asserts the function predicate is usable.
func (p *PredicateFunc) Validate() error {
	if p.Fn == nil {
		return fmt.Errorf("predicate function cannot be nil")
	}

	return nil
}

// Match calls the wrapped function.
func (p *PredicateFunc) Match(anchor *shared.NormalizedCandle, window Window) bool {
	return p.Fn(anchor, window)
}

// MaxOffset returns the declared offset.
func (p *PredicateFunc) MaxOffset() int {
	return p.Offset
}
