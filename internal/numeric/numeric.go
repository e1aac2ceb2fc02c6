// Package numeric implements the decimal quantities held by numeric assets.
//
// Quantities are non-negative, exact, and immutable. Arithmetic never
// rounds: a result that cannot be represented exactly is an error.
package numeric

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/ledger/internal/ledgererr"
)

// MaxDigits bounds the digits of any quantity written in plain notation,
// integer and fractional digits together.
const MaxDigits = 38

var arith = apd.BaseContext.WithPrecision(MaxDigits)

// Quantity is a non-negative decimal. The zero value is 0.
type Quantity struct {
	d *apd.Decimal // nil means zero; never mutated after construction
}

// Zero returns the zero quantity.
func Zero() Quantity { return Quantity{} }

// FromInt returns n as a quantity. n must be non-negative.
func FromInt(n int64) (Quantity, error) {
	if n < 0 {
		return Quantity{}, ledgererr.New(ledgererr.CodeInvalidValue, "negative quantity %d", n)
	}
	return normalize(apd.New(n, 0)), nil
}

// MustInt is like FromInt but panics on error.
func MustInt(n int64) Quantity {
	q, err := FromInt(n)
	if err != nil {
		panic(err)
	}
	return q
}

// Parse parses a decimal string such as "16", "0.25" or "1e3".
func Parse(s string) (Quantity, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return Quantity{}, ledgererr.New(ledgererr.CodeInvalidValue, "malformed quantity %q", s)
	}
	if d.Form != apd.Finite {
		return Quantity{}, ledgererr.New(ledgererr.CodeInvalidValue, "quantity %q is not finite", s)
	}
	if d.Negative && !d.IsZero() {
		return Quantity{}, ledgererr.New(ledgererr.CodeInvalidValue, "negative quantity %q", s)
	}
	q := normalize(d)
	if !q.fits() {
		return Quantity{}, ledgererr.New(ledgererr.CodeInvalidValue, "quantity %q exceeds %d digits", s, MaxDigits)
	}
	return q, nil
}

// plainDigits is the number of digits q.String() writes, ignoring a
// leading "0." for pure fractions.
func (q Quantity) plainDigits() int64 {
	if q.d == nil {
		return 1
	}
	n, exp := q.d.NumDigits(), int64(q.d.Exponent)
	if exp >= 0 {
		return n + exp
	}
	return max(n, -exp)
}

func (q Quantity) fits() bool { return q.plainDigits() <= MaxDigits }

// MustParse is like Parse but panics on error.
func MustParse(s string) Quantity {
	q, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return q
}

func normalize(d *apd.Decimal) Quantity {
	if d.IsZero() {
		return Quantity{}
	}
	out := new(apd.Decimal)
	out.Reduce(d)
	out.Negative = false
	return Quantity{d: out}
}

func (q Quantity) dec() *apd.Decimal {
	if q.d == nil {
		return apd.New(0, 0)
	}
	return q.d
}

// IsZero reports whether q is 0.
func (q Quantity) IsZero() bool { return q.d == nil }

// Cmp compares q and o and returns -1, 0 or +1.
func (q Quantity) Cmp(o Quantity) int { return q.dec().Cmp(o.dec()) }

// Equal reports whether q and o denote the same number.
func (q Quantity) Equal(o Quantity) bool { return q.Cmp(o) == 0 }

// Scale returns the number of fractional digits of q.
func (q Quantity) Scale() uint32 {
	if q.d == nil || q.d.Exponent >= 0 {
		return 0
	}
	return uint32(-q.d.Exponent)
}

// Add returns q + o.
func (q Quantity) Add(o Quantity) (Quantity, error) {
	out := new(apd.Decimal)
	cond, err := arith.Add(out, q.dec(), o.dec())
	if err != nil {
		return Quantity{}, fmt.Errorf("add %s + %s: %w", q, o, err)
	}
	if cond.Inexact() {
		return Quantity{}, ledgererr.New(ledgererr.CodeInvalidValue, "sum %s + %s exceeds %d digits", q, o, MaxDigits)
	}
	sum := normalize(out)
	if !sum.fits() {
		return Quantity{}, ledgererr.New(ledgererr.CodeInvalidValue, "sum %s + %s exceeds %d digits", q, o, MaxDigits)
	}
	return sum, nil
}

// Sub returns q - o. It fails with InsufficientFunds when o > q.
func (q Quantity) Sub(o Quantity) (Quantity, error) {
	if q.Cmp(o) < 0 {
		return Quantity{}, ledgererr.New(ledgererr.CodeInsufficientFunds, "cannot take %s from %s", o, q).
			With("balance", q.String()).
			With("requested", o.String())
	}
	out := new(apd.Decimal)
	cond, err := arith.Sub(out, q.dec(), o.dec())
	if err != nil {
		return Quantity{}, fmt.Errorf("sub %s - %s: %w", q, o, err)
	}
	if cond.Inexact() {
		return Quantity{}, ledgererr.New(ledgererr.CodeInvalidValue, "difference %s - %s exceeds %d digits", q, o, MaxDigits)
	}
	return normalize(out), nil
}

// String returns q in plain decimal notation without exponent.
func (q Quantity) String() string {
	if q.d == nil {
		return "0"
	}
	return q.d.Text('f')
}

// MarshalText implements encoding.TextMarshaler.
func (q Quantity) MarshalText() ([]byte, error) { return []byte(q.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (q *Quantity) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// MarshalJSON encodes q as a JSON string so no precision is lost to floats.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.String())
}

// UnmarshalJSON accepts a JSON string or a JSON number.
func (q *Quantity) UnmarshalJSON(b []byte) error {
	s := string(b)
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	return q.UnmarshalText([]byte(s))
}

// Spec constrains the fractional digits of a numeric asset.
//
// A nil Scale is unconstrained; Scale 0 admits integers only.
type Spec struct {
	Scale *uint32 `json:"scale,omitempty" yaml:"scale,omitempty"`
}

// Unconstrained admits any non-negative decimal.
func Unconstrained() Spec { return Spec{} }

// Integer admits whole numbers only.
func Integer() Spec { return Fractional(0) }

// Fractional admits at most n fractional digits.
func Fractional(n uint32) Spec { return Spec{Scale: &n} }

// Check fails with InvalidPrecision when q has more fractional digits than s allows.
func (s Spec) Check(q Quantity) error {
	if s.Scale == nil {
		return nil
	}
	if q.Scale() > *s.Scale {
		return ledgererr.New(ledgererr.CodeInvalidPrecision,
			"%s has %d fractional digits, at most %d allowed", q, q.Scale(), *s.Scale)
	}
	return nil
}

// Equal reports whether two specs are the same constraint.
func (s Spec) Equal(o Spec) bool {
	if s.Scale == nil || o.Scale == nil {
		return s.Scale == nil && o.Scale == nil
	}
	return *s.Scale == *o.Scale
}

func (s Spec) String() string {
	if s.Scale == nil {
		return "numeric"
	}
	return fmt.Sprintf("numeric(%d)", *s.Scale)
}
