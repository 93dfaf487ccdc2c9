// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package plane models the complex-plane side of the renderer: the scalar
// arithmetic backends, the viewport rectangle and the affine mapping between
// raster pixels and plane coordinates.
//
// All plane math is written once against the [Arith] capability and
// instantiated with one of two backends:
//
//   - [Float64]: fixed 64-bit IEEE 754 arithmetic
//   - [Decimal]: arbitrary-precision decimal arithmetic with a configurable
//     number of significant digits (github.com/cockroachdb/apd/v3)
//
// Arithmetic is destination-passing (dst, x, y) because arbitrary-precision
// values are mutable cells rather than expression values. Operands may alias
// the destination.
//
// Values of the backend scalar type must never be copied by assignment:
// apd.Decimal shares its coefficient storage with the copy. Use Arith.Set.
package plane

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/cockroachdb/apd/v3"
)

// Sentinel errors returned by the arithmetic backends.
var (
	// ErrNotFinite is returned when a NaN or infinite value enters a backend.
	ErrNotFinite = errors.New("plane: value is not finite")

	// ErrDivideByZero is returned by Quo when the divisor is zero.
	ErrDivideByZero = errors.New("plane: division by zero")

	// ErrParse is returned when a decimal string cannot be parsed.
	ErrParse = errors.New("plane: invalid number")
)

// Arith is the scalar capability shared by every numeric backend.
//
// T is the backend's value type. Methods that can fail report the failure
// instead of silently producing a lower-precision result.
type Arith[T any] interface {
	// SetInt sets dst to the integer n. It never fails.
	SetInt(dst *T, n int64)

	// SetFloat64 sets dst to f. Non-finite inputs are rejected.
	SetFloat64(dst *T, f float64) error

	// Parse sets dst to the decimal number in s.
	Parse(dst *T, s string) error

	// Set copies x into dst.
	Set(dst, x *T)

	// Add sets dst = x + y.
	Add(dst, x, y *T) error

	// Sub sets dst = x - y.
	Sub(dst, x, y *T) error

	// Mul sets dst = x * y.
	Mul(dst, x, y *T) error

	// Quo sets dst = x / y.
	Quo(dst, x, y *T) error

	// Cmp returns -1, 0 or +1 depending on whether x < y, x == y or x > y.
	Cmp(x, y *T) int

	// Sign returns -1, 0 or +1 for negative, zero or positive x.
	Sign(x *T) int

	// Float64 returns the nearest float64 to x.
	Float64(x *T) float64

	// Format returns x as a decimal string that Parse accepts.
	Format(x *T) string
}

// =============================================================================
// Fixed precision
// =============================================================================

// Float64 is the fixed-precision backend. The zero value is ready to use.
//
// Every product is wrapped in an explicit float64 conversion so the compiler
// cannot fuse a multiply with the following add; results then match the
// Decimal backend wherever both represent the operands exactly.
type Float64 struct{}

// SetInt implements Arith.
func (Float64) SetInt(dst *float64, n int64) { *dst = float64(n) }

// SetFloat64 implements Arith.
func (Float64) SetFloat64(dst *float64, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ErrNotFinite
	}
	*dst = f
	return nil
}

// Parse implements Arith.
func (Float64) Parse(dst *float64, s string) error {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("%w %q", ErrParse, s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ErrNotFinite
	}
	*dst = f
	return nil
}

// Set implements Arith.
func (Float64) Set(dst, x *float64) { *dst = *x }

// Add implements Arith.
func (Float64) Add(dst, x, y *float64) error {
	*dst = *x + *y
	return nil
}

// Sub implements Arith.
func (Float64) Sub(dst, x, y *float64) error {
	*dst = *x - *y
	return nil
}

// Mul implements Arith.
func (Float64) Mul(dst, x, y *float64) error {
	*dst = float64(*x * *y)
	return nil
}

// Quo implements Arith.
func (Float64) Quo(dst, x, y *float64) error {
	if *y == 0 {
		return ErrDivideByZero
	}
	*dst = float64(*x / *y)
	return nil
}

// Cmp implements Arith.
func (Float64) Cmp(x, y *float64) int {
	switch {
	case *x < *y:
		return -1
	case *x > *y:
		return 1
	}
	return 0
}

// Sign implements Arith.
func (Float64) Sign(x *float64) int {
	switch {
	case *x < 0:
		return -1
	case *x > 0:
		return 1
	}
	return 0
}

// Float64 implements Arith.
func (Float64) Float64(x *float64) float64 { return *x }

// Format implements Arith.
func (Float64) Format(x *float64) string {
	return strconv.FormatFloat(*x, 'g', -1, 64)
}

// =============================================================================
// Arbitrary precision
// =============================================================================

// Decimal is the arbitrary-precision backend. Every operation rounds to the
// context's number of significant digits.
//
// A Decimal is immutable after construction and safe for concurrent use; the
// values it operates on are not.
type Decimal struct {
	ctx *apd.Context
}

// MinDigits is the smallest precision NewDecimal accepts. Anything below the
// ~17 significant digits of a float64 would make the arbitrary backend less
// precise than the fixed one.
const MinDigits = 17

// NewDecimal returns a backend computing with the given number of
// significant decimal digits. digits below MinDigits are raised to MinDigits.
func NewDecimal(digits uint32) Decimal {
	if digits < MinDigits {
		digits = MinDigits
	}
	return Decimal{ctx: apd.BaseContext.WithPrecision(digits)}
}

// Digits returns the configured number of significant digits.
func (d Decimal) Digits() uint32 { return d.ctx.Precision }

// SetInt implements Arith.
func (Decimal) SetInt(dst *apd.Decimal, n int64) { dst.SetInt64(n) }

// SetFloat64 implements Arith. dst receives the shortest decimal that
// round-trips to f, so a factor such as 0.9 is exactly 0.9 and not its
// binary approximation.
func (d Decimal) SetFloat64(dst *apd.Decimal, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ErrNotFinite
	}
	if _, _, err := d.ctx.SetString(dst, strconv.FormatFloat(f, 'g', -1, 64)); err != nil {
		return fmt.Errorf("plane: decimal from %v: %w", f, err)
	}
	return nil
}

// Parse implements Arith.
func (d Decimal) Parse(dst *apd.Decimal, s string) error {
	if _, _, err := d.ctx.SetString(dst, s); err != nil {
		return fmt.Errorf("%w %q: %v", ErrParse, s, err)
	}
	if dst.Form != apd.Finite {
		return ErrNotFinite
	}
	return normalizeZero(dst, nil)
}

// Set implements Arith.
func (Decimal) Set(dst, x *apd.Decimal) { dst.Set(x) }

// Add implements Arith.
func (d Decimal) Add(dst, x, y *apd.Decimal) error {
	_, err := d.ctx.Add(dst, x, y)
	return normalizeZero(dst, err)
}

// Sub implements Arith.
func (d Decimal) Sub(dst, x, y *apd.Decimal) error {
	_, err := d.ctx.Sub(dst, x, y)
	return normalizeZero(dst, err)
}

// Mul implements Arith.
func (d Decimal) Mul(dst, x, y *apd.Decimal) error {
	_, err := d.ctx.Mul(dst, x, y)
	return normalizeZero(dst, err)
}

// Quo implements Arith.
func (d Decimal) Quo(dst, x, y *apd.Decimal) error {
	if y.IsZero() {
		return ErrDivideByZero
	}
	_, err := d.ctx.Quo(dst, x, y)
	return normalizeZero(dst, err)
}

// normalizeZero resets the exponent and sign of a zero result. apd keeps the
// exponent of a zero (0.00 * 0.00 = 0.0000), and repeated squaring of such a
// zero walks the exponent out of range.
func normalizeZero(dst *apd.Decimal, err error) error {
	if err == nil && dst.IsZero() {
		dst.Exponent = 0
		dst.Negative = false
	}
	return err
}

// Cmp implements Arith.
func (Decimal) Cmp(x, y *apd.Decimal) int { return x.Cmp(y) }

// Sign implements Arith.
func (Decimal) Sign(x *apd.Decimal) int { return x.Sign() }

// Float64 implements Arith. Values outside the float64 range saturate.
func (Decimal) Float64(x *apd.Decimal) float64 {
	f, err := x.Float64()
	if err != nil {
		if x.Sign() < 0 {
			return math.Inf(-1)
		}
		return math.Inf(1)
	}
	return f
}

// Format implements Arith.
func (Decimal) Format(x *apd.Decimal) string { return x.String() }

// finite reports whether x is neither infinite nor NaN. Only the fixed
// backend can hold such values; apd traps overflow instead.
func finite[T any](x *T) bool {
	if f, ok := any(x).(*float64); ok {
		return !math.IsInf(*f, 0) && !math.IsNaN(*f)
	}
	return true
}

// Compile-time interface checks.
var (
	_ Arith[float64]     = Float64{}
	_ Arith[apd.Decimal] = Decimal{}
)
