package domain

import "strconv"

// Float is a number that may be absent. Indicator columns use it wherever a
// window or shift runs past the edge of the series.
//
// Comparisons involving an absent operand are false, never true.
type Float struct {
	V     float64
	Valid bool
}

// Some wraps a defined value.
func Some(v float64) Float { return Float{V: v, Valid: true} }

// None is the absent value.
func None() Float { return Float{} }

// Value returns the wrapped number and whether it is defined.
func (f Float) Value() (float64, bool) { return f.V, f.Valid }

// GreaterThan reports f > o. False if either side is absent.
func (f Float) GreaterThan(o Float) bool {
	return f.Valid && o.Valid && f.V > o.V
}

// LessThan reports f < o. False if either side is absent.
func (f Float) LessThan(o Float) bool {
	return f.Valid && o.Valid && f.V < o.V
}

// Max returns the larger operand, or None if either is absent.
func (f Float) Max(o Float) Float {
	if !f.Valid || !o.Valid {
		return None()
	}
	if o.V > f.V {
		return o
	}
	return f
}

// Min returns the smaller operand, or None if either is absent.
func (f Float) Min(o Float) Float {
	if !f.Valid || !o.Valid {
		return None()
	}
	if o.V < f.V {
		return o
	}
	return f
}

// Mid returns (f+o)/2, or None if either is absent.
func (f Float) Mid(o Float) Float {
	if !f.Valid || !o.Valid {
		return None()
	}
	return Some((f.V + o.V) / 2)
}

// Ptr returns a pointer to the value, nil when absent. Used by storage adapters
// that map absent values to NULL.
func (f Float) Ptr() *float64 {
	if !f.Valid {
		return nil
	}
	v := f.V
	return &v
}

// FromPtr is the inverse of Ptr.
func FromPtr(p *float64) Float {
	if p == nil {
		return None()
	}
	return Some(*p)
}

// String formats the value, or an empty string when absent.
func (f Float) String() string {
	if !f.Valid {
		return ""
	}
	return strconv.FormatFloat(f.V, 'f', -1, 64)
}
