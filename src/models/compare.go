package models

import (
	"math"
	"strings"
)

// canonical type brackets for cross-kind ordering
func bracket(k Kind) int {
	switch k {
	case KindNull:
		return 0
	case KindInt, KindDouble:
		return 1
	case KindString:
		return 2
	case KindDocument:
		return 3
	case KindArray:
		return 4
	case KindBool:
		return 5
	}
	return 6
}

// SameBracket reports whether two values are ordered against each other
// directly (numbers with numbers, strings with strings, ...).
func SameBracket(a, b Value) bool { return bracket(a.kind) == bracket(b.kind) }

// Compare returns -1, 0 or 1 under the canonical total order:
// null < numbers < strings < documents < arrays < booleans.
// Strings compare bytewise; Int and Double compare numerically.
func Compare(a, b Value) int {
	ba, bb := bracket(a.kind), bracket(b.kind)
	if ba != bb {
		return cmpInt(ba, bb)
	}
	switch a.kind {
	case KindNull:
		return 0
	case KindInt, KindDouble:
		if a.kind == KindInt && b.kind == KindInt {
			return cmpInt64(a.i, b.i)
		}
		return cmpFloat(a.Float(), b.Float())
	case KindString:
		return strings.Compare(a.s, b.s)
	case KindBool:
		switch {
		case a.b == b.b:
			return 0
		case !a.b:
			return -1
		default:
			return 1
		}
	case KindArray:
		for i := 0; i < len(a.arr) && i < len(b.arr); i++ {
			if c := Compare(a.arr[i], b.arr[i]); c != 0 {
				return c
			}
		}
		return cmpInt(len(a.arr), len(b.arr))
	case KindDocument:
		af, bf := a.doc.Fields(), b.doc.Fields()
		for i := 0; i < len(af) && i < len(bf); i++ {
			if c := Compare(af[i].Value, bf[i].Value); c != 0 {
				return c
			}
			if c := strings.Compare(af[i].Name, bf[i].Name); c != 0 {
				return c
			}
		}
		return cmpInt(len(af), len(bf))
	}
	return 0
}

// CompareTuples compares key tuples element-wise; desc[i] reverses element i.
func CompareTuples(a, b []Value, desc []bool) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		c := Compare(a[i], b[i])
		if c != 0 {
			if i < len(desc) && desc[i] {
				return -c
			}
			return c
		}
	}
	return cmpInt(len(a), len(b))
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// NaN sorts below every other number.
func cmpFloat(a, b float64) int {
	an, bn := math.IsNaN(a), math.IsNaN(b)
	switch {
	case an && bn:
		return 0
	case an:
		return -1
	case bn:
		return 1
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
