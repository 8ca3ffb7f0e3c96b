package models

import (
	"strconv"
	"strings"
)

// FieldPath is a parsed dotted path such as "prizes.affiliations.country".
type FieldPath []string

// ParsePath splits a dotted path. Empty segments are rejected.
func ParsePath(s string) (FieldPath, error) {
	if s == "" {
		return nil, NewInvalidArgument("path", "empty field path")
	}
	parts := strings.Split(s, ".")
	for _, p := range parts {
		if p == "" {
			return nil, NewInvalidArgument("path", "empty segment in %q", s)
		}
	}
	return FieldPath(parts), nil
}

// MustPath is ParsePath for literals known to be valid.
func MustPath(s string) FieldPath {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p FieldPath) String() string { return strings.Join(p, ".") }

// HasPrefix reports whether q is a (non-strict) prefix of p.
func (p FieldPath) HasPrefix(q FieldPath) bool {
	if len(q) > len(p) {
		return false
	}
	for i := range q {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

func arrayIndex(seg string) (int, bool) {
	if seg == "" || seg[0] < '0' || seg[0] > '9' {
		return 0, false
	}
	n, err := strconv.Atoi(seg)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Resolve yields every value the path reaches. A segment that meets an Array
// either indexes it (numeric segment) or is applied to each element, which
// flattens one level per array crossed. Missing segments yield nothing.
func Resolve(d *Document, p FieldPath) []Value {
	var out []Value
	resolveInto(Doc(d), p, &out)
	return out
}

// ResolveValue is Resolve rooted at an arbitrary value. An empty path yields
// the root itself.
func ResolveValue(root Value, p FieldPath) []Value {
	var out []Value
	resolveInto(root, p, &out)
	return out
}

func resolveInto(cur Value, p FieldPath, out *[]Value) bool {
	crossed := false
	for i, seg := range p {
		switch cur.kind {
		case KindDocument:
			next, ok := cur.doc.Get(seg)
			if !ok {
				return crossed
			}
			cur = next
		case KindArray:
			if n, ok := arrayIndex(seg); ok {
				if n >= len(cur.arr) {
					return crossed
				}
				cur = cur.arr[n]
				continue
			}
			for _, e := range cur.arr {
				if e.kind == KindDocument || e.kind == KindArray {
					resolveInto(e, p[i:], out)
				}
			}
			return true
		default:
			return crossed
		}
	}
	*out = append(*out, cur)
	return crossed
}

// ResolveField evaluates a path the way expression field references do: a
// single value when no array was crossed, an Array of the gathered values
// when one was, and ok=false when the path is absent.
func ResolveField(d *Document, p FieldPath) (Value, bool) {
	return ResolveFieldValue(Doc(d), p)
}

// ResolveFieldValue is ResolveField rooted at an arbitrary value.
func ResolveFieldValue(root Value, p FieldPath) (Value, bool) {
	var out []Value
	if crossed := resolveInto(root, p, &out); crossed {
		return Array(out...), true
	}
	if len(out) == 0 {
		return Value{}, false
	}
	return out[0], true
}

// Candidates is the set of values a filter compares against: the resolved
// values plus the elements of any resolved Array.
func Candidates(root Value, p FieldPath) []Value {
	vals := ResolveValue(root, p)
	out := make([]Value, 0, len(vals))
	for _, v := range vals {
		out = append(out, v)
		if v.kind == KindArray {
			out = append(out, v.arr...)
		}
	}
	return out
}

// Lookup follows a path through documents only, without fanning out over
// arrays (numeric segments still index). Used by stages that rewrite a
// single location, such as unwind.
func Lookup(d *Document, p FieldPath) (Value, bool) {
	cur := Doc(d)
	for _, seg := range p {
		switch cur.kind {
		case KindDocument:
			next, ok := cur.doc.Get(seg)
			if !ok {
				return Value{}, false
			}
			cur = next
		case KindArray:
			n, ok := arrayIndex(seg)
			if !ok || n >= len(cur.arr) {
				return Value{}, false
			}
			cur = cur.arr[n]
		default:
			return Value{}, false
		}
	}
	return cur, true
}

// WithPath returns a copy of d with the value at p replaced by v. Documents
// along the path are copied; everything else is shared. Intermediate
// non-document values are replaced by new documents.
func WithPath(d *Document, p FieldPath, v Value) *Document {
	out := d.Copy()
	if len(p) == 1 {
		out.Set(p[0], v)
		return out
	}
	child, ok := out.Get(p[0])
	var sub *Document
	if ok && child.kind == KindDocument {
		sub = child.doc
	} else {
		sub = NewDocument()
	}
	out.Set(p[0], Doc(WithPath(sub, p[1:], v)))
	return out
}

// WithoutPath returns a copy of d with the field at p removed. When the path
// is absent d is returned unchanged.
func WithoutPath(d *Document, p FieldPath) *Document {
	child, ok := d.Get(p[0])
	if !ok {
		return d
	}
	out := d.Copy()
	if len(p) == 1 {
		out.Delete(p[0])
		return out
	}
	if child.kind != KindDocument {
		return d
	}
	out.Set(p[0], Doc(WithoutPath(child.doc, p[1:])))
	return out
}
