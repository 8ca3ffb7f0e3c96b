package engine

import (
	"docpipe/src/models"
)

// Filter is a $match predicate. The set of implementations is closed:
// FieldCond, AndFilter, OrFilter, NorFilter, NotFilter, ElemMatch and
// ExprFilter.
type Filter interface {
	filterNode()
}

// CondOp is a field condition operator.
type CondOp uint8

const (
	OpEq CondOp = iota
	OpNe
	OpGt
	OpGte
	OpLt
	OpLte
	OpIn
	OpNin
	OpExists
	OpRegex
	OpSize
)

var condOpNames = [...]string{
	OpEq:     "$eq",
	OpNe:     "$ne",
	OpGt:     "$gt",
	OpGte:    "$gte",
	OpLt:     "$lt",
	OpLte:    "$lte",
	OpIn:     "$in",
	OpNin:    "$nin",
	OpExists: "$exists",
	OpRegex:  "$regex",
	OpSize:   "$size",
}

func (o CondOp) String() string {
	if int(o) < len(condOpNames) {
		return condOpNames[o]
	}
	return "$unknown"
}

// FieldCond compares the values a path reaches against an operand. An empty
// Path addresses the value being matched itself (used inside $elemMatch).
type FieldCond struct {
	Path    models.FieldPath
	Op      CondOp
	Operand models.Value
	Options string // regex flags
	Numeric bool   // compare numeric-looking strings as numbers
}

type AndFilter struct{ Filters []Filter }
type OrFilter struct{ Filters []Filter }
type NorFilter struct{ Filters []Filter }
type NotFilter struct{ Filter Filter }

// ElemMatch matches when some element of the array at Path satisfies Filter.
type ElemMatch struct {
	Path   models.FieldPath
	Filter Filter
}

// ExprFilter matches when the expression evaluates truthy.
type ExprFilter struct{ Expr Expr }

func (*FieldCond) filterNode()  {}
func (*AndFilter) filterNode()  {}
func (*OrFilter) filterNode()   {}
func (*NorFilter) filterNode()  {}
func (*NotFilter) filterNode()  {}
func (*ElemMatch) filterNode()  {}
func (*ExprFilter) filterNode() {}

// Where builds a field condition. It panics on a malformed path, so use it
// with literal paths only; ParseFilter handles user input.
func Where(path string, op CondOp, operand models.Value) *FieldCond {
	return &FieldCond{Path: models.MustPath(path), Op: op, Operand: operand}
}

// Eq is Where(path, OpEq, v).
func Eq(path string, v models.Value) *FieldCond { return Where(path, OpEq, v) }

// And combines filters; a single filter is returned as is.
func And(filters ...Filter) Filter {
	if len(filters) == 1 {
		return filters[0]
	}
	return &AndFilter{Filters: filters}
}

// Match reports whether doc satisfies f. A nil filter matches everything.
func Match(f Filter, doc *models.Document, rc *RegexCache) (bool, error) {
	if f == nil {
		return true, nil
	}
	return matchValue(f, models.Doc(doc), doc, rc)
}

// matchValue evaluates f against cur. root is the top-level document, used by
// $expr.
func matchValue(f Filter, cur models.Value, root *models.Document, rc *RegexCache) (bool, error) {
	switch f := f.(type) {
	case *FieldCond:
		return matchCond(f, cur, rc)

	case *AndFilter:
		for _, sub := range f.Filters {
			ok, err := matchValue(sub, cur, root, rc)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil

	case *OrFilter:
		for _, sub := range f.Filters {
			ok, err := matchValue(sub, cur, root, rc)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case *NorFilter:
		for _, sub := range f.Filters {
			ok, err := matchValue(sub, cur, root, rc)
			if err != nil {
				return false, err
			}
			if ok {
				return false, nil
			}
		}
		return true, nil

	case *NotFilter:
		ok, err := matchValue(f.Filter, cur, root, rc)
		return !ok && err == nil, err

	case *ElemMatch:
		for _, v := range models.ResolveValue(cur, f.Path) {
			if !v.IsArray() {
				continue
			}
			for _, e := range v.Elems() {
				ok, err := matchValue(f.Filter, e, root, rc)
				if err != nil {
					return false, err
				}
				if ok {
					return true, nil
				}
			}
		}
		return false, nil

	case *ExprFilter:
		target := root
		if cur.IsDocument() {
			target = cur.Document()
		}
		v, ok, err := Evaluate(f.Expr, target)
		if err != nil {
			return false, err
		}
		return ok && v.Truthy(), nil
	}
	return false, models.NewInvalidArgument("$match", "unsupported filter %T", f)
}

func matchCond(c *FieldCond, cur models.Value, rc *RegexCache) (bool, error) {
	switch c.Op {
	case OpNe:
		return !condEq(c, c.Operand, cur), nil
	case OpNin:
		in, err := condIn(c, cur)
		return !in && err == nil, err
	case OpIn:
		return condIn(c, cur)
	case OpEq:
		return condEq(c, c.Operand, cur), nil
	case OpGt, OpGte, OpLt, OpLte:
		return condOrder(c, cur), nil
	case OpExists:
		return (len(models.ResolveValue(cur, c.Path)) > 0) == c.Operand.Truthy(), nil
	case OpRegex:
		return condRegex(c.Path, c.Operand.Str(), c.Options, cur, rc)
	case OpSize:
		for _, v := range models.ResolveValue(cur, c.Path) {
			if v.IsArray() && c.Operand.IsNumber() && float64(v.Len()) == c.Operand.Float() {
				return true, nil
			}
		}
		return false, nil
	}
	return false, models.NewInvalidArgument("$match", "unsupported operator %s", c.Op)
}

// condEq: some candidate equals operand. A null operand also matches an
// absent path.
func condEq(c *FieldCond, operand models.Value, cur models.Value) bool {
	cands := models.Candidates(cur, c.Path)
	if operand.IsNull() && len(cands) == 0 {
		return true
	}
	want := coerce(operand, c.Numeric)
	for _, v := range cands {
		if coerce(v, c.Numeric).Equal(want) {
			return true
		}
	}
	return false
}

func condIn(c *FieldCond, cur models.Value) (bool, error) {
	if !c.Operand.IsArray() {
		return false, models.NewTypeMismatch(c.Op.String(), c.Path.String(), c.Operand, "array")
	}
	for _, e := range c.Operand.Elems() {
		if condEq(c, e, cur) {
			return true, nil
		}
	}
	return false, nil
}

// ordering operators only compare values of the same type bracket
func condOrder(c *FieldCond, cur models.Value) bool {
	want := coerce(c.Operand, c.Numeric)
	for _, v := range models.Candidates(cur, c.Path) {
		v = coerce(v, c.Numeric)
		if !models.SameBracket(v, want) {
			continue
		}
		cmp := models.Compare(v, want)
		switch {
		case c.Op == OpGt && cmp > 0,
			c.Op == OpGte && cmp >= 0,
			c.Op == OpLt && cmp < 0,
			c.Op == OpLte && cmp <= 0:
			return true
		}
	}
	return false
}

func condRegex(path models.FieldPath, pattern, options string, cur models.Value, rc *RegexCache) (bool, error) {
	re, err := rc.Compile(pattern, options)
	if err != nil {
		return false, err
	}
	for _, v := range models.Candidates(cur, path) {
		if v.IsString() && re.MatchString(v.Str()) {
			return true, nil
		}
	}
	return false, nil
}

func coerce(v models.Value, numeric bool) models.Value {
	if !numeric {
		return v
	}
	if f, ok := v.NumericString(); ok {
		return models.Double(f)
	}
	return v
}
