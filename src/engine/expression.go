package engine

import (
	"strings"

	hashindex "docpipe/src/hash_index"
	"docpipe/src/models"
)

// Expr is an aggregation expression. Implementations form a closed set.
type Expr interface {
	exprNode()
}

// FieldRef is "$a.b": the value the path resolves to, or an array of the
// gathered values when the path crosses arrays.
type FieldRef struct{ Path models.FieldPath }

// VarRef is "$$ROOT" or "$$CURRENT", optionally followed by a path.
type VarRef struct {
	Name string
	Path models.FieldPath
}

type Literal struct{ Value models.Value }

// ArrayExpr evaluates each element; absent elements become null.
type ArrayExpr struct{ Elems []Expr }

// ObjectExpr builds a document; absent fields are omitted.
type ObjectExpr struct{ Fields []NamedExpr }

type NamedExpr struct {
	Name string
	Expr Expr
}

type SizeExpr struct{ Arg Expr }
type SetDifferenceExpr struct{ A, B Expr }
type IndexOfBytesExpr struct{ Haystack, Needle Expr }
type InExpr struct{ Needle, Array Expr }
type DivideExpr struct{ A, B Expr }
type AddExpr struct{ Args []Expr }
type AndExpr struct{ Args []Expr }
type OrExpr struct{ Args []Expr }
type NotExpr struct{ Arg Expr }
type CondExpr struct{ If, Then, Else Expr }
type IfNullExpr struct{ Arg, Replacement Expr }

// CmpOp is a comparison expression operator.
type CmpOp uint8

const (
	CmpEq CmpOp = iota
	CmpNe
	CmpGt
	CmpGte
	CmpLt
	CmpLte
	Cmp3 // $cmp: -1, 0 or 1
)

var cmpOpNames = [...]string{"$eq", "$ne", "$gt", "$gte", "$lt", "$lte", "$cmp"}

func (o CmpOp) String() string { return cmpOpNames[o] }

// CompareExpr compares two operands under the canonical order; absent
// operands compare as null.
type CompareExpr struct {
	Op   CmpOp
	A, B Expr
}

func (*FieldRef) exprNode()          {}
func (*VarRef) exprNode()            {}
func (*Literal) exprNode()           {}
func (*ArrayExpr) exprNode()         {}
func (*ObjectExpr) exprNode()        {}
func (*SizeExpr) exprNode()          {}
func (*SetDifferenceExpr) exprNode() {}
func (*IndexOfBytesExpr) exprNode()  {}
func (*InExpr) exprNode()            {}
func (*DivideExpr) exprNode()        {}
func (*AddExpr) exprNode()           {}
func (*AndExpr) exprNode()           {}
func (*OrExpr) exprNode()            {}
func (*NotExpr) exprNode()           {}
func (*CondExpr) exprNode()          {}
func (*IfNullExpr) exprNode()        {}
func (*CompareExpr) exprNode()       {}

// Field is a FieldRef for a literal path.
func Field(path string) *FieldRef { return &FieldRef{Path: models.MustPath(path)} }

// Lit wraps a value.
func Lit(v models.Value) *Literal { return &Literal{Value: v} }

// Evaluate computes e against doc. The boolean result is false when the
// expression refers to an absent field; that is not an error. Errors are
// returned only for operands of the wrong kind and for division by zero.
func Evaluate(e Expr, doc *models.Document) (models.Value, bool, error) {
	switch e := e.(type) {
	case *FieldRef:
		v, ok := models.ResolveField(doc, e.Path)
		return v, ok, nil

	case *VarRef:
		if len(e.Path) == 0 {
			return models.Doc(doc), true, nil
		}
		v, ok := models.ResolveField(doc, e.Path)
		return v, ok, nil

	case *Literal:
		return e.Value, true, nil

	case *ArrayExpr:
		out := make([]models.Value, len(e.Elems))
		for i, el := range e.Elems {
			v, _, err := Evaluate(el, doc)
			if err != nil {
				return models.Value{}, false, err
			}
			out[i] = v
		}
		return models.Array(out...), true, nil

	case *ObjectExpr:
		out := models.NewDocument()
		for _, f := range e.Fields {
			v, ok, err := Evaluate(f.Expr, doc)
			if err != nil {
				return models.Value{}, false, err
			}
			if ok {
				out.Set(f.Name, v)
			}
		}
		return models.Doc(out), true, nil

	case *SizeExpr:
		v, ok, err := Evaluate(e.Arg, doc)
		if err != nil || !ok {
			return models.Value{}, false, err
		}
		if !v.IsArray() {
			return models.Value{}, false, models.NewTypeMismatch("$size", exprPath(e.Arg), v, "array")
		}
		return models.Int(int64(v.Len())), true, nil

	case *SetDifferenceExpr:
		return evalSetDifference(e, doc)

	case *IndexOfBytesExpr:
		return evalIndexOfBytes(e, doc)

	case *InExpr:
		needle, _, err := Evaluate(e.Needle, doc)
		if err != nil {
			return models.Value{}, false, err
		}
		arr, ok, err := Evaluate(e.Array, doc)
		if err != nil {
			return models.Value{}, false, err
		}
		if !ok {
			return models.Bool(false), true, nil
		}
		if !arr.IsArray() {
			return models.Value{}, false, models.NewTypeMismatch("$in", exprPath(e.Array), arr, "array")
		}
		for _, el := range arr.Elems() {
			if el.Equal(needle) {
				return models.Bool(true), true, nil
			}
		}
		return models.Bool(false), true, nil

	case *DivideExpr:
		return evalDivide(e, doc)

	case *AddExpr:
		return evalAdd(e, doc)

	case *AndExpr:
		for _, a := range e.Args {
			v, _, err := Evaluate(a, doc)
			if err != nil {
				return models.Value{}, false, err
			}
			if !v.Truthy() {
				return models.Bool(false), true, nil
			}
		}
		return models.Bool(true), true, nil

	case *OrExpr:
		for _, a := range e.Args {
			v, _, err := Evaluate(a, doc)
			if err != nil {
				return models.Value{}, false, err
			}
			if v.Truthy() {
				return models.Bool(true), true, nil
			}
		}
		return models.Bool(false), true, nil

	case *NotExpr:
		v, _, err := Evaluate(e.Arg, doc)
		if err != nil {
			return models.Value{}, false, err
		}
		return models.Bool(!v.Truthy()), true, nil

	case *CondExpr:
		v, _, err := Evaluate(e.If, doc)
		if err != nil {
			return models.Value{}, false, err
		}
		if v.Truthy() {
			return Evaluate(e.Then, doc)
		}
		return Evaluate(e.Else, doc)

	case *IfNullExpr:
		v, ok, err := Evaluate(e.Arg, doc)
		if err != nil {
			return models.Value{}, false, err
		}
		if ok && !v.IsNull() {
			return v, true, nil
		}
		return Evaluate(e.Replacement, doc)

	case *CompareExpr:
		a, _, err := Evaluate(e.A, doc)
		if err != nil {
			return models.Value{}, false, err
		}
		b, _, err := Evaluate(e.B, doc)
		if err != nil {
			return models.Value{}, false, err
		}
		c := models.Compare(a, b)
		switch e.Op {
		case CmpEq:
			return models.Bool(c == 0), true, nil
		case CmpNe:
			return models.Bool(c != 0), true, nil
		case CmpGt:
			return models.Bool(c > 0), true, nil
		case CmpGte:
			return models.Bool(c >= 0), true, nil
		case CmpLt:
			return models.Bool(c < 0), true, nil
		case CmpLte:
			return models.Bool(c <= 0), true, nil
		}
		return models.Int(int64(c)), true, nil
	}
	return models.Value{}, false, models.NewInvalidArgument("expression", "unsupported expression %T", e)
}

// exprPath names the field an operand refers to, for error messages.
func exprPath(e Expr) string {
	switch e := e.(type) {
	case *FieldRef:
		return e.Path.String()
	case *VarRef:
		if len(e.Path) > 0 {
			return "$$" + e.Name + "." + e.Path.String()
		}
		return "$$" + e.Name
	}
	return ""
}

// result order is a's order, duplicates removed
func evalSetDifference(e *SetDifferenceExpr, doc *models.Document) (models.Value, bool, error) {
	a, okA, err := Evaluate(e.A, doc)
	if err != nil {
		return models.Value{}, false, err
	}
	b, okB, err := Evaluate(e.B, doc)
	if err != nil {
		return models.Value{}, false, err
	}
	if !okA || !okB {
		return models.Value{}, false, nil
	}
	if !a.IsArray() {
		return models.Value{}, false, models.NewTypeMismatch("$setDifference", exprPath(e.A), a, "array")
	}
	if !b.IsArray() {
		return models.Value{}, false, models.NewTypeMismatch("$setDifference", exprPath(e.B), b, "array")
	}

	exclude := make(map[string]struct{}, b.Len())
	for _, v := range b.Elems() {
		exclude[string(hashindex.EncodeKey(v))] = struct{}{}
	}
	out := make([]models.Value, 0, a.Len())
	for _, v := range a.Elems() {
		k := string(hashindex.EncodeKey(v))
		if _, skip := exclude[k]; skip {
			continue
		}
		exclude[k] = struct{}{}
		out = append(out, v)
	}
	return models.Array(out...), true, nil
}

func evalIndexOfBytes(e *IndexOfBytesExpr, doc *models.Document) (models.Value, bool, error) {
	hay, ok, err := Evaluate(e.Haystack, doc)
	if err != nil {
		return models.Value{}, false, err
	}
	if !ok || hay.IsNull() {
		return models.Null(), true, nil
	}
	if !hay.IsString() {
		return models.Value{}, false, models.NewTypeMismatch("$indexOfBytes", exprPath(e.Haystack), hay, "string")
	}
	needle, _, err := Evaluate(e.Needle, doc)
	if err != nil {
		return models.Value{}, false, err
	}
	if !needle.IsString() {
		return models.Value{}, false, models.NewTypeMismatch("$indexOfBytes", exprPath(e.Needle), needle, "string")
	}
	return models.Int(int64(strings.Index(hay.Str(), needle.Str()))), true, nil
}

func evalDivide(e *DivideExpr, doc *models.Document) (models.Value, bool, error) {
	a, okA, err := Evaluate(e.A, doc)
	if err != nil {
		return models.Value{}, false, err
	}
	b, okB, err := Evaluate(e.B, doc)
	if err != nil {
		return models.Value{}, false, err
	}
	if !okA || !okB || a.IsNull() || b.IsNull() {
		return models.Null(), true, nil
	}
	if !a.IsNumber() {
		return models.Value{}, false, models.NewTypeMismatch("$divide", exprPath(e.A), a, "number")
	}
	if !b.IsNumber() {
		return models.Value{}, false, models.NewTypeMismatch("$divide", exprPath(e.B), b, "number")
	}
	if b.Float() == 0 {
		return models.Value{}, false, models.NewDivisionByZero("$divide")
	}
	return models.Double(a.Float() / b.Float()), true, nil
}

func evalAdd(e *AddExpr, doc *models.Document) (models.Value, bool, error) {
	var isum int64
	var fsum float64
	double := false
	for _, arg := range e.Args {
		v, ok, err := Evaluate(arg, doc)
		if err != nil {
			return models.Value{}, false, err
		}
		if !ok || v.IsNull() {
			return models.Null(), true, nil
		}
		switch v.Kind() {
		case models.KindInt:
			isum += v.Int()
		case models.KindDouble:
			double = true
			fsum += v.Float()
		default:
			return models.Value{}, false, models.NewTypeMismatch("$add", exprPath(arg), v, "number")
		}
	}
	if double {
		return models.Double(fsum + float64(isum)), true, nil
	}
	return models.Int(isum), true, nil
}
