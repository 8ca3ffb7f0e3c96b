package engine

import (
	"strings"

	"docpipe/src/models"
)

// ParseExpr converts an aggregation expression: "$field.path", "$$ROOT",
// an operator document such as {"$size": "$prizes"}, an array, an object of
// expressions, or a literal.
func ParseExpr(v any) (Expr, error) {
	if s, ok := v.(string); ok && strings.HasPrefix(s, "$") {
		return parseFieldExpr(s)
	}
	if items, ok := arrayItems(v); ok {
		elems, err := parseExprList(items)
		if err != nil {
			return nil, err
		}
		return &ArrayExpr{Elems: elems}, nil
	}
	if d, ok := elements(v); ok {
		isOps, err := isOperatorDoc("expression", d)
		if err != nil {
			return nil, err
		}
		if !isOps {
			obj := &ObjectExpr{Fields: make([]NamedExpr, 0, len(d))}
			for _, e := range d {
				x, err := ParseExpr(e.Value)
				if err != nil {
					return nil, err
				}
				obj.Fields = append(obj.Fields, NamedExpr{Name: e.Key, Expr: x})
			}
			return obj, nil
		}
		if len(d) != 1 {
			return nil, models.NewInvalidArgument("expression", "an operator document takes exactly one operator, got %d", len(d))
		}
		return parseOperatorExpr(d[0].Key, d[0].Value)
	}
	lit, err := models.FromBSON(v)
	if err != nil {
		return nil, err
	}
	return Lit(lit), nil
}

func parseFieldExpr(s string) (Expr, error) {
	if rest, ok := strings.CutPrefix(s, "$$"); ok {
		name, tail, _ := strings.Cut(rest, ".")
		if name != "ROOT" && name != "CURRENT" {
			return nil, models.NewUnknownField("expression", "$$"+name)
		}
		ref := &VarRef{Name: name}
		if tail != "" {
			p, err := models.ParsePath(tail)
			if err != nil {
				return nil, err
			}
			ref.Path = p
		}
		return ref, nil
	}
	p, err := models.ParsePath(s[1:])
	if err != nil {
		return nil, err
	}
	return &FieldRef{Path: p}, nil
}

func parseExprList(items []any) ([]Expr, error) {
	out := make([]Expr, len(items))
	for i, item := range items {
		x, err := ParseExpr(item)
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}

// operatorArgs parses the operands of an operator. A single non-array operand
// counts as a one-element list.
func operatorArgs(op string, v any, want int) ([]Expr, error) {
	items, ok := arrayItems(v)
	if !ok {
		items = []any{v}
	}
	if want >= 0 && len(items) != want {
		return nil, models.NewInvalidArgument(op, "expects %d arguments, got %d", want, len(items))
	}
	return parseExprList(items)
}

var compareOps = map[string]CmpOp{
	"$eq":  CmpEq,
	"$ne":  CmpNe,
	"$gt":  CmpGt,
	"$gte": CmpGte,
	"$lt":  CmpLt,
	"$lte": CmpLte,
	"$cmp": Cmp3,
}

func parseOperatorExpr(op string, arg any) (Expr, error) {
	if cmp, ok := compareOps[op]; ok {
		args, err := operatorArgs(op, arg, 2)
		if err != nil {
			return nil, err
		}
		return &CompareExpr{Op: cmp, A: args[0], B: args[1]}, nil
	}

	switch op {
	case "$literal":
		v, err := models.FromBSON(arg)
		if err != nil {
			return nil, err
		}
		return Lit(v), nil

	case "$size", "$not":
		args, err := operatorArgs(op, arg, 1)
		if err != nil {
			return nil, err
		}
		if op == "$size" {
			return &SizeExpr{Arg: args[0]}, nil
		}
		return &NotExpr{Arg: args[0]}, nil

	case "$setDifference", "$indexOfBytes", "$in", "$divide", "$ifNull":
		args, err := operatorArgs(op, arg, 2)
		if err != nil {
			return nil, err
		}
		switch op {
		case "$setDifference":
			return &SetDifferenceExpr{A: args[0], B: args[1]}, nil
		case "$indexOfBytes":
			return &IndexOfBytesExpr{Haystack: args[0], Needle: args[1]}, nil
		case "$in":
			return &InExpr{Needle: args[0], Array: args[1]}, nil
		case "$divide":
			return &DivideExpr{A: args[0], B: args[1]}, nil
		}
		return &IfNullExpr{Arg: args[0], Replacement: args[1]}, nil

	case "$add", "$and", "$or":
		args, err := operatorArgs(op, arg, -1)
		if err != nil {
			return nil, err
		}
		switch op {
		case "$add":
			return &AddExpr{Args: args}, nil
		case "$and":
			return &AndExpr{Args: args}, nil
		}
		return &OrExpr{Args: args}, nil

	case "$cond":
		return parseCond(arg)
	}
	return nil, models.NewInvalidArgument("expression", "unknown operator %s", op)
}

// parseCond accepts [if, then, else] or {"if": ..., "then": ..., "else": ...}.
func parseCond(arg any) (Expr, error) {
	if d, ok := elements(arg); ok {
		parts := make(map[string]Expr, 3)
		for _, e := range d {
			switch e.Key {
			case "if", "then", "else":
				x, err := ParseExpr(e.Value)
				if err != nil {
					return nil, err
				}
				parts[e.Key] = x
			default:
				return nil, models.NewInvalidArgument("$cond", "unknown argument %q", e.Key)
			}
		}
		if len(parts) != 3 {
			return nil, models.NewInvalidArgument("$cond", "requires if, then and else")
		}
		return &CondExpr{If: parts["if"], Then: parts["then"], Else: parts["else"]}, nil
	}
	args, err := operatorArgs("$cond", arg, 3)
	if err != nil {
		return nil, err
	}
	return &CondExpr{If: args[0], Then: args[1], Else: args[2]}, nil
}
