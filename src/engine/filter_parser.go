package engine

import (
	"fmt"
	"sort"
	"strings"

	"docpipe/src/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// elements returns the ordered fields of a BSON document. Unordered maps are
// read in key order.
func elements(v any) (bson.D, bool) {
	switch x := v.(type) {
	case bson.D:
		return x, true
	case bson.M:
		return sortedElements(x), true
	case map[string]any:
		return sortedElements(x), true
	case *models.Document:
		return x.ToBSON(), true
	case bson.Raw:
		var d bson.D
		if err := bson.Unmarshal(x, &d); err != nil {
			return nil, false
		}
		return d, true
	}
	return nil, false
}

func sortedElements(m map[string]any) bson.D {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	d := make(bson.D, len(keys))
	for i, k := range keys {
		d[i] = bson.E{Key: k, Value: m[k]}
	}
	return d
}

func arrayItems(v any) ([]any, bool) {
	switch x := v.(type) {
	case bson.A:
		return x, true
	case []any:
		return x, true
	case []bson.D:
		out := make([]any, len(x))
		for i, d := range x {
			out[i] = d
		}
		return out, true
	}
	return nil, false
}

// isOperatorDoc reports whether every key of d is a $-operator. A document
// mixing operators and plain fields is an error.
func isOperatorDoc(op string, d bson.D) (bool, error) {
	if len(d) == 0 {
		return false, nil
	}
	ops := 0
	for _, e := range d {
		if strings.HasPrefix(e.Key, "$") {
			ops++
		}
	}
	if ops > 0 && ops != len(d) {
		return false, models.NewInvalidArgument(op, "cannot mix operators and fields in %v", d)
	}
	return ops > 0, nil
}

// ParseFilter converts a query document such as
//
//	{"year": {"$gte": 1990}, "category": {"$in": ["physics", "chemistry"]}}
//
// into a Filter. An empty document yields a nil Filter, which matches
// everything.
func ParseFilter(v any) (Filter, error) {
	d, ok := elements(v)
	if !ok {
		if v == nil {
			return nil, nil
		}
		return nil, models.NewInvalidArgument("$match", "filter must be a document, got %T", v)
	}

	var filters []Filter
	for _, e := range d {
		f, err := parseFilterElement(e)
		if err != nil {
			return nil, err
		}
		if f != nil {
			filters = append(filters, f)
		}
	}
	switch len(filters) {
	case 0:
		return nil, nil
	case 1:
		return filters[0], nil
	}
	return &AndFilter{Filters: filters}, nil
}

func parseFilterElement(e bson.E) (Filter, error) {
	switch e.Key {
	case "$and", "$or", "$nor":
		items, ok := arrayItems(e.Value)
		if !ok || len(items) == 0 {
			return nil, models.NewInvalidArgument(e.Key, "expects a non-empty array of filters")
		}
		subs := make([]Filter, 0, len(items))
		for i, item := range items {
			if _, ok := elements(item); !ok {
				return nil, models.NewInvalidArgument(e.Key, "element %d is not a document", i)
			}
			sub, err := ParseFilter(item)
			if err != nil {
				return nil, err
			}
			if sub == nil {
				sub = &AndFilter{}
			}
			subs = append(subs, sub)
		}
		switch e.Key {
		case "$and":
			return &AndFilter{Filters: subs}, nil
		case "$or":
			return &OrFilter{Filters: subs}, nil
		}
		return &NorFilter{Filters: subs}, nil

	case "$expr":
		x, err := ParseExpr(e.Value)
		if err != nil {
			return nil, err
		}
		return &ExprFilter{Expr: x}, nil

	case "$comment":
		return nil, nil
	}

	if strings.HasPrefix(e.Key, "$") {
		return nil, models.NewInvalidArgument("$match", "unknown top-level operator %s", e.Key)
	}
	path, err := models.ParsePath(e.Key)
	if err != nil {
		return nil, err
	}
	return parseFieldFilter(path, e.Value)
}

// parseFieldFilter parses the value given for a field: a literal (equality),
// a regex, or an operator document.
func parseFieldFilter(path models.FieldPath, v any) (Filter, error) {
	if re, ok := v.(primitive.Regex); ok {
		return &FieldCond{Path: path, Op: OpRegex, Operand: models.String(re.Pattern), Options: re.Options}, nil
	}
	d, isDoc := elements(v)
	if isDoc {
		isOps, err := isOperatorDoc("$match", d)
		if err != nil {
			return nil, err
		}
		if isOps {
			return parseOperators(path, d)
		}
	}
	operand, err := models.FromBSON(v)
	if err != nil {
		return nil, err
	}
	return &FieldCond{Path: path, Op: OpEq, Operand: operand}, nil
}

var comparisonOps = map[string]CondOp{
	"$eq":  OpEq,
	"$ne":  OpNe,
	"$gt":  OpGt,
	"$gte": OpGte,
	"$lt":  OpLt,
	"$lte": OpLte,
	"$in":  OpIn,
	"$nin": OpNin,
}

// parseOperators parses {"$gt": 1, "$lt": 5, ...}; the conditions are ANDed.
// "$numeric": true makes every condition of the document compare
// numeric-looking strings as numbers.
func parseOperators(path models.FieldPath, d bson.D) (Filter, error) {
	var (
		filters []Filter
		conds   []*FieldCond
		regex   *FieldCond
		options *string
		numeric bool
	)
	for _, e := range d {
		switch e.Key {
		case "$eq", "$ne", "$gt", "$gte", "$lt", "$lte", "$in", "$nin":
			operand, err := models.FromBSON(e.Value)
			if err != nil {
				return nil, fmt.Errorf("%s on %s: %w", e.Key, path, err)
			}
			op := comparisonOps[e.Key]
			if (op == OpIn || op == OpNin) && !operand.IsArray() {
				return nil, models.NewTypeMismatch(e.Key, path.String(), operand, "array")
			}
			c := &FieldCond{Path: path, Op: op, Operand: operand}
			conds = append(conds, c)
			filters = append(filters, c)

		case "$exists":
			v, err := models.FromBSON(e.Value)
			if err != nil {
				return nil, err
			}
			c := &FieldCond{Path: path, Op: OpExists, Operand: models.Bool(v.Truthy())}
			conds = append(conds, c)
			filters = append(filters, c)

		case "$size":
			v, err := models.FromBSON(e.Value)
			if err != nil {
				return nil, err
			}
			if !v.IsNumber() {
				return nil, models.NewTypeMismatch("$size", path.String(), v, "number")
			}
			c := &FieldCond{Path: path, Op: OpSize, Operand: v}
			conds = append(conds, c)
			filters = append(filters, c)

		case "$regex":
			regex = &FieldCond{Path: path, Op: OpRegex}
			switch x := e.Value.(type) {
			case string:
				regex.Operand = models.String(x)
			case primitive.Regex:
				regex.Operand = models.String(x.Pattern)
				regex.Options = x.Options
			default:
				return nil, models.NewInvalidArgument("$regex", "pattern for %s must be a string, got %T", path, e.Value)
			}
			filters = append(filters, regex)

		case "$options":
			s, ok := e.Value.(string)
			if !ok {
				return nil, models.NewInvalidArgument("$options", "options for %s must be a string", path)
			}
			options = &s

		case "$not":
			var inner Filter
			var err error
			if re, ok := e.Value.(primitive.Regex); ok {
				inner, err = parseFieldFilter(path, re)
			} else if sub, ok := elements(e.Value); ok && len(sub) > 0 {
				inner, err = parseOperators(path, sub)
			} else {
				err = models.NewInvalidArgument("$not", "expects an operator document or a regex")
			}
			if err != nil {
				return nil, err
			}
			filters = append(filters, &NotFilter{Filter: inner})

		case "$elemMatch":
			sub, err := parseElemMatch(e.Value)
			if err != nil {
				return nil, err
			}
			filters = append(filters, &ElemMatch{Path: path, Filter: sub})

		case "$numeric":
			v, err := models.FromBSON(e.Value)
			if err != nil {
				return nil, err
			}
			numeric = v.Truthy()

		default:
			return nil, models.NewInvalidArgument("$match", "unknown operator %s on %s", e.Key, path)
		}
	}

	if options != nil {
		if regex == nil {
			return nil, models.NewInvalidArgument("$options", "$options without $regex on %s", path)
		}
		regex.Options = *options
	}
	for _, c := range conds {
		c.Numeric = numeric
	}
	if len(filters) == 0 {
		return nil, models.NewInvalidArgument("$match", "no conditions given for %s", path)
	}
	return And(filters...), nil
}

// parseElemMatch accepts either conditions on the element itself
// ({"$gte": 80}) or a filter over the element's fields ({"score": 1}).
func parseElemMatch(v any) (Filter, error) {
	d, ok := elements(v)
	if !ok || len(d) == 0 {
		return nil, models.NewInvalidArgument("$elemMatch", "expects a non-empty document")
	}
	first := d[0].Key
	if strings.HasPrefix(first, "$") && first != "$and" && first != "$or" && first != "$nor" && first != "$expr" {
		return parseOperators(nil, d)
	}
	return ParseFilter(d)
}
