package engine

import (
	"strings"

	"docpipe/src/models"
)

// validatePipeline checks every stage descriptor before anything runs, so a
// malformed pipeline fails as a whole instead of part way through.
func (db *Database) validatePipeline(stages []Stage) error {
	for i, s := range stages {
		if s == nil {
			return models.NewInvalidArgument("pipeline", "stage %d is nil", i)
		}
		if err := db.validateStage(s); err != nil {
			return err
		}
	}
	return nil
}

func (db *Database) validateStage(stage Stage) error {
	switch s := stage.(type) {
	case *MatchStage:
		return db.validateFilter(s.Filter, false)

	case *ProjectStage:
		_, err := compileProjection(s)
		return err

	case *AddFieldsStage:
		if len(s.Fields) == 0 {
			return models.NewInvalidArgument("$addFields", "no fields specified")
		}
		for _, f := range s.Fields {
			if len(f.Path) == 0 {
				return models.NewInvalidArgument("$addFields", "empty field path")
			}
			if err := validateExpr("$addFields", f.Expr); err != nil {
				return err
			}
		}
		return nil

	case *UnwindStage:
		if len(s.Path) == 0 {
			return models.NewInvalidArgument("$unwind", "empty field path")
		}
		if s.IncludeArrayIndex != "" {
			if strings.HasPrefix(s.IncludeArrayIndex, "$") {
				return models.NewInvalidArgument("$unwind", "includeArrayIndex %q must not start with '$'", s.IncludeArrayIndex)
			}
			if _, err := models.ParsePath(s.IncludeArrayIndex); err != nil {
				return err
			}
		}
		return nil

	case *GroupStage:
		return validateGroup(s)

	case *SortStage:
		if len(s.Keys) == 0 {
			return models.NewInvalidArgument("$sort", "no sort keys specified")
		}
		for _, k := range s.Keys {
			if len(k.Path) == 0 {
				return models.NewInvalidArgument("$sort", "empty sort key path")
			}
		}
		return nil

	case *SkipStage:
		if s.N < 0 {
			return models.NewInvalidArgument("$skip", "negative skip %d", s.N)
		}
		return nil

	case *LimitStage:
		if s.N < 0 {
			return models.NewInvalidArgument("$limit", "negative limit %d", s.N)
		}
		return nil

	case *LookupStage:
		if s.From == "" {
			return models.NewInvalidArgument("$lookup", "no foreign collection specified")
		}
		if len(s.LocalField) == 0 || len(s.ForeignField) == 0 || len(s.As) == 0 {
			return models.NewInvalidArgument("$lookup", "localField, foreignField and as are required")
		}
		return nil

	case *CountStage:
		return validateFieldName("$count", s.Field)
	}
	return models.NewInvalidArgument("pipeline", "unsupported stage %T", stage)
}

// validateFieldName accepts a plain top-level output field name.
func validateFieldName(op, name string) error {
	switch {
	case name == "":
		return models.NewInvalidArgument(op, "empty field name")
	case strings.HasPrefix(name, "$"):
		return models.NewInvalidArgument(op, "field name %q must not start with '$'", name)
	case strings.Contains(name, "."):
		return models.NewInvalidArgument(op, "field name %q must not contain '.'", name)
	}
	return nil
}

func validateGroup(s *GroupStage) error {
	if s.ID != nil {
		if err := validateExpr("$group", s.ID); err != nil {
			return err
		}
	}
	seen := make(map[string]bool, len(s.Accumulators))
	for _, a := range s.Accumulators {
		if err := validateFieldName("$group", a.Field); err != nil {
			return err
		}
		if a.Field == models.IDField {
			return models.NewInvalidArgument("$group", "accumulator cannot be named _id")
		}
		if seen[a.Field] {
			return models.NewInvalidArgument("$group", "duplicate accumulator %q", a.Field)
		}
		seen[a.Field] = true
		if int(a.Op) >= len(accOpNames) {
			return models.NewInvalidArgument("$group", "unknown accumulator for %q", a.Field)
		}
		if a.Op == AccCount {
			continue
		}
		if a.Arg == nil {
			return models.NewInvalidArgument("$group", "accumulator %s for %q has no argument", a.Op, a.Field)
		}
		if err := validateExpr(a.Op.String(), a.Arg); err != nil {
			return err
		}
	}
	return nil
}

// validateFilter walks f. Conditions with an empty path are only meaningful
// inside $elemMatch, where they address the array element itself.
func (db *Database) validateFilter(f Filter, inElem bool) error {
	switch f := f.(type) {
	case nil:
		if inElem {
			return models.NewInvalidArgument("$elemMatch", "empty filter")
		}
		return nil

	case *FieldCond:
		if len(f.Path) == 0 && !inElem {
			return models.NewInvalidArgument("$match", "empty field path")
		}
		switch f.Op {
		case OpIn, OpNin:
			if !f.Operand.IsArray() {
				return models.NewTypeMismatch(f.Op.String(), f.Path.String(), f.Operand, "array")
			}
		case OpRegex:
			if !f.Operand.IsString() {
				return models.NewTypeMismatch("$regex", f.Path.String(), f.Operand, "string")
			}
			if _, err := db.regex.Compile(f.Operand.Str(), f.Options); err != nil {
				return err
			}
		case OpSize:
			if !f.Operand.IsNumber() {
				return models.NewTypeMismatch("$size", f.Path.String(), f.Operand, "number")
			}
		case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpExists:
		default:
			return models.NewInvalidArgument("$match", "unsupported operator %s", f.Op)
		}
		return nil

	case *AndFilter:
		return db.validateFilters("$and", f.Filters, inElem)
	case *OrFilter:
		return db.validateFilters("$or", f.Filters, inElem)
	case *NorFilter:
		return db.validateFilters("$nor", f.Filters, inElem)

	case *NotFilter:
		if f.Filter == nil {
			return models.NewInvalidArgument("$not", "empty filter")
		}
		return db.validateFilter(f.Filter, inElem)

	case *ElemMatch:
		if len(f.Path) == 0 && !inElem {
			return models.NewInvalidArgument("$elemMatch", "empty field path")
		}
		return db.validateFilter(f.Filter, true)

	case *ExprFilter:
		return validateExpr("$expr", f.Expr)
	}
	return models.NewInvalidArgument("$match", "unsupported filter %T", f)
}

func (db *Database) validateFilters(op string, fs []Filter, inElem bool) error {
	if len(fs) == 0 {
		return models.NewInvalidArgument(op, "requires at least one filter")
	}
	for _, sub := range fs {
		if sub == nil {
			return models.NewInvalidArgument(op, "nil filter")
		}
		if err := db.validateFilter(sub, inElem); err != nil {
			return err
		}
	}
	return nil
}

// validateExpr rejects nil operands and unknown variables.
func validateExpr(op string, e Expr) error {
	var walk func(e Expr) error
	all := func(es ...Expr) error {
		for _, sub := range es {
			if err := walk(sub); err != nil {
				return err
			}
		}
		return nil
	}
	walk = func(e Expr) error {
		switch e := e.(type) {
		case nil:
			return models.NewInvalidArgument(op, "missing expression")
		case *FieldRef:
			if len(e.Path) == 0 {
				return models.NewInvalidArgument(op, "empty field path")
			}
		case *VarRef:
			if e.Name != "ROOT" && e.Name != "CURRENT" {
				return models.NewUnknownField(op, "$$"+e.Name)
			}
		case *Literal:
		case *ArrayExpr:
			return all(e.Elems...)
		case *ObjectExpr:
			for _, f := range e.Fields {
				if f.Name == "" {
					return models.NewInvalidArgument(op, "empty field name in object expression")
				}
				if err := walk(f.Expr); err != nil {
					return err
				}
			}
		case *SizeExpr:
			return walk(e.Arg)
		case *SetDifferenceExpr:
			return all(e.A, e.B)
		case *IndexOfBytesExpr:
			return all(e.Haystack, e.Needle)
		case *InExpr:
			return all(e.Needle, e.Array)
		case *DivideExpr:
			return all(e.A, e.B)
		case *AddExpr:
			return all(e.Args...)
		case *AndExpr:
			return all(e.Args...)
		case *OrExpr:
			return all(e.Args...)
		case *NotExpr:
			return walk(e.Arg)
		case *CondExpr:
			return all(e.If, e.Then, e.Else)
		case *IfNullExpr:
			return all(e.Arg, e.Replacement)
		case *CompareExpr:
			if int(e.Op) >= len(cmpOpNames) {
				return models.NewInvalidArgument(op, "unknown comparison operator")
			}
			return all(e.A, e.B)
		default:
			return models.NewInvalidArgument(op, "unsupported expression %T", e)
		}
		return nil
	}
	return walk(e)
}
