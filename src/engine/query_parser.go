package engine

import (
	"fmt"
	"math"
	"strings"

	"docpipe/src/models"

	"go.mongodb.org/mongo-driver/bson"
)

// ParsePipeline converts an array of stage documents, e.g.
//
//	[{"$match": {"category": "physics"}}, {"$sort": {"year": -1}}, {"$limit": 5}]
//
// into stage descriptors.
func ParsePipeline(v any) ([]Stage, error) {
	items, ok := arrayItems(v)
	if !ok {
		return nil, models.NewInvalidArgument("pipeline", "pipeline must be an array of stages, got %T", v)
	}
	stages := make([]Stage, 0, len(items))
	for i, item := range items {
		s, err := ParseStage(item)
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
		stages = append(stages, s)
	}
	return stages, nil
}

// ParseStage converts a single {"$op": argument} document.
func ParseStage(v any) (Stage, error) {
	d, ok := elements(v)
	if !ok || len(d) != 1 {
		return nil, models.NewInvalidArgument("pipeline", "a stage must be a document with exactly one operator")
	}
	name, arg := d[0].Key, d[0].Value

	switch name {
	case "$match":
		f, err := ParseFilter(arg)
		if err != nil {
			return nil, err
		}
		return &MatchStage{Filter: f}, nil

	case "$project":
		return ParseProjection(arg)

	case "$addFields", "$set":
		fd, ok := elements(arg)
		if !ok || len(fd) == 0 {
			return nil, models.NewInvalidArgument(name, "expects a non-empty document")
		}
		s := &AddFieldsStage{Fields: make([]NamedField, 0, len(fd))}
		for _, e := range fd {
			p, err := models.ParsePath(e.Key)
			if err != nil {
				return nil, err
			}
			x, err := ParseExpr(e.Value)
			if err != nil {
				return nil, err
			}
			s.Fields = append(s.Fields, NamedField{Path: p, Expr: x})
		}
		return s, nil

	case "$unwind":
		return parseUnwind(arg)

	case "$group":
		return parseGroup(arg)

	case "$sort":
		keys, err := ParseSort(arg)
		if err != nil {
			return nil, err
		}
		return &SortStage{Keys: keys}, nil

	case "$skip", "$limit":
		n, ok := asInt64(arg)
		if !ok {
			if f, isFloat := arg.(float64); isFloat && math.Abs(f) >= 1<<63 {
				return nil, models.NewInvalidArgument(name, "value %v out of range", f)
			}
			return nil, models.NewInvalidArgument(name, "expects an integer, got %v", arg)
		}
		if name == "$skip" {
			return &SkipStage{N: n}, nil
		}
		return &LimitStage{N: n}, nil

	case "$lookup":
		return parseLookup(arg)

	case "$count":
		field, ok := arg.(string)
		if !ok {
			return nil, models.NewInvalidArgument("$count", "expects a field name string")
		}
		return &CountStage{Field: field}, nil
	}
	return nil, models.NewInvalidArgument("pipeline", "unknown stage %s", name)
}

// ParseProjection accepts {"field": 1, "other": 0, "computed": <expr>} or
// an array of field names to include.
func ParseProjection(v any) (*ProjectStage, error) {
	if items, ok := arrayItems(v); ok {
		s := &ProjectStage{}
		for _, item := range items {
			name, ok := item.(string)
			if !ok {
				return nil, models.NewInvalidArgument("$project", "field list must hold strings, got %T", item)
			}
			p, err := models.ParsePath(name)
			if err != nil {
				return nil, err
			}
			s.Fields = append(s.Fields, ProjectField{Path: p, Kind: ProjectInclude})
		}
		return s, nil
	}

	d, ok := elements(v)
	if !ok {
		return nil, models.NewInvalidArgument("$project", "expects a document or an array of field names")
	}
	s := &ProjectStage{Fields: make([]ProjectField, 0, len(d))}
	for _, e := range d {
		p, err := models.ParsePath(e.Key)
		if err != nil {
			return nil, err
		}
		switch x := e.Value.(type) {
		case bool:
			s.Fields = append(s.Fields, ProjectField{Path: p, Kind: inclusion(x)})
			continue
		case int32, int64, int, float64:
			n, _ := models.FromBSON(x)
			s.Fields = append(s.Fields, ProjectField{Path: p, Kind: inclusion(n.Truthy())})
			continue
		}
		expr, err := ParseExpr(e.Value)
		if err != nil {
			return nil, err
		}
		s.Fields = append(s.Fields, ProjectField{Path: p, Kind: ProjectComputed, Expr: expr})
	}
	return s, nil
}

func inclusion(include bool) ProjectionKind {
	if include {
		return ProjectInclude
	}
	return ProjectExclude
}

// ParseSort accepts {"field": 1, "other": -1}.
func ParseSort(v any) ([]SortKey, error) {
	d, ok := elements(v)
	if !ok || len(d) == 0 {
		return nil, models.NewInvalidArgument("$sort", "expects a non-empty document")
	}
	keys := make([]SortKey, 0, len(d))
	for _, e := range d {
		p, err := models.ParsePath(e.Key)
		if err != nil {
			return nil, err
		}
		dir, ok := asInt64(e.Value)
		if !ok || (dir != 1 && dir != -1) {
			return nil, models.NewInvalidArgument("$sort", "direction for %s must be 1 or -1, got %v", e.Key, e.Value)
		}
		keys = append(keys, SortKey{Path: p, Descending: dir == -1})
	}
	return keys, nil
}

func parseUnwind(arg any) (Stage, error) {
	if s, ok := arg.(string); ok {
		p, err := unwindPath(s)
		if err != nil {
			return nil, err
		}
		return &UnwindStage{Path: p}, nil
	}
	d, ok := elements(arg)
	if !ok {
		return nil, models.NewInvalidArgument("$unwind", "expects a path string or a document")
	}
	s := &UnwindStage{}
	for _, e := range d {
		switch e.Key {
		case "path":
			str, _ := e.Value.(string)
			p, err := unwindPath(str)
			if err != nil {
				return nil, err
			}
			s.Path = p
		case "preserveNullAndEmptyArrays":
			b, ok := e.Value.(bool)
			if !ok {
				return nil, models.NewInvalidArgument("$unwind", "preserveNullAndEmptyArrays must be a bool")
			}
			s.PreserveNullAndEmpty = b
		case "includeArrayIndex":
			str, ok := e.Value.(string)
			if !ok {
				return nil, models.NewInvalidArgument("$unwind", "includeArrayIndex must be a string")
			}
			s.IncludeArrayIndex = str
		default:
			return nil, models.NewInvalidArgument("$unwind", "unknown option %q", e.Key)
		}
	}
	if s.Path == nil {
		return nil, models.NewInvalidArgument("$unwind", "path is required")
	}
	return s, nil
}

func unwindPath(s string) (models.FieldPath, error) {
	rest, ok := strings.CutPrefix(s, "$")
	if !ok {
		return nil, models.NewInvalidArgument("$unwind", "path %q must start with '$'", s)
	}
	return models.ParsePath(rest)
}

var accumulatorOps = map[string]AccOp{
	"$sum":      AccSum,
	"$addToSet": AccAddToSet,
	"$count":    AccCount,
	"$push":     AccPush,
	"$avg":      AccAvg,
	"$min":      AccMin,
	"$max":      AccMax,
	"$first":    AccFirst,
	"$last":     AccLast,
}

func parseGroup(arg any) (Stage, error) {
	d, ok := elements(arg)
	if !ok {
		return nil, models.NewInvalidArgument("$group", "expects a document")
	}
	s := &GroupStage{}
	hasID := false
	for _, e := range d {
		if e.Key == models.IDField {
			hasID = true
			if e.Value == nil {
				continue
			}
			x, err := ParseExpr(e.Value)
			if err != nil {
				return nil, err
			}
			s.ID = x
			continue
		}
		acc, ok := elements(e.Value)
		if !ok || len(acc) != 1 {
			return nil, models.NewInvalidArgument("$group", "accumulator %q must be a single-operator document", e.Key)
		}
		op, ok := accumulatorOps[acc[0].Key]
		if !ok {
			return nil, models.NewInvalidArgument("$group", "unknown accumulator %s", acc[0].Key)
		}
		a := Accumulator{Field: e.Key, Op: op}
		if op != AccCount {
			x, err := ParseExpr(acc[0].Value)
			if err != nil {
				return nil, err
			}
			a.Arg = x
		}
		s.Accumulators = append(s.Accumulators, a)
	}
	if !hasID {
		return nil, models.NewInvalidArgument("$group", "_id is required")
	}
	return s, nil
}

func parseLookup(arg any) (Stage, error) {
	d, ok := elements(arg)
	if !ok {
		return nil, models.NewInvalidArgument("$lookup", "expects a document")
	}
	s := &LookupStage{}
	for _, e := range d {
		str, ok := e.Value.(string)
		if !ok {
			return nil, models.NewInvalidArgument("$lookup", "%s must be a string", e.Key)
		}
		if e.Key == "from" {
			s.From = str
			continue
		}
		p, err := models.ParsePath(str)
		if err != nil {
			return nil, err
		}
		switch e.Key {
		case "localField":
			s.LocalField = p
		case "foreignField":
			s.ForeignField = p
		case "as":
			s.As = p
		default:
			return nil, models.NewInvalidArgument("$lookup", "unknown option %q", e.Key)
		}
	}
	return s, nil
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<63 {
			return int64(x), true
		}
	}
	return 0, false
}

// decodeExtJSON decodes an extended JSON value of any type.
func decodeExtJSON(data []byte) (any, error) {
	wrapped := make([]byte, 0, len(data)+8)
	wrapped = append(wrapped, `{"v":`...)
	wrapped = append(wrapped, data...)
	wrapped = append(wrapped, '}')
	var d bson.D
	if err := bson.UnmarshalExtJSON(wrapped, false, &d); err != nil {
		return nil, models.NewInvalidArgument("json", "%v", err)
	}
	return d[0].Value, nil
}

// ParsePipelineJSON parses a pipeline written as (extended) JSON.
func ParsePipelineJSON(data []byte) ([]Stage, error) {
	v, err := decodeExtJSON(data)
	if err != nil {
		return nil, err
	}
	return ParsePipeline(v)
}

// ParseFilterJSON parses a query document written as (extended) JSON.
func ParseFilterJSON(data []byte) (Filter, error) {
	v, err := decodeExtJSON(data)
	if err != nil {
		return nil, err
	}
	return ParseFilter(v)
}

// ParseSortJSON parses a sort document written as (extended) JSON.
func ParseSortJSON(data []byte) ([]SortKey, error) {
	v, err := decodeExtJSON(data)
	if err != nil {
		return nil, err
	}
	return ParseSort(v)
}

// ParseProjectionJSON parses a projection written as (extended) JSON.
func ParseProjectionJSON(data []byte) (*ProjectStage, error) {
	v, err := decodeExtJSON(data)
	if err != nil {
		return nil, err
	}
	return ParseProjection(v)
}
