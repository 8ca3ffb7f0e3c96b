package engine

import (
	"docpipe/src/models"
)

// Stage is one pipeline step. The set of stage kinds is closed so the planner
// can inspect every variant.
type Stage interface {
	// Name is the stage operator, e.g. "$match".
	Name() string
}

type MatchStage struct{ Filter Filter }

// ProjectionKind says what a ProjectField does.
type ProjectionKind uint8

const (
	ProjectInclude ProjectionKind = iota
	ProjectExclude
	ProjectComputed
)

type ProjectField struct {
	Path models.FieldPath
	Kind ProjectionKind
	Expr Expr // ProjectComputed only
}

// ProjectStage keeps included paths (and _id unless excluded) in document
// order, then writes computed fields in the order given. A stage made only of
// exclusions removes those paths instead.
type ProjectStage struct{ Fields []ProjectField }

// AddFieldsStage writes computed fields without dropping anything. All
// expressions see the input document.
type AddFieldsStage struct{ Fields []NamedField }

type NamedField struct {
	Path models.FieldPath
	Expr Expr
}

// UnwindStage emits one document per element of the array at Path. A
// document whose path is absent, null or an empty array is dropped, unless
// PreserveNullAndEmpty is set, in which case it is emitted once with the path
// set to null.
type UnwindStage struct {
	Path                 models.FieldPath
	PreserveNullAndEmpty bool
	IncludeArrayIndex    string
}

// AccOp is a group accumulator.
type AccOp uint8

const (
	AccSum AccOp = iota
	AccAddToSet
	AccCount
	AccPush
	AccAvg
	AccMin
	AccMax
	AccFirst
	AccLast
)

var accOpNames = [...]string{"$sum", "$addToSet", "$count", "$push", "$avg", "$min", "$max", "$first", "$last"}

func (o AccOp) String() string { return accOpNames[o] }

type Accumulator struct {
	Field string
	Op    AccOp
	Arg   Expr // unused by AccCount
}

// GroupStage emits one document per distinct key, in first-seen key order.
type GroupStage struct {
	ID           Expr // nil groups everything together
	Accumulators []Accumulator
}

type SortKey struct {
	Path       models.FieldPath
	Descending bool
}

// SortStage is a stable multi-key sort. Arrays sort by their smallest element
// ascending and their largest descending; absent fields sort as null.
type SortStage struct{ Keys []SortKey }

type SkipStage struct{ N int64 }
type LimitStage struct{ N int64 }

// LookupStage attaches, under As, the documents of From whose ForeignField
// equals the LocalField value.
type LookupStage struct {
	From         string
	LocalField   models.FieldPath
	ForeignField models.FieldPath
	As           models.FieldPath
}

// CountStage emits a single document {Field: n}.
type CountStage struct{ Field string }

func (*MatchStage) Name() string     { return "$match" }
func (*ProjectStage) Name() string   { return "$project" }
func (*AddFieldsStage) Name() string { return "$addFields" }
func (*UnwindStage) Name() string    { return "$unwind" }
func (*GroupStage) Name() string     { return "$group" }
func (*SortStage) Name() string      { return "$sort" }
func (*SkipStage) Name() string      { return "$skip" }
func (*LimitStage) Name() string     { return "$limit" }
func (*LookupStage) Name() string    { return "$lookup" }
func (*CountStage) Name() string     { return "$count" }

// Include is a ProjectField including path.
func Include(path string) ProjectField {
	return ProjectField{Path: models.MustPath(path), Kind: ProjectInclude}
}

// Exclude is a ProjectField excluding path.
func Exclude(path string) ProjectField {
	return ProjectField{Path: models.MustPath(path), Kind: ProjectExclude}
}

// Computed is a ProjectField writing e to path.
func Computed(path string, e Expr) ProjectField {
	return ProjectField{Path: models.MustPath(path), Kind: ProjectComputed, Expr: e}
}

// Asc and Desc build sort keys.
func Asc(path string) SortKey  { return SortKey{Path: models.MustPath(path)} }
func Desc(path string) SortKey { return SortKey{Path: models.MustPath(path), Descending: true} }
