package engine

import (
	"fmt"
	"strings"

	btreeindex "docpipe/src/btree_index"
	"docpipe/src/metrics"
	"docpipe/src/models"

	"github.com/RoaringBitmap/roaring/v2"
)

// Plan is a validated pipeline bound to a collection snapshot. A Plan can be
// executed any number of times and always sees the same data.
type Plan struct {
	db      *Database
	snap    *snapshot
	foreign map[string][]*models.Document

	// candidates narrows the scan to ordinals a leading $match can reach;
	// nil means every document.
	candidates   *roaring.Bitmap
	filterIdx    []string
	sortIdx      *btreeindex.BTreeIndex
	sortKeyCount int

	stages []Stage
}

// Explanation describes how a Plan reads its collection.
type Explanation struct {
	Collection    string
	Scan          string   // metrics.ScanFull or metrics.ScanIndex
	FilterIndexes []string // indexes narrowing the leading $match
	SortIndex     string   // index whose order replaced the $sort stage
	Stages        []string
}

func (e Explanation) String() string {
	var sb strings.Builder
	if e.Scan == metrics.ScanIndex {
		names := append([]string(nil), e.FilterIndexes...)
		if e.SortIndex != "" && !containsString(names, e.SortIndex) {
			names = append(names, e.SortIndex)
		}
		fmt.Fprintf(&sb, "IXSCAN %s", strings.Join(names, ","))
	} else {
		sb.WriteString("COLLSCAN")
	}
	fmt.Fprintf(&sb, " on %s, sort served: %t", e.Collection, e.SortIndex != "")
	if len(e.Stages) > 0 {
		fmt.Fprintf(&sb, ", stages: %s", strings.Join(e.Stages, " -> "))
	}
	return sb.String()
}

func containsString(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

// Plan validates stages and binds them to a snapshot of the collection and of
// every collection a $lookup reads.
func (db *Database) Plan(collection string, stages []Stage) (*Plan, error) {
	if err := db.validatePipeline(stages); err != nil {
		return nil, err
	}
	c, err := db.Collection(collection)
	if err != nil {
		return nil, err
	}

	p := &Plan{
		db:      db,
		snap:    c.snapshot(),
		foreign: make(map[string][]*models.Document),
		stages:  stages,
	}
	for _, s := range stages {
		lk, ok := s.(*LookupStage)
		if !ok {
			continue
		}
		if _, done := p.foreign[lk.From]; done {
			continue
		}
		fc, err := db.Collection(lk.From)
		if err != nil {
			return nil, err
		}
		p.foreign[lk.From] = fc.snapshot().docs
	}

	p.chooseIndexes()
	return p, nil
}

// chooseIndexes applies the two index rewrites: candidate narrowing for a
// leading $match, and replacing a $sort at the head of the pipeline (or
// right after the leading $match) with an ordered index scan.
func (p *Plan) chooseIndexes() {
	if len(p.snap.indexes) == 0 || len(p.stages) == 0 {
		return
	}

	sortPos := 0
	if m, ok := p.stages[0].(*MatchStage); ok {
		p.candidates, p.filterIdx = indexCandidates(m.Filter, p.snap.indexes)
		sortPos = 1
	}
	if sortPos >= len(p.stages) {
		return
	}
	s, ok := p.stages[sortPos].(*SortStage)
	if !ok {
		return
	}
	keys := make([]IndexField, len(s.Keys))
	for i, k := range s.Keys {
		keys[i] = IndexField{Path: k.Path, Descending: k.Descending}
	}
	for _, idx := range p.snap.indexes {
		if idx.ServesSort(keys) {
			p.sortIdx = idx
			p.sortKeyCount = len(keys)
			rest := make([]Stage, 0, len(p.stages)-1)
			rest = append(rest, p.stages[:sortPos]...)
			p.stages = append(rest, p.stages[sortPos+1:]...)
			return
		}
	}
}

// indexCandidates collects the top-level conditions of f that an index can
// answer and intersects their ordinal sets. The result is a superset of the
// matching ordinals; the filter itself still runs on every candidate.
func indexCandidates(f Filter, indexes []*btreeindex.BTreeIndex) (*roaring.Bitmap, []string) {
	var conds []*FieldCond
	switch f := f.(type) {
	case *FieldCond:
		conds = append(conds, f)
	case *AndFilter:
		for _, sub := range f.Filters {
			if c, ok := sub.(*FieldCond); ok {
				conds = append(conds, c)
			}
		}
	}

	var out *roaring.Bitmap
	var used []string
	for _, c := range conds {
		if c.Numeric {
			continue
		}
		for _, idx := range indexes {
			if idx.LeadingPath().String() != c.Path.String() {
				continue
			}
			bm, ok := condCandidates(c, idx)
			if !ok {
				continue
			}
			if out == nil {
				out = bm
			} else {
				out.And(bm)
			}
			if !containsString(used, idx.Name) {
				used = append(used, idx.Name)
			}
			break
		}
	}
	return out, used
}

func condCandidates(c *FieldCond, idx *btreeindex.BTreeIndex) (*roaring.Bitmap, bool) {
	switch c.Op {
	case OpEq:
		if hasDocument(c.Operand) {
			return nil, false
		}
		return idx.Lookup([]models.Value{c.Operand}), true
	case OpIn:
		if !c.Operand.IsArray() || hasDocument(c.Operand) {
			return nil, false
		}
		out := roaring.New()
		for _, e := range c.Operand.Elems() {
			out.Or(idx.Lookup([]models.Value{e}))
		}
		return out, true
	case OpGt:
		return idx.Range(&btreeindex.Bound{Value: c.Operand}, nil), true
	case OpGte:
		return idx.Range(&btreeindex.Bound{Value: c.Operand, Inclusive: true}, nil), true
	case OpLt:
		return idx.Range(nil, &btreeindex.Bound{Value: c.Operand}), true
	case OpLte:
		return idx.Range(nil, &btreeindex.Bound{Value: c.Operand, Inclusive: true}), true
	}
	return nil, false
}

// hasDocument reports whether v is or contains an embedded document.
// Document equality ignores field order but index keys are ordered, so such
// operands are not looked up.
func hasDocument(v models.Value) bool {
	switch {
	case v.IsDocument():
		return true
	case v.IsArray():
		for _, e := range v.Elems() {
			if hasDocument(e) {
				return true
			}
		}
	}
	return false
}

// Explain reports the access path chosen for the plan.
func (p *Plan) Explain() Explanation {
	e := Explanation{
		Collection:    p.snap.name,
		Scan:          metrics.ScanFull,
		FilterIndexes: p.filterIdx,
	}
	if p.candidates != nil || p.sortIdx != nil {
		e.Scan = metrics.ScanIndex
	}
	if p.sortIdx != nil {
		e.SortIndex = p.sortIdx.Name
	}
	for _, s := range p.stages {
		e.Stages = append(e.Stages, s.Name())
	}
	return e
}
