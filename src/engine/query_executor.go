package engine

import (
	"context"
	"iter"
	"sort"
	"time"

	btreeindex "docpipe/src/btree_index"
	"docpipe/src/metrics"
	"docpipe/src/models"
)

// Execute threads the plan's base scan through its stages. Nothing runs until
// the cursor is consumed; cancelling ctx ends the scan with ctx.Err().
func (p *Plan) Execute(ctx context.Context) *Cursor {
	ex := &executor{
		regex:   p.db.regex,
		metrics: p.db.metrics,
		hashes:  p.db.hashes,
		foreign: p.foreign,
		logger:  p.db.logger,
	}

	seq := p.scan(ctx)
	for _, s := range p.stages {
		seq = ex.apply(s, seq)
	}
	return newCursor(seq, p.db.metrics, time.Now())
}

// scan is the base sequence: the snapshot documents, narrowed by the
// candidate set and ordered by the sort index when the plan has them.
func (p *Plan) scan(ctx context.Context) Seq {
	docs := p.snap.docs
	kind := metrics.ScanFull
	if p.candidates != nil || p.sortIdx != nil {
		kind = metrics.ScanIndex
	}

	return func(yield func(*models.Document, error) bool) {
		p.db.metrics.ObserveScan(kind)
		emit := func(ord uint32) bool {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return false
			}
			if int(ord) >= len(docs) {
				return true
			}
			if p.candidates != nil && !p.candidates.Contains(ord) {
				return true
			}
			return yield(docs[ord], nil)
		}

		switch {
		case p.sortIdx != nil:
			for ord := range orderedOrdinals(p.sortIdx, p.sortKeyCount) {
				if !emit(ord) {
					return
				}
			}
		case p.candidates != nil:
			it := p.candidates.Iterator()
			for it.HasNext() {
				if !emit(it.Next()) {
					return
				}
			}
		default:
			for ord := range docs {
				if !emit(uint32(ord)) {
					return
				}
			}
		}
	}
}

// orderedOrdinals yields ordinals in index order. When the sort uses only
// the first n of the index keys, each run of equal leading keys is re-ordered
// by ordinal, which is the order a stable sort over the collection gives.
func orderedOrdinals(idx *btreeindex.BTreeIndex, n int) iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		if n >= len(idx.Fields) {
			for t := range idx.Scan() {
				if !yield(t.Ordinal) {
					return
				}
			}
			return
		}

		desc := make([]bool, n)
		for i := range desc {
			desc[i] = idx.Fields[i].Descending
		}
		var run []uint32
		var runKey []models.Value
		flush := func() bool {
			sort.Slice(run, func(i, j int) bool { return run[i] < run[j] })
			for _, ord := range run {
				if !yield(ord) {
					return false
				}
			}
			run = run[:0]
			return true
		}
		for t := range idx.Scan() {
			key := t.Key[:n]
			if runKey != nil && models.CompareTuples(key, runKey, desc) != 0 {
				if !flush() {
					return
				}
			}
			runKey = key
			run = append(run, t.Ordinal)
		}
		flush()
	}
}
