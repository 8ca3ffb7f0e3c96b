package engine

import (
	"sort"

	"docpipe/src/models"
)

// sortValue is the value a document sorts by for one key: the smallest
// reachable value ascending, the largest descending, with array elements
// considered individually. Absent paths and empty arrays sort as null.
func sortValue(doc *models.Document, key SortKey) models.Value {
	var best models.Value
	found := false
	consider := func(v models.Value) {
		if !found {
			best, found = v, true
			return
		}
		c := models.Compare(v, best)
		if (key.Descending && c > 0) || (!key.Descending && c < 0) {
			best = v
		}
	}
	for _, v := range models.Resolve(doc, key.Path) {
		if v.IsArray() {
			for _, e := range v.Elems() {
				consider(e)
			}
			continue
		}
		consider(v)
	}
	return best
}

func sortTuple(doc *models.Document, keys []SortKey) []models.Value {
	t := make([]models.Value, len(keys))
	for i, k := range keys {
		t[i] = sortValue(doc, k)
	}
	return t
}

func sortDirections(keys []SortKey) []bool {
	desc := make([]bool, len(keys))
	for i, k := range keys {
		desc[i] = k.Descending
	}
	return desc
}

// sortDocuments stable-sorts docs in place.
func sortDocuments(docs []*models.Document, keys []SortKey) {
	tuples := make([][]models.Value, len(docs))
	for i, d := range docs {
		tuples[i] = sortTuple(d, keys)
	}
	desc := sortDirections(keys)
	idx := make([]int, len(docs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return models.CompareTuples(tuples[idx[a]], tuples[idx[b]], desc) < 0
	})
	sorted := make([]*models.Document, len(docs))
	for i, j := range idx {
		sorted[i] = docs[j]
	}
	copy(docs, sorted)
}

func (ex *executor) execSort(s *SortStage, in Seq) Seq {
	return func(yield func(*models.Document, error) bool) {
		docs, err := drain(in)
		if err != nil {
			yield(nil, err)
			return
		}
		sortDocuments(docs, s.Keys)
		for _, d := range docs {
			if !yield(d, nil) {
				return
			}
		}
	}
}
