package btreeindex

import (
	"sort"
	"strings"

	"docpipe/src/models"
)

// IndexField defines one key of a (compound) index.
type IndexField struct {
	Path       models.FieldPath
	Descending bool
}

func (f IndexField) String() string {
	if f.Descending {
		return f.Path.String() + "_-1"
	}
	return f.Path.String() + "_1"
}

// DefaultIndexName names an index after its keys, e.g. "category_1_year_-1".
func DefaultIndexName(fields []IndexField) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f.String()
	}
	return strings.Join(parts, "_")
}

// IndexTuple is a single entry of the index: one key tuple pointing at one
// document ordinal. Multikey documents produce several tuples.
type IndexTuple struct {
	Key     []models.Value
	Ordinal uint32
}

// scanDocumentsAndCreateTuples extracts the key tuples of every document.
// An absent key is indexed as null.
func scanDocumentsAndCreateTuples(docs []*models.Document, fields []IndexField) ([]IndexTuple, bool) {
	tuples := make([]IndexTuple, 0, len(docs))
	multikey := false

	for ord, doc := range docs {
		perField := make([][]models.Value, len(fields))
		for i, f := range fields {
			if v, ok := models.ResolveField(doc, f.Path); ok && v.IsArray() {
				multikey = true
			}
			cands := dedupe(models.Candidates(models.Doc(doc), f.Path))
			if len(cands) == 0 {
				cands = []models.Value{models.Null()}
			}
			perField[i] = cands
		}
		for _, key := range cartesian(perField) {
			tuples = append(tuples, IndexTuple{Key: key, Ordinal: uint32(ord)})
		}
	}
	return tuples, multikey
}

func dedupe(vals []models.Value) []models.Value {
	out := vals[:0:0]
	for _, v := range vals {
		seen := false
		for _, o := range out {
			if o.Equal(v) {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, v)
		}
	}
	return out
}

func cartesian(sets [][]models.Value) [][]models.Value {
	out := [][]models.Value{{}}
	for _, set := range sets {
		next := make([][]models.Value, 0, len(out)*len(set))
		for _, prefix := range out {
			for _, v := range set {
				key := make([]models.Value, len(prefix), len(prefix)+1)
				copy(key, prefix)
				next = append(next, append(key, v))
			}
		}
		out = next
	}
	return out
}

// sortTuples orders tuples by key (honouring each field's direction) and then
// by ordinal, so equal keys keep collection order.
func sortTuples(tuples []IndexTuple, fields []IndexField) {
	desc := directions(fields)
	sort.Slice(tuples, func(i, j int) bool {
		if c := models.CompareTuples(tuples[i].Key, tuples[j].Key, desc); c != 0 {
			return c < 0
		}
		return tuples[i].Ordinal < tuples[j].Ordinal
	})
}

func directions(fields []IndexField) []bool {
	desc := make([]bool, len(fields))
	for i, f := range fields {
		desc[i] = f.Descending
	}
	return desc
}

func validateFields(fields []IndexField) error {
	if len(fields) == 0 {
		return models.NewInvalidArgument("createIndex", "no index fields specified")
	}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if len(f.Path) == 0 {
			return models.NewInvalidArgument("createIndex", "empty index field path")
		}
		key := f.Path.String()
		if seen[key] {
			return models.NewInvalidArgument("createIndex", "field %q indexed twice", key)
		}
		seen[key] = true
	}
	return nil
}
