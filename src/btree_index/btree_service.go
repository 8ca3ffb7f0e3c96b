package btreeindex

import (
	"iter"
	"sort"
	"time"

	"docpipe/src/models"

	"github.com/RoaringBitmap/roaring/v2"
	"go.uber.org/zap"
)

// BTreeIndex is an immutable ordered index over one or more field paths.
// It reflects the documents it was built from; inserts made to the owning
// collection afterwards are only visible after a rebuild.
type BTreeIndex struct {
	Name       string
	Collection string
	Fields     []IndexField
	CreateTime time.Time

	tuples   []IndexTuple
	desc     []bool
	multikey bool
	docCount int
}

// BTreeService builds B-tree indexes.
type BTreeService struct {
	logger *zap.SugaredLogger
}

// NewBTreeService creates a new B-tree indexing service
func NewBTreeService(logger *zap.SugaredLogger) *BTreeService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &BTreeService{logger: logger}
}

// CreateIndex scans docs once and returns the sorted index. The ordinal of a
// document is its position in docs.
func (bts *BTreeService) CreateIndex(name, collection string, fields []IndexField, docs []*models.Document) (*BTreeIndex, error) {
	if err := validateFields(fields); err != nil {
		return nil, err
	}
	if name == "" {
		name = DefaultIndexName(fields)
	}

	start := time.Now()
	tuples, multikey := scanDocumentsAndCreateTuples(docs, fields)
	sortTuples(tuples, fields)

	idx := &BTreeIndex{
		Name:       name,
		Collection: collection,
		Fields:     append([]IndexField(nil), fields...),
		CreateTime: time.Now(),
		tuples:     tuples,
		desc:       directions(fields),
		multikey:   multikey,
		docCount:   len(docs),
	}

	bts.logger.Debugf("Built index %s on %s: %d tuples over %d documents (multikey=%t) in %s",
		name, collection, len(tuples), len(docs), multikey, time.Since(start))
	return idx, nil
}

// Multikey reports whether any document contributed an array key; such an
// index can narrow filters but cannot serve a sort.
func (idx *BTreeIndex) Multikey() bool { return idx.multikey }

// DocCount is the number of documents present at build time.
func (idx *BTreeIndex) DocCount() int { return idx.docCount }

// Len is the number of index tuples.
func (idx *BTreeIndex) Len() int { return len(idx.tuples) }

// Lookup returns the ordinals whose leading keys equal prefix.
func (idx *BTreeIndex) Lookup(prefix []models.Value) *roaring.Bitmap {
	out := roaring.New()
	if len(prefix) == 0 || len(prefix) > len(idx.Fields) {
		return out
	}
	n := len(prefix)
	lo := sort.Search(len(idx.tuples), func(i int) bool {
		return models.CompareTuples(idx.tuples[i].Key[:n], prefix, idx.desc) >= 0
	})
	for i := lo; i < len(idx.tuples); i++ {
		if models.CompareTuples(idx.tuples[i].Key[:n], prefix, idx.desc) != 0 {
			break
		}
		out.Add(idx.tuples[i].Ordinal)
	}
	return out
}

// Bound is one end of a range over the leading index key.
type Bound struct {
	Value     models.Value
	Inclusive bool
}

// Range returns the ordinals whose leading key lies between lower and upper.
// A nil bound is open.
func (idx *BTreeIndex) Range(lower, upper *Bound) *roaring.Bitmap {
	out := roaring.New()
	below := func(k models.Value) bool { // k is before the lower bound
		if lower == nil {
			return false
		}
		c := models.Compare(k, lower.Value)
		return c < 0 || (c == 0 && !lower.Inclusive)
	}
	above := func(k models.Value) bool { // k is past the upper bound
		if upper == nil {
			return false
		}
		c := models.Compare(k, upper.Value)
		return c > 0 || (c == 0 && !upper.Inclusive)
	}

	var lo, hi int
	if idx.desc[0] {
		lo = sort.Search(len(idx.tuples), func(i int) bool { return !above(idx.tuples[i].Key[0]) })
		hi = sort.Search(len(idx.tuples), func(i int) bool { return below(idx.tuples[i].Key[0]) })
	} else {
		lo = sort.Search(len(idx.tuples), func(i int) bool { return !below(idx.tuples[i].Key[0]) })
		hi = sort.Search(len(idx.tuples), func(i int) bool { return above(idx.tuples[i].Key[0]) })
	}
	for i := lo; i < hi; i++ {
		out.Add(idx.tuples[i].Ordinal)
	}
	return out
}

// Scan yields tuples in index order.
func (idx *BTreeIndex) Scan() iter.Seq[IndexTuple] {
	return func(yield func(IndexTuple) bool) {
		for _, t := range idx.tuples {
			if !yield(t) {
				return
			}
		}
	}
}

// ServesSort reports whether scanning the index yields documents in the order
// the sort keys ask for: the keys must be a prefix of the index fields with
// identical directions, and the index must not be multikey.
func (idx *BTreeIndex) ServesSort(keys []IndexField) bool {
	if idx.multikey || len(keys) == 0 || len(keys) > len(idx.Fields) {
		return false
	}
	for i, k := range keys {
		f := idx.Fields[i]
		if f.Descending != k.Descending || f.Path.String() != k.Path.String() {
			return false
		}
	}
	return true
}

// LeadingPath is the path of the first index key.
func (idx *BTreeIndex) LeadingPath() models.FieldPath { return idx.Fields[0].Path }
