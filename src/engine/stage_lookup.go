package engine

import (
	hashindex "docpipe/src/hash_index"
	"docpipe/src/models"
)

// execLookup probes the foreign collection through a hash index on the
// foreign field, built on the first input document.
func (ex *executor) execLookup(s *LookupStage, in Seq) Seq {
	foreign, ok := ex.foreign[s.From]
	if !ok {
		return failed(models.NewUnknownCollection(s.From))
	}

	return func(yield func(*models.Document, error) bool) {
		var idx *hashindex.HashIndex
		each(in, yield, func(doc *models.Document) (bool, error) {
			if idx == nil {
				var err error
				if idx, err = ex.hashes.CreateHashIndex(s.ForeignField, foreign); err != nil {
					return false, err
				}
			}

			local, ok := models.ResolveField(doc, s.LocalField)
			if !ok {
				local = models.Null()
			}
			ords := idx.Probe(local)

			matches := make([]models.Value, 0, ords.GetCardinality())
			it := ords.Iterator()
			for it.HasNext() {
				matches = append(matches, models.Doc(foreign[it.Next()]))
			}
			return yield(models.WithPath(doc, s.As, models.Array(matches...)), nil), nil
		})
	}
}
