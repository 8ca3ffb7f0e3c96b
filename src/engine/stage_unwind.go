package engine

import (
	"docpipe/src/models"
)

func (ex *executor) execUnwind(s *UnwindStage, in Seq) Seq {
	var indexPath models.FieldPath
	if s.IncludeArrayIndex != "" {
		p, err := models.ParsePath(s.IncludeArrayIndex)
		if err != nil {
			return failed(err)
		}
		indexPath = p
	}

	emit := func(doc *models.Document, v models.Value, idx models.Value) *models.Document {
		out := models.WithPath(doc, s.Path, v)
		if indexPath != nil {
			out = models.WithPath(out, indexPath, idx)
		}
		return out
	}

	return func(yield func(*models.Document, error) bool) {
		each(in, yield, func(doc *models.Document) (bool, error) {
			v, ok := models.Lookup(doc, s.Path)
			switch {
			case !ok || v.IsNull() || (v.IsArray() && v.Len() == 0):
				if !s.PreserveNullAndEmpty {
					return true, nil
				}
				return yield(emit(doc, models.Null(), models.Null()), nil), nil

			case !v.IsArray():
				// a scalar behaves as a one-element array
				if indexPath == nil {
					return yield(doc, nil), nil
				}
				return yield(emit(doc, v, models.Null()), nil), nil
			}

			for i, e := range v.Elems() {
				if !yield(emit(doc, e, models.Int(int64(i))), nil) {
					return false, nil
				}
			}
			return true, nil
		})
	}
}
