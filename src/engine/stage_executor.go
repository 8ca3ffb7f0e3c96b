package engine

import (
	"iter"

	hashindex "docpipe/src/hash_index"
	"docpipe/src/metrics"
	"docpipe/src/models"

	"go.uber.org/zap"
)

// Seq is a lazy document sequence. An error is yielded at most once, as the
// last element.
type Seq = iter.Seq2[*models.Document, error]

// executor threads one pipeline execution. It is not shared between
// executions.
type executor struct {
	regex   *RegexCache
	metrics *metrics.Metrics
	hashes  *hashindex.HashService
	foreign map[string][]*models.Document // $lookup sources, snapshotted at plan time
	logger  *zap.SugaredLogger
}

// apply wraps in with the executor for stage.
func (ex *executor) apply(stage Stage, in Seq) Seq {
	var out Seq
	switch s := stage.(type) {
	case *MatchStage:
		out = ex.execMatch(s, in)
	case *ProjectStage:
		out = ex.execProject(s, in)
	case *AddFieldsStage:
		out = ex.execAddFields(s, in)
	case *UnwindStage:
		out = ex.execUnwind(s, in)
	case *GroupStage:
		out = ex.execGroup(s, in)
	case *SortStage:
		out = ex.execSort(s, in)
	case *SkipStage:
		out = execSkip(s, in)
	case *LimitStage:
		out = execLimit(s, in)
	case *LookupStage:
		out = ex.execLookup(s, in)
	case *CountStage:
		out = execCount(s, in)
	default:
		return failed(models.NewInvalidArgument("pipeline", "unsupported stage %T", stage))
	}
	return ex.counted(stage.Name(), out)
}

// counted reports every emitted document to the stage metrics.
func (ex *executor) counted(stage string, in Seq) Seq {
	if ex.metrics == nil {
		return in
	}
	return func(yield func(*models.Document, error) bool) {
		for doc, err := range in {
			if err == nil {
				ex.metrics.StageDocument(stage)
			}
			if !yield(doc, err) {
				return
			}
		}
	}
}

// each runs fn for every upstream document until fn returns false or an
// error, which is passed downstream.
func each(in Seq, yield func(*models.Document, error) bool, fn func(*models.Document) (bool, error)) {
	for doc, err := range in {
		if err != nil {
			yield(nil, err)
			return
		}
		cont, err := fn(doc)
		if err != nil {
			yield(nil, err)
			return
		}
		if !cont {
			return
		}
	}
}

// drain materializes the whole sequence.
func drain(in Seq) ([]*models.Document, error) {
	var docs []*models.Document
	for doc, err := range in {
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func fromSlice(docs []*models.Document) Seq {
	return func(yield func(*models.Document, error) bool) {
		for _, d := range docs {
			if !yield(d, nil) {
				return
			}
		}
	}
}

func failed(err error) Seq {
	return func(yield func(*models.Document, error) bool) {
		yield(nil, err)
	}
}

func (ex *executor) execMatch(s *MatchStage, in Seq) Seq {
	return func(yield func(*models.Document, error) bool) {
		each(in, yield, func(doc *models.Document) (bool, error) {
			ok, err := Match(s.Filter, doc, ex.regex)
			if err != nil || !ok {
				return err == nil, err
			}
			return yield(doc, nil), nil
		})
	}
}

func execSkip(s *SkipStage, in Seq) Seq {
	return func(yield func(*models.Document, error) bool) {
		skipped := int64(0)
		each(in, yield, func(doc *models.Document) (bool, error) {
			if skipped < s.N {
				skipped++
				return true, nil
			}
			return yield(doc, nil), nil
		})
	}
}

// execLimit stops pulling from upstream once N documents were emitted.
func execLimit(s *LimitStage, in Seq) Seq {
	return func(yield func(*models.Document, error) bool) {
		if s.N <= 0 {
			return
		}
		emitted := int64(0)
		each(in, yield, func(doc *models.Document) (bool, error) {
			emitted++
			return yield(doc, nil) && emitted < s.N, nil
		})
	}
}

func execCount(s *CountStage, in Seq) Seq {
	return func(yield func(*models.Document, error) bool) {
		n := int64(0)
		for _, err := range in {
			if err != nil {
				yield(nil, err)
				return
			}
			n++
		}
		yield(models.NewDocument(models.F(s.Field, models.Int(n))), nil)
	}
}
