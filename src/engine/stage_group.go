package engine

import (
	hashindex "docpipe/src/hash_index"
	"docpipe/src/models"
)

// accState folds the values of one accumulator over a group. add is called
// once per document with present=false when the argument is absent.
type accState interface {
	add(v models.Value, present bool) error
	result() models.Value
}

func newAccState(a Accumulator) accState {
	switch a.Op {
	case AccSum:
		return &sumState{op: "$sum", path: exprPath(a.Arg)}
	case AccAvg:
		return &avgState{sumState: sumState{op: "$avg", path: exprPath(a.Arg)}}
	case AccCount:
		return &countState{}
	case AccAddToSet:
		return &setState{seen: make(map[string]struct{})}
	case AccPush:
		return &pushState{}
	case AccMin:
		return &extremeState{sign: -1}
	case AccMax:
		return &extremeState{sign: 1}
	case AccFirst:
		return &firstState{}
	case AccLast:
		return &lastState{}
	}
	return nil
}

// sumState adds numbers; absent and null are skipped, anything else is a
// type error. The total stays an Int until a Double is seen.
type sumState struct {
	op, path string
	i        int64
	f        float64
	double   bool
	n        int64
}

func (s *sumState) add(v models.Value, present bool) error {
	if !present || v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case models.KindInt:
		s.i += v.Int()
	case models.KindDouble:
		s.f += v.Float()
		s.double = true
	default:
		return models.NewTypeMismatch(s.op, s.path, v, "number")
	}
	s.n++
	return nil
}

func (s *sumState) result() models.Value {
	if s.double {
		return models.Double(s.f + float64(s.i))
	}
	return models.Int(s.i)
}

type avgState struct{ sumState }

func (s *avgState) result() models.Value {
	if s.n == 0 {
		return models.Null()
	}
	return models.Double((s.f + float64(s.i)) / float64(s.n))
}

type countState struct{ n int64 }

func (s *countState) add(models.Value, bool) error { s.n++; return nil }
func (s *countState) result() models.Value         { return models.Int(s.n) }

// setState keeps distinct values in first-seen order.
type setState struct {
	seen map[string]struct{}
	vals []models.Value
}

func (s *setState) add(v models.Value, present bool) error {
	if !present {
		return nil
	}
	k := string(hashindex.EncodeKey(v))
	if _, dup := s.seen[k]; !dup {
		s.seen[k] = struct{}{}
		s.vals = append(s.vals, v)
	}
	return nil
}

func (s *setState) result() models.Value { return models.Array(s.vals...) }

type pushState struct{ vals []models.Value }

func (s *pushState) add(v models.Value, present bool) error {
	if present {
		s.vals = append(s.vals, v)
	}
	return nil
}

func (s *pushState) result() models.Value { return models.Array(s.vals...) }

// extremeState tracks the minimum (sign -1) or maximum (sign 1).
type extremeState struct {
	sign  int
	best  models.Value
	found bool
}

func (s *extremeState) add(v models.Value, present bool) error {
	if !present || v.IsNull() {
		return nil
	}
	if !s.found || models.Compare(v, s.best)*s.sign > 0 {
		s.best, s.found = v, true
	}
	return nil
}

func (s *extremeState) result() models.Value { return s.best }

type firstState struct {
	v    models.Value
	seen bool
}

func (s *firstState) add(v models.Value, present bool) error {
	if !s.seen {
		s.v, s.seen = v, true
	}
	return nil
}

func (s *firstState) result() models.Value { return s.v }

type lastState struct{ v models.Value }

func (s *lastState) add(v models.Value, present bool) error { s.v = v; return nil }
func (s *lastState) result() models.Value                   { return s.v }

type group struct {
	key  models.Value
	accs []accState
}

// execGroup drains its input, then emits one document per key in the order
// keys were first seen.
func (ex *executor) execGroup(s *GroupStage, in Seq) Seq {
	return func(yield func(*models.Document, error) bool) {
		var groups []*group
		byKey := make(map[string]*group)

		for doc, err := range in {
			if err != nil {
				yield(nil, err)
				return
			}
			key := models.Null()
			if s.ID != nil {
				v, ok, err := Evaluate(s.ID, doc)
				if err != nil {
					yield(nil, err)
					return
				}
				if ok {
					key = v
				}
			}

			k := string(hashindex.EncodeKey(key))
			g, ok := byKey[k]
			if !ok {
				g = &group{key: key, accs: make([]accState, len(s.Accumulators))}
				for i, a := range s.Accumulators {
					g.accs[i] = newAccState(a)
				}
				byKey[k] = g
				groups = append(groups, g)
			}

			for i, a := range s.Accumulators {
				var v models.Value
				present := false
				if a.Arg != nil {
					v, present, err = Evaluate(a.Arg, doc)
					if err != nil {
						yield(nil, err)
						return
					}
				}
				if err := g.accs[i].add(v, present); err != nil {
					yield(nil, err)
					return
				}
			}
		}

		ex.logger.Debugf("$group produced %d groups", len(groups))
		for _, g := range groups {
			out := models.NewDocument(models.F(models.IDField, g.key))
			for i, a := range s.Accumulators {
				out.Set(a.Field, g.accs[i].result())
			}
			if !yield(out, nil) {
				return
			}
		}
	}
}
