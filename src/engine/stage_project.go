package engine

import (
	"docpipe/src/models"
)

// projNode is one level of a projection path tree.
type projNode struct {
	leaf     bool
	children map[string]*projNode
}

func (n *projNode) add(p models.FieldPath) error {
	cur := n
	for i, seg := range p {
		if cur.leaf {
			return models.NewInvalidArgument("$project", "path collision at %s", p[:i])
		}
		if cur.children == nil {
			cur.children = make(map[string]*projNode)
		}
		next, ok := cur.children[seg]
		if !ok {
			next = &projNode{}
			cur.children[seg] = next
		}
		cur = next
	}
	if cur.leaf || len(cur.children) > 0 {
		return models.NewInvalidArgument("$project", "path collision at %s", p)
	}
	cur.leaf = true
	return nil
}

type projection struct {
	inclusive bool
	keepID    bool
	tree      *projNode
	computed  []ProjectField
}

// compileProjection validates a $project stage and builds its path tree.
func compileProjection(s *ProjectStage) (*projection, error) {
	if len(s.Fields) == 0 {
		return nil, models.NewInvalidArgument("$project", "projection specifies no fields")
	}
	pr := &projection{keepID: true, tree: &projNode{}}
	var included, excluded bool
	for _, f := range s.Fields {
		if len(f.Path) == 0 {
			return nil, models.NewInvalidArgument("$project", "empty field path")
		}
		isID := len(f.Path) == 1 && f.Path[0] == models.IDField
		switch f.Kind {
		case ProjectExclude:
			if isID {
				pr.keepID = false
				continue
			}
			excluded = true
			if err := pr.tree.add(f.Path); err != nil {
				return nil, err
			}
		case ProjectInclude:
			included = true
			if isID {
				continue
			}
			if err := pr.tree.add(f.Path); err != nil {
				return nil, err
			}
		case ProjectComputed:
			if f.Expr == nil {
				return nil, models.NewInvalidArgument("$project", "computed field %s has no expression", f.Path)
			}
			included = true
			pr.computed = append(pr.computed, f)
		}
	}
	if included && excluded {
		return nil, models.NewInvalidArgument("$project", "cannot mix inclusion and exclusion of fields other than _id")
	}
	if !excluded && !included {
		// {_id: 0} alone removes _id and keeps everything else
		pr.tree.add(models.FieldPath{models.IDField})
		return pr, nil
	}
	pr.inclusive = included
	if !pr.inclusive && !pr.keepID {
		if err := pr.tree.add(models.FieldPath{models.IDField}); err != nil {
			return nil, err
		}
	}
	return pr, nil
}

func (pr *projection) apply(doc *models.Document) (*models.Document, error) {
	if !pr.inclusive {
		return excludeDoc(doc, pr.tree), nil
	}
	out := includeDoc(doc, pr.tree, pr.keepID)
	for _, f := range pr.computed {
		v, ok, err := Evaluate(f.Expr, doc)
		if err != nil {
			return nil, err
		}
		if ok {
			out = models.WithPath(out, f.Path, v)
		}
	}
	return out, nil
}

// includeDoc keeps the fields named by node in document order.
func includeDoc(d *models.Document, node *projNode, keepID bool) *models.Document {
	out := models.NewDocument()
	for _, f := range d.Fields() {
		if keepID && f.Name == models.IDField {
			out.Set(f.Name, f.Value)
			continue
		}
		child, ok := node.children[f.Name]
		if !ok {
			continue
		}
		if child.leaf {
			out.Set(f.Name, f.Value)
			continue
		}
		if v, ok := includeValue(f.Value, child); ok {
			out.Set(f.Name, v)
		}
	}
	return out
}

// nested inclusion maps over arrays and drops scalars on the way
func includeValue(v models.Value, node *projNode) (models.Value, bool) {
	switch v.Kind() {
	case models.KindDocument:
		return models.Doc(includeDoc(v.Document(), node, false)), true
	case models.KindArray:
		out := make([]models.Value, 0, v.Len())
		for _, e := range v.Elems() {
			if pv, ok := includeValue(e, node); ok {
				out = append(out, pv)
			}
		}
		return models.Array(out...), true
	}
	return models.Value{}, false
}

func excludeDoc(d *models.Document, node *projNode) *models.Document {
	out := models.NewDocument()
	for _, f := range d.Fields() {
		child, ok := node.children[f.Name]
		switch {
		case !ok:
			out.Set(f.Name, f.Value)
		case child.leaf:
		default:
			out.Set(f.Name, excludeValue(f.Value, child))
		}
	}
	return out
}

func excludeValue(v models.Value, node *projNode) models.Value {
	switch v.Kind() {
	case models.KindDocument:
		return models.Doc(excludeDoc(v.Document(), node))
	case models.KindArray:
		out := make([]models.Value, v.Len())
		for i, e := range v.Elems() {
			out[i] = excludeValue(e, node)
		}
		return models.Array(out...)
	}
	return v
}

func (ex *executor) execProject(s *ProjectStage, in Seq) Seq {
	pr, err := compileProjection(s)
	if err != nil {
		return failed(err)
	}
	return func(yield func(*models.Document, error) bool) {
		each(in, yield, func(doc *models.Document) (bool, error) {
			out, err := pr.apply(doc)
			if err != nil {
				return false, err
			}
			return yield(out, nil), nil
		})
	}
}

func (ex *executor) execAddFields(s *AddFieldsStage, in Seq) Seq {
	return func(yield func(*models.Document, error) bool) {
		each(in, yield, func(doc *models.Document) (bool, error) {
			out := doc
			for _, f := range s.Fields {
				v, ok, err := Evaluate(f.Expr, doc)
				if err != nil {
					return false, err
				}
				if ok {
					out = models.WithPath(out, f.Path, v)
				}
			}
			return yield(out, nil), nil
		})
	}
}
