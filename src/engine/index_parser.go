package engine

import (
	"regexp"
	"strings"

	"docpipe/src/models"
)

// IndexSpec is a parsed index definition.
type IndexSpec struct {
	Collection string
	Name       string // empty means derived from the fields
	Fields     []IndexField
}

/*
	Index definitions on the command line and in config files look like

		prizes:category,-year
		prizes/by_cat_year:category,-year

	A leading '-' makes a key descending.
*/
var indexSpecRegex = regexp.MustCompile(`^([^\s/:]+)(?:/([^\s/:]+))?:(.+)$`)

// ParseIndexSpec parses a "collection[/name]:field,-field" definition.
func ParseIndexSpec(spec string) (*IndexSpec, error) {
	spec = strings.TrimSpace(spec)
	m := indexSpecRegex.FindStringSubmatch(spec)
	if m == nil {
		return nil, models.NewInvalidArgument("createIndex", "invalid index definition %q, expected collection[/name]:field,-field", spec)
	}

	out := &IndexSpec{Collection: m[1], Name: m[2]}
	for _, part := range strings.Split(m[3], ",") {
		part = strings.TrimSpace(part)
		desc := strings.HasPrefix(part, "-")
		part = strings.TrimLeft(part, "+-")
		p, err := models.ParsePath(part)
		if err != nil {
			return nil, err
		}
		out.Fields = append(out.Fields, IndexField{Path: p, Descending: desc})
	}
	return out, nil
}

// ParseIndexKeys parses a key document such as {"category": 1, "year": -1}.
func ParseIndexKeys(v any) ([]IndexField, error) {
	keys, err := ParseSort(v)
	if err != nil {
		return nil, models.NewInvalidArgument("createIndex", "invalid index keys: %v", err)
	}
	fields := make([]IndexField, len(keys))
	for i, k := range keys {
		fields[i] = IndexField{Path: k.Path, Descending: k.Descending}
	}
	return fields, nil
}
