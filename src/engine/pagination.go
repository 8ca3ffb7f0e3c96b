package engine

import (
	"context"
	"math"

	"docpipe/src/models"
)

// Page is one page of a paginated query.
type Page struct {
	Number    int64
	Size      int64
	Documents []*models.Document
}

// PaginationStages builds Match -> Sort -> Skip -> Limit -> Project for a
// 1-based page. The filter, sort and projection are optional. Without a sort
// key the page boundaries follow collection order.
func PaginationStages(filter Filter, projection *ProjectStage, sortKeys []SortKey, page, size int64) ([]Stage, error) {
	if page < 1 {
		return nil, models.NewInvalidArgument("paginate", "page must be >= 1, got %d", page)
	}
	if size <= 0 {
		return nil, models.NewInvalidArgument("paginate", "page size must be > 0, got %d", size)
	}

	var stages []Stage
	if filter != nil {
		stages = append(stages, &MatchStage{Filter: filter})
	}
	if len(sortKeys) > 0 {
		stages = append(stages, &SortStage{Keys: sortKeys})
	}
	// pages past the addressable range are empty rather than an overflow
	skip := int64(math.MaxInt64)
	if page-1 <= math.MaxInt64/size {
		skip = (page - 1) * size
	}
	stages = append(stages, &SkipStage{N: skip}, &LimitStage{N: size})
	if projection != nil {
		stages = append(stages, projection)
	}
	return stages, nil
}

// Paginate runs a paginated query and materializes the page.
func (db *Database) Paginate(ctx context.Context, collection string, filter Filter, projection *ProjectStage, sortKeys []SortKey, page, size int64) (*Page, error) {
	stages, err := PaginationStages(filter, projection, sortKeys, page, size)
	if err != nil {
		return nil, err
	}
	cur, err := db.Run(ctx, collection, stages)
	if err != nil {
		return nil, err
	}
	docs, err := cur.ToList()
	if err != nil {
		return nil, err
	}
	return &Page{Number: page, Size: size, Documents: docs}, nil
}
