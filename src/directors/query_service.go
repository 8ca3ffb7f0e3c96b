package directors

import (
	"context"
	"fmt"

	"docpipe/src/engine"
	"docpipe/src/models"
	"docpipe/src/settings"

	"go.uber.org/zap"
)

// QueryService runs read queries against the database.
type QueryService struct {
	db       *engine.Database
	settings *settings.Arguments
	logger   *zap.SugaredLogger
}

func NewQueryService(db *engine.Database, settings *settings.Arguments, logger *zap.SugaredLogger) *QueryService {
	return &QueryService{
		db:       db,
		settings: settings,
		logger:   logger,
	}
}

// FindOptions shapes a Find. Zero values mean no filter, no projection, no
// sort, no skip and no limit.
type FindOptions struct {
	Filter     engine.Filter
	Projection *engine.ProjectStage
	Sort       []engine.SortKey
	Skip       int64
	Limit      int64
}

func (o FindOptions) stages() []engine.Stage {
	var stages []engine.Stage
	if o.Filter != nil {
		stages = append(stages, &engine.MatchStage{Filter: o.Filter})
	}
	if len(o.Sort) > 0 {
		stages = append(stages, &engine.SortStage{Keys: o.Sort})
	}
	if o.Skip != 0 {
		stages = append(stages, &engine.SkipStage{N: o.Skip})
	}
	if o.Limit != 0 {
		stages = append(stages, &engine.LimitStage{N: o.Limit})
	}
	if o.Projection != nil {
		stages = append(stages, o.Projection)
	}
	return stages
}

// Run executes a pipeline and materializes its output.
func (s *QueryService) Run(ctx context.Context, collection string, stages []engine.Stage) ([]*models.Document, error) {
	cur, err := s.db.Run(ctx, collection, stages)
	if err != nil {
		return nil, fmt.Errorf("failed to plan pipeline on %s: %w", collection, err)
	}
	docs, err := cur.ToList()
	if err != nil {
		return nil, fmt.Errorf("pipeline on %s failed: %w", collection, err)
	}
	if s.settings.Debug && s.settings.Verbose {
		s.logger.Infof("Pipeline on %s returned %d documents", collection, len(docs))
	}
	return docs, nil
}

// RunJSON parses an extended JSON pipeline and runs it.
func (s *QueryService) RunJSON(ctx context.Context, collection string, pipeline []byte) ([]*models.Document, error) {
	stages, err := engine.ParsePipelineJSON(pipeline)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, collection, stages)
}

// Explain plans a pipeline without running it.
func (s *QueryService) Explain(collection string, stages []engine.Stage) (engine.Explanation, error) {
	plan, err := s.db.Plan(collection, stages)
	if err != nil {
		return engine.Explanation{}, err
	}
	return plan.Explain(), nil
}

func (s *QueryService) Find(ctx context.Context, collection string, opts FindOptions) ([]*models.Document, error) {
	return s.Run(ctx, collection, opts.stages())
}

// FindOne returns the first match, or nil when nothing matches.
func (s *QueryService) FindOne(ctx context.Context, collection string, opts FindOptions) (*models.Document, error) {
	opts.Limit = 1
	cur, err := s.db.Run(ctx, collection, opts.stages())
	if err != nil {
		return nil, err
	}
	return cur.First()
}

// CountDocuments counts the documents matching filter.
func (s *QueryService) CountDocuments(ctx context.Context, collection string, filter engine.Filter) (int64, error) {
	var stages []engine.Stage
	if filter != nil {
		stages = append(stages, &engine.MatchStage{Filter: filter})
	}
	cur, err := s.db.Run(ctx, collection, stages)
	if err != nil {
		return 0, err
	}
	return cur.Count()
}

// Paginate returns one page. A size of 0 uses the configured default page
// size; negative sizes are rejected.
func (s *QueryService) Paginate(ctx context.Context, collection string, filter engine.Filter, projection *engine.ProjectStage, sort []engine.SortKey, page, size int64) (*engine.Page, error) {
	if size == 0 {
		size = s.settings.DefaultPageSize
	}
	return s.db.Paginate(ctx, collection, filter, projection, sort, page, size)
}

func (s *QueryService) Distinct(ctx context.Context, collection string, path models.FieldPath, filter engine.Filter) ([]models.Value, error) {
	return s.db.Distinct(ctx, collection, path, filter)
}

// Ratio divides two counts, failing with DivisionByZero instead of
// returning NaN or infinity.
func Ratio(numerator, denominator int64) (float64, error) {
	if denominator == 0 {
		return 0, models.NewDivisionByZero("ratio")
	}
	return float64(numerator) / float64(denominator), nil
}

// CountRatio counts the documents matching num and den and returns their
// ratio.
func (s *QueryService) CountRatio(ctx context.Context, collection string, num, den engine.Filter) (float64, error) {
	n, err := s.CountDocuments(ctx, collection, num)
	if err != nil {
		return 0, err
	}
	d, err := s.CountDocuments(ctx, collection, den)
	if err != nil {
		return 0, err
	}
	return Ratio(n, d)
}
