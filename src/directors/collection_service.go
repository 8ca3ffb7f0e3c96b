package directors

import (
	"context"
	"fmt"
	"sort"

	btreeindex "docpipe/src/btree_index"
	"docpipe/src/engine"
	"docpipe/src/helpers"
	"docpipe/src/models"
	"docpipe/src/settings"

	"go.uber.org/zap"
)

// CollectionService administers collections: creating them, loading
// documents from files and managing their indexes.
type CollectionService struct {
	db       *engine.Database
	settings *settings.Arguments
	logger   *zap.SugaredLogger
}

func NewCollectionService(db *engine.Database, settings *settings.Arguments, logger *zap.SugaredLogger) *CollectionService {
	return &CollectionService{
		db:       db,
		settings: settings,
		logger:   logger,
	}
}

func (s *CollectionService) CreateCollection(name string) error {
	if _, err := s.db.CreateCollection(name); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	if s.settings.Debug {
		s.logger.Infof("Created collection '%s'", name)
	}
	return nil
}

// InsertDocuments appends docs to the named collection, creating it if
// needed, and returns how many were stored.
func (s *CollectionService) InsertDocuments(name string, docs []*models.Document) (int, error) {
	c, err := s.db.EnsureCollection(name)
	if err != nil {
		return 0, err
	}
	stored, err := c.InsertMany(docs)
	if err != nil {
		return 0, fmt.Errorf("failed to insert into %s: %w", name, err)
	}
	return len(stored), nil
}

// LoadFile loads a JSON data file into the named collection.
func (s *CollectionService) LoadFile(name, path string) (int, error) {
	if !helpers.FileExists(path, s.logger) {
		return 0, models.NewInvalidArgument("load", "data file %q does not exist", path)
	}
	docs, err := helpers.LoadFile(path)
	if err != nil {
		return 0, err
	}
	n, err := s.InsertDocuments(name, docs)
	if err != nil {
		return 0, err
	}
	s.logger.Infof("Loaded %d documents into %s from %s", n, name, path)
	return n, nil
}

// LoadAll decodes the files concurrently, then inserts them collection by
// collection in name order.
func (s *CollectionService) LoadAll(ctx context.Context, files map[string]string) error {
	loaded, err := helpers.LoadFiles(ctx, files, s.logger)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(loaded))
	for name := range loaded {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		n, err := s.InsertDocuments(name, loaded[name])
		if err != nil {
			return err
		}
		s.logger.Infof("Loaded %d documents into %s from %s", n, name, files[name])
	}
	return nil
}

func (s *CollectionService) CreateIndex(collection, name string, fields []engine.IndexField) (engine.IndexHandle, error) {
	return s.db.CreateIndex(collection, name, fields)
}

// CreateIndexFromSpec creates an index from a "collection[/name]:field,-field"
// definition.
func (s *CollectionService) CreateIndexFromSpec(spec string) (engine.IndexHandle, error) {
	parsed, err := engine.ParseIndexSpec(spec)
	if err != nil {
		return engine.IndexHandle{}, err
	}
	return s.db.CreateIndex(parsed.Collection, parsed.Name, parsed.Fields)
}

func (s *CollectionService) DropIndex(h engine.IndexHandle) error {
	return s.db.DropIndex(h)
}

// RebuildIndex rebuilds an index so it covers documents inserted since it
// was built.
func (s *CollectionService) RebuildIndex(h engine.IndexHandle) error {
	return s.db.RebuildIndex(h)
}

// ListIndexes returns the indexes of a collection sorted by name.
func (s *CollectionService) ListIndexes(collection string) ([]*btreeindex.BTreeIndex, error) {
	c, err := s.db.Collection(collection)
	if err != nil {
		return nil, err
	}
	return c.Indexes(), nil
}

func (s *CollectionService) CollectionNames() []string {
	return s.db.CollectionNames()
}
