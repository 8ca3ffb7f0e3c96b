package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	btreeindex "docpipe/src/btree_index"
	hashindex "docpipe/src/hash_index"
	"docpipe/src/metrics"
	"docpipe/src/models"

	"go.uber.org/zap"
)

// Database is the catalog of named collections and the entry point for
// running pipelines.
type Database struct {
	// Name is the name of the database.
	Name string

	mu          sync.RWMutex
	collections map[string]*Collection

	regex   *RegexCache
	btrees  *btreeindex.BTreeService
	hashes  *hashindex.HashService
	metrics *metrics.Metrics
	logger  *zap.SugaredLogger
}

type DatabaseOptions struct {
	Logger         *zap.SugaredLogger
	Metrics        *metrics.Metrics // optional
	RegexCacheSize int              // 0 means DefaultRegexCacheSize
}

// IndexHandle identifies an index for DropIndex and RebuildIndex.
type IndexHandle struct {
	Collection string
	Name       string
}

func NewDatabase(name string, opts DatabaseOptions) (*Database, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	rc, err := NewRegexCache(opts.RegexCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create regex cache: %w", err)
	}
	return &Database{
		Name:        name,
		collections: make(map[string]*Collection),
		regex:       rc,
		btrees:      btreeindex.NewBTreeService(logger),
		hashes:      hashindex.NewHashService(logger),
		metrics:     opts.Metrics,
		logger:      logger,
	}, nil
}

// CreateCollection adds an empty collection.
func (db *Database) CreateCollection(name string) (*Collection, error) {
	if name == "" {
		return nil, models.NewInvalidArgument("createCollection", "empty collection name")
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, exists := db.collections[name]; exists {
		return nil, models.NewInvalidArgument("createCollection", "collection %q already exists", name)
	}
	c := newCollection(name, db.btrees, db.metrics, db.logger)
	db.collections[name] = c
	return c, nil
}

// EnsureCollection returns the named collection, creating it if needed.
func (db *Database) EnsureCollection(name string) (*Collection, error) {
	if name == "" {
		return nil, models.NewInvalidArgument("createCollection", "empty collection name")
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if c, ok := db.collections[name]; ok {
		return c, nil
	}
	c := newCollection(name, db.btrees, db.metrics, db.logger)
	db.collections[name] = c
	return c, nil
}

// Collection returns the named collection or ErrUnknownCollection.
func (db *Database) Collection(name string) (*Collection, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	c, ok := db.collections[name]
	if !ok {
		return nil, models.NewUnknownCollection(name)
	}
	return c, nil
}

func (db *Database) DropCollection(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.collections[name]; !ok {
		return models.NewUnknownCollection(name)
	}
	delete(db.collections, name)
	return nil
}

// CollectionNames lists collections sorted by name.
func (db *Database) CollectionNames() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	names := make([]string, 0, len(db.collections))
	for n := range db.collections {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CreateIndex builds an index on a collection. An empty name is derived from
// the keys, e.g. "category_1_year_-1".
func (db *Database) CreateIndex(collection, name string, fields []IndexField) (IndexHandle, error) {
	c, err := db.Collection(collection)
	if err != nil {
		return IndexHandle{}, err
	}
	idx, err := c.CreateIndex(name, fields)
	if err != nil {
		return IndexHandle{}, err
	}
	return IndexHandle{Collection: collection, Name: idx.Name}, nil
}

func (db *Database) DropIndex(h IndexHandle) error {
	c, err := db.Collection(h.Collection)
	if err != nil {
		return err
	}
	return c.DropIndex(h.Name)
}

func (db *Database) RebuildIndex(h IndexHandle) error {
	c, err := db.Collection(h.Collection)
	if err != nil {
		return err
	}
	_, err = c.RebuildIndex(h.Name)
	return err
}

// Run plans the pipeline against a snapshot of the collection and returns a
// lazy cursor over its output.
func (db *Database) Run(ctx context.Context, collection string, stages []Stage) (*Cursor, error) {
	plan, err := db.Plan(collection, stages)
	if err != nil {
		db.metrics.ObservePipeline(time.Now(), err)
		return nil, err
	}
	db.logger.Debugf("Running pipeline on %s: %s", collection, plan.Explain())
	return plan.Execute(ctx), nil
}

// Distinct returns the distinct values path reaches in the documents matching
// filter, in first-seen order. Array values contribute their elements.
func (db *Database) Distinct(ctx context.Context, collection string, path models.FieldPath, filter Filter) ([]models.Value, error) {
	if len(path) == 0 {
		return nil, models.NewInvalidArgument("distinct", "empty field path")
	}
	var stages []Stage
	if filter != nil {
		stages = append(stages, &MatchStage{Filter: filter})
	}
	cur, err := db.Run(ctx, collection, stages)
	if err != nil {
		return nil, err
	}
	return distinctValues(cur.All(), path)
}

func distinctValues(in Seq, path models.FieldPath) ([]models.Value, error) {
	var out []models.Value
	seen := make(map[string]struct{})
	add := func(v models.Value) {
		k := string(hashindex.EncodeKey(v))
		if _, dup := seen[k]; !dup {
			seen[k] = struct{}{}
			out = append(out, v)
		}
	}
	for doc, err := range in {
		if err != nil {
			return nil, err
		}
		for _, v := range models.Resolve(doc, path) {
			if v.IsArray() {
				for _, e := range v.Elems() {
					add(e)
				}
				continue
			}
			add(v)
		}
	}
	return out, nil
}
