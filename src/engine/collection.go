package engine

import (
	"fmt"
	"sort"
	"sync"

	btreeindex "docpipe/src/btree_index"
	hashindex "docpipe/src/hash_index"
	"docpipe/src/helpers"
	"docpipe/src/metrics"
	"docpipe/src/models"

	"go.uber.org/zap"
)

// IndexField is one key of a compound index.
type IndexField = btreeindex.IndexField

// Collection is a named, append-only sequence of documents plus its indexes.
// Documents are never modified once stored; callers must not modify a
// document after inserting it. Readers work on snapshots, so inserts and
// index rebuilds never disturb a running pipeline.
type Collection struct {
	mu      sync.RWMutex
	name    string
	docs    []*models.Document
	ids     map[string]struct{}
	indexes map[string]*btreeindex.BTreeIndex

	btrees  *btreeindex.BTreeService
	metrics *metrics.Metrics
	logger  *zap.SugaredLogger
}

// snapshot is a consistent view of a collection: documents and indexes as of
// one instant.
type snapshot struct {
	name    string
	docs    []*models.Document
	indexes []*btreeindex.BTreeIndex // sorted by name
}

func newCollection(name string, btrees *btreeindex.BTreeService, m *metrics.Metrics, logger *zap.SugaredLogger) *Collection {
	return &Collection{
		name:    name,
		ids:     make(map[string]struct{}),
		indexes: make(map[string]*btreeindex.BTreeIndex),
		btrees:  btrees,
		metrics: m,
		logger:  logger,
	}
}

func (c *Collection) Name() string { return c.name }

// Len is the number of stored documents.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

// Documents returns the stored documents in insertion order.
func (c *Collection) Documents() []*models.Document {
	return c.snapshot().docs
}

func (c *Collection) snapshot() *snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := &snapshot{
		name: c.name,
		// capacity is clipped so later appends never touch this view
		docs:    c.docs[:len(c.docs):len(c.docs)],
		indexes: make([]*btreeindex.BTreeIndex, 0, len(c.indexes)),
	}
	for _, idx := range c.indexes {
		s.indexes = append(s.indexes, idx)
	}
	sort.Slice(s.indexes, func(i, j int) bool { return s.indexes[i].Name < s.indexes[j].Name })
	return s
}

// Insert stores a document and returns the stored copy. A document without
// an _id gets a generated one. Indexes are not updated.
func (c *Collection) Insert(doc *models.Document) (*models.Document, error) {
	stored, err := c.InsertMany([]*models.Document{doc})
	if err != nil {
		return nil, err
	}
	return stored[0], nil
}

// InsertMany stores documents in order. Either all documents are stored or,
// on a duplicate or invalid document, none are.
func (c *Collection) InsertMany(docs []*models.Document) ([]*models.Document, error) {
	prepared := make([]*models.Document, len(docs))
	keys := make([]string, len(docs))
	batch := make(map[string]struct{}, len(docs))
	for i, doc := range docs {
		if doc == nil {
			return nil, models.NewInvalidArgument("insert", "document %d is nil", i)
		}
		prepared[i] = withID(doc)
		id, _ := prepared[i].ID()
		keys[i] = string(hashindex.EncodeKey(id))
		if _, dup := batch[keys[i]]; dup {
			return nil, models.NewInvalidArgument("insert", "duplicate _id %s in batch", id)
		}
		batch[keys[i]] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, k := range keys {
		if _, dup := c.ids[k]; dup {
			id, _ := prepared[i].ID()
			return nil, models.NewInvalidArgument("insert", "duplicate _id %s in collection %q", id, c.name)
		}
	}
	for i, k := range keys {
		c.ids[k] = struct{}{}
		c.docs = append(c.docs, prepared[i])
	}
	return prepared, nil
}

// withID returns a copy of doc carrying an _id, placed first when generated.
func withID(doc *models.Document) *models.Document {
	if doc.Has(models.IDField) {
		return doc.Copy()
	}
	out := models.NewDocument(models.F(models.IDField, models.String(helpers.GenerateUUID())))
	for _, f := range doc.Fields() {
		out.Set(f.Name, f.Value)
	}
	return out
}

// CreateIndex builds an index over the current documents. An empty name is
// derived from the keys.
func (c *Collection) CreateIndex(name string, fields []IndexField) (*btreeindex.BTreeIndex, error) {
	if name == "" && len(fields) > 0 {
		name = btreeindex.DefaultIndexName(fields)
	}
	c.mu.RLock()
	_, exists := c.indexes[name]
	c.mu.RUnlock()
	if exists {
		return nil, models.NewInvalidArgument("createIndex", "index %q already exists on %q", name, c.name)
	}

	idx, err := c.btrees.CreateIndex(name, c.name, fields, c.snapshot().docs)
	if err != nil {
		return nil, fmt.Errorf("create index on %s: %w", c.name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.indexes[name]; exists {
		return nil, models.NewInvalidArgument("createIndex", "index %q already exists on %q", name, c.name)
	}
	c.indexes[name] = idx
	c.metrics.IndexBuilt()
	c.logger.Infof("Created index %s on %s over %d documents", name, c.name, idx.DocCount())
	return idx, nil
}

// DropIndex removes the named index.
func (c *Collection) DropIndex(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.indexes[name]; !ok {
		return models.NewUnknownIndex(c.name, name)
	}
	delete(c.indexes, name)
	c.logger.Infof("Dropped index %s on %s", name, c.name)
	return nil
}

// RebuildIndex rebuilds the named index over the current documents and swaps
// it in. Pipelines already planned keep using the old index.
func (c *Collection) RebuildIndex(name string) (*btreeindex.BTreeIndex, error) {
	old, err := c.Index(name)
	if err != nil {
		return nil, err
	}

	idx, err := c.btrees.CreateIndex(name, c.name, old.Fields, c.snapshot().docs)
	if err != nil {
		return nil, fmt.Errorf("rebuild index %s on %s: %w", name, c.name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.indexes[name] != old {
		// dropped or replaced meanwhile
		return nil, models.NewUnknownIndex(c.name, name)
	}
	c.indexes[name] = idx
	c.metrics.IndexBuilt()
	c.logger.Debugf("Rebuilt index %s on %s: %d -> %d documents", name, c.name, old.DocCount(), idx.DocCount())
	return idx, nil
}

// Index returns the named index.
func (c *Collection) Index(name string) (*btreeindex.BTreeIndex, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.indexes[name]
	if !ok {
		return nil, models.NewUnknownIndex(c.name, name)
	}
	return idx, nil
}

// Indexes lists the indexes sorted by name.
func (c *Collection) Indexes() []*btreeindex.BTreeIndex {
	return c.snapshot().indexes
}
