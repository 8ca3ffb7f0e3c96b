package engine

import (
	"sync"
	"time"

	"docpipe/src/metrics"
	"docpipe/src/models"
)

// Cursor is the lazy result of a pipeline. Documents are produced only as
// the caller pulls them, and stopping early stops all upstream work. A
// cursor may be consumed more than once; each pass re-runs the pipeline over
// the same snapshot.
type Cursor struct {
	seq     Seq
	metrics *metrics.Metrics
	start   time.Time
	once    sync.Once
}

func newCursor(seq Seq, m *metrics.Metrics, start time.Time) *Cursor {
	return &Cursor{seq: seq, metrics: m, start: start}
}

// All yields the output documents. An error, if any, is the last element.
func (c *Cursor) All() Seq {
	return func(yield func(*models.Document, error) bool) {
		var failure error
		defer func() { c.observe(failure) }()
		for doc, err := range c.seq {
			if err != nil {
				failure = err
			}
			if !yield(doc, err) {
				return
			}
		}
	}
}

// observe records the first completed pass.
func (c *Cursor) observe(err error) {
	c.once.Do(func() { c.metrics.ObservePipeline(c.start, err) })
}

// ToList materializes the whole output.
func (c *Cursor) ToList() ([]*models.Document, error) {
	return drain(c.All())
}

// First returns the first output document, or nil when there is none.
func (c *Cursor) First() (*models.Document, error) {
	for doc, err := range c.All() {
		return doc, err
	}
	return nil, nil
}

// Count consumes the output and returns the number of documents.
func (c *Cursor) Count() (int64, error) {
	n := int64(0)
	for _, err := range c.All() {
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}
