package hashindex

import (
	"sync"
	"time"

	"docpipe/src/models"

	"github.com/RoaringBitmap/roaring/v2"
	"go.uber.org/zap"
)

const (
	// Initial size - start with 4 buckets
	InitialBucketCount = 4

	// DefaultBucketLoad is the average number of keys per bucket above which
	// the next bucket in the round is split.
	DefaultBucketLoad = 4
)

// HashIndexMetadata stores global information about the hash index
type HashIndexMetadata struct {
	MaxBucket  uint32 // highest bucket number in use
	HighMask   uint32 // mask selecting a bucket in the current doubling round
	LowMask    uint32 // mask for buckets not yet split in this round
	BucketLoad uint32
	NumKeys    uint64 // distinct keys
	NumTuples  uint64 // (key, ordinal) pairs
	Field      string
	Created    time.Time
}

// hashEntry is one distinct key and the ordinals of the documents holding it.
type hashEntry struct {
	hash uint64
	key  []byte
	docs *roaring.Bitmap
}

// HashIndex is an in-memory linear hash table from encoded values to document
// ordinals.
type HashIndex struct {
	sync.RWMutex
	field    models.FieldPath
	metadata HashIndexMetadata
	buckets  [][]hashEntry
	logger   *zap.SugaredLogger
}

// HashService builds hash indexes
type HashService struct {
	bucketLoad uint32
	logger     *zap.SugaredLogger
}
