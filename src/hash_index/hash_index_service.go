package hashindex

import (
	"time"

	"docpipe/src/models"

	"go.uber.org/zap"
)

// NewHashService creates a new hash indexing service
func NewHashService(logger *zap.SugaredLogger) *HashService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &HashService{bucketLoad: DefaultBucketLoad, logger: logger}
}

// CreateHashIndex indexes every value field reaches in docs, array elements
// included. Documents where the path is absent are indexed under null. The
// ordinal of a document is its position in docs.
func (hs *HashService) CreateHashIndex(field models.FieldPath, docs []*models.Document) (*HashIndex, error) {
	if len(field) == 0 {
		return nil, models.NewInvalidArgument("hashIndex", "empty index field path")
	}

	index := createEmptyHashIndex(field, hs.bucketLoad, hs.logger)
	for ord, doc := range docs {
		for _, key := range scanDocumentForHashIndex(doc, field) {
			index.Insert(key, uint32(ord))
		}
	}

	hs.logger.Debugf("Created hash index on %s: %d keys, %d entries, %d buckets",
		field, index.metadata.NumKeys, index.metadata.NumTuples, index.metadata.MaxBucket+1)
	return index, nil
}

// scanDocumentForHashIndex returns the distinct encoded keys of one document.
func scanDocumentForHashIndex(doc *models.Document, field models.FieldPath) [][]byte {
	cands := models.Candidates(models.Doc(doc), field)
	if len(cands) == 0 {
		return [][]byte{EncodeKey(models.Null())}
	}
	keys := make([][]byte, 0, len(cands))
	seen := make(map[string]struct{}, len(cands))
	for _, v := range cands {
		k := EncodeKey(v)
		if _, dup := seen[string(k)]; dup {
			continue
		}
		seen[string(k)] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

func createEmptyHashIndex(field models.FieldPath, bucketLoad uint32, logger *zap.SugaredLogger) *HashIndex {
	if bucketLoad == 0 {
		bucketLoad = DefaultBucketLoad
	}
	return &HashIndex{
		field: field,
		metadata: HashIndexMetadata{
			MaxBucket:  InitialBucketCount - 1,
			HighMask:   InitialBucketCount - 1,
			LowMask:    InitialBucketCount/2 - 1,
			BucketLoad: bucketLoad,
			Field:      field.String(),
			Created:    time.Now(),
		},
		buckets: make([][]hashEntry, InitialBucketCount),
		logger:  logger,
	}
}
