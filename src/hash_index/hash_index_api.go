package hashindex

import (
	"bytes"

	"docpipe/src/models"

	"github.com/RoaringBitmap/roaring/v2"
)

// Insert adds an (encoded key, ordinal) pair to the hash index
func (hi *HashIndex) Insert(key []byte, ordinal uint32) {
	hi.Lock()
	defer hi.Unlock()

	hashValue := hashKey(key)
	bucketNum := hi.computeBucket(hashValue)

	for _, e := range hi.buckets[bucketNum] {
		if e.hash == hashValue && bytes.Equal(e.key, key) {
			if e.docs.CheckedAdd(ordinal) {
				hi.metadata.NumTuples++
			}
			return
		}
	}

	hi.buckets[bucketNum] = append(hi.buckets[bucketNum], hashEntry{
		hash: hashValue,
		key:  key,
		docs: roaring.BitmapOf(ordinal),
	})
	hi.metadata.NumKeys++
	hi.metadata.NumTuples++

	if hi.metadata.NumKeys > uint64(hi.metadata.MaxBucket+1)*uint64(hi.metadata.BucketLoad) {
		hi.splitBucket()
	}
}

// splitBucket implements the linear hashing bucket split algorithm: buckets
// are split round-robin and the masks double once every bucket of the round
// has been split.
func (hi *HashIndex) splitBucket() {
	newBucketNum := hi.metadata.MaxBucket + 1
	if newBucketNum > hi.metadata.HighMask {
		hi.metadata.LowMask = hi.metadata.HighMask
		hi.metadata.HighMask = newBucketNum | hi.metadata.LowMask
	}
	splitBucket := newBucketNum & hi.metadata.LowMask

	hi.metadata.MaxBucket = newBucketNum
	hi.buckets = append(hi.buckets, nil)

	entries := hi.buckets[splitBucket]
	hi.buckets[splitBucket] = nil
	for _, e := range entries {
		b := hi.computeBucket(e.hash)
		hi.buckets[b] = append(hi.buckets[b], e)
	}
}

// Find returns the ordinals stored under an encoded key, or nil.
func (hi *HashIndex) Find(key []byte) *roaring.Bitmap {
	hi.RLock()
	defer hi.RUnlock()

	hashValue := hashKey(key)
	for _, e := range hi.buckets[hi.computeBucket(hashValue)] {
		if e.hash == hashValue && bytes.Equal(e.key, key) {
			return e.docs
		}
	}
	return nil
}

// Probe returns the ordinals of documents whose indexed path holds a value
// equal to v, or to any element of v when v is an array. The result is a new
// bitmap owned by the caller.
func (hi *HashIndex) Probe(v models.Value) *roaring.Bitmap {
	out := roaring.New()
	if docs := hi.Find(EncodeKey(v)); docs != nil {
		out.Or(docs)
	}
	if v.IsArray() {
		for _, e := range v.Elems() {
			if docs := hi.Find(EncodeKey(e)); docs != nil {
				out.Or(docs)
			}
		}
	}
	return out
}

// Metadata returns a copy of the index statistics.
func (hi *HashIndex) Metadata() HashIndexMetadata {
	hi.RLock()
	defer hi.RUnlock()
	return hi.metadata
}

// Field is the indexed path.
func (hi *HashIndex) Field() models.FieldPath { return hi.field }
