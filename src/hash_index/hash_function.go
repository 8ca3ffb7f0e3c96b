package hashindex

import "github.com/cespare/xxhash/v2"

// hashKey computes the hash value of an encoded key
func hashKey(key []byte) uint64 {
	return xxhash.Sum64(key)
}

// computeBucket determines which bucket a hash value belongs to
func (hi *HashIndex) computeBucket(hashValue uint64) uint32 {
	bucket := uint32(hashValue) & hi.metadata.HighMask

	// bucket not created yet in this round: use its pre-split image
	if bucket > hi.metadata.MaxBucket {
		bucket = uint32(hashValue) & hi.metadata.LowMask
	}

	return bucket
}
