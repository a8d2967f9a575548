// Package identity computes the deterministic integer keys products and
// category paths are stored under.
//
// Both keys use the same construction: the input fields are joined with
// "_", hashed with MD5, the first 32 bits of the digest are taken and the
// sign bit is masked off. The result is a positive 31-bit integer, stable
// across runs and processes. Downstream storage assumes exactly this
// width; do not change it without migrating the store.
//
// The keys are not collision-free. Two distinct inputs may map to the same
// key; with catalog sizes in the tens of thousands this is an accepted,
// documented risk and is not defended against.
package identity

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"

	"pricetrack/ingest"
)

const signMask = 0x7FFFFFFF

func key(joined string) int32 {
	sum := md5.Sum([]byte(joined))
	return int32(binary.BigEndian.Uint32(sum[:4]) & signMask)
}

// ProductKey derives the product primary key from the source-native id and
// the source name.
func ProductKey(productID string, source ingest.Source) int32 {
	return key(fmt.Sprintf("%s_%s", productID, source))
}

// CategoryKey derives the category primary key from the three hierarchy
// levels. Missing levels must already be normalized to "" so that repeated
// runs agree on the key space.
func CategoryKey(level1, level2, level3 string) int32 {
	return key(fmt.Sprintf("%s_%s_%s", level1, level2, level3))
}
