// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package openhash

import (
	"bytes"
	"math"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/exp/constraints"
)

// HashFunc computes the hash code of a key. Keys that are equal according
// to the table's EqualFunc must have equal hash codes. The hash need not be
// well distributed: the table spreads hash codes over its slots using a
// prime modulus, and stays correct (if slow) even with a constant hash.
type HashFunc[K any] func(key K) uint32

// EqualFunc reports whether two keys are equal.
type EqualFunc[K any] func(a, b K) bool

// HashString hashes a string with xxhash.
func HashString(s string) uint32 {
	return fold(xxhash.Sum64String(s))
}

// HashBytes hashes a byte slice with xxhash.
func HashBytes(b []byte) uint32 {
	return fold(xxhash.Sum64(b))
}

// HashInt hashes an integer by folding its 64-bit representation.
func HashInt[T constraints.Integer](v T) uint32 {
	return fold(uint64(v))
}

// HashFloat hashes a float by folding its IEEE 754 bits. All NaNs hash
// alike, though Equal never reports a NaN equal to anything.
func HashFloat[T constraints.Float](v T) uint32 {
	f := float64(v)
	if f == 0 {
		// +0 and -0 compare equal and must hash equal.
		return 0
	}
	return fold(math.Float64bits(f))
}

// Equal compares two keys with ==.
func Equal[T comparable](a, b T) bool {
	return a == b
}

// EqualBytes compares two byte slices.
func EqualBytes(a, b []byte) bool {
	return bytes.Equal(a, b)
}

func fold(h uint64) uint32 {
	return uint32(h) ^ uint32(h>>32)
}

// Each slot in the table has a 32-bit hash code which doubles as the slot
// status. Two values are reserved:
//
//	 unused: 0  // empty slot, terminates probing
//	deleted: 1  // tombstone, skipped by probing and reusable by insertion
//	   real: >= minRealHash
//
// A key whose hash code collides with a reserved value is stored and
// compared as minRealHash instead.
const (
	hashUnused  uint32 = 0
	hashDeleted uint32 = 1
	minRealHash uint32 = 2

	// indexMultiplier scatters consecutive hash codes before the prime
	// modulus is applied.
	indexMultiplier uint32 = 11
)

func isReal(h uint32) bool {
	return h >= minRealHash
}

// primeMod[shift] is the largest prime below 1<<shift. Indexing the initial
// probe position with a prime rather than the power-of-two mask avoids the
// clustering that sequential hash codes would otherwise produce.
var primeMod = [maxShift + 1]uint32{
	1, // 1 << 0
	2,
	3,
	7,
	13,
	31,
	61,
	127,
	251,
	509,
	1021,
	2039,
	4093,
	8191,
	16381,
	32749,
	65521, // 1 << 16
	131071,
	262139,
	524287,
	1048573,
	2097143,
	4194301,
	8388593,
	16777213,
	33554393,
	67108859,
	134217689,
	268435399,
	536870909,
	1073741789,
	2147483647, // 1 << 31
}
