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

// Package openhash provides generic open-addressing hash tables: a Set of
// keys and a Map from keys to values. Both are backed by the same engine.
//
// # Layout
//
// A table stores three parallel arrays of capacity slots: a 32-bit hash code
// per slot, the keys and (for a Map) the values. The capacity is always a
// power of two and at least 8. The hash code array doubles as the slot
// status: 0 marks an unused slot, 1 a deleted slot (tombstone), and any
// other value is the cached hash code of the key stored in the slot. Hash
// codes that collide with a reserved value are remapped to 2.
//
// Keys are not required to be comparable with ==. Each table is created
// with a HashFunc and an EqualFunc, and optionally with destroyers that make
// the table the owner of its keys and values (see WithOwnedKeys). Without a
// destroyer the table merely borrows the entries.
//
// # Probing
//
// The first slot probed for hash h is (h*11) % p where p is the largest
// prime below the capacity. Using a prime rather than the power-of-two mask
// spreads sequential and poorly distributed hash codes. Subsequent slots
// follow a triangular progression
//
//	p(i) := p(0) + (i^2 + i)/2 (mod capacity)
//
// which visits every slot exactly once because (i^2+i)/2 is a bijection in
// Z/(2^m). Probing stops at the first unused slot. Deleted slots are
// skipped, but the first one seen is remembered: if the key is absent that
// slot is where it will be inserted.
//
// # Resizing
//
// occupied counts live entries plus tombstones. A table is resized when
// capacity <= occupied + occupied/16 (it is ~94% full, possibly mostly of
// tombstones), or when capacity > 4*size for tables above the minimum
// capacity. The new capacity is the smallest power of two above 1.333*size.
// Resizing happens in place: the arrays are extended first when growing,
// the entries are relocated in a single pass using a bitmap of settled
// slots and a chain of evictions, and the arrays are truncated last when
// shrinking. No tombstones survive a resize.
//
// Growing is the only operation that can fail. It fails with
// ErrAllocationFailure before anything is modified, so the table stays
// valid and unchanged.
package openhash

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const (
	minShift    = 3
	minCapacity = 1 << minShift
	maxShift    = 31

	// growthFactor is the ratio between the capacity chosen by a resize and
	// the number of live entries.
	growthFactor = 1.333
)

// table is the engine shared by Set and Map.
//
// A table is NOT goroutine-safe.
type table[K, V any] struct {
	hash         HashFunc[K]
	equal        EqualFunc[K]
	destroyKey   func(key K)
	destroyValue func(value V)
	allocator    Allocator[K, V]
	logger       *zap.Logger
	// maxCapacity bounds the capacity a resize may allocate. Zero means
	// unbounded (up to 1<<maxShift).
	maxCapacity int

	storage[K, V]
	// The number of slots. Zero until the first insert, then always a power
	// of two >= minCapacity.
	capacity int
	// mod is the prime used by hashToIndex. mask is capacity-1 and is used
	// to wrap the probe sequence.
	mod  uint32
	mask uint32
	// The number of live entries.
	size int
	// The number of live entries plus tombstones.
	occupied int
}

func (t *table[K, V]) init(hash HashFunc[K], equal EqualFunc[K], options []option[K, V]) {
	if hash == nil {
		panic(errors.AssertionFailedf("openhash: nil hash function"))
	}
	if equal == nil {
		panic(errors.AssertionFailedf("openhash: nil equal function"))
	}
	*t = table[K, V]{
		hash:      hash,
		equal:     equal,
		allocator: defaultAllocator[K, V]{},
		logger:    zap.NewNop(),
	}
	for _, op := range options {
		op.apply(t)
	}
	if t.allocator == nil {
		t.allocator = defaultAllocator[K, V]{}
	}
	if t.logger == nil {
		t.logger = zap.NewNop()
	}
}

func (t *table[K, V]) keyOwnership() Ownership {
	if t.destroyKey != nil {
		return Owned
	}
	return Borrowed
}

func (t *table[K, V]) valueOwnership() Ownership {
	if t.destroyValue != nil {
		return Owned
	}
	return Borrowed
}

// fingerprint returns the hash code of key as stored in the hash array.
func (t *table[K, V]) fingerprint(key K) uint32 {
	h := t.hash(key)
	if !isReal(h) {
		h = minRealHash
	}
	return h
}

func (t *table[K, V]) hashToIndex(h uint32) uint32 {
	return (h * indexMultiplier) % t.mod
}

// find walks the probe sequence for key. If key is present the index of its
// slot is returned. Otherwise the index of the first tombstone on the
// sequence is returned, or the unused slot that ended it if there was no
// tombstone. The caller tells these cases apart by looking at
// t.hashes[index]. The table must have a non-zero capacity.
func (t *table[K, V]) find(key K) (index uint32, h uint32) {
	h = t.fingerprint(key)
	index = t.hashToIndex(h)
	firstDeleted := -1
	for step := uint32(0); ; {
		c := t.hashes[index]
		if c == hashUnused {
			break
		}
		if c == h {
			if t.equal(t.keys[index], key) {
				return index, h
			}
		} else if c == hashDeleted && firstDeleted < 0 {
			firstDeleted = int(index)
		}
		step++
		index = (index + step) & t.mask
	}
	if firstDeleted >= 0 {
		return uint32(firstDeleted), h
	}
	return index, h
}

// lookup returns the index of the slot holding key, or ok=false if the key
// is not present.
func (t *table[K, V]) lookup(key K) (index uint32, ok bool) {
	if t.size == 0 {
		return 0, false
	}
	index, _ = t.find(key)
	return index, isReal(t.hashes[index])
}

// insert adds key and value if key is not already present. It returns the
// index of the slot holding key and whether the entry was added. An
// existing entry is left untouched.
func (t *table[K, V]) insert(key K, value V) (index uint32, inserted bool, err error) {
	if t.capacity == 0 {
		if err := t.resize(t.size + 1); err != nil {
			return 0, false, err
		}
	}

	index, h := t.find(key)
	prev := t.hashes[index]
	if isReal(prev) {
		return index, false, nil
	}

	if prev == hashUnused && t.needsResize(t.size+1, t.occupied+1) {
		// Resize before modifying anything so that an allocation failure
		// leaves the table untouched. The resize drops every tombstone so
		// the key now lands on an unused slot.
		if err := t.resize(t.size + 1); err != nil {
			return 0, false, err
		}
		index, h = t.find(key)
		prev = t.hashes[index]
	}

	t.hashes[index] = h
	t.keys[index] = key
	t.values[index] = value
	t.size++
	if prev == hashUnused {
		t.occupied++
	}
	t.checkInvariants()
	return index, true, nil
}

// remove deletes key, releasing the entry if the table owns it. It returns
// false if key was not present.
func (t *table[K, V]) remove(key K) bool {
	index, ok := t.lookup(key)
	if !ok {
		return false
	}

	key, value := t.keys[index], t.values[index]
	t.hashes[index] = hashDeleted
	var (
		zeroK K
		zeroV V
	)
	t.keys[index] = zeroK
	t.values[index] = zeroV
	t.size--

	if t.destroyKey != nil {
		t.destroyKey(key)
	}
	if t.destroyValue != nil {
		t.destroyValue(value)
	}

	if t.needsResize(t.size, t.occupied) {
		// A removal never increases occupied, so this is a shrink (or a
		// rehash at the same capacity) and cannot fail.
		if err := t.resize(t.size); err != nil {
			t.logger.Warn("resize after remove failed", zap.Error(err))
		}
	}
	t.checkInvariants()
	return true
}

// needsResize reports whether a table holding size live entries and
// occupied used slots should be resized.
func (t *table[K, V]) needsResize(size, occupied int) bool {
	return (t.capacity > 4*size && t.capacity > minCapacity) ||
		t.capacity <= occupied+occupied/16
}

// targetShift returns log2 of the capacity a resize picks for size live
// entries.
func targetShift(size int) int {
	shift := bits.Len(uint(float64(size) * growthFactor))
	if shift < minShift {
		shift = minShift
	}
	return shift
}

// resize changes the capacity to suit size live entries and relocates every
// entry, dropping all tombstones. If the table must grow and the storage
// cannot be extended, resize returns an error wrapping ErrAllocationFailure
// and the table is unchanged.
func (t *table[K, V]) resize(size int) error {
	shift := targetShift(size)
	oldCapacity := t.capacity
	if shift > maxShift {
		return t.allocationFailed(errors.Wrapf(ErrAllocationFailure,
			"%d entries exceed the maximum capacity %d", size, 1<<maxShift))
	}
	newCapacity := 1 << shift
	if t.maxCapacity > 0 && newCapacity > t.maxCapacity && newCapacity > oldCapacity {
		return t.allocationFailed(errors.Wrapf(ErrAllocationFailure,
			"capacity %d exceeds the configured maximum %d", newCapacity, t.maxCapacity))
	}

	if newCapacity > oldCapacity {
		if err := t.grow(t.allocator, newCapacity); err != nil {
			return t.allocationFailed(err)
		}
	}

	tombstones := t.occupied - t.size
	t.setShift(shift)
	t.relocate(oldCapacity)

	if newCapacity < oldCapacity {
		t.truncate(t.allocator, t.logger, newCapacity)
	}
	t.occupied = t.size

	t.logger.Debug("resize",
		zap.Int("old-capacity", oldCapacity),
		zap.Int("new-capacity", newCapacity),
		zap.Int("size", t.size),
		zap.Int("tombstones", tombstones))
	return nil
}

func (t *table[K, V]) allocationFailed(err error) error {
	t.logger.Warn("allocation failure",
		zap.Int("capacity", t.capacity),
		zap.Int("size", t.size),
		zap.Error(err))
	return err
}

func (t *table[K, V]) setShift(shift int) {
	t.capacity = 1 << shift
	t.mod = primeMod[shift]
	t.mask = uint32(t.capacity - 1)
}

// all calls yield sequentially for the index of each live slot, in slot
// order. If yield returns false, iteration stops.
func (t *table[K, V]) all(yield func(index uint32) bool) {
	for i := 0; i < t.capacity; i++ {
		if isReal(t.hashes[i]) {
			if !yield(uint32(i)) {
				return
			}
		}
	}
}

// destroyAll releases every owned entry and returns the storage to the
// allocator. The table is left empty with zero capacity.
func (t *table[K, V]) destroyAll() {
	if t.destroyKey != nil || t.destroyValue != nil {
		for i := 0; i < t.capacity; i++ {
			if !isReal(t.hashes[i]) {
				continue
			}
			if t.destroyKey != nil {
				t.destroyKey(t.keys[i])
			}
			if t.destroyValue != nil {
				t.destroyValue(t.values[i])
			}
		}
	}
	if t.allocator != nil {
		t.free(t.allocator)
	}
	t.capacity = 0
	t.mod = 0
	t.mask = 0
	t.size = 0
	t.occupied = 0
}

func (t *table[K, V]) checkInvariants() {
	if invariants {
		if t.capacity != t.len() {
			panic(errors.AssertionFailedf("invariant failed: capacity %d, but %d slots allocated",
				t.capacity, t.len()))
		}
		if t.capacity != 0 {
			if t.capacity < minCapacity || t.capacity&(t.capacity-1) != 0 {
				panic(errors.AssertionFailedf("invariant failed: capacity %d", t.capacity))
			}
			if t.mod > uint32(t.capacity) || t.mask != uint32(t.capacity-1) {
				panic(errors.AssertionFailedf("invariant failed: mod=%d mask=%d capacity=%d",
					t.mod, t.mask, t.capacity))
			}
		}

		// For every real slot, verify the key can be found from its probe
		// sequence. Count the number of used and deleted slots.
		var used, deleted, unused int
		for i := 0; i < t.capacity; i++ {
			switch c := t.hashes[i]; c {
			case hashUnused:
				unused++
			case hashDeleted:
				deleted++
			default:
				if h := t.fingerprint(t.keys[i]); h != c {
					panic(errors.AssertionFailedf("invariant failed: slot(%d): hash %08x, stored %08x\n%s",
						i, h, c, t.debugString()))
				}
				if index, _ := t.find(t.keys[i]); index != uint32(i) {
					panic(errors.AssertionFailedf("invariant failed: slot(%d): %v found at %d\n%s",
						i, t.keys[i], index, t.debugString()))
				}
				used++
			}
		}

		if used != t.size {
			panic(errors.AssertionFailedf("invariant failed: found %d used slots, but size is %d\n%s",
				used, t.size, t.debugString()))
		}
		if used+deleted != t.occupied {
			panic(errors.AssertionFailedf("invariant failed: found %d occupied slots, but occupied is %d\n%s",
				used+deleted, t.occupied, t.debugString()))
		}
		if t.capacity != 0 && unused == 0 {
			panic(errors.AssertionFailedf("invariant failed: no unused slot terminates probing\n%s",
				t.debugString()))
		}
	}
}

func (t *table[K, V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  mod=%d  size=%d  occupied=%d\n", t.capacity, t.mod, t.size, t.occupied)
	for i := 0; i < t.capacity; i++ {
		switch c := t.hashes[i]; c {
		case hashUnused:
			fmt.Fprintf(&buf, "  %4d: unused\n", i)
		case hashDeleted:
			fmt.Fprintf(&buf, "  %4d: deleted\n", i)
		default:
			fmt.Fprintf(&buf, "  %4d: %v [hash=%08x home=%d]\n", i, t.keys[i], c, t.hashToIndex(c))
		}
	}
	return buf.String()
}
