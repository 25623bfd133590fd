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

import "github.com/RoaringBitmap/roaring"

// relocate moves every live entry found in slots [0, oldCapacity) to its
// position under the current capacity, mod and mask. The arrays must already
// span max(oldCapacity, capacity) slots.
//
// The same arrays serve as both the old and the new table. A bitmap records
// the slots that have received their final occupant ("settled"). We scan the
// old slots in order. Unused and deleted slots become unused. A settled slot
// was filled earlier in this pass and is left alone. Any other live entry is
// lifted out of its slot and carried to the first unsettled slot on its new
// probe sequence. If that slot holds a live entry which has not been moved
// yet, the two are swapped and we continue with the evicted entry until an
// entry lands on a slot holding no live entry.
//
// An entry is always placed on the first slot of its probe sequence that is
// not settled, and settled slots are never vacated, so when the pass is done
// every slot preceding an entry on its probe sequence is occupied and find
// reaches the entry without crossing an unused slot.
func (t *table[K, V]) relocate(oldCapacity int) {
	settled := roaring.New()

	for i := 0; i < oldCapacity; i++ {
		h := t.hashes[i]
		if !isReal(h) {
			t.hashes[i] = hashUnused
			continue
		}
		if settled.Contains(uint32(i)) {
			continue
		}

		t.hashes[i] = hashUnused
		key, value := t.keys[i], t.values[i]
		var (
			zeroK K
			zeroV V
		)
		t.keys[i] = zeroK
		t.values[i] = zeroV

		for {
			index := t.hashToIndex(h)
			for step := uint32(0); settled.Contains(index); {
				step++
				index = (index + step) & t.mask
			}
			settled.Add(index)

			evicted := t.hashes[index]
			t.hashes[index] = h
			if !isReal(evicted) {
				t.keys[index] = key
				t.values[index] = value
				break
			}
			// Carry the evicted entry forward.
			h = evicted
			key, t.keys[index] = t.keys[index], key
			value, t.values[index] = t.values[index], value
		}
	}
}
