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

// Map is an unordered map from keys to values with Insert, Get, Remove,
// and All operations. Insert never overwrites: the value of an existing key
// is updated through the pointer returned by Insert or Get.
//
// Pointers returned by Insert and Get remain valid until the next Insert or
// Remove that resizes the map. Since callers cannot tell which calls resize,
// a pointer should not be retained across any mutation.
//
// A Map is NOT goroutine-safe.
type Map[K, V any] struct {
	t table[K, V]
}

// NewMap constructs an empty Map which hashes and compares keys with the
// supplied functions. Storage is allocated on the first Insert.
func NewMap[K, V any](hash HashFunc[K], equal EqualFunc[K], options ...option[K, V]) *Map[K, V] {
	m := &Map[K, V]{}
	m.t.init(hash, equal, options)
	return m
}

// Insert adds an entry for key if none exists. It returns a pointer to the
// value stored for key and whether the entry was added. If key was already
// present the stored value is left unchanged, value is not stored, and no
// destroyer is called: the caller keeps ownership of key and value.
//
// Insert fails with ErrAllocationFailure if the map needed to grow and
// could not, in which case the map is unchanged.
func (m *Map[K, V]) Insert(key K, value V) (ref *V, inserted bool, err error) {
	index, inserted, err := m.t.insert(key, value)
	if err != nil {
		return nil, false, err
	}
	return &m.t.values[index], inserted, nil
}

// Get returns a pointer to the value stored for key, or nil if key is not
// present.
func (m *Map[K, V]) Get(key K) *V {
	index, ok := m.t.lookup(key)
	if !ok {
		return nil
	}
	return &m.t.values[index]
}

// Lookup retrieves the value for key, returning ok=false if the key is not
// present.
func (m *Map[K, V]) Lookup(key K) (value V, ok bool) {
	index, ok := m.t.lookup(key)
	if !ok {
		return value, false
	}
	return m.t.values[index], true
}

// Remove deletes the entry for key, releasing the key and value if the map
// owns them. It returns true if the key was present.
func (m *Map[K, V]) Remove(key K) bool {
	return m.t.remove(key)
}

// All calls yield sequentially for each key and value present in the map,
// in slot order. If yield returns false, iteration stops. The map must not
// be mutated during iteration.
func (m *Map[K, V]) All(yield func(key K, value V) bool) {
	m.t.all(func(i uint32) bool {
		return yield(m.t.keys[i], m.t.values[i])
	})
}

// Len returns the number of entries in the map.
func (m *Map[K, V]) Len() int {
	return m.t.size
}

// KeyOwnership reports whether the map releases its keys.
func (m *Map[K, V]) KeyOwnership() Ownership {
	return m.t.keyOwnership()
}

// ValueOwnership reports whether the map releases its values.
func (m *Map[K, V]) ValueOwnership() Ownership {
	return m.t.valueOwnership()
}

// Clear removes every entry, releasing owned keys and values, and returns
// the storage to the allocator. The map remains usable.
func (m *Map[K, V]) Clear() {
	m.t.destroyAll()
}

// Close releases owned keys and values and returns the storage to the
// allocator. It is invalid to use a Map after it has been closed, though
// Close itself is idempotent.
func (m *Map[K, V]) Close() {
	m.t.destroyAll()
	m.t.allocator = nil
}

// CloseMap closes m. It has the shape of a destroyer so that a table can
// own nested maps:
//
//	outer := NewMap[string, *Map[int, int]](HashString, Equal[string],
//		WithOwnedValues[string](CloseMap[int, int]))
func CloseMap[K, V any](m *Map[K, V]) {
	if m != nil {
		m.Close()
	}
}
