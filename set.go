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

// Set is an unordered set of keys. It shares its implementation with Map,
// storing zero-sized values.
//
// A Set is NOT goroutine-safe.
type Set[K any] struct {
	t table[K, struct{}]
}

// NewSet constructs an empty Set which hashes and compares keys with the
// supplied functions. Options are those of a Map with struct{} values, for
// example WithOwnedKeys[string, struct{}](release).
func NewSet[K any](hash HashFunc[K], equal EqualFunc[K], options ...option[K, struct{}]) *Set[K] {
	s := &Set[K]{}
	s.t.init(hash, equal, options)
	return s
}

// Insert adds key to the set. It returns false if an equal key was already
// present, in which case the set keeps the existing key and the caller
// keeps ownership of key.
//
// Insert fails with ErrAllocationFailure if the set needed to grow and
// could not, in which case the set is unchanged.
func (s *Set[K]) Insert(key K) (inserted bool, err error) {
	_, inserted, err = s.t.insert(key, struct{}{})
	return inserted, err
}

// Contains reports whether key is in the set.
func (s *Set[K]) Contains(key K) bool {
	_, ok := s.t.lookup(key)
	return ok
}

// Remove deletes key from the set, releasing it if the set owns its keys.
// It returns true if the key was present.
func (s *Set[K]) Remove(key K) bool {
	return s.t.remove(key)
}

// All calls yield sequentially for each key in the set, in slot order. If
// yield returns false, iteration stops. The set must not be mutated during
// iteration.
func (s *Set[K]) All(yield func(key K) bool) {
	s.t.all(func(i uint32) bool {
		return yield(s.t.keys[i])
	})
}

// Len returns the number of keys in the set.
func (s *Set[K]) Len() int {
	return s.t.size
}

// KeyOwnership reports whether the set releases its keys.
func (s *Set[K]) KeyOwnership() Ownership {
	return s.t.keyOwnership()
}

// Clear removes every key, releasing owned keys, and returns the storage to
// the allocator. The set remains usable.
func (s *Set[K]) Clear() {
	s.t.destroyAll()
}

// Close releases owned keys and returns the storage to the allocator. It is
// invalid to use a Set after it has been closed, though Close itself is
// idempotent.
func (s *Set[K]) Close() {
	s.t.destroyAll()
	s.t.allocator = nil
}

// CloseSet closes s. Like CloseMap it lets a table own nested sets.
func CloseSet[K any](s *Set[K]) {
	if s != nil {
		s.Close()
	}
}
