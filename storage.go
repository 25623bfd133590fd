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
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// ErrAllocationFailure is returned when the backing storage of a table
// cannot be grown. The table is left unmodified.
var ErrAllocationFailure = errors.New("openhash: allocation failure")

// Allocator specifies an interface for allocating and releasing the backing
// storage of a table: one array of hash codes, one of keys and (for a Map)
// one of values, all of the same length. The default allocator utilizes
// Go's builtin make() and allows the GC to reclaim memory.
//
// An allocation may fail by returning an error, in which case the operation
// that needed the storage fails with ErrAllocationFailure.
type Allocator[K, V any] interface {
	// AllocHashes should return a slice equivalent to make([]uint32, n).
	AllocHashes(n int) ([]uint32, error)

	// AllocKeys should return a slice equivalent to make([]K, n).
	AllocKeys(n int) ([]K, error)

	// AllocValues should return a slice equivalent to make([]V, n).
	AllocValues(n int) ([]V, error)

	// FreeHashes can optional release the memory associated with a slice
	// returned by AllocHashes.
	FreeHashes(v []uint32)

	// FreeKeys can optional release the memory associated with a slice
	// returned by AllocKeys.
	FreeKeys(v []K)

	// FreeValues can optional release the memory associated with a slice
	// returned by AllocValues.
	FreeValues(v []V)
}

type defaultAllocator[K, V any] struct{}

func (defaultAllocator[K, V]) AllocHashes(n int) ([]uint32, error) {
	return makeSlice[uint32](n)
}

func (defaultAllocator[K, V]) AllocKeys(n int) ([]K, error) {
	return makeSlice[K](n)
}

func (defaultAllocator[K, V]) AllocValues(n int) ([]V, error) {
	return makeSlice[V](n)
}

func (defaultAllocator[K, V]) FreeHashes(v []uint32) {
}

func (defaultAllocator[K, V]) FreeKeys(v []K) {
}

func (defaultAllocator[K, V]) FreeValues(v []V) {
}

// makeSlice is make([]T, n) with the "len out of range" panic turned into an
// error.
func makeSlice[T any](n int) (s []T, err error) {
	defer func() {
		if r := recover(); r != nil {
			s, err = nil, errors.Newf("make(%T, %d): %v", s, n, r)
		}
	}()
	return make([]T, n), nil
}

// storage holds the parallel slot arrays of a table. The three slices always
// have the same length.
type storage[K, V any] struct {
	hashes []uint32
	keys   []K
	values []V
}

func (s *storage[K, V]) len() int {
	return len(s.hashes)
}

// alloc allocates all three arrays with n slots. Either all of them are
// returned or none are: partial allocations are released before the error
// is returned.
func alloc[K, V any](a Allocator[K, V], n int) (storage[K, V], error) {
	hashes, err := a.AllocHashes(n)
	if err != nil {
		return storage[K, V]{}, allocationFailure(err, "hashes", n)
	}
	keys, err := a.AllocKeys(n)
	if err != nil {
		a.FreeHashes(hashes)
		return storage[K, V]{}, allocationFailure(err, "keys", n)
	}
	values, err := a.AllocValues(n)
	if err != nil {
		a.FreeHashes(hashes)
		a.FreeKeys(keys)
		return storage[K, V]{}, allocationFailure(err, "values", n)
	}
	if len(hashes) != n || len(keys) != n || len(values) != n {
		a.FreeHashes(hashes)
		a.FreeKeys(keys)
		a.FreeValues(values)
		return storage[K, V]{}, errors.Wrapf(ErrAllocationFailure,
			"allocator returned %d/%d/%d slots, expected %d", len(hashes), len(keys), len(values), n)
	}
	return storage[K, V]{hashes: hashes, keys: keys, values: values}, nil
}

// allocationFailure returns ErrAllocationFailure wrapped with the failed
// allocation, keeping the allocator's error as a secondary error.
func allocationFailure(err error, what string, n int) error {
	return errors.WithSecondaryError(
		errors.Wrapf(ErrAllocationFailure, "allocating %d %s: %v", n, what, err), err)
}

// free releases the arrays back to the allocator.
func (s *storage[K, V]) free(a Allocator[K, V]) {
	if s.hashes != nil {
		a.FreeHashes(s.hashes)
		a.FreeKeys(s.keys)
		a.FreeValues(s.values)
	}
	*s = storage[K, V]{}
}

// grow resizes the arrays to n > s.len() slots, preserving the existing
// contents and marking the added slots unused. On failure s is unchanged.
func (s *storage[K, V]) grow(a Allocator[K, V], n int) error {
	ns, err := alloc(a, n)
	if err != nil {
		return err
	}
	old := s.len()
	copy(ns.hashes, s.hashes)
	copy(ns.keys, s.keys)
	copy(ns.values, s.values)
	// The allocator contract asks for zeroed memory, but the status of the
	// new slots must not depend on it.
	clear(ns.hashes[old:])
	clear(ns.keys[old:])
	clear(ns.values[old:])
	s.free(a)
	*s = ns
	return nil
}

// truncate resizes the arrays to n < s.len() slots, keeping the first n. If
// the allocator cannot supply the smaller arrays the existing ones are
// resliced, so truncate never fails.
func (s *storage[K, V]) truncate(a Allocator[K, V], logger *zap.Logger, n int) {
	ns, err := alloc(a, n)
	if err != nil {
		logger.Debug("shrink reallocation failed, reslicing",
			zap.Int("capacity", n), zap.Error(err))
		s.hashes = s.hashes[:n:n]
		s.keys = s.keys[:n:n]
		s.values = s.values[:n:n]
		return
	}
	copy(ns.hashes, s.hashes[:n])
	copy(ns.keys, s.keys[:n])
	copy(ns.values, s.values[:n])
	s.free(a)
	*s = ns
}
