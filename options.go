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

import "go.uber.org/zap"

// option provide an interface to do work on a table while it is being
// created. Set[K] accepts option[K, struct{}].
type option[K, V any] interface {
	apply(t *table[K, V])
}

// Ownership describes whether a table is responsible for releasing the keys
// or values stored in it.
type Ownership int

const (
	// Borrowed means the caller retains ownership. The table never releases
	// the entry, which allows the storage to be shared with another
	// structure.
	Borrowed Ownership = iota
	// Owned means the table releases the entry with the supplied destroyer
	// when it is removed or when the table is cleared or closed.
	Owned
)

func (o Ownership) String() string {
	switch o {
	case Borrowed:
		return "borrowed"
	case Owned:
		return "owned"
	default:
		return "unknown"
	}
}

type ownedKeysOption[K, V any] struct {
	destroy func(key K)
}

func (op ownedKeysOption[K, V]) apply(t *table[K, V]) {
	t.destroyKey = op.destroy
}

// WithOwnedKeys is an option that makes the table the owner of its keys.
// destroy is called exactly once for every key that leaves the table
// through Remove, Clear, or Close. It is never called for a key rejected
// as a duplicate by Insert.
func WithOwnedKeys[K, V any](destroy func(key K)) option[K, V] {
	return ownedKeysOption[K, V]{destroy}
}

type ownedValuesOption[K, V any] struct {
	destroy func(value V)
}

func (op ownedValuesOption[K, V]) apply(t *table[K, V]) {
	t.destroyValue = op.destroy
}

// WithOwnedValues is an option that makes a Map the owner of its values.
// See WithOwnedKeys.
func WithOwnedValues[K, V any](destroy func(value V)) option[K, V] {
	return ownedValuesOption[K, V]{destroy}
}

type allocatorOption[K, V any] struct {
	allocator Allocator[K, V]
}

func (op allocatorOption[K, V]) apply(t *table[K, V]) {
	t.allocator = op.allocator
}

// WithAllocator is an option for specify the Allocator to use for the
// backing storage of a table.
func WithAllocator[K, V any](allocator Allocator[K, V]) option[K, V] {
	return allocatorOption[K, V]{allocator}
}

type loggerOption[K, V any] struct {
	logger *zap.Logger
}

func (op loggerOption[K, V]) apply(t *table[K, V]) {
	t.logger = op.logger
}

// WithLogger is an option to receive resize and allocation failure events.
// The default logger discards everything.
func WithLogger[K, V any](logger *zap.Logger) option[K, V] {
	return loggerOption[K, V]{logger}
}

type maxCapacityOption[K, V any] struct {
	maxCapacity int
}

func (op maxCapacityOption[K, V]) apply(t *table[K, V]) {
	t.maxCapacity = op.maxCapacity
}

// WithMaxCapacity is an option to bound the number of slots a table may
// allocate. An insert that would need to grow the table beyond the bound
// fails with ErrAllocationFailure.
func WithMaxCapacity[K, V any](maxCapacity int) option[K, V] {
	return maxCapacityOption[K, V]{maxCapacity}
}
