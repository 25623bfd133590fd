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
	"fmt"
	"io"
	"strconv"
	"testing"

	"github.com/aclements/go-perfevent/perfbench"
)

func BenchmarkMapIter(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapIter[int64], genKeys[int64]))
	})
	b.Run("impl=openMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkOpenMapIter[int64], genKeys[int64]))
	})
}

func BenchmarkMapGetHit(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapGetHit[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapGetHit[string], genKeys[string]))
	})
	b.Run("impl=openMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkOpenMapGetHit[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkOpenMapGetHit[string], genKeys[string]))
	})
}

func BenchmarkMapGetMiss(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapGetMiss[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapGetMiss[string], genKeys[string]))
	})
	b.Run("impl=openMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkOpenMapGetMiss[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkOpenMapGetMiss[string], genKeys[string]))
	})
}

// PutGrow starts every iteration from an empty map, so it measures the
// resizes from the minimum capacity up.
func BenchmarkMapPutGrow(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapPutGrow[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapPutGrow[string], genKeys[string]))
	})
	b.Run("impl=openMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkOpenMapPutGrow[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkOpenMapPutGrow[string], genKeys[string]))
	})
}

// PutDelete exercises tombstone reuse and the periodic rehash that drops
// accumulated tombstones.
func BenchmarkMapPutDelete(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapPutDelete[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapPutDelete[string], genKeys[string]))
	})
	b.Run("impl=openMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkOpenMapPutDelete[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkOpenMapPutDelete[string], genKeys[string]))
	})
}

type benchTypes interface {
	int64 | string
}

func benchSizes[T benchTypes](
	f func(b *testing.B, n int, genKeys func(start, end int) []T), genKeys func(start, end int) []T,
) func(*testing.B) {
	var cases = []int{
		6, 12, 18, 24, 30,
		64,
		128,
		256,
		512,
		1024,
		2048,
		4096,
		8192,
		1 << 16,
	}

	return func(b *testing.B) {
		for _, n := range cases {
			b.Run("len="+strconv.Itoa(n), func(b *testing.B) { f(b, n, genKeys) })
		}
	}
}

func genKeys[T benchTypes](start, end int) []T {
	var t T
	switch any(t).(type) {
	case int64:
		keys := make([]int64, end-start)
		for i := range keys {
			keys[i] = int64(start + i)
		}
		return any(keys).([]T)
	case string:
		keys := make([]string, end-start)
		for i := range keys {
			keys[i] = strconv.Itoa(start + i)
		}
		return any(keys).([]T)
	default:
		panic("not reached")
	}
}

func newBenchMap[T benchTypes]() *Map[T, T] {
	var t T
	var hash any
	switch any(t).(type) {
	case int64:
		hash = HashFunc[int64](HashInt[int64])
	case string:
		hash = HashFunc[string](HashString)
	default:
		panic("not reached")
	}
	return NewMap[T, T](hash.(HashFunc[T]), Equal[T])
}

// newRuntimeMap returns a builtin map holding keys, each mapped to itself.
func newRuntimeMap[T benchTypes](keys []T) map[T]T {
	m := make(map[T]T)
	for _, k := range keys {
		m[k] = k
	}
	return m
}

// newOpenMap is the Map counterpart of newRuntimeMap.
func newOpenMap[T benchTypes](b *testing.B, keys []T) *Map[T, T] {
	m := newBenchMap[T]()
	for _, k := range keys {
		mustInsert(b, m, k)
	}
	return m
}

func mustInsert[T benchTypes](b *testing.B, m *Map[T, T], k T) {
	if _, _, err := m.Insert(k, k); err != nil {
		b.Fatal(err)
	}
}

func benchmarkRuntimeMapIter[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := newRuntimeMap(genKeys(0, n))
	b.ResetTimer()
	perfbench.Open(b)
	var tmp T
	for i := 0; i < b.N; i++ {
		for k, v := range m {
			tmp += k + v
		}
	}
}

func benchmarkOpenMapIter[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := newOpenMap(b, genKeys(0, n))
	b.ResetTimer()
	perfbench.Open(b)
	var tmp T
	for i := 0; i < b.N; i++ {
		m.All(func(k, v T) bool {
			tmp += k + v
			return true
		})
	}
}

func benchmarkRuntimeMapGetMiss[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := newRuntimeMap(genKeys(0, n))
	miss := genKeys(-n, 0)
	b.ResetTimer()
	perfbench.Open(b)
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m[miss[i%n]]
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkOpenMapGetMiss[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := newOpenMap(b, genKeys(0, n))
	miss := genKeys(-n, 0)
	b.ResetTimer()
	perfbench.Open(b)
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m.Lookup(miss[i%n])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

// The GetHit benchmarks look up copies of the stored keys: the builtin map
// skips string comparisons on pointer equality, and lookups by a key that
// shares the stored key's data are rare in practice.

func benchmarkRuntimeMapGetHit[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := newRuntimeMap(genKeys(0, n))
	keys := genKeys(0, n)
	b.ResetTimer()
	perfbench.Open(b)
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m[keys[i%n]]
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkOpenMapGetHit[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := newOpenMap(b, genKeys(0, n))
	keys := genKeys(0, n)
	b.ResetTimer()
	perfbench.Open(b)
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m.Lookup(keys[i%n])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkRuntimeMapPutGrow[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	keys := genKeys(0, n)
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		newRuntimeMap(keys)
	}
}

func benchmarkOpenMapPutGrow[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	keys := genKeys(0, n)
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		newOpenMap(b, keys)
	}
}

func benchmarkRuntimeMapPutDelete[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	keys := genKeys(0, n)
	m := newRuntimeMap(keys)
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		k := keys[i%n]
		delete(m, k)
		m[k] = k
	}
}

func benchmarkOpenMapPutDelete[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	keys := genKeys(0, n)
	m := newOpenMap(b, keys)
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		k := keys[i%n]
		m.Remove(k)
		mustInsert(b, m, k)
	}
}
