// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package segbuf_test

import (
	"sync/atomic"
	"testing"

	"code.hybscloud.com/segbuf"
)

// Memory allocation benchmarks

func BenchmarkAlignedMem4K(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = segbuf.AlignedMem(4096, segbuf.PageSize)
	}
}

func BenchmarkAlignedMem64K(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = segbuf.AlignedMem(65536, segbuf.PageSize)
	}
}

func BenchmarkCacheLineAlignedMem(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = segbuf.CacheLineAlignedMem(512)
	}
}

// Segmented buffer pool benchmarks

func benchPool(b *testing.B) *segbuf.SegmentedBufferPool {
	b.Helper()
	segbuf.SetSegmentSize(64 * 1024)
	segbuf.SetSegmentsPerBlock(64)
	return segbuf.NewSegmentedBufferPool(segbuf.DefaultOptions())
}

func BenchmarkSegmentedBufferPoolRentReturnOneSegment(b *testing.B) {
	pool := benchPool(b)
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			sb, err := pool.Rent(1024, false)
			if err != nil {
				b.Fatal(err)
			}
			pool.Return(sb)
		}
	})
}

func BenchmarkSegmentedBufferPoolRentReturnFourSegments(b *testing.B) {
	pool := benchPool(b)
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			sb, err := pool.Rent(4*64*1024, false)
			if err != nil {
				b.Fatal(err)
			}
			pool.Return(sb)
		}
	})
}

func BenchmarkSegmentedBufferPoolRentFromPreferred(b *testing.B) {
	pool := benchPool(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sb, err := pool.Rent(64*1024, false)
		if err != nil {
			b.Fatal(err)
		}
		grown, _, err := pool.RentFromPreferred(64*1024, false, sb)
		if err != nil {
			b.Fatal(err)
		}
		pool.Return(grown)
	}
}

func BenchmarkSmallBufferPoolRentReturn(b *testing.B) {
	segbuf.SetPageSize(4096)
	segbuf.SetSegmentSize(64 * 1024)
	pool := segbuf.NewSmallBufferPool(segbuf.DefaultOptions())
	idx, ok := pool.ClassIndexFor(512)
	if !ok {
		b.Fatal("expected a small-buffer class for 512 bytes")
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			sb := pool.Rent(idx, false)
			pool.Return(sb)
		}
	})
}

// Bit-ops benchmarks

func BenchmarkInterlockedOr(b *testing.B) {
	var w atomic.Uint64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			segbuf.Or[uint64](&w, 1)
		}
	})
}

func BenchmarkInterlockedCondSetBits(b *testing.B) {
	var w atomic.Uint64
	alwaysTrue := func(uint64) bool { return true }
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			segbuf.CondSetBits[uint64](&w, alwaysTrue, 1)
		}
	})
}

// Stream benchmarks

func BenchmarkStreamWriteSmall(b *testing.B) {
	segbuf.SetPageSize(4096)
	segbuf.SetSegmentSize(64 * 1024)
	data := make([]byte, 512)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s, err := segbuf.NewStream(segbuf.DefaultOptions())
		if err != nil {
			b.Fatal(err)
		}
		if _, err := s.Write(data); err != nil {
			b.Fatal(err)
		}
		_ = s.Close()
	}
}

func BenchmarkStreamWriteOneSegment(b *testing.B) {
	segbuf.SetPageSize(4096)
	segbuf.SetSegmentSize(64 * 1024)
	data := make([]byte, 64*1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s, err := segbuf.NewStream(segbuf.DefaultOptions())
		if err != nil {
			b.Fatal(err)
		}
		if _, err := s.Write(data); err != nil {
			b.Fatal(err)
		}
		_ = s.Close()
	}
}

func BenchmarkStreamReadAfterWrite(b *testing.B) {
	segbuf.SetPageSize(4096)
	segbuf.SetSegmentSize(64 * 1024)
	data := make([]byte, 3*64*1024)
	dst := make([]byte, len(data))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s, err := segbuf.NewStream(segbuf.DefaultOptions())
		if err != nil {
			b.Fatal(err)
		}
		if _, err := s.Write(data); err != nil {
			b.Fatal(err)
		}
		if _, err := s.Seek(0, 0); err != nil {
			b.Fatal(err)
		}
		if _, err := s.Read(dst); err != nil {
			b.Fatal(err)
		}
		_ = s.Close()
	}
}
