// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package segbuf provides a segmented, pool-backed byte stream for
// high-throughput staging buffers — serialization, request/response bodies,
// content transforms — that would otherwise pay for repeated large
// allocations and the GC pressure that comes with them.
//
// # Layers
//
// Three layers build on each other:
//
//   - InterlockedBitOps (bitops.go): lock-free AND/OR/XOR/clear/set, and
//     their conditional variants, over 32- and 64-bit atomic words. Used by
//     the block and pool layers for their bitmaps; exported because it is
//     independently useful for any lock-free bitmap-like state.
//   - The segmented buffer pool (block.go, segpool.go, smallpool.go): a
//     process-wide allocator of fixed-size segments, grouped into blocks,
//     recycled across stream instances. Small requests below a segment are
//     served from a separate per-size-class small buffer pool instead.
//   - DynamicSegmentedStream (stream.go): a growable, seekable stream that
//     composes small-buffer and standard-segment storage over a spine of
//     SegmentBuffers, with contiguous-buffer read/write semantics despite a
//     discontiguous backing store.
//
// # Usage
//
//	s, _ := segbuf.NewStream(segbuf.DefaultOptions())
//	defer s.Close()
//	_, _ = s.Write(data)
//	_, _ = s.Seek(0, io.SeekStart)
//	out, _ := s.Bytes()
//
// # Zeroing
//
// ZeroBufferBehavior controls when segment contents are zeroed as they move
// through the pool: never, on release back to the pool, on rent from the
// pool, or on both transitions. Rent-time and release-time zeroing are
// tracked as independent flags internally (see Options) rather than
// collapsed into a single boolean, since a caller may need the release-time
// guarantee (no data leaks to the next renter) without paying for rent-time
// zeroing of a buffer it is about to overwrite in full.
//
// # Native backing
//
// A pool can be configured to back its blocks with an anonymous memory
// mapping instead of a Go-managed slice (Options.UseNativeLargeMemoryBuffers).
// Both backings are plain []byte from Go's point of view — mmap'd memory has
// a normal slice header — so the segment view (MemorySegment) and all
// read/write paths are unified rather than forked; IsNative is informational
// only.
//
// # Concurrency
//
// The pool and bit-ops internals are safe for concurrent use from any number
// of goroutines. A DynamicSegmentedStream is not: its cursor, length, and
// position are single-writer state, so a single stream instance must not be
// used concurrently from more than one goroutine. Distinct stream instances
// are fully independent.
//
// # Dependencies
//
// segbuf depends on:
//   - iox: semantic error types (ErrWouldBlock) for non-blocking pool paths
//   - spin: spinlock backoff for the block-level segment-run claim and the
//     bounded pool's contention retry loop
//   - golang.org/x/sys/unix: anonymous mmap/munmap for native block backing
//   - go.uber.org/zap: optional operational logging of pool lifecycle events
//   - github.com/prometheus/client_golang: optional pool metrics
package segbuf
