// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package segbuf

// segmentKind distinguishes the two forms a SegmentBuffer can take.
type segmentKind int

const (
	// segmentRaw buffers are backed by a single array drawn from the small
	// buffer pool (see smallpool.go).
	segmentRaw segmentKind = iota
	// segmentStandard buffers are backed by a contiguous run of segments
	// inside one SegmentedBufferBlock.
	segmentStandard
)

// SegmentBuffer is a handle to either a raw small array or a contiguous run
// of segments within one block. It is exclusively owned by whatever
// currently holds it — a stream's spine, or a pool free slot — and is never
// shared.
//
// Go represents both a managed slice and an mmap'd region as an ordinary
// []byte, so unlike a design that forks native and managed code paths,
// Bytes returns one contiguous slice regardless of backing; MemorySegment's
// IsNative flag exists purely for callers that care how the bytes got there
// (e.g. deciding whether to pass them to a syscall that requires page
// alignment), not because the read/write path differs.
type SegmentBuffer struct {
	kind segmentKind

	raw         []byte
	rawClass    int
	fallbackIdx int

	block   *block
	start   int
	count   int
	segSize int
}

// Len returns the buffer's length in bytes: the raw array's length, or
// count*segSize for a standard buffer.
func (sb *SegmentBuffer) Len() int {
	if sb == nil {
		return 0
	}
	if sb.kind == segmentRaw {
		return len(sb.raw)
	}
	return sb.count * sb.segSize
}

// IsNative reports whether the buffer is backed by a process-native
// (off-managed-heap) allocation.
func (sb *SegmentBuffer) IsNative() bool {
	if sb.kind == segmentRaw {
		return false
	}
	return sb.block.native
}

// IsSmall reports whether this is a raw small-array buffer rather than a
// standard segmented buffer.
func (sb *SegmentBuffer) IsSmall() bool {
	return sb.kind == segmentRaw
}

// Bytes returns the buffer's full contents as one contiguous slice. Because
// the segments composing a standard buffer are always contiguous within a
// single block's backing array, no per-segment iteration is needed even
// though the block conceptually exposes bytes one segment at a time.
func (sb *SegmentBuffer) Bytes() []byte {
	if sb.kind == segmentRaw {
		return sb.raw
	}
	lo := sb.start * sb.segSize
	hi := lo + sb.count*sb.segSize
	return sb.block.data[lo:hi]
}

// Segment returns the MemorySegment view of this buffer, for callers that
// want the base/offset/length/native-flag shape directly.
func (sb *SegmentBuffer) Segment() MemorySegment {
	return MemorySegment{Bytes: sb.Bytes(), IsNative: sb.IsNative()}
}

// canExtend reports whether this is a standard buffer, the only kind
// RentFromPreferred can extend in place. Whether the segments following it
// are free is checked separately by the block's tryRentRunAt.
func (sb *SegmentBuffer) canExtend() bool {
	return sb.kind == segmentStandard
}

// extendInPlace logically concatenates `by` additional, already-rented
// segments immediately following this buffer's current range. Called after
// SegmentedBufferPool.RentFromPreferred succeeds with IsExtension true.
func (sb *SegmentBuffer) extendInPlace(by int) {
	sb.count += by
}

// MemorySegment is a byte view of a SegmentBuffer (all of its segments at
// once, as returned by Segment): a base slice, implicitly carrying its own
// offset and length, plus whether it came from native (off-heap) or managed
// backing.
type MemorySegment struct {
	Bytes    []byte
	IsNative bool
}
