// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package segbuf

import (
	"math/bits"
	"sync/atomic"
	"unsafe"

	"code.hybscloud.com/spin"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// SegmentSize is the fixed size in bytes of one segment (S in the component
// design). Every standard allocation from the pool is an integer number of
// segments of this size.
var SegmentSize uintptr = 64 * 1024

// SegmentsPerBlock is the number of segments a freshly created block holds.
var SegmentsPerBlock = 64

// SetSegmentSize updates the package-level segment size. Call before
// constructing any pool; existing blocks keep the size they were built with.
func SetSegmentSize(size int) { SegmentSize = uintptr(size) }

// SetSegmentsPerBlock updates the package-level block capacity in segments.
func SetSegmentsPerBlock(n int) { SegmentsPerBlock = n }

// spinlock is a narrow, block-scoped mutual-exclusion primitive used only to
// guard the multi-word contiguous-run search-and-claim in tryRentRun and
// tryRentRunAt. Pure bit-clear on return/reduce stays lock-free (ClearBits
// directly on the word); true lock-free multi-word run search with a
// lowest-index tie-break is impractical, so this narrow section borrows the
// CAS-retry backoff style BoundedPool.tryGet/tryPut already use.
type spinlock struct {
	held atomic.Bool
}

func (l *spinlock) Lock() {
	var sw spin.Wait
	for !l.held.CompareAndSwap(false, true) {
		sw.Once()
	}
}

func (l *spinlock) Unlock() {
	l.held.Store(false)
}

// block is one contiguous N·S-byte backing allocation subdivided into N
// fixed-size segments (SegmentedBufferBlock, C3). rented and zeroed are
// parallel bitmaps: rented[i]=1 means segment i is currently out on loan;
// zeroed[i]=1 on a free segment means it is known to already contain zero
// bytes. A rent that zeroes its run sets the zeroed bits while the run is
// rented; returnRun always either re-zeroes and sets them or clears them, so
// a free segment is only marked zeroed when its bytes are zero.
type block struct {
	_ noCopy

	owner   *SegmentedBufferPool
	data    []byte
	segSize int
	n       int
	native  bool

	runLock spinlock
	rented  []atomic.Uint64
	zeroed  []atomic.Uint64

	generation  atomic.Uint64
	outstanding atomic.Int64
}

func newBitmapWords(n int) []atomic.Uint64 {
	if n == 0 {
		n = 1
	}
	buf := CacheLineAlignedMem(n * 8)
	return unsafe.Slice((*atomic.Uint64)(unsafe.Pointer(unsafe.SliceData(buf))), n)
}

func newBlock(owner *SegmentedBufferPool, n, segSize int, native bool) (*block, error) {
	size := n * segSize
	var data []byte
	if native {
		m, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
		if err != nil {
			logger.Warn("segbuf: native block allocation failed", zap.Int("segments", n), zap.Error(err))
			return nil, allocationError("rent", err)
		}
		data = m
	} else {
		data = AlignedMem(size, PageSize)
	}
	nWords := (n + 63) / 64
	metricBlocksCreated.Inc()
	logger.Debug("segbuf: block allocated", zap.Int("segments", n), zap.Bool("native", native))
	return &block{
		owner:   owner,
		data:    data,
		segSize: segSize,
		n:       n,
		native:  native,
		rented:  newBitmapWords(nWords),
		zeroed:  newBitmapWords(nWords),
	}, nil
}

// free releases the block's backing allocation. Only valid once this block's
// own outstanding count has reached zero.
func (b *block) free() error {
	if b.outstanding.Load() != 0 {
		return allocationError("free", errClassBlockStillOutstanding)
	}
	if b.native {
		return unix.Munmap(b.data)
	}
	return nil
}

func rangeMask(wordIdx, start, k int) uint64 {
	wordStart := wordIdx * 64
	wordEnd := wordStart + 64
	lo, hi := start, start+k
	if lo < wordStart {
		lo = wordStart
	}
	if hi > wordEnd {
		hi = wordEnd
	}
	if lo >= hi {
		return 0
	}
	mask := ^uint64(0) >> uint(64-(hi-lo))
	return mask << uint(lo-wordStart)
}

func forEachWordInRange(start, k int, fn func(wi int, mask uint64)) {
	first := start / 64
	last := (start + k - 1) / 64
	for wi := first; wi <= last; wi++ {
		if mask := rangeMask(wi, start, k); mask != 0 {
			fn(wi, mask)
		}
	}
}

func (b *block) setRented(start, k int) {
	forEachWordInRange(start, k, func(wi int, mask uint64) { SetBits(&b.rented[wi], mask) })
}

func (b *block) clearRented(start, k int) {
	forEachWordInRange(start, k, func(wi int, mask uint64) { ClearBits(&b.rented[wi], mask) })
}

func (b *block) setZeroed(start, k int) {
	forEachWordInRange(start, k, func(wi int, mask uint64) { SetBits(&b.zeroed[wi], mask) })
}

func (b *block) clearZeroed(start, k int) {
	forEachWordInRange(start, k, func(wi int, mask uint64) { ClearBits(&b.zeroed[wi], mask) })
}

func (b *block) allZeroed(start, k int) bool {
	all := true
	forEachWordInRange(start, k, func(wi int, mask uint64) {
		if b.zeroed[wi].Load()&mask != mask {
			all = false
		}
	})
	return all
}

func (b *block) isFreeRange(start, k int) bool {
	if start < 0 || k < 0 || start+k > b.n {
		return false
	}
	free := true
	forEachWordInRange(start, k, func(wi int, mask uint64) {
		if b.rented[wi].Load()&mask != 0 {
			free = false
		}
	})
	return free
}

// firstFreeRun scans the rented bitmap for the lowest-indexed run of k
// consecutive free bits. Each step loads the current word and consumes a
// whole run of set or clear bits within it, so fully rented words are
// skipped in a single step; bits.TrailingZeros64 locates the end of each
// candidate run of zero bits within a word.
func (b *block) firstFreeRun(k int) (start int, ok bool) {
	run := 0
	for i := 0; i < b.n; {
		wi, bi := i/64, i%64
		w := b.rented[wi].Load()
		shifted := w >> uint(bi)

		if shifted&1 == 1 {
			// i is rented: jump past the run of set bits starting here.
			run = 0
			skip := bits.TrailingZeros64(^shifted)
			if skip == 0 {
				skip = 1
			}
			i += skip
			continue
		}

		if run == 0 {
			start = i
		}
		// free is how many consecutive zero bits follow, capped by the end
		// of the word, the end of the bitmap, and how many more we still
		// need for this run.
		free := bits.TrailingZeros64(shifted)
		if rest := 64 - bi; free > rest {
			free = rest
		}
		if rest := b.n - i; free > rest {
			free = rest
		}
		if need := k - run; free > need {
			free = need
		}
		if free == 0 {
			free = 1
		}
		run += free
		i += free
		if run >= k {
			return start, true
		}
	}
	return 0, false
}

func (b *block) zeroRange(start, k int) {
	lo := start * b.segSize
	hi := lo + k*b.segSize
	clear(b.data[lo:hi])
}

func (b *block) newSegmentBuffer(start, k int) *SegmentBuffer {
	return &SegmentBuffer{
		kind:    segmentStandard,
		block:   b,
		start:   start,
		count:   k,
		segSize: b.segSize,
	}
}

// tryRentRun finds and claims the lowest-indexed free run of k segments,
// zeroing it first if required and not already known-zero.
func (b *block) tryRentRun(k int, zeroRequired bool) (*SegmentBuffer, int, bool) {
	b.runLock.Lock()
	start, ok := b.firstFreeRun(k)
	if !ok {
		b.runLock.Unlock()
		return nil, 0, false
	}
	alreadyZero := b.allZeroed(start, k)
	b.setRented(start, k)
	b.clearZeroed(start, k)
	b.runLock.Unlock()

	if zeroRequired && !alreadyZero {
		b.zeroRange(start, k)
		b.setZeroed(start, k)
	}
	b.generation.Add(1)
	b.outstanding.Add(int64(k))
	return b.newSegmentBuffer(start, k), start, true
}

// tryRentRunAt attempts to claim exactly [start, start+k); used to extend a
// buffer contiguously from the preferred-block path.
func (b *block) tryRentRunAt(start, k int, zeroRequired bool) bool {
	b.runLock.Lock()
	if !b.isFreeRange(start, k) {
		b.runLock.Unlock()
		return false
	}
	alreadyZero := b.allZeroed(start, k)
	b.setRented(start, k)
	b.clearZeroed(start, k)
	b.runLock.Unlock()

	if zeroRequired && !alreadyZero {
		b.zeroRange(start, k)
		b.setZeroed(start, k)
	}
	b.generation.Add(1)
	b.outstanding.Add(int64(k))
	return true
}

// returnRun marks [start, start+k) free, lock-free. zp.onRelease zeroes the
// range and marks it known-zero (Free-Zeroed); otherwise the zeroed bits are
// cleared unconditionally, since the segment was handed to a caller that has
// had the chance to write to it and must not be assumed clean on the next
// rent (Free-Dirty).
func (b *block) returnRun(start, k int, zp zeroPolicy) {
	if zp.onRelease {
		b.zeroRange(start, k)
		b.setZeroed(start, k)
	} else {
		b.clearZeroed(start, k)
	}
	b.clearRented(start, k)
	b.outstanding.Add(-int64(k))
}

// reduceRun keeps the first newK segments rented and frees the old-newK tail.
func (b *block) reduceRun(start, oldK, newK int, zp zeroPolicy) {
	b.returnRun(start+newK, oldK-newK, zp)
}
