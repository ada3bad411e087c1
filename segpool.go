// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package segbuf

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// SegmentedBufferPool owns a set of blocks and issues SegmentBuffers over
// contiguous runs of segments (C4). A single process-wide instance exists,
// reachable through the package-level pool pointer and replaceable
// atomically by ReleaseMemoryBuffers; every rented SegmentBuffer keeps the
// owning pool instance reachable through its block's owner field so that a
// reader holding an older pointer can still return buffers to it after
// replacement.
type SegmentedBufferPool struct {
	_ noCopy

	segSize      int
	segsPerBlock int
	native       bool
	zero         zeroPolicy

	mu     sync.Mutex
	blocks []*block

	outstanding atomic.Int64
	retired     atomic.Bool
}

// NewSegmentedBufferPool constructs an empty pool from opts. Blocks are
// created lazily on first rent.
func NewSegmentedBufferPool(opts Options) *SegmentedBufferPool {
	return &SegmentedBufferPool{
		segSize:      int(SegmentSize),
		segsPerBlock: SegmentsPerBlock,
		native:       opts.UseNativeLargeMemoryBuffers,
		zero:         newZeroPolicy(opts.ZeroBufferBehavior),
	}
}

func ceilDivSegments(bytes, segSize int) int {
	if bytes <= 0 {
		return 1
	}
	return (bytes + segSize - 1) / segSize
}

// Rent returns a standard SegmentBuffer covering at least bytes, creating a
// new block if no existing block has a free contiguous run long enough.
func (p *SegmentedBufferPool) Rent(bytes int, zeroRequired bool) (*SegmentBuffer, error) {
	k := ceilDivSegments(bytes, p.segSize)

	p.mu.Lock()
	blocks := p.blocks
	p.mu.Unlock()

	for _, b := range blocks {
		if sb, _, ok := b.tryRentRun(k, zeroRequired); ok {
			p.outstanding.Add(int64(k))
			metricSegmentsRented.Add(float64(k))
			return sb, nil
		}
	}

	n := p.segsPerBlock
	if k > n {
		n = k
	}
	b, err := p.createBlock(n)
	if err != nil {
		return nil, err
	}
	sb, _, ok := b.tryRentRun(k, zeroRequired)
	if !ok {
		return nil, allocationError("rent", errClassNewBlockTooSmall)
	}
	p.outstanding.Add(int64(k))
	metricSegmentsRented.Add(float64(k))
	return sb, nil
}

// RentFromPreferred requests bytes more capacity, trying first to extend
// preferred in place within its own block. preferred must be the stream's
// current last spine entry. IsExtension reports which path was taken.
func (p *SegmentedBufferPool) RentFromPreferred(bytes int, zeroRequired bool, preferred *SegmentBuffer) (buf *SegmentBuffer, isExtension bool, err error) {
	if preferred != nil && preferred.canExtend() && preferred.block.owner == p {
		need := ceilDivSegments(bytes, p.segSize)
		end := preferred.start + preferred.count
		if preferred.block.tryRentRunAt(end, need, zeroRequired) {
			p.outstanding.Add(int64(need))
			metricSegmentsRented.Add(float64(need))
			preferred.extendInPlace(need)
			return preferred, true, nil
		}
	}
	sb, err := p.Rent(bytes, zeroRequired)
	return sb, false, err
}

// Return releases a standard SegmentBuffer back to its owning block. It is a
// no-op for raw (small-buffer) handles, which SmallBufferPool owns instead.
func (p *SegmentedBufferPool) Return(sb *SegmentBuffer) {
	if sb == nil || sb.kind != segmentStandard {
		return
	}
	b := sb.block
	k := sb.count
	b.returnRun(sb.start, k, p.zero)
	p.afterRelease(b, k)
}

// Reduce keeps the first newCount segments of sb rented and releases the
// rest back to the owning block.
func (p *SegmentedBufferPool) Reduce(sb *SegmentBuffer, newCount int) *SegmentBuffer {
	if sb == nil || sb.kind != segmentStandard || newCount >= sb.count {
		return sb
	}
	b := sb.block
	freed := sb.count - newCount
	b.reduceRun(sb.start, sb.count, newCount, p.zero)
	sb.count = newCount
	p.afterRelease(b, freed)
	return sb
}

func (p *SegmentedBufferPool) createBlock(n int) (*block, error) {
	b, err := newBlock(p, n, p.segSize, p.native)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.blocks = append(p.blocks, b)
	p.mu.Unlock()
	return b, nil
}

// afterRelease tracks the pool-wide outstanding segment count and, once a
// retired pool's count reaches zero, frees every block it owns.
func (p *SegmentedBufferPool) afterRelease(_ *block, freed int) {
	metricSegmentsReturned.Add(float64(freed))
	remaining := p.outstanding.Add(-int64(freed))
	if remaining == 0 && p.retired.Load() {
		p.freeAllBlocks()
	}
}

func (p *SegmentedBufferPool) freeAllBlocks() {
	p.mu.Lock()
	blocks := p.blocks
	p.blocks = nil
	p.mu.Unlock()

	for _, b := range blocks {
		_ = b.free()
	}
}

// BlockCount reports how many blocks this pool currently owns, for tests
// and diagnostics that assert on pool release behavior.
func (p *SegmentedBufferPool) BlockCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.blocks)
}

var globalPool atomic.Pointer[SegmentedBufferPool]

func init() {
	globalPool.Store(NewSegmentedBufferPool(DefaultOptions()))
}

// SegmentPool returns the current process-wide SegmentedBufferPool. Callers
// that need "all future rents go to the new pool" semantics around a
// ReleaseMemoryBuffers call must reload via SegmentPool rather than caching
// the result.
func SegmentPool() *SegmentedBufferPool {
	return globalPool.Load()
}

// SetPool installs pool as the process-wide SegmentedBufferPool, for tests
// and for callers that construct their own pool from custom Options instead
// of relying on the default created at package initialization.
func SetPool(pool *SegmentedBufferPool) {
	globalPool.Store(pool)
}

// ReleaseMemoryBuffers atomically swaps in a fresh, empty SegmentedBufferPool
// as the process-wide pool. Streams and buffers already holding the old
// pool reference continue to operate against it; its blocks are freed once
// the last outstanding buffer referencing it is returned.
func ReleaseMemoryBuffers(opts Options) {
	old := globalPool.Swap(NewSegmentedBufferPool(opts))
	old.retired.Store(true)
	metricPoolReleases.Inc()
	logger.Info("segbuf: pool released", zap.Int("blocks_outstanding_segments", int(old.outstanding.Load())))
	if old.outstanding.Load() == 0 {
		old.freeAllBlocks()
	}
}

type poolError string

func (e poolError) Error() string { return string(e) }

const errClassNewBlockTooSmall poolError = "newly created block could not satisfy the request"
const errClassBlockStillOutstanding poolError = "block still has outstanding rented segments"
