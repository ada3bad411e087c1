// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package segbuf

import "sync/atomic"

// smallBufferFallbackCapacity bounds how many distinct buffers per size
// class the fallback shared pool keeps in circulation. It is modest because
// the fallback path is only hit once both single-slot caches miss.
const smallBufferFallbackCapacity = 16

// computeSizeClasses derives the SmallBufferPool size classes from the page
// size and segment size: page-size multiples when the page is larger than
// segSize/8, otherwise powers of two from page size up to (but not
// including) segSize.
func computeSizeClasses(pageSize, segSize int) []int {
	if pageSize <= 0 || segSize <= 0 || pageSize >= segSize {
		return nil
	}
	var classes []int
	if pageSize > segSize/8 {
		for sz := pageSize; sz < segSize; sz += pageSize {
			classes = append(classes, sz)
		}
	} else {
		for sz := pageSize; sz < segSize; sz *= 2 {
			classes = append(classes, sz)
		}
	}
	return classes
}

// SmallBufferPool caches small contiguous arrays below one segment in size,
// one pair of single-slot caches per size class plus a bounded fallback
// pool for overflow (C2).
type SmallBufferPool struct {
	_ noCopy

	classSizes []int
	zeroedSlot []atomic.Pointer[SegmentBuffer]
	dirtySlot  []atomic.Pointer[SegmentBuffer]
	fallback   []*BoundedPool[*SegmentBuffer]
	zero       zeroPolicy
}

// NewSmallBufferPool constructs a SmallBufferPool whose size classes are
// derived from the current PageSize and SegmentSize.
func NewSmallBufferPool(opts Options) *SmallBufferPool {
	classes := computeSizeClasses(int(PageSize), int(SegmentSize))
	p := &SmallBufferPool{
		classSizes: classes,
		zeroedSlot: make([]atomic.Pointer[SegmentBuffer], len(classes)),
		dirtySlot:  make([]atomic.Pointer[SegmentBuffer], len(classes)),
		fallback:   make([]*BoundedPool[*SegmentBuffer], len(classes)),
		zero:       newZeroPolicy(opts.ZeroBufferBehavior),
	}
	for i, sz := range classes {
		classIdx, size := i, sz
		bp := NewBoundedPool[*SegmentBuffer](smallBufferFallbackCapacity)
		bp.Fill(func() *SegmentBuffer { return newRawSegmentBuffer(classIdx, size) })
		bp.SetNonblock(true)
		p.fallback[i] = bp
	}
	return p
}

func newRawSegmentBuffer(classIdx, size int) *SegmentBuffer {
	return &SegmentBuffer{kind: segmentRaw, raw: make([]byte, size), rawClass: classIdx, fallbackIdx: -1}
}

func zeroRaw(sb *SegmentBuffer) {
	clear(sb.raw)
}

func takeSlot(slot *atomic.Pointer[SegmentBuffer]) *SegmentBuffer {
	for {
		p := slot.Load()
		if p == nil {
			return nil
		}
		if slot.CompareAndSwap(p, nil) {
			return p
		}
	}
}

func placeSlot(slot *atomic.Pointer[SegmentBuffer], sb *SegmentBuffer) bool {
	return slot.CompareAndSwap(nil, sb)
}

// ClassIndexFor returns the smallest size class that fits bytes. ok is false
// if bytes exceeds the largest small-buffer class (or there are no classes
// at all), meaning the caller must use the standard segment path instead.
func (p *SmallBufferPool) ClassIndexFor(bytes int) (classIdx int, ok bool) {
	for i, sz := range p.classSizes {
		if bytes <= sz {
			return i, true
		}
	}
	return 0, false
}

// ClassSize returns the byte size of the given class index.
func (p *SmallBufferPool) ClassSize(classIdx int) int {
	return p.classSizes[classIdx]
}

// LargestClassSize returns the top small-buffer size class, or 0 if there
// are no small-buffer classes (segSize too close to the page size).
func (p *SmallBufferPool) LargestClassSize() int {
	if len(p.classSizes) == 0 {
		return 0
	}
	return p.classSizes[len(p.classSizes)-1]
}

// Rent returns a raw buffer for the given size class, attempting in order:
// the matching-zero-state slot, the other slot (zeroing it if required),
// then the fallback pool, finally a fresh allocation.
func (p *SmallBufferPool) Rent(classIdx int, zeroRequired bool) *SegmentBuffer {
	primary, secondary := &p.dirtySlot[classIdx], &p.zeroedSlot[classIdx]
	if zeroRequired {
		primary, secondary = secondary, primary
	}

	if sb := takeSlot(primary); sb != nil {
		return sb
	}
	if sb := takeSlot(secondary); sb != nil {
		if zeroRequired {
			zeroRaw(sb)
		}
		return sb
	}
	if idx, err := p.fallback[classIdx].Get(); err == nil {
		sb := p.fallback[classIdx].Value(idx)
		sb.fallbackIdx = idx
		if zeroRequired {
			zeroRaw(sb)
		}
		return sb
	}
	return newRawSegmentBuffer(classIdx, p.classSizes[classIdx])
}

// Return places sb back into the matching single-slot cache, falling back
// to the shared fallback pool, and finally dropping it if both are full.
//
// A buffer that did not originate from the fallback pool (fallbackIdx < 0,
// meaning it was freshly allocated past both slots and a full fallback) can
// only ever rejoin the slot caches: BoundedPool is index-addressed with a
// capacity fixed at construction, so there is no slot to hand an entirely
// new object to without first having acquired one of its indices via Get.
func (p *SmallBufferPool) Return(sb *SegmentBuffer) {
	if sb == nil || sb.kind != segmentRaw {
		return
	}
	if p.zero.onRelease {
		zeroRaw(sb)
	}

	slot := &p.dirtySlot[sb.rawClass]
	if p.zero.onRelease {
		slot = &p.zeroedSlot[sb.rawClass]
	}
	if placeSlot(slot, sb) {
		return
	}

	if sb.fallbackIdx >= 0 {
		idx := sb.fallbackIdx
		sb.fallbackIdx = -1
		p.fallback[sb.rawClass].SetValue(idx, sb)
		_ = p.fallback[sb.rawClass].Put(idx)
	}
}

var globalSmallPool atomic.Pointer[SmallBufferPool]

func init() {
	globalSmallPool.Store(NewSmallBufferPool(DefaultOptions()))
}

// SmallPool returns the process-wide SmallBufferPool.
func SmallPool() *SmallBufferPool {
	return globalSmallPool.Load()
}

// SetSmallPool installs pool as the process-wide SmallBufferPool.
func SetSmallPool(pool *SmallBufferPool) {
	globalSmallPool.Store(pool)
}
