// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package segbuf_test

import (
	"testing"

	"code.hybscloud.com/segbuf"
)

func newTestSmallPool(t *testing.T) *segbuf.SmallBufferPool {
	t.Helper()
	segbuf.SetPageSize(64)
	segbuf.SetSegmentSize(1024)
	return segbuf.NewSmallBufferPool(segbuf.DefaultOptions())
}

func TestSmallBufferPoolClassIndexFor(t *testing.T) {
	p := newTestSmallPool(t)

	if _, ok := p.ClassIndexFor(p.LargestClassSize() + 1); ok {
		t.Fatalf("expected ClassIndexFor to reject a size above the largest class")
	}
	idx, ok := p.ClassIndexFor(1)
	if !ok {
		t.Fatalf("expected a class for a 1-byte request")
	}
	if p.ClassSize(idx) < 1 {
		t.Fatalf("class size %d too small", p.ClassSize(idx))
	}
}

func TestSmallBufferPoolRentReturnRoundTrip(t *testing.T) {
	p := newTestSmallPool(t)
	idx, ok := p.ClassIndexFor(32)
	if !ok {
		t.Fatalf("expected a class for 32 bytes")
	}

	sb := p.Rent(idx, false)
	if sb.Len() != p.ClassSize(idx) {
		t.Fatalf("Len() = %d, want %d", sb.Len(), p.ClassSize(idx))
	}
	p.Return(sb)

	// Returned buffer should be reused rather than freshly allocated: the
	// second Rent must hand back the slot-cached instance.
	sb2 := p.Rent(idx, false)
	if sb2 == nil {
		t.Fatalf("expected a buffer on second rent")
	}
	if sb2 != sb {
		t.Fatalf("second Rent returned a different buffer, want the slot-cached one")
	}
	p.Return(sb2)
}

func TestSmallBufferPoolZeroRequired(t *testing.T) {
	p := newTestSmallPool(t)
	idx, _ := p.ClassIndexFor(16)

	sb := p.Rent(idx, false)
	for i := range sb.Bytes() {
		sb.Bytes()[i] = 0xCC
	}
	p.Return(sb)

	zeroed := p.Rent(idx, true)
	for i, v := range zeroed.Bytes() {
		if v != 0 {
			t.Fatalf("byte %d = %#x, want 0 when zero_required and dirty slot reused", i, v)
		}
	}
}

func TestSmallBufferPoolFallbackOnSlotContention(t *testing.T) {
	p := newTestSmallPool(t)
	idx, _ := p.ClassIndexFor(8)

	// Both single-slot caches are empty initially, so repeated rents without
	// returns must be served by the fallback pool or fresh allocation, never
	// panic or return nil.
	var bufs []*segbuf.SegmentBuffer
	for i := 0; i < 4; i++ {
		sb := p.Rent(idx, false)
		if sb == nil {
			t.Fatalf("Rent returned nil on iteration %d", i)
		}
		bufs = append(bufs, sb)
	}
	for _, sb := range bufs {
		p.Return(sb)
	}
}
