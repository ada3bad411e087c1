// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package segbuf_test

import (
	"sync"
	"testing"

	"code.hybscloud.com/segbuf"
)

func newTestSegPool(t *testing.T) *segbuf.SegmentedBufferPool {
	t.Helper()
	segbuf.SetSegmentSize(64)
	segbuf.SetSegmentsPerBlock(8)
	return segbuf.NewSegmentedBufferPool(segbuf.DefaultOptions())
}

func TestSegmentedBufferPoolRentReturn(t *testing.T) {
	p := newTestSegPool(t)

	sb, err := p.Rent(100, false)
	if err != nil {
		t.Fatalf("Rent: %v", err)
	}
	if sb.Len() < 100 {
		t.Fatalf("Len() = %d, want >= 100", sb.Len())
	}
	if p.BlockCount() != 1 {
		t.Fatalf("BlockCount() = %d, want 1", p.BlockCount())
	}

	p.Return(sb)
}

func TestSegmentedBufferPoolRentFromPreferredExtends(t *testing.T) {
	p := newTestSegPool(t)

	sb, err := p.Rent(64, false)
	if err != nil {
		t.Fatalf("Rent: %v", err)
	}
	firstLen := sb.Len()

	grown, isExt, err := p.RentFromPreferred(64, false, sb)
	if err != nil {
		t.Fatalf("RentFromPreferred: %v", err)
	}
	if !isExt {
		t.Fatalf("expected contiguous extension within the same block")
	}
	if grown.Len() != firstLen+64 {
		t.Fatalf("Len() = %d, want %d", grown.Len(), firstLen+64)
	}

	p.Return(grown)
}

func TestSegmentedBufferPoolCreatesNewBlockWhenFull(t *testing.T) {
	p := newTestSegPool(t)

	// Block holds 8 segments of 64 bytes = 512 bytes; exhaust it, then ask
	// for more so a second block must be created.
	first, err := p.Rent(512, false)
	if err != nil {
		t.Fatalf("Rent: %v", err)
	}
	if p.BlockCount() != 1 {
		t.Fatalf("BlockCount() = %d, want 1", p.BlockCount())
	}

	second, err := p.Rent(64, false)
	if err != nil {
		t.Fatalf("Rent: %v", err)
	}
	if p.BlockCount() != 2 {
		t.Fatalf("BlockCount() = %d, want 2 after exhausting the first block", p.BlockCount())
	}

	p.Return(first)
	p.Return(second)
}

func TestSegmentedBufferPoolReduce(t *testing.T) {
	p := newTestSegPool(t)

	sb, err := p.Rent(256, false)
	if err != nil {
		t.Fatalf("Rent: %v", err)
	}
	reduced := p.Reduce(sb, 2)
	if reduced.Len() != 2*64 {
		t.Fatalf("Len() after Reduce = %d, want %d", reduced.Len(), 2*64)
	}

	// The freed tail should be rentable again immediately.
	tail, err := p.Rent(128, false)
	if err != nil {
		t.Fatalf("Rent after Reduce: %v", err)
	}
	if p.BlockCount() != 1 {
		t.Fatalf("BlockCount() = %d, want 1 (tail reused from same block)", p.BlockCount())
	}
	p.Return(reduced)
	p.Return(tail)
}

// TestSegmentedBufferPoolConcurrentRentReturn mirrors end-to-end scenario 5:
// many goroutines rent and return fixed-size runs; at quiescence nothing is
// left rented.
func TestSegmentedBufferPoolConcurrentRentReturn(t *testing.T) {
	p := newTestSegPool(t)
	iterations := 2000
	if raceEnabled {
		iterations = 200
	}
	const workers = 8

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				sb, err := p.Rent(4*64, false)
				if err != nil {
					t.Errorf("Rent: %v", err)
					return
				}
				p.Return(sb)
			}
		}()
	}
	wg.Wait()

	// Every block holds 8 segments; if nothing is left rented, one full-block
	// rent per existing block succeeds without creating another block.
	blocks := p.BlockCount()
	var whole []*segbuf.SegmentBuffer
	for i := 0; i < blocks; i++ {
		sb, err := p.Rent(8*64, false)
		if err != nil {
			t.Fatalf("Rent: %v", err)
		}
		whole = append(whole, sb)
	}
	if p.BlockCount() != blocks {
		t.Fatalf("BlockCount() = %d, want %d: some segments were left rented", p.BlockCount(), blocks)
	}
	for _, sb := range whole {
		p.Return(sb)
	}
}

func TestReleaseMemoryBuffersFreesOldPool(t *testing.T) {
	segbuf.SetSegmentSize(64)
	segbuf.SetSegmentsPerBlock(8)
	segbuf.SetPool(segbuf.NewSegmentedBufferPool(segbuf.DefaultOptions()))

	old := segbuf.SegmentPool()
	sb, err := old.Rent(256, false)
	if err != nil {
		t.Fatalf("Rent: %v", err)
	}
	if old.BlockCount() == 0 {
		t.Fatalf("expected the old pool to have allocated a block")
	}

	segbuf.ReleaseMemoryBuffers(segbuf.DefaultOptions())
	if segbuf.SegmentPool() == old {
		t.Fatalf("SegmentPool() should return the freshly swapped-in pool")
	}

	old.Return(sb)
	if old.BlockCount() != 0 {
		t.Fatalf("BlockCount() = %d, want 0 once the last outstanding buffer returns", old.BlockCount())
	}
}
