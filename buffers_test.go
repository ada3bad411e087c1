// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package segbuf_test

import (
	"testing"
	"unsafe"

	"code.hybscloud.com/segbuf"
)

func TestAlignedMemPageAlignment(t *testing.T) {
	const size = 8192
	mem := segbuf.AlignedMem(size, segbuf.PageSize)

	if len(mem) != size {
		t.Errorf("AlignedMem length = %d, want %d", len(mem), size)
	}
	ptr := uintptr(unsafe.Pointer(unsafe.SliceData(mem)))
	if ptr%segbuf.PageSize != 0 {
		t.Errorf("AlignedMem not page-aligned: address %#x %% %d = %d", ptr, segbuf.PageSize, ptr%segbuf.PageSize)
	}
}

func TestAlignedMemSmallAllocation(t *testing.T) {
	const size = 64
	mem := segbuf.AlignedMem(size, segbuf.PageSize)

	if len(mem) != size {
		t.Errorf("AlignedMem length = %d, want %d", len(mem), size)
	}
	ptr := uintptr(unsafe.Pointer(unsafe.SliceData(mem)))
	if ptr%segbuf.PageSize != 0 {
		t.Errorf("AlignedMem not page-aligned: address %#x %% %d = %d", ptr, segbuf.PageSize, ptr%segbuf.PageSize)
	}
}

func TestAlignedMemNonStandardPageSize(t *testing.T) {
	const customPageSize = 8192
	const size = 16384
	mem := segbuf.AlignedMem(size, customPageSize)

	if len(mem) != size {
		t.Errorf("AlignedMem length = %d, want %d", len(mem), size)
	}
	ptr := uintptr(unsafe.Pointer(unsafe.SliceData(mem)))
	if ptr%customPageSize != 0 {
		t.Errorf("AlignedMem not aligned to %d: address %#x %% %d = %d",
			customPageSize, ptr, customPageSize, ptr%customPageSize)
	}
}

func TestSetPageSize(t *testing.T) {
	original := segbuf.PageSize
	defer segbuf.SetPageSize(int(original))

	segbuf.SetPageSize(8192)
	if segbuf.PageSize != 8192 {
		t.Errorf("SetPageSize(8192) resulted in PageSize = %d, want 8192", segbuf.PageSize)
	}
}

func TestCacheLineAlignedMem(t *testing.T) {
	const size = 4096
	mem := segbuf.CacheLineAlignedMem(size)

	if len(mem) != size {
		t.Errorf("CacheLineAlignedMem length = %d, want %d", len(mem), size)
	}
	ptr := uintptr(unsafe.Pointer(unsafe.SliceData(mem)))
	if ptr%uintptr(segbuf.CacheLineSize) != 0 {
		t.Errorf("CacheLineAlignedMem not cache-line-aligned: address %#x %% %d = %d",
			ptr, segbuf.CacheLineSize, ptr%uintptr(segbuf.CacheLineSize))
	}
}

func TestCacheLineAlignedMemSmallAllocation(t *testing.T) {
	const size = 8
	mem := segbuf.CacheLineAlignedMem(size)
	if len(mem) != size {
		t.Errorf("CacheLineAlignedMem length = %d, want %d", len(mem), size)
	}
	ptr := uintptr(unsafe.Pointer(unsafe.SliceData(mem)))
	if ptr%uintptr(segbuf.CacheLineSize) != 0 {
		t.Errorf("CacheLineAlignedMem not cache-line-aligned for small allocation")
	}
}
