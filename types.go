// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package segbuf

import "net"

// PageSize is the memory page size used to derive small-buffer size classes
// (see SmallBufferPool) and to align managed (non-mmap) block backings.
var PageSize uintptr = 4096

// SetPageSize updates the package-level page size used for size-class
// derivation and alignment. Call before creating any pool: a SmallBufferPool
// derives its size classes at construction and does not observe later
// changes, while each managed block is aligned to the value current when that
// block is created.
func SetPageSize(size int) {
	PageSize = uintptr(size)
}

// Buffers groups multiple byte slices for vectored I/O. It is an alias for
// net.Buffers so that a stream's segment spine can be handed directly to any
// writer that implements the io.ReaderFrom/WriterTo fast path (e.g. a TCP
// connection), without copying segments into one contiguous slice first.
type Buffers = net.Buffers

// noCopy is a sentinel embedded in types that must not be copied after first
// use (anything holding an atomic or a spinlock). go vet's copylocks check
// flags any accidental copy once this type implements sync.Locker.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
