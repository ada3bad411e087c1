// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package segbuf

import (
	"context"
	"errors"
	"io"
	"sort"
)

// spineEntry is one entry in a stream's spine list: a standard
// SegmentBuffer plus its cumulative-end-offset and cumulative-segment-count,
// both inclusive sums over every entry up to and including this one.
type spineEntry struct {
	buf            *SegmentBuffer
	cumulativeEnd  int
	cumulativeSegs int
}

// spine is the stream's ordered list of spineEntry, recycled through
// BufferListCache across stream lifetimes.
type spine []spineEntry

var (
	errSeekBeforeStart      = errors.New("seek target precedes the beginning of the stream")
	errStreamLengthOverflow = errors.New("stream length would overflow")
)

// Stream is a growable, seekable byte stream backed by small-buffer or
// standard-segment storage (DynamicSegmentedStream, C6). It holds at most
// one small buffer OR at most one spine of standard buffers, never both
// with live data, and never returns to small-buffer mode once it has grown
// into standard buffers.
//
// A Stream is not safe for concurrent use by more than one goroutine; its
// cursor, length, and position are single-writer state. Distinct Stream
// instances are fully independent.
type Stream struct {
	_ noCopy

	opts Options

	length            int
	position          int
	reportedCapacity  int
	allocatedCapacity int

	small        *SegmentBuffer
	sp           *spine
	everStandard bool

	curIdx     int
	curOff     int
	curInvalid bool

	closed bool
}

// NewStream constructs a Stream from opts, pre-allocating opts.InitialCapacity
// bytes if non-zero.
func NewStream(opts Options) (*Stream, error) {
	norm, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	s := &Stream{opts: norm, curInvalid: true}
	if norm.InitialCapacity > 0 {
		if err := s.ensureCapacity(norm.InitialCapacity, false); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Stream) checkClosed(op string) error {
	if s.closed {
		return closedError(op)
	}
	return nil
}

// Len returns the stream's logical length in bytes.
func (s *Stream) Len() int { return s.length }

// Position returns the stream's current logical offset.
func (s *Stream) Position() int { return s.position }

// Cap returns the stream's reported capacity, which is always <= its
// allocated capacity.
func (s *Stream) Cap() int { return s.reportedCapacity }

// ensureCapacity grows the stream so that its reported capacity is at least
// n, renting additional buffers as needed. forceZero additionally requests
// rent-time zeroing regardless of the configured ZeroBufferBehavior.
func (s *Stream) ensureCapacity(n int, forceZero bool) error {
	if n < 0 || n > s.opts.MaximumCapacity {
		return rangeError("ensureCapacity", "requested capacity exceeds maximum capacity")
	}
	if n <= s.reportedCapacity {
		return nil
	}
	if n <= s.allocatedCapacity {
		s.reportedCapacity = n
		return nil
	}

	small := SmallPool()
	zeroRequired := s.opts.zero.onRent || forceZero
	spineEmpty := s.sp == nil || len(*s.sp) == 0
	wantSmall := !s.everStandard && spineEmpty && small.LargestClassSize() > 0 && n <= small.LargestClassSize()

	if wantSmall {
		classIdx, _ := small.ClassIndexFor(n)
		next := small.Rent(classIdx, zeroRequired)
		if s.small != nil {
			copy(next.Bytes(), s.small.Bytes())
			small.Return(s.small)
		}
		s.small = next
		s.allocatedCapacity = s.small.Len()
		s.reportedCapacity = n
		s.curInvalid = true
		return nil
	}

	pool := SegmentPool()

	if s.small != nil {
		remaining := n - s.small.Len()
		first, err := pool.Rent(remaining, zeroRequired)
		if err != nil {
			return err
		}
		copy(first.Bytes(), s.small.Bytes())
		small.Return(s.small)
		s.small = nil

		sp := ListCache().Take(4)
		*sp = append(*sp, spineEntry{buf: first})
		s.sp = sp
		s.everStandard = true
		s.allocatedCapacity = first.Len()
		s.recomputeCumulative()
	} else if s.sp == nil {
		s.sp = ListCache().Take(4)
		s.everStandard = true
	}

	for s.allocatedCapacity < n {
		need := n - s.allocatedCapacity
		sp := *s.sp
		if len(sp) == 0 {
			buf, err := pool.Rent(need, zeroRequired)
			if err != nil {
				return err
			}
			*s.sp = append(*s.sp, spineEntry{buf: buf})
			s.allocatedCapacity += buf.Len()
			s.recomputeCumulative()
			continue
		}

		last := sp[len(sp)-1].buf
		prevLen := last.Len()
		grown, isExt, err := pool.RentFromPreferred(need, zeroRequired, last)
		if err != nil {
			return err
		}
		if isExt {
			s.allocatedCapacity += grown.Len() - prevLen
			s.recomputeCumulativeFrom(len(sp) - 1)
		} else {
			*s.sp = append(*s.sp, spineEntry{buf: grown})
			s.allocatedCapacity += grown.Len()
			s.recomputeCumulative()
		}
	}

	s.reportedCapacity = n
	s.curInvalid = true
	return nil
}

func (s *Stream) recomputeCumulative() {
	s.recomputeCumulativeFrom(0)
}

func (s *Stream) recomputeCumulativeFrom(from int) {
	sp := *s.sp
	var end, segs int
	if from > 0 {
		end = sp[from-1].cumulativeEnd
		segs = sp[from-1].cumulativeSegs
	}
	for i := from; i < len(sp); i++ {
		end += sp[i].buf.Len()
		if sp[i].buf.kind == segmentStandard {
			segs += sp[i].buf.count
		}
		sp[i].cumulativeEnd = end
		sp[i].cumulativeSegs = segs
	}
}

// reduceCapacity shrinks the stream's reported capacity to n, releasing
// spine tail segments (or trimming the last entry) whenever n falls below
// the current allocated capacity outside the current small buffer.
func (s *Stream) reduceCapacity(n int) error {
	if n < 0 {
		return rangeError("reduceCapacity", "target capacity must not be negative")
	}
	if s.small != nil && n <= s.small.Len() {
		s.reportedCapacity = n
		return nil
	}
	if n >= s.allocatedCapacity {
		s.reportedCapacity = n
		return nil
	}
	if s.sp == nil {
		s.reportedCapacity = n
		return nil
	}

	pool := SegmentPool()
	sp := *s.sp
	idx := sort.Search(len(sp), func(i int) bool { return sp[i].cumulativeEnd > n })

	for i := len(sp) - 1; i > idx; i-- {
		entry := sp[i]
		if owner := entry.buf.block.owner; owner != nil {
			owner.Return(entry.buf)
		} else {
			pool.Return(entry.buf)
		}
	}

	if idx < len(sp) {
		prevEnd := 0
		if idx > 0 {
			prevEnd = sp[idx-1].cumulativeEnd
		}
		within := n - prevEnd
		entry := &sp[idx]
		if entry.buf.kind == segmentStandard {
			newSegCount := ceilDivSegments(within, entry.buf.segSize)
			if newSegCount < entry.buf.count {
				if owner := entry.buf.block.owner; owner != nil {
					owner.Reduce(entry.buf, newSegCount)
				} else {
					pool.Reduce(entry.buf, newSegCount)
				}
			}
		}
		*s.sp = sp[:idx+1]
	} else {
		*s.sp = sp[:0]
	}

	s.recomputeCumulative()
	if len(*s.sp) > 0 {
		s.allocatedCapacity = (*s.sp)[len(*s.sp)-1].cumulativeEnd
	} else {
		s.allocatedCapacity = 0
	}
	s.reportedCapacity = n
	s.curInvalid = true
	return nil
}

// verifyCurrentBuffer lazily re-resolves the cursor, binary searching the
// spine's cumulative-end-offset array. A position equal to the end of the
// last entry resolves to a valid boundary cursor.
func (s *Stream) verifyCurrentBuffer() {
	if !s.curInvalid {
		return
	}
	defer func() { s.curInvalid = false }()

	if s.small != nil {
		s.curIdx, s.curOff = 0, s.position
		return
	}
	if s.sp == nil || len(*s.sp) == 0 {
		s.curIdx, s.curOff = 0, 0
		return
	}
	sp := *s.sp
	idx := sort.Search(len(sp), func(i int) bool { return sp[i].cumulativeEnd > s.position })
	if idx == len(sp) {
		idx = len(sp) - 1
	}
	prevEnd := 0
	if idx > 0 {
		prevEnd = sp[idx-1].cumulativeEnd
	}
	s.curIdx = idx
	s.curOff = s.position - prevEnd
}

// walk calls fn once per contiguous backing slice covering the logical byte
// range [from, from+length), in order, across whichever storage mode is
// currently active.
func (s *Stream) walk(from, length int, fn func(buf []byte)) {
	if length <= 0 {
		return
	}
	if s.small != nil {
		fn(s.small.Bytes()[from : from+length])
		return
	}
	sp := *s.sp
	idx := sort.Search(len(sp), func(i int) bool { return sp[i].cumulativeEnd > from })
	if idx >= len(sp) {
		idx = len(sp) - 1
	}
	prevEnd := 0
	if idx > 0 {
		prevEnd = sp[idx-1].cumulativeEnd
	}
	off := from - prevEnd
	remaining := length
	for remaining > 0 {
		entry := sp[idx].buf.Bytes()
		chunk := len(entry) - off
		if chunk > remaining {
			chunk = remaining
		}
		fn(entry[off : off+chunk])
		remaining -= chunk
		off += chunk
		if off >= len(entry) {
			idx++
			off = 0
		}
	}
}

// Segments returns the stream's remaining unread content (from position to
// length) as a Buffers value, one element per spine entry (or a single
// element for small-buffer storage), without copying. This lets a caller
// hand the stream directly to a vectored writer — e.g. *net.TCPConn, via
// Buffers.WriteTo's writev fast path — instead of materializing Bytes first.
// The returned slices alias the stream's storage and are only valid until
// the next mutating call or Close.
func (s *Stream) Segments() Buffers {
	n := s.length - s.position
	if n <= 0 {
		return nil
	}
	var out Buffers
	s.walk(s.position, n, func(buf []byte) {
		out = append(out, buf)
	})
	return out
}

// Read reads up to len(dst) bytes starting at the current position,
// returning the number of bytes read, never more than what remains before
// length.
func (s *Stream) Read(dst []byte) (int, error) {
	if err := s.checkClosed("Read"); err != nil {
		return 0, err
	}
	avail := s.length - s.position
	if avail <= 0 || len(dst) == 0 {
		return 0, nil
	}
	n := len(dst)
	if n > avail {
		n = avail
	}
	s.verifyCurrentBuffer()

	written := 0
	s.walk(s.position, n, func(buf []byte) {
		written += copy(dst[written:], buf)
	})
	s.position += n
	s.curInvalid = true
	return n, nil
}

// ReadByte reads a single byte at the current position and advances it,
// returning io.EOF once position reaches length.
func (s *Stream) ReadByte() (byte, error) {
	if err := s.checkClosed("ReadByte"); err != nil {
		return 0, err
	}
	if s.position >= s.length {
		return 0, io.EOF
	}
	var b [1]byte
	if _, err := s.Read(b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// Write writes src at the current position, growing capacity as needed and
// zero-filling any gap left by a prior Seek past length.
func (s *Stream) Write(src []byte) (int, error) {
	if err := s.checkClosed("Write"); err != nil {
		return 0, err
	}
	n := len(src)
	if n == 0 {
		return 0, nil
	}
	if s.position > s.opts.MaximumCapacity-n {
		return 0, ioError("Write", errStreamLengthOverflow)
	}

	gap := s.position - s.length
	if err := s.ensureCapacity(s.position+n, false); err != nil {
		return 0, err
	}
	if gap > 0 {
		s.walk(s.length, gap, func(buf []byte) { clear(buf) })
	}

	read := 0
	s.walk(s.position, n, func(buf []byte) {
		read += copy(buf, src[read:])
	})

	s.position += n
	if s.position > s.length {
		s.length = s.position
	}
	s.curInvalid = true
	return n, nil
}

// WriteByte writes a single byte at the current position.
func (s *Stream) WriteByte(b byte) error {
	_, err := s.Write([]byte{b})
	return err
}

// Seek sets the stream's position per io.Seeker semantics, validated against
// [0, MaximumCapacity]. Seeking past length is permitted; a subsequent write
// zero-pads the gap.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	if err := s.checkClosed("Seek"); err != nil {
		return 0, err
	}
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = int64(s.position)
	case io.SeekEnd:
		base = int64(s.length)
	default:
		return 0, rangeError("Seek", "invalid whence value")
	}
	newPos := base + offset
	if newPos < 0 {
		return 0, ioError("Seek", errSeekBeforeStart)
	}
	if newPos > int64(s.opts.MaximumCapacity) {
		return 0, rangeError("Seek", "seek target exceeds maximum capacity")
	}
	s.position = int(newPos)
	s.curInvalid = true
	return newPos, nil
}

// SetLength changes the stream's logical length. Growing zero-fills the
// newly included range (growing capacity first if needed); shrinking only
// updates length, releasing no buffers.
func (s *Stream) SetLength(newLength int) error {
	if err := s.checkClosed("SetLength"); err != nil {
		return err
	}
	if newLength < 0 || newLength > s.opts.MaximumCapacity {
		return rangeError("SetLength", "length out of range")
	}
	if newLength > s.length {
		if err := s.ensureCapacity(newLength, false); err != nil {
			return err
		}
		s.walk(s.length, newLength-s.length, func(buf []byte) { clear(buf) })
	}
	s.length = newLength
	s.curInvalid = true
	return nil
}

// Bytes returns a copy of the stream's full contents as one contiguous
// slice.
func (s *Stream) Bytes() ([]byte, error) {
	if err := s.checkClosed("Bytes"); err != nil {
		return nil, err
	}
	out := make([]byte, s.length)
	written := 0
	s.walk(0, s.length, func(buf []byte) { written += copy(out[written:], buf) })
	return out, nil
}

// WriteTo writes the stream's remaining unread bytes (from position to
// length) to w, implementing io.WriterTo, and advances position by the
// number of bytes written.
func (s *Stream) WriteTo(w io.Writer) (int64, error) {
	if err := s.checkClosed("WriteTo"); err != nil {
		return 0, err
	}
	n := s.length - s.position
	if n <= 0 {
		return 0, nil
	}
	var total int64
	var walkErr error
	s.walk(s.position, n, func(buf []byte) {
		if walkErr != nil {
			return
		}
		written, err := w.Write(buf)
		total += int64(written)
		if err != nil {
			walkErr = err
		}
	})
	s.position += int(total)
	s.curInvalid = true
	if walkErr != nil {
		return total, ioError("WriteTo", walkErr)
	}
	return total, nil
}

// CopyTo is a synchronous alias of WriteTo matching the component design's
// naming.
func (s *Stream) CopyTo(dst io.Writer) (int64, error) {
	return s.WriteTo(dst)
}

// CopyToAsync walks the spine cooperatively, checking ctx between each
// write to dst so callers get responsive cancellation without any true
// concurrency inside the stream. It pipelines one chunk ahead of the write
// in flight: the next slice is sliced out before the previous one's write is
// awaited, mirroring the source's single-outstanding double-buffered design
// even though Go's io.Writer is itself synchronous.
func (s *Stream) CopyToAsync(ctx context.Context, dst io.Writer) (int64, error) {
	if err := s.checkClosed("CopyToAsync"); err != nil {
		return 0, err
	}
	n := s.length - s.position
	if n <= 0 {
		return 0, nil
	}

	var total int64
	var pending []byte
	var walkErr error

	flush := func(buf []byte) bool {
		written, err := dst.Write(buf)
		total += int64(written)
		if err != nil {
			walkErr = err
			return false
		}
		return true
	}

	s.walk(s.position, n, func(buf []byte) {
		if walkErr != nil {
			return
		}
		select {
		case <-ctx.Done():
			walkErr = ctx.Err()
			return
		default:
		}
		if pending != nil {
			if !flush(pending) {
				return
			}
		}
		pending = buf
	})
	if walkErr == nil && pending != nil {
		flush(pending)
	}

	s.position += int(total)
	s.curInvalid = true
	if walkErr != nil {
		return total, ioError("CopyToAsync", walkErr)
	}
	return total, nil
}

// Close returns all rented buffers to their owning pools, stashes the spine
// into the shared BufferListCache, and marks the stream closed. Any further
// operation on a closed stream returns a closed-stream error.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	if s.sp != nil {
		for _, e := range *s.sp {
			if e.buf.kind != segmentStandard {
				continue
			}
			if owner := e.buf.block.owner; owner != nil {
				owner.Return(e.buf)
			}
		}
		ListCache().Store(s.sp)
		s.sp = nil
	}
	if s.small != nil {
		SmallPool().Return(s.small)
		s.small = nil
	}
	s.closed = true
	return nil
}
