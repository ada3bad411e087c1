// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package segbuf

import "io"

// FixedStream wraps a caller-supplied []byte with the same read/write/seek
// surface as Stream but never grows past its backing buffer's length: any
// operation that would require growth returns an unsupported error instead.
// It holds no pooled resources, so Close is a cheap no-op beyond marking the
// stream closed.
type FixedStream struct {
	_ noCopy

	buf      []byte
	length   int
	position int
	closed   bool
}

// NewFixedStream wraps buf, treating its full length as the initial stream
// length.
func NewFixedStream(buf []byte) *FixedStream {
	return &FixedStream{buf: buf, length: len(buf)}
}

func (s *FixedStream) checkClosed(op string) error {
	if s.closed {
		return closedError(op)
	}
	return nil
}

// Len returns the stream's logical length.
func (s *FixedStream) Len() int { return s.length }

// Position returns the stream's current offset.
func (s *FixedStream) Position() int { return s.position }

// Cap returns the capacity of the wrapped backing buffer.
func (s *FixedStream) Cap() int { return len(s.buf) }

// Read reads up to len(dst) bytes starting at the current position.
func (s *FixedStream) Read(dst []byte) (int, error) {
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
	copy(dst[:n], s.buf[s.position:s.position+n])
	s.position += n
	return n, nil
}

// ReadByte reads a single byte at the current position, returning io.EOF
// once position reaches length.
func (s *FixedStream) ReadByte() (byte, error) {
	if err := s.checkClosed("ReadByte"); err != nil {
		return 0, err
	}
	if s.position >= s.length {
		return 0, io.EOF
	}
	b := s.buf[s.position]
	s.position++
	return b, nil
}

// Write writes src at the current position. It returns an unsupported error
// if src would extend past the backing buffer's capacity rather than
// growing it.
func (s *FixedStream) Write(src []byte) (int, error) {
	if err := s.checkClosed("Write"); err != nil {
		return 0, err
	}
	n := len(src)
	if n == 0 {
		return 0, nil
	}
	if s.position+n > len(s.buf) {
		return 0, unsupportedError("Write", "fixed stream cannot grow beyond its backing buffer")
	}
	copy(s.buf[s.position:s.position+n], src)
	s.position += n
	if s.position > s.length {
		s.length = s.position
	}
	return n, nil
}

// WriteByte writes a single byte at the current position.
func (s *FixedStream) WriteByte(b byte) error {
	_, err := s.Write([]byte{b})
	return err
}

// Seek sets the stream's position per io.Seeker semantics. Seeking past the
// backing buffer's capacity returns an unsupported error.
func (s *FixedStream) Seek(offset int64, whence int) (int64, error) {
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
	if newPos > int64(len(s.buf)) {
		return 0, unsupportedError("Seek", "fixed stream cannot grow beyond its backing buffer")
	}
	s.position = int(newPos)
	return newPos, nil
}

// SetLength always fails for a FixedStream: its capacity is fixed at
// construction and cannot change in either direction.
func (s *FixedStream) SetLength(int) error {
	return unsupportedError("SetLength", "fixed stream capacity cannot change")
}

// Bytes returns a copy of the stream's logical contents.
func (s *FixedStream) Bytes() ([]byte, error) {
	if err := s.checkClosed("Bytes"); err != nil {
		return nil, err
	}
	out := make([]byte, s.length)
	copy(out, s.buf[:s.length])
	return out, nil
}

// WriteTo writes the stream's remaining unread bytes to w, implementing
// io.WriterTo.
func (s *FixedStream) WriteTo(w io.Writer) (int64, error) {
	if err := s.checkClosed("WriteTo"); err != nil {
		return 0, err
	}
	n := s.length - s.position
	if n <= 0 {
		return 0, nil
	}
	written, err := w.Write(s.buf[s.position : s.position+n])
	s.position += written
	if err != nil {
		return int64(written), ioError("WriteTo", err)
	}
	return int64(written), nil
}

// Close marks the stream closed. A FixedStream owns no pooled resources, so
// there is nothing else to release.
func (s *FixedStream) Close() error {
	s.closed = true
	return nil
}
