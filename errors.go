// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package segbuf

import (
	"errors"
	"fmt"
)

// ErrorCode identifies which member of the error taxonomy an *Error carries.
type ErrorCode string

const (
	// ErrCodeRange marks a size, position, or capacity argument outside its
	// declared domain: negative, beyond MaximumCapacity, or beyond the
	// target collection's size.
	ErrCodeRange ErrorCode = "range"
	// ErrCodeClosed marks any operation attempted on a disposed stream.
	ErrCodeClosed ErrorCode = "closed"
	// ErrCodeUnsupported marks a feature request invalid in the current
	// stream mode (e.g. SetLength on a FixedStream).
	ErrCodeUnsupported ErrorCode = "unsupported"
	// ErrCodeIO marks seeking before the beginning, stream-length overflow,
	// or overflow of a 32-bit capacity accessor.
	ErrCodeIO ErrorCode = "io"
	// ErrCodeAllocation marks a block-level allocation failure propagated
	// from the pool (OS-level mmap/make failure).
	ErrCodeAllocation ErrorCode = "allocation"
)

// Error is the structured error type for every operation in this package.
// It always carries the operation that failed and the taxonomy code; Msg and
// Inner are filled in where there is more to say.
type Error struct {
	Op    string
	Code  ErrorCode
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Inner != nil {
		msg = e.Inner.Error()
	}
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op != "" {
		return fmt.Sprintf("segbuf: %s: %s (%s)", e.Op, msg, e.Code)
	}
	return fmt.Sprintf("segbuf: %s (%s)", msg, e.Code)
}

func (e *Error) Unwrap() error { return e.Inner }

// Is reports whether target is an *Error with the same Code, so callers can
// write errors.Is(err, &segbuf.Error{Code: segbuf.ErrCodeClosed}).
func (e *Error) Is(target error) bool {
	var te *Error
	if !errors.As(target, &te) {
		return false
	}
	return e.Code == te.Code
}

func rangeError(op, msg string) error {
	return &Error{Op: op, Code: ErrCodeRange, Msg: msg}
}

func closedError(op string) error {
	return &Error{Op: op, Code: ErrCodeClosed, Msg: "stream is closed"}
}

func unsupportedError(op, msg string) error {
	return &Error{Op: op, Code: ErrCodeUnsupported, Msg: msg}
}

func ioError(op string, inner error) error {
	return &Error{Op: op, Code: ErrCodeIO, Inner: inner}
}

func allocationError(op string, inner error) error {
	return &Error{Op: op, Code: ErrCodeAllocation, Inner: inner}
}

// IsCode reports whether err is (or wraps) a *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
