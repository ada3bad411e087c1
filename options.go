// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package segbuf

// ZeroBufferBehavior controls when a segment's bytes are overwritten with
// zero as it moves through the pool lifecycle. The four values are kept
// distinct in the API, and rent-time and release-time zeroing are tracked as
// independent flags internally (see zeroPolicy below), so a caller asking for
// ZeroOnRent does not pay for a release-time zero it never needed, and vice
// versa.
type ZeroBufferBehavior int

const (
	// ZeroNone never zeroes buffer contents on behalf of the caller.
	ZeroNone ZeroBufferBehavior = iota
	// ZeroOnRelease zeroes a segment's bytes when it is returned to the pool.
	ZeroOnRelease
	// ZeroOnRent zeroes a segment's bytes when it is handed out by the pool,
	// unless it is already known-zeroed.
	ZeroOnRent
	// ZeroOnBoth zeroes on both release and rent.
	ZeroOnBoth
)

// zeroPolicy is the internal, decomposed form of ZeroBufferBehavior: two
// independent booleans rather than one four-valued enum, since release-time
// and rent-time zeroing are applied at entirely different call sites.
type zeroPolicy struct {
	onRent    bool
	onRelease bool
}

func newZeroPolicy(b ZeroBufferBehavior) zeroPolicy {
	switch b {
	case ZeroOnRent:
		return zeroPolicy{onRent: true}
	case ZeroOnRelease:
		return zeroPolicy{onRelease: true}
	case ZeroOnBoth:
		return zeroPolicy{onRent: true, onRelease: true}
	default:
		return zeroPolicy{}
	}
}

// MaxCapacity is the hard ceiling on stream length and position: the largest
// value representable by the 32-bit capacity accessor's signed domain.
const MaxCapacity = 1<<31 - 1

// Options configures a Stream and, where it governs pool-wide behavior, the
// process-wide SegmentedBufferPool constructed from it.
type Options struct {
	// ZeroBufferBehavior controls zeroing as segments move through the pool.
	ZeroBufferBehavior ZeroBufferBehavior
	// UseNativeLargeMemoryBuffers selects anonymous-mmap-backed blocks over
	// Go-managed slice backing when a pool is constructed from these Options.
	UseNativeLargeMemoryBuffers bool
	// MaximumCapacity is the hard ceiling on length and position. Must be
	// in (0, MaxCapacity]; DefaultOptions sets it to MaxCapacity.
	MaximumCapacity int
	// InitialCapacity is pre-allocated at stream construction. Must be >= 0.
	InitialCapacity int

	zero zeroPolicy
}

// DefaultOptions returns the zero-configuration baseline: no zeroing beyond
// what callers request explicitly, managed-array block backing, the full
// 31-bit capacity ceiling, and no pre-allocation.
func DefaultOptions() Options {
	return Options{
		ZeroBufferBehavior: ZeroNone,
		MaximumCapacity:    MaxCapacity,
		InitialCapacity:    0,
	}
}

func (o Options) normalize() (Options, error) {
	if o.MaximumCapacity <= 0 || o.MaximumCapacity > MaxCapacity {
		return o, rangeError("NewOptions", "maximum capacity out of range")
	}
	if o.InitialCapacity < 0 {
		return o, rangeError("NewOptions", "initial capacity must not be negative")
	}
	if o.InitialCapacity > o.MaximumCapacity {
		return o, rangeError("NewOptions", "initial capacity exceeds maximum capacity")
	}
	o.zero = newZeroPolicy(o.ZeroBufferBehavior)
	return o, nil
}
