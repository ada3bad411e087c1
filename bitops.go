// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package segbuf

import "sync/atomic"

// word is the set of atomic integer types InterlockedBitOps operates over.
type word interface {
	~uint32 | ~uint64 | ~int32 | ~int64
}

// casWord is the structural contract satisfied by *atomic.Uint32,
// *atomic.Uint64, *atomic.Int32 and *atomic.Int64: a single-word atomic cell
// with a Load/CompareAndSwap pair. All InterlockedBitOps functions are
// expressed against this interface so one implementation covers every width
// and signedness.
type casWord[V word] interface {
	Load() V
	CompareAndSwap(old, new V) bool
}

// And atomically sets *w to cur & mask and returns the value observed
// immediately before and after the operation.
func And[V word, W casWord[V]](w W, mask V) (prior, next V) {
	for {
		prior = w.Load()
		next = prior & mask
		if prior == next || w.CompareAndSwap(prior, next) {
			return prior, next
		}
	}
}

// Or atomically sets *w to cur | mask and returns the value observed
// immediately before and after the operation.
func Or[V word, W casWord[V]](w W, mask V) (prior, next V) {
	for {
		prior = w.Load()
		next = prior | mask
		if prior == next || w.CompareAndSwap(prior, next) {
			return prior, next
		}
	}
}

// Xor atomically sets *w to cur ^ mask and returns the value observed
// immediately before and after the operation.
func Xor[V word, W casWord[V]](w W, mask V) (prior, next V) {
	for {
		prior = w.Load()
		next = prior ^ mask
		if w.CompareAndSwap(prior, next) {
			return prior, next
		}
	}
}

// ClearBits is And(w, ^mask): atomically clears every bit set in mask.
func ClearBits[V word, W casWord[V]](w W, mask V) (prior, next V) {
	return And[V, W](w, ^mask)
}

// SetBits is Or(w, mask): atomically sets every bit set in mask.
func SetBits[V word, W casWord[V]](w W, mask V) (prior, next V) {
	return Or[V, W](w, mask)
}

// CondAnd performs And(w, mask) only if pred(current) is true, evaluated
// against the value immediately preceding the attempted CAS. If pred
// returns false, CondAnd does nothing and returns (current, current). pred
// may be invoked more than once under contention.
func CondAnd[V word, W casWord[V]](w W, pred func(V) bool, mask V) (prior, next V) {
	for {
		prior = w.Load()
		if !pred(prior) {
			return prior, prior
		}
		next = prior & mask
		if prior == next || w.CompareAndSwap(prior, next) {
			return prior, next
		}
	}
}

// CondOr performs Or(w, mask) only if pred(current) is true.
func CondOr[V word, W casWord[V]](w W, pred func(V) bool, mask V) (prior, next V) {
	for {
		prior = w.Load()
		if !pred(prior) {
			return prior, prior
		}
		next = prior | mask
		if prior == next || w.CompareAndSwap(prior, next) {
			return prior, next
		}
	}
}

// CondXor performs Xor(w, mask) only if pred(current) is true.
func CondXor[V word, W casWord[V]](w W, pred func(V) bool, mask V) (prior, next V) {
	for {
		prior = w.Load()
		if !pred(prior) {
			return prior, prior
		}
		next = prior ^ mask
		if w.CompareAndSwap(prior, next) {
			return prior, next
		}
	}
}

// CondClearBits is CondAnd(w, pred, ^mask).
func CondClearBits[V word, W casWord[V]](w W, pred func(V) bool, mask V) (prior, next V) {
	return CondAnd[V, W](w, pred, ^mask)
}

// CondSetBits is CondOr(w, pred, mask).
func CondSetBits[V word, W casWord[V]](w W, pred func(V) bool, mask V) (prior, next V) {
	return CondOr[V, W](w, pred, mask)
}

// CondAndArg is CondAnd with a predicate that also receives a caller-supplied
// argument, so the predicate can close over per-call state without an
// allocation for a closure capturing it.
func CondAndArg[V word, W casWord[V], A any](w W, pred func(V, A) bool, arg A, mask V) (prior, next V) {
	for {
		prior = w.Load()
		if !pred(prior, arg) {
			return prior, prior
		}
		next = prior & mask
		if prior == next || w.CompareAndSwap(prior, next) {
			return prior, next
		}
	}
}

// CondOrArg is CondOr with a predicate that also receives a caller-supplied
// argument.
func CondOrArg[V word, W casWord[V], A any](w W, pred func(V, A) bool, arg A, mask V) (prior, next V) {
	for {
		prior = w.Load()
		if !pred(prior, arg) {
			return prior, prior
		}
		next = prior | mask
		if prior == next || w.CompareAndSwap(prior, next) {
			return prior, next
		}
	}
}

// CondXorArg is CondXor with a predicate that also receives a caller-supplied
// argument.
func CondXorArg[V word, W casWord[V], A any](w W, pred func(V, A) bool, arg A, mask V) (prior, next V) {
	for {
		prior = w.Load()
		if !pred(prior, arg) {
			return prior, prior
		}
		next = prior ^ mask
		if w.CompareAndSwap(prior, next) {
			return prior, next
		}
	}
}

var (
	_ casWord[uint32] = (*atomic.Uint32)(nil)
	_ casWord[uint64] = (*atomic.Uint64)(nil)
	_ casWord[int32]  = (*atomic.Int32)(nil)
	_ casWord[int64]  = (*atomic.Int64)(nil)
)
