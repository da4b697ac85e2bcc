package common

import (
	"math"
	"sync/atomic"

	"golang.org/x/exp/constraints"
)

// Atomic mirrors azcopy's common.Atomic[T]: a generic load/store/CAS
// wrapper so the worker's transferred-byte counter and the block-size
// estimator (§4.5.4) don't each hand-roll a mutex. The Queue's counters
// are plain fields guarded by the Queue's own mutex instead.
type Atomic[T any] interface {
	Load() T
	Store(v T)
	CompareAndSwap(old, new T) bool
}

type AtomicNumeric[T constraints.Integer] interface {
	Atomic[T]
	Add(delta T) T
}

type atomicInt64 struct{ v atomic.Int64 }

func NewAtomicInt64(initial int64) AtomicNumeric[int64] {
	a := &atomicInt64{}
	a.v.Store(initial)
	return a
}

func (a *atomicInt64) Load() int64                      { return a.v.Load() }
func (a *atomicInt64) Store(v int64)                    { a.v.Store(v) }
func (a *atomicInt64) CompareAndSwap(old, new int64) bool { return a.v.CompareAndSwap(old, new) }
func (a *atomicInt64) Add(delta int64) int64            { return a.v.Add(delta) }

// AtomicFloat64 backs the block-size estimator's running bytes-per-block
// ratio (§4.5.4); sync/atomic has no native float64 so it is bit-cast
// through Uint64, the same trick azcopy's own code reaches for whenever it
// needs an atomic float.
type AtomicFloat64 struct{ bits atomic.Uint64 }

func (a *AtomicFloat64) Load() float64 {
	return math.Float64frombits(a.bits.Load())
}

func (a *AtomicFloat64) Store(v float64) {
	a.bits.Store(math.Float64bits(v))
}

func (a *AtomicFloat64) CompareAndSwap(old, new float64) bool {
	return a.bits.CompareAndSwap(math.Float64bits(old), math.Float64bits(new))
}
