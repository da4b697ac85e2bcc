package operation

import "github.com/twopanel/ftpcore/common"

// BlockSizeEstimator maintains a running bytes-per-block ratio for
// block-reporting servers (MVS/VMS, §3.3/§4.5.4): every completed download
// whose size is known in both bytes and blocks feeds Observe, and
// ConvertBlocksToBytes on an unknown-byte-size item uses BytesPerBlock to
// estimate a total.
//
// Backed by common.AtomicFloat64, with Observe folding each sample in
// through a CompareAndSwap loop, so it can be called concurrently from
// every worker goroutine without its own mutex.
type BlockSizeEstimator struct {
	ratio common.AtomicFloat64
}

// NewBlockSizeEstimator seeds the ratio at 1.0 so an estimate is always
// available even before the first observation.
func NewBlockSizeEstimator() *BlockSizeEstimator {
	e := &BlockSizeEstimator{}
	e.ratio.Store(1.0)
	return e
}

// Observe folds one completed transfer's byte/block pair into the running
// ratio. A simple exponential moving average is used rather than a total
// bytes/total blocks division, so the estimate tracks a server whose
// reported block size changes partway through a long operation.
func (e *BlockSizeEstimator) Observe(bytes, blocks int64) {
	if blocks <= 0 {
		return
	}
	sample := float64(bytes) / float64(blocks)
	const alpha = 0.2
	for {
		prev := e.ratio.Load()
		if e.ratio.CompareAndSwap(prev, prev+alpha*(sample-prev)) {
			return
		}
	}
}

// BytesPerBlock returns the current estimate.
func (e *BlockSizeEstimator) BytesPerBlock() float64 {
	return e.ratio.Load()
}

// EstimateBytes converts a block count to an estimated byte count using
// the current ratio (§4.6 "convertBlocksToBytes").
func (e *BlockSizeEstimator) EstimateBytes(blocks int64) int64 {
	return common.ConvertBlocksToBytes(blocks, e.BytesPerBlock())
}
