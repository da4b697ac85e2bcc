package operation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlockSizeEstimatorSeedsAtOneAndTracksSamples(t *testing.T) {
	a := assert.New(t)
	e := NewBlockSizeEstimator()
	a.Equal(1.0, e.BytesPerBlock())

	for i := 0; i < 200; i++ {
		e.Observe(800, 10) // 80 bytes/block
	}
	a.InDelta(80.0, e.BytesPerBlock(), 0.5)
}

func TestBlockSizeEstimatorIgnoresZeroBlocks(t *testing.T) {
	a := assert.New(t)
	e := NewBlockSizeEstimator()
	e.Observe(1000, 0)
	a.Equal(1.0, e.BytesPerBlock())
}

func TestEstimateBytesUsesCurrentRatio(t *testing.T) {
	a := assert.New(t)
	e := NewBlockSizeEstimator()
	for i := 0; i < 200; i++ {
		e.Observe(400, 10) // 40 bytes/block
	}
	a.InDelta(4000.0, float64(e.EstimateBytes(100)), 50)
}
