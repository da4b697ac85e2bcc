package operation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThroughputMeterAccumulatesAndResets(t *testing.T) {
	a := assert.New(t)
	m := NewThroughputMeter()

	m.Add(1000)
	m.Add(2000)
	a.True(m.LatestRate() > 0)

	m.Reset()
	a.Equal(uint64(0), m.Add(0))
}
