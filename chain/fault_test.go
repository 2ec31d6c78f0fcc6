package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Cignor/Collider-sub001/param"
	"github.com/Cignor/Collider-sub001/signal"
)

// faultyStage corrupts half the block and then panics.
type faultyStage struct{}

func (faultyStage) name() string { return "faulty" }

func (faultyStage) neutral(values) bool { return false }

func (faultyStage) process(buf signal.Float64, _ values) {
	for i := 0; i < buf.Size()/2; i++ {
		buf[0][i] = 99
	}
	panic("stage blew up")
}

func TestStageFaultDegradesToPassThrough(t *testing.T) {
	store := param.NewStore(Specs()...)
	c := New(store)
	c.Prepare(44100, 64)
	c.stages = []stage{faultyStage{}}

	buf := signal.EmptyFloat64(2, 64)
	for i := range buf[0] {
		buf[0][i] = 0.5
		buf[1][i] = 0.5
	}
	assert.NotPanics(t, func() { c.Process(buf) })

	// the faulty stage degraded to pass-through: its partial writes
	// were rolled back and only the pan law touched the block
	assert.InDelta(t, 0.5*0.7071, buf[0][0], 1e-3)

	// the block boundary holds: the following blocks keep processing
	assert.NotPanics(t, func() { c.Process(buf) })
}

func TestFaultDoesNotSkipGainPan(t *testing.T) {
	store := param.NewStore(Specs()...)
	assert.NoError(t, store.Set("pan", -1))
	c := New(store)
	c.Prepare(44100, 8)
	c.stages = []stage{faultyStage{}}

	buf := signal.EmptyFloat64(2, 8)
	for i := range buf[1] {
		buf[1][i] = 1
	}
	c.Process(buf)
	// hard-left pan still lands after the contained fault
	assert.Equal(t, 0.0, buf[1][0])
}
