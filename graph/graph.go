// Package graph implements the voice graph engine. All structural
// mutation happens on the dispatch loop, which drains the command
// queue and publishes immutable graph snapshots; the audio callback
// only loads the published snapshot and atomics.
package graph

import (
	"slices"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/Cignor/Collider-sub001/command"
	"github.com/Cignor/Collider-sub001/log"
	"github.com/Cignor/Collider-sub001/metric"
	"github.com/Cignor/Collider-sub001/param"
	"github.com/Cignor/Collider-sub001/signal"
	"github.com/Cignor/Collider-sub001/voice"
)

// defaultDispatchInterval is the dispatch loop tick, roughly 120 Hz.
const defaultDispatchInterval = time.Second / 120

const maxChannels = 2

type (
	// edge connects one channel of a node to the shared output node.
	edge struct {
		from    xid.ID
		to      xid.ID
		channel int
	}

	// node is one voice mounted in the graph.
	node struct {
		id      xid.ID
		voice   voice.Voice
		scratch signal.Float64
		edges   [maxChannels]edge
	}

	// snapshot is the immutable graph published to the render path.
	snapshot struct {
		nodes []*node
	}

	// Engine owns the graph, the command queue and the dispatch loop.
	Engine struct {
		logger   *logrus.Logger
		queue    *command.Queue
		loader   voice.Loader
		interval time.Duration

		bus      *param.Store
		outputID xid.ID
		voices   map[uint64]*node
		order    []*node
		retired  []voice.Voice

		published atomic.Pointer[snapshot]

		sampleRate float64
		blockSize  int

		render   *metric.Render
		counters *metric.Dispatch
		measure  metric.MeasureFunc

		done chan struct{}
		stop chan struct{}
	}

	// Option configures the engine.
	Option func(*Engine) error
)

// BusSpecs returns the global parameters reachable through target id 0.
func BusSpecs() []param.Spec {
	return []param.Spec{
		{Name: "master_gain", Min: 0, Max: 2, Def: 1},
		{Name: "listener_x", Min: -100, Max: 100, Def: 0},
		{Name: "listener_y", Min: -100, Max: 100, Def: 0},
		{Name: "listener_z", Min: -100, Max: 100, Def: 0},
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// WithLoader overrides the voice loader.
func WithLoader(l voice.Loader) Option {
	return func(e *Engine) error {
		e.loader = l
		return nil
	}
}

// WithQueueCapacity overrides the command queue capacity.
func WithQueueCapacity(capacity int) Option {
	return func(e *Engine) error {
		e.queue = command.NewQueue(capacity)
		return nil
	}
}

// WithDispatchInterval overrides the dispatch loop tick.
func WithDispatchInterval(d time.Duration) Option {
	return func(e *Engine) error {
		if d <= 0 {
			d = defaultDispatchInterval
		}
		e.interval = d
		return nil
	}
}

// New creates an engine. Prepare must be called before rendering.
func New(options ...Option) (*Engine, error) {
	instance := xid.New()
	e := &Engine{
		logger:   log.New(),
		queue:    command.NewQueue(0),
		interval: defaultDispatchInterval,
		bus:      param.NewStore(BusSpecs()...),
		outputID: instance,
		voices:   make(map[uint64]*node),
		render:   metric.NewRender(instance.String()),
		counters: metric.NewDispatch(instance.String()),
	}
	for _, option := range options {
		if err := option(e); err != nil {
			return nil, err
		}
	}
	if e.loader == nil {
		e.loader = voice.NewFileLoader(".", e.logger)
	}
	e.publish()
	return e, nil
}

// Queue returns the command queue crossing from producer threads into
// the dispatch loop.
func (e *Engine) Queue() *command.Queue {
	return e.queue
}

// Bus returns the global parameter store.
func (e *Engine) Bus() *param.Store {
	return e.bus
}

// Peak returns the last rendered block peak.
func (e *Engine) Peak() float64 {
	return e.render.Peak()
}

// Prepare sets the output format and re-prepares every live voice.
func (e *Engine) Prepare(sampleRate float64, blockSize int) {
	e.sampleRate = sampleRate
	e.blockSize = blockSize
	e.measure = e.render.Meter(int(sampleRate))
	for _, n := range e.order {
		n.voice.Prepare(sampleRate, blockSize)
		n.scratch = signal.EmptyFloat64(maxChannels, blockSize)
	}
	e.publish()
}

// Render fills out with one block of the published graph. It runs on
// the audio callback: no locks, no allocation, snapshot and atomics
// only.
func (e *Engine) Render(out signal.Float64) {
	out.Clear()
	s := e.published.Load()
	if s == nil {
		return
	}
	gain := e.bus.Get("master_gain")
	for _, n := range s.nodes {
		if n.scratch == nil {
			continue
		}
		n.voice.Render(n.scratch)
		for _, ed := range n.edges {
			if ed.to != e.outputID || ed.channel >= out.NumChannels() {
				continue
			}
			dst := out[ed.channel]
			src := n.scratch[ed.channel]
			for i := range dst {
				dst[i] += src[i] * gain
			}
		}
	}
	e.render.SetPeak(out.Peak())
	if e.measure != nil {
		e.measure(int64(out.Size()))
	}
}

// publish builds and atomically swaps the render snapshot. Nodes are
// fully initialized before the pointer moves.
func (e *Engine) publish() {
	nodes := make([]*node, len(e.order))
	copy(nodes, e.order)
	e.published.Store(&snapshot{nodes: nodes})
}

// Voices returns the ids of mounted voices in ascending order. Like
// all mutation surfaces it must run on the dispatch goroutine or with
// the loop stopped.
func (e *Engine) Voices() []uint64 {
	ids := make([]uint64, 0, len(e.voices))
	for id := range e.voices {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// liveVoices returns the number of mounted voices.
func (e *Engine) liveVoices() int {
	return len(e.voices)
}

// wiredNodes returns the number of nodes with both output edges valid.
func (e *Engine) wiredNodes() int {
	count := 0
	for _, n := range e.order {
		valid := 0
		for _, ed := range n.edges {
			if ed.from == n.id && ed.to == e.outputID {
				valid++
			}
		}
		if valid == maxChannels {
			count++
		}
	}
	return count
}
