package graph

import (
	"context"
	"errors"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/Cignor/Collider-sub001/command"
	"github.com/Cignor/Collider-sub001/signal"
	"github.com/Cignor/Collider-sub001/stretch"
	"github.com/Cignor/Collider-sub001/voice"
)

// drainBatch bounds the commands applied per dispatch tick.
const drainBatch = 256

// ErrRunning is returned when Start is called on a started engine.
var ErrRunning = errors.New("engine already running")

// Start runs the dispatch loop until ctx is done or Stop is called.
func (e *Engine) Start(ctx context.Context) error {
	if e.done != nil {
		return ErrRunning
	}
	e.done = make(chan struct{})
	e.stop = make(chan struct{})
	go func() {
		defer close(e.done)
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-e.stop:
				return
			case <-ticker.C:
				e.Dispatch()
			}
		}
	}()
	return nil
}

// Stop terminates the dispatch loop and releases all voices.
func (e *Engine) Stop() {
	if e.done == nil {
		return
	}
	close(e.stop)
	<-e.done
	e.done = nil
	e.stop = nil
	for id := range e.voices {
		e.destroy(id)
	}
	e.publish()
	e.reapRetired()
}

// Dispatch drains one batch of commands and applies them. It is the
// only place where the graph mutates.
func (e *Engine) Dispatch() int {
	e.reapRetired()
	commands := e.queue.DrainUpTo(drainBatch)
	for _, cmd := range commands {
		e.apply(cmd)
	}
	e.counters.Commands.Add(int64(len(commands)))
	return len(commands)
}

func (e *Engine) apply(cmd command.Command) {
	switch cmd.Kind {
	case command.Create:
		e.create(cmd)
	case command.Destroy:
		if !e.destroy(cmd.Target) {
			return
		}
		e.publish()
	case command.ParamUpdate:
		e.updateParam(cmd)
	case command.LoadState:
		e.loadState(cmd)
	case command.SetMode:
		e.setMode(cmd)
	case command.DebugDump:
		e.dump()
	}
}

func (e *Engine) create(cmd command.Command) {
	if _, ok := e.voices[cmd.Target]; ok {
		e.logger.WithField("id", cmd.Target).Debug("create ignored, voice exists")
		return
	}
	v, err := e.loader.Load(cmd.Target, cmd.Type, cmd.Resource)
	if err != nil {
		// no partial node: the graph is untouched on a rejected create
		e.counters.Rejects.Add(1)
		e.logger.WithFields(logrus.Fields{
			"id":    cmd.Target,
			"type":  cmd.Type,
			"error": err,
		}).Warn("create rejected")
		return
	}
	n := &node{id: xid.New(), voice: v}
	for ch := range n.edges {
		n.edges[ch] = edge{from: n.id, to: e.outputID, channel: ch}
	}
	if e.sampleRate > 0 {
		v.Prepare(e.sampleRate, e.blockSize)
		n.scratch = signal.EmptyFloat64(maxChannels, e.blockSize)
	}
	e.voices[cmd.Target] = n
	e.order = append(e.order, n)
	e.counters.Creates.Add(1)
	e.publish()
}

func (e *Engine) destroy(id uint64) bool {
	n, ok := e.voices[id]
	if !ok {
		return false
	}
	delete(e.voices, id)
	for i, o := range e.order {
		if o == n {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	e.retired = append(e.retired, n.voice)
	e.counters.Destroys.Add(1)
	return true
}

// reapRetired releases voices destroyed on an earlier tick. Release is
// deferred one full tick: a Render still holding the previous snapshot
// may touch the voice until the post-destroy publish is observed.
func (e *Engine) reapRetired() {
	for _, v := range e.retired {
		v.Release()
	}
	e.retired = e.retired[:0]
}

func (e *Engine) updateParam(cmd command.Command) {
	store := e.bus
	if cmd.Target != command.Bus {
		n, ok := e.voices[cmd.Target]
		if !ok {
			// unknown target, non-fatal
			return
		}
		store = n.voice.Params()
	}
	var err error
	if cmd.Normalized {
		err = store.SetNormalized(cmd.Name, cmd.Value)
	} else {
		err = store.Set(cmd.Name, cmd.Value)
	}
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"id":    cmd.Target,
			"param": cmd.Name,
		}).Debug("param update ignored")
	}
}

func (e *Engine) loadState(cmd command.Command) {
	n, ok := e.voices[cmd.Target]
	if !ok {
		return
	}
	patcher, ok := n.voice.(voice.StatePatcher)
	if !ok {
		return
	}
	if err := patcher.LoadState(cmd.Blob); err != nil {
		e.logger.WithFields(logrus.Fields{
			"id":    cmd.Target,
			"error": err,
		}).Warn("state blob not applied")
	}
}

// SaveState returns the state blob of a voice, or nil when the voice
// is unknown or stateless.
func (e *Engine) SaveState(id uint64) []byte {
	n, ok := e.voices[id]
	if !ok {
		return nil
	}
	patcher, ok := n.voice.(voice.StatePatcher)
	if !ok {
		return nil
	}
	return patcher.SaveState()
}

func (e *Engine) setMode(cmd command.Command) {
	n, ok := e.voices[cmd.Target]
	if !ok {
		return
	}
	stretcher, ok := n.voice.(voice.Stretcher)
	if !ok {
		return
	}
	if err := stretcher.SetEngineMode(stretch.Mode(cmd.Mode)); err != nil {
		e.logger.WithFields(logrus.Fields{
			"id":   cmd.Target,
			"mode": cmd.Mode,
		}).Warn("mode switch rejected")
	}
}

// dump logs the live graph for diagnostics.
func (e *Engine) dump() {
	e.logger.WithFields(logrus.Fields{
		"voices": e.liveVoices(),
		"queued": e.queue.Len(),
		"peak":   e.render.Peak(),
	}).Info("engine dump")
	for id, n := range e.voices {
		e.logger.WithFields(logrus.Fields{
			"id":   id,
			"kind": n.voice.Kind(),
			"node": n.id.String(),
		}).Info("voice")
	}
}
