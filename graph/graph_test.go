package graph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Cignor/Collider-sub001/command"
	"github.com/Cignor/Collider-sub001/log"
	"github.com/Cignor/Collider-sub001/param"
	"github.com/Cignor/Collider-sub001/signal"
	"github.com/Cignor/Collider-sub001/voice"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(
		WithLogger(log.Silent()),
		WithLoader(voice.NewFileLoader(t.TempDir(), log.Silent())),
	)
	require.NoError(t, err)
	e.Prepare(44100, 512)
	return e
}

func push(e *Engine, cmd command.Command) {
	e.Queue().Push(cmd)
}

func TestCreateDestroyEdgeInvariant(t *testing.T) {
	e := newTestEngine(t)
	for id := uint64(1); id <= 10; id++ {
		push(e, command.Command{Kind: command.Create, Target: id, Type: "sine"})
	}
	e.Dispatch()
	assert.Equal(t, 10, e.liveVoices())
	assert.Equal(t, e.liveVoices(), e.wiredNodes())

	for id := uint64(2); id <= 10; id += 2 {
		push(e, command.Command{Kind: command.Destroy, Target: id})
	}
	e.Dispatch()
	assert.Equal(t, 5, e.liveVoices())
	assert.Equal(t, e.liveVoices(), e.wiredNodes())

	// destroying an unknown id is silently ignored
	push(e, command.Command{Kind: command.Destroy, Target: 99})
	e.Dispatch()
	assert.Equal(t, 5, e.liveVoices())
	assert.Equal(t, e.liveVoices(), e.wiredNodes())
	assert.Equal(t, []uint64{1, 3, 5, 7, 9}, e.Voices())
}

func TestCreateGainScenario(t *testing.T) {
	e := newTestEngine(t)
	push(e, command.Command{Kind: command.Create, Target: 7, Type: "sine"})
	e.Dispatch()

	out := signal.EmptyFloat64(2, 512)
	e.Render(out)
	natural := out.Peak()
	require.Greater(t, natural, 0.5)

	push(e, command.Command{Kind: command.ParamUpdate, Target: 7, Name: "gain", Value: 0.5})
	e.Dispatch()
	e.Render(out)
	assert.InDelta(t, 0.5*natural, out.Peak(), 0.05*natural)
}

func TestMasterGainOnBusTarget(t *testing.T) {
	e := newTestEngine(t)
	push(e, command.Command{Kind: command.Create, Target: 7, Type: "sine"})
	e.Dispatch()

	out := signal.EmptyFloat64(2, 512)
	e.Render(out)
	natural := out.Peak()

	push(e, command.Command{Kind: command.ParamUpdate, Target: command.Bus, Name: "master_gain", Value: 0.5})
	e.Dispatch()
	e.Render(out)
	assert.InDelta(t, 0.5*natural, out.Peak(), 0.05*natural)
}

func TestUnknownTypeRejectedWithoutGraphChange(t *testing.T) {
	e := newTestEngine(t)
	push(e, command.Command{Kind: command.Create, Target: 1, Type: "theremin"})
	e.Dispatch()
	assert.Equal(t, 0, e.liveVoices())
	assert.Equal(t, int64(1), e.counters.Rejects.Value())
}

func TestUnknownTargetIgnored(t *testing.T) {
	e := newTestEngine(t)
	assert.NotPanics(t, func() {
		push(e, command.Command{Kind: command.ParamUpdate, Target: 99, Name: "gain", Value: 0.1})
		push(e, command.Command{Kind: command.LoadState, Target: 99, Blob: []byte("{}")})
		push(e, command.Command{Kind: command.SetMode, Target: 99, Mode: "vocoder"})
		e.Dispatch()
	})
}

func TestNormalizedParamUpdate(t *testing.T) {
	e := newTestEngine(t)
	push(e, command.Command{Kind: command.Create, Target: 7, Type: "sine"})
	push(e, command.Command{Kind: command.ParamUpdate, Target: 7, Name: "freq", Value: 1, Normalized: true})
	e.Dispatch()
	assert.Equal(t, 8000.0, e.voices[7].voice.Params().Get("freq"))
}

func TestStateBlobRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	push(e, command.Command{Kind: command.Create, Target: 7, Type: "sine"})
	push(e, command.Command{Kind: command.ParamUpdate, Target: 7, Name: "freq", Value: 880})
	push(e, command.Command{Kind: command.Create, Target: 8, Type: "sine"})
	e.Dispatch()

	blob := e.SaveState(7)
	require.NotNil(t, blob)
	push(e, command.Command{Kind: command.LoadState, Target: 8, Blob: blob})
	e.Dispatch()
	assert.Equal(t, 880.0, e.voices[8].voice.Params().Get("freq"))

	// a malformed blob never corrupts the voice or the process
	push(e, command.Command{Kind: command.LoadState, Target: 8, Blob: []byte("garbage")})
	assert.NotPanics(t, func() { e.Dispatch() })
	assert.Equal(t, 880.0, e.voices[8].voice.Params().Get("freq"))

	assert.Nil(t, e.SaveState(12345))
}

func TestSamplerModeSwitchKeepsRendering(t *testing.T) {
	e := newTestEngine(t)
	push(e, command.Command{Kind: command.Create, Target: 3, Type: "sampler", Resource: "missing.wav"})
	e.Dispatch()
	require.Equal(t, 1, e.liveVoices())

	out := signal.EmptyFloat64(2, 512)
	e.Render(out)

	push(e, command.Command{Kind: command.SetMode, Target: 3, Mode: "vocoder"})
	push(e, command.Command{Kind: command.SetMode, Target: 3, Mode: "granular"})
	e.Dispatch()

	// warm the refilled buffer back up, then audio flows again
	for i := 0; i < 4; i++ {
		e.Render(out)
	}
	assert.Greater(t, out.Peak(), 0.0)
}

func TestRenderBeforePrepareIsSilent(t *testing.T) {
	e, err := New(WithLogger(log.Silent()))
	require.NoError(t, err)
	out := signal.EmptyFloat64(2, 64)
	assert.NotPanics(t, func() { e.Render(out) })
	assert.Equal(t, 0.0, out.Peak())
}

func TestDispatchLoopStartStop(t *testing.T) {
	defer goleak.VerifyNone(t)
	e := newTestEngine(t)

	ctx := context.Background()
	require.NoError(t, e.Start(ctx))
	assert.ErrorIs(t, e.Start(ctx), ErrRunning)

	push(e, command.Command{Kind: command.Create, Target: 1, Type: "sine"})
	assert.Eventually(t, func() bool {
		return e.counters.Creates.Value() == 1
	}, time.Second, 5*time.Millisecond)

	e.Stop()
	assert.Equal(t, 0, e.liveVoices())

	// a stopped engine can be started again
	require.NoError(t, e.Start(ctx))
	e.Stop()
}

func TestDebugDumpDoesNotDisturbGraph(t *testing.T) {
	e := newTestEngine(t)
	push(e, command.Command{Kind: command.Create, Target: 1, Type: "noise"})
	push(e, command.Command{Kind: command.DebugDump})
	e.Dispatch()
	assert.Equal(t, 1, e.liveVoices())
}

type releaseSpy struct {
	id       uint64
	store    *param.Store
	released bool
}

func (v *releaseSpy) ID() uint64                { return v.id }
func (v *releaseSpy) Kind() string              { return "spy" }
func (v *releaseSpy) Params() *param.Store      { return v.store }
func (v *releaseSpy) Prepare(float64, int)      {}
func (v *releaseSpy) Render(out signal.Float64) { out.Clear() }
func (v *releaseSpy) Release()                  { v.released = true }

type spyLoader struct {
	loaded map[uint64]*releaseSpy
}

func (l *spyLoader) Load(id uint64, typeTag, resource string) (voice.Voice, error) {
	v := &releaseSpy{id: id, store: param.NewStore()}
	l.loaded[id] = v
	return v, nil
}

func TestReleaseDeferredUntilNextDispatch(t *testing.T) {
	loader := &spyLoader{loaded: map[uint64]*releaseSpy{}}
	e, err := New(WithLogger(log.Silent()), WithLoader(loader))
	require.NoError(t, err)
	e.Prepare(44100, 64)

	push(e, command.Command{Kind: command.Create, Target: 1, Type: "spy"})
	e.Dispatch()
	v := loader.loaded[1]
	require.NotNil(t, v)

	// the destroy tick unmounts the voice but keeps it alive: a render
	// holding the previous snapshot may still touch it
	push(e, command.Command{Kind: command.Destroy, Target: 1})
	e.Dispatch()
	assert.Equal(t, 0, e.liveVoices())
	assert.False(t, v.released)

	e.Dispatch()
	assert.True(t, v.released)
}

func TestRenderConcurrentWithCreateDestroy(t *testing.T) {
	e := newTestEngine(t)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		out := signal.EmptyFloat64(2, 512)
		for {
			select {
			case <-stop:
				return
			default:
				e.Render(out)
			}
		}
	}()

	for i := 0; i < 50; i++ {
		id := uint64(i%5 + 1)
		push(e, command.Command{Kind: command.Create, Target: id, Type: "sine"})
		e.Dispatch()
		push(e, command.Command{Kind: command.Destroy, Target: id})
		e.Dispatch()
	}
	close(stop)
	<-done

	e.Dispatch()
	assert.Equal(t, 0, e.liveVoices())
}

func TestModeSwitchConcurrentWithRender(t *testing.T) {
	e := newTestEngine(t)
	push(e, command.Command{Kind: command.Create, Target: 1, Type: "sampler", Resource: "missing.wav"})
	e.Dispatch()
	require.Equal(t, 1, e.liveVoices())

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		out := signal.EmptyFloat64(2, 512)
		for {
			select {
			case <-stop:
				return
			default:
				e.Render(out)
			}
		}
	}()

	modes := []string{"vocoder", "resampler"}
	for i := 0; i < 50; i++ {
		push(e, command.Command{Kind: command.SetMode, Target: 1, Mode: modes[i%2]})
		e.Dispatch()
	}
	close(stop)
	<-done
	assert.Equal(t, 1, e.liveVoices())
}
