// Package voice provides the audio-generating units of the graph. A
// voice is one live instance of a generator kind, identified by a
// stable external id, carrying its own parameter store and effect
// chain. Optional behavior is exposed through capability interfaces
// instead of type switches on concrete kinds.
package voice

import (
	"encoding/json"

	"github.com/Cignor/Collider-sub001/chain"
	"github.com/Cignor/Collider-sub001/param"
	"github.com/Cignor/Collider-sub001/signal"
	"github.com/Cignor/Collider-sub001/stretch"
)

type (
	// Voice is one live audio-generating unit.
	Voice interface {
		// ID returns the stable external id.
		ID() uint64
		// Kind returns the voice type tag.
		Kind() string
		// Params returns the voice parameter store.
		Params() *param.Store
		// Prepare allocates render state for the format. It must be
		// called again on every format change.
		Prepare(sampleRate float64, blockSize int)
		// Render overwrites out with one block of audio.
		Render(out signal.Float64)
		// Release frees owned resources.
		Release()
	}

	// StatePatcher is the optional snapshot capability: an opaque blob
	// applied wholesale to the voice state.
	StatePatcher interface {
		LoadState(blob []byte) error
		SaveState() []byte
	}

	// Stretcher is the optional elastic-playback capability.
	Stretcher interface {
		SetEngineMode(m stretch.Mode) error
		FlushStretch()
	}
)

// base carries the id, kind, parameter store and effect chain shared
// by all voice kinds.
type base struct {
	id    uint64
	kind  string
	store *param.Store
	fx    *chain.Chain
}

func newBase(id uint64, kind string, specs ...param.Spec) base {
	store := param.NewStore(append(specs, chain.Specs()...)...)
	return base{
		id:    id,
		kind:  kind,
		store: store,
		fx:    chain.New(store),
	}
}

func (b *base) ID() uint64 { return b.id }

func (b *base) Kind() string { return b.kind }

func (b *base) Params() *param.Store { return b.store }

func (b *base) Release() {}

// SaveState serializes the parameter surface as the state blob.
func (b *base) SaveState() []byte {
	values := make(map[string]float64, len(b.store.Specs()))
	for _, spec := range b.store.Specs() {
		values[spec.Name] = b.store.Get(spec.Name)
	}
	blob, _ := json.Marshal(values)
	return blob
}

// LoadState applies a state blob wholesale. Unknown names are ignored,
// known values are clamped; a malformed blob leaves the state as is.
func (b *base) LoadState(blob []byte) error {
	var values map[string]float64
	if err := json.Unmarshal(blob, &values); err != nil {
		return err
	}
	for name, value := range values {
		if _, ok := b.store.Lookup(name); ok {
			_ = b.store.Set(name, value)
		}
	}
	return nil
}
