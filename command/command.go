// Package command implements the control-plane mailbox of the engine.
// Producers on any goroutine push commands; the dispatch goroutine
// drains them in FIFO order between audio callbacks.
package command

// Kind is a command type tag.
type Kind int

const (
	// Create instantiates a new voice for Type and Resource.
	Create Kind = iota + 1
	// Destroy removes a voice and releases its resources.
	Destroy
	// ParamUpdate sets a named parameter on a voice, or on the bus
	// scope when the target id is 0.
	ParamUpdate
	// LoadState applies an opaque state blob to a voice.
	LoadState
	// DebugDump logs a summary of the live graph.
	DebugDump
	// SetMode switches an engine mode on a voice, e.g. the stretch
	// engine of a sampler.
	SetMode
)

// Bus is the reserved target id for bus/global scope commands.
const Bus uint64 = 0

// Command is the tagged variant pushed from the control plane. Fields
// beyond Kind and Target are meaningful per kind only.
type Command struct {
	// Seq is a monotonic tag assigned by the queue on push.
	Seq uint64

	Kind   Kind
	Target uint64

	// Create
	Type     string
	Resource string

	// ParamUpdate
	Name       string
	Value      float64
	Normalized bool

	// LoadState
	Blob []byte

	// SetMode
	Mode string
}

func (k Kind) String() string {
	switch k {
	case Create:
		return "create"
	case Destroy:
		return "destroy"
	case ParamUpdate:
		return "param"
	case LoadState:
		return "load-state"
	case DebugDump:
		return "debug-dump"
	case SetMode:
		return "set-mode"
	}
	return "unknown"
}
