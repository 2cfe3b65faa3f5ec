package compute

import (
	"image"

	"github.com/google/uuid"
)

// Default WebGPU limits. Both devices enforce the same values so a scene that
// renders on the CPU device also fits on the GPU.
const (
	MaxStorageBufferSize      = 128 << 20
	MaxUniformBufferSize      = 64 << 10
	MaxWorkgroupsPerDimension = 65535
)

// BufferKind selects how a buffer is exposed to a kernel.
type BufferKind int

const (
	// BufferStructured is a read-only storage array of fixed-layout records.
	BufferStructured BufferKind = iota
	// BufferUniform holds a single scalar or record in uniform memory.
	BufferUniform
)

func (k BufferKind) String() string {
	switch k {
	case BufferStructured:
		return "structured"
	case BufferUniform:
		return "uniform"
	default:
		return "unknown"
	}
}

func (k BufferKind) maxSize() int {
	if k == BufferUniform {
		return MaxUniformBufferSize
	}
	return MaxStorageBufferSize
}

// Device allocates GPU-resident resources and compiles compute programs.
type Device interface {
	CompileProgram(desc ProgramDescriptor) (Program, error)
	CreateBuffer(desc BufferDescriptor) (Buffer, error)
	CreateSurface(desc SurfaceDescriptor) (Surface, error)
	// ReadBuffer blocks until the buffer contents are available on the CPU.
	ReadBuffer(buf Buffer) ([]byte, error)
	// ReadSurface blocks until the surface pixels are available on the CPU.
	ReadSurface(s Surface) (*image.RGBA, error)
	Release()
}

// Program is a compiled compute program. Its identity is the value itself:
// implementations are pointers, so two Programs are the same program iff ==.
type Program interface {
	Label() string
	Layout() *Layout
	// Dispatch enqueues one kernel invocation grid on the program's device.
	Dispatch(desc DispatchDescriptor) error
	Release()
}

// Buffer is a GPU-resident array of fixed-layout records.
type Buffer interface {
	Label() string
	Kind() BufferKind
	Stride() int
	Count() int
	Size() uint64
	Release()
}

// Surface is a 2D RGBA image a kernel writes into.
type Surface interface {
	ID() uuid.UUID
	Width() uint32
	Height() uint32
	RandomWrite() bool
	Release()
}

type ProgramDescriptor struct {
	Label string
	// Source is the WGSL text of the program.
	Source string
}

type BufferDescriptor struct {
	Label    string
	Kind     BufferKind
	Stride   int
	Count    int
	Contents []byte
}

type SurfaceDescriptor struct {
	Label       string
	Width       uint32
	Height      uint32
	RandomWrite bool
}

// Binding pairs a reflected slot with the resource bound to it. Exactly one of
// Buffer or Surface is set.
type Binding struct {
	Slot    BindingSlot
	Buffer  Buffer
	Surface Surface
}

type DispatchDescriptor struct {
	Entry    EntryPoint
	Groups   GroupCount
	Bindings []Binding
}
