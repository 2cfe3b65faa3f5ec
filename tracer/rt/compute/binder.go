package compute

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gekko3d/tinyrt"
)

// Binder owns the buffers it allocates for one kernel and keeps the kernel's
// binding table in sync with them. Images bound through SetImage stay owned by
// the caller.
type Binder struct {
	device  Device
	kernel  *Kernel
	buffers map[string]Buffer
	logger  tinyrt.Logger
}

type BinderOption func(*Binder)

func WithBinderLogger(l tinyrt.Logger) BinderOption {
	return func(b *Binder) { b.logger = tinyrt.OrNop(l) }
}

func NewBinder(device Device, kernel *Kernel, opts ...BinderOption) (*Binder, error) {
	if device == nil {
		return nil, errors.New("compute: binder needs a device")
	}
	if kernel == nil {
		return nil, errors.New("compute: binder needs a kernel")
	}
	b := &Binder{
		device:  device,
		kernel:  kernel,
		buffers: make(map[string]Buffer),
		logger:  tinyrt.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

func (b *Binder) Kernel() *Kernel { return b.kernel }

// SetBuffer uploads records into a new buffer of the given kind and binds it
// to the kernel under name. A buffer already tracked under name is released
// first.
func SetBuffer[T any](b *Binder, name string, records []T, kind BufferKind) error {
	stride, err := RecordStride[T]()
	if err != nil {
		return &AllocationError{Name: name, Count: len(records), Reason: err.Error()}
	}
	if len(records) == 0 {
		return &AllocationError{Name: name, Stride: stride, Reason: "no records"}
	}
	if size := stride * len(records); size > kind.maxSize() {
		return &AllocationError{
			Name:   name,
			Count:  len(records),
			Stride: stride,
			Reason: fmt.Sprintf("%d bytes exceeds the %s buffer limit of %d", size, kind, kind.maxSize()),
		}
	}
	if slot, ok := b.kernel.slot(name); ok && !slot.AcceptsBuffer(kind) {
		return fmt.Errorf("%w: %q is declared as %s, got a %s buffer", ErrBindingKind, name, slot.Kind, kind)
	}

	data, _, err := EncodeRecords(records)
	if err != nil {
		return &AllocationError{Name: name, Count: len(records), Stride: stride, Reason: "encode records", Err: err}
	}
	buf, err := b.device.CreateBuffer(BufferDescriptor{
		Label:    name,
		Kind:     kind,
		Stride:   stride,
		Count:    len(records),
		Contents: data,
	})
	if err != nil {
		return &AllocationError{Name: name, Count: len(records), Stride: stride, Reason: "device refused buffer", Err: err}
	}

	b.drop(name)
	declared, err := b.kernel.bindBuffer(name, buf)
	if err != nil {
		buf.Release()
		return err
	}
	if !declared {
		b.logger.Debugf("binder: %q is not declared by kernel %q, bound anyway", name, b.kernel.Name())
	}
	b.buffers[name] = buf
	return nil
}

// SetUniform binds value as a one-record uniform buffer.
func SetUniform[T any](b *Binder, name string, value T) error {
	return SetBuffer(b, name, []T{value}, BufferUniform)
}

// GetBuffer reads a tracked buffer back and decodes it as T records. It blocks
// until the device has finished writing the buffer.
func GetBuffer[T any](b *Binder, name string) ([]T, error) {
	buf, ok := b.buffers[name]
	if !ok {
		return nil, &NotBoundError{Kernel: b.kernel.Name(), Name: name}
	}
	stride, err := RecordStride[T]()
	if err != nil {
		return nil, err
	}
	if stride != buf.Stride() {
		var zero T
		return nil, fmt.Errorf("%w: %q holds %d-byte records, %T is %d bytes", ErrRecordStride, name, buf.Stride(), zero, stride)
	}
	data, err := b.device.ReadBuffer(buf)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", name, err)
	}
	out, err := DecodeRecords[T](data)
	if err != nil {
		return nil, fmt.Errorf("decode %q: %w", name, err)
	}
	if len(out) > buf.Count() {
		out = out[:buf.Count()]
	}
	return out, nil
}

// SetImage binds a caller-owned surface under name. The binder never releases it.
func (b *Binder) SetImage(name string, s Surface) error {
	if s == nil {
		return fmt.Errorf("compute: nil image for %q", name)
	}
	if slot, ok := b.kernel.slot(name); ok && !slot.AcceptsSurface() {
		return fmt.Errorf("%w: %q is declared as %s, got an image", ErrBindingKind, name, slot.Kind)
	}
	b.drop(name)
	declared, err := b.kernel.bindSurface(name, s)
	if err != nil {
		return err
	}
	if !declared {
		b.logger.Debugf("binder: image %q is not declared by kernel %q, bound anyway", name, b.kernel.Name())
	}
	return nil
}

// UnbindImage removes an image binding made with SetImage without releasing it.
func (b *Binder) UnbindImage(name string) {
	if _, tracked := b.buffers[name]; tracked {
		return
	}
	b.kernel.unbind(name)
}

func (b *Binder) ReleaseBuffer(name string) error {
	if _, ok := b.buffers[name]; !ok {
		return &NotBoundError{Kernel: b.kernel.Name(), Name: name}
	}
	b.drop(name)
	return nil
}

// ReleaseAll releases every tracked buffer and unbinds it. Images bound with
// SetImage stay bound.
func (b *Binder) ReleaseAll() {
	for name := range b.buffers {
		b.drop(name)
	}
}

func (b *Binder) HasBuffer(name string) bool {
	_, ok := b.buffers[name]
	return ok
}

// Names returns the tracked buffer names, sorted.
func (b *Binder) Names() []string {
	names := make([]string, 0, len(b.buffers))
	for n := range b.buffers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (b *Binder) Len() int { return len(b.buffers) }

func (b *Binder) drop(name string) {
	buf, ok := b.buffers[name]
	if !ok {
		return
	}
	delete(b.buffers, name)
	b.kernel.unbind(name)
	buf.Release()
}
