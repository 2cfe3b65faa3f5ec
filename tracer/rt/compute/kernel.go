package compute

import (
	"fmt"
)

// Kernel is one compute entry point of a compiled program, together with the
// resources currently bound to it. Bound resources are borrowed: the kernel
// never releases them.
type Kernel struct {
	program  Program
	entry    EntryPoint
	bindings map[string]Binding
}

// KernelKey identifies a kernel by program identity and entry point index.
type KernelKey struct {
	Program Program
	Index   int
}

// Bind looks up the entry point name in program and caches its work-group size.
func Bind(program Program, name string) (*Kernel, error) {
	if program == nil {
		return nil, &KernelNotFoundError{Name: name}
	}
	entry, ok := program.Layout().EntryPoint(name)
	if !ok {
		return nil, &KernelNotFoundError{Program: program.Label(), Name: name}
	}
	for i, v := range entry.WorkgroupSize {
		if v == 0 {
			entry.WorkgroupSize[i] = 1
		}
	}
	return &Kernel{
		program:  program,
		entry:    entry,
		bindings: make(map[string]Binding),
	}, nil
}

func (k *Kernel) Name() string      { return k.entry.Name }
func (k *Kernel) Index() int        { return k.entry.Index }
func (k *Kernel) Program() Program  { return k.program }
func (k *Kernel) Entry() EntryPoint { return k.entry }
func (k *Kernel) Key() KernelKey    { return KernelKey{Program: k.program, Index: k.entry.Index} }
func (k *Kernel) Uses() []string    { return append([]string(nil), k.entry.Uses...) }
func (k *Kernel) IsBound(n string) bool {
	_, ok := k.bindings[n]
	return ok
}

// ThreadsCount returns the local work-group size declared by the program.
func (k *Kernel) ThreadsCount() [3]uint32 { return k.entry.WorkgroupSize }

// Equal reports whether both kernels are the same entry point of the same program.
func (k *Kernel) Equal(other *Kernel) bool {
	if k == nil || other == nil {
		return k == other
	}
	return k.Key() == other.Key()
}

// Dispatch enqueues groups[0] x groups[1] x groups[2] work groups. It returns once
// the work is enqueued, not once it has executed.
func (k *Kernel) Dispatch(groups GroupCount) error {
	for i, g := range groups {
		if g > MaxWorkgroupsPerDimension {
			return fmt.Errorf("%w: kernel %q group count %s exceeds %d in dimension %d",
				ErrDispatchLimit, k.Name(), groups, MaxWorkgroupsPerDimension, i)
		}
	}
	bindings := make([]Binding, 0, len(k.entry.Uses))
	for _, name := range k.entry.Uses {
		b, ok := k.bindings[name]
		if !ok {
			return &NotBoundError{Kernel: k.Name(), Name: name}
		}
		bindings = append(bindings, b)
	}
	if err := k.program.Dispatch(DispatchDescriptor{Entry: k.entry, Groups: groups, Bindings: bindings}); err != nil {
		return fmt.Errorf("dispatch %q: %w", k.Name(), err)
	}
	return nil
}

func (k *Kernel) slot(name string) (BindingSlot, bool) {
	slot, ok := k.program.Layout().Binding(name)
	if !ok {
		slot = BindingSlot{Name: name}
	}
	return slot, ok
}

func (k *Kernel) bindBuffer(name string, buf Buffer) (declared bool, err error) {
	slot, declared := k.slot(name)
	if declared && !slot.AcceptsBuffer(buf.Kind()) {
		return true, fmt.Errorf("%w: %q is declared as %s, got a %s buffer", ErrBindingKind, name, slot.Kind, buf.Kind())
	}
	k.bindings[name] = Binding{Slot: slot, Buffer: buf}
	return declared, nil
}

func (k *Kernel) bindSurface(name string, s Surface) (declared bool, err error) {
	slot, declared := k.slot(name)
	if declared && !slot.AcceptsSurface() {
		return true, fmt.Errorf("%w: %q is declared as %s, got an image", ErrBindingKind, name, slot.Kind)
	}
	k.bindings[name] = Binding{Slot: slot, Surface: s}
	return declared, nil
}

func (k *Kernel) unbind(name string) {
	delete(k.bindings, name)
}

// KernelCache dedupes Bind lookups per program and kernel name.
type KernelCache struct {
	kernels map[kernelCacheKey]*Kernel
}

type kernelCacheKey struct {
	program Program
	name    string
}

func NewKernelCache() *KernelCache {
	return &KernelCache{kernels: make(map[kernelCacheKey]*Kernel)}
}

// Get returns the cached kernel for (program, name), binding it on first use.
func (c *KernelCache) Get(program Program, name string) (*Kernel, error) {
	key := kernelCacheKey{program: program, name: name}
	if k, ok := c.kernels[key]; ok {
		return k, nil
	}
	k, err := Bind(program, name)
	if err != nil {
		return nil, err
	}
	c.kernels[key] = k
	return k, nil
}

// Forget drops every kernel of program, typically right before releasing it.
func (c *KernelCache) Forget(program Program) {
	for key := range c.kernels {
		if key.program == program {
			delete(c.kernels, key)
		}
	}
}

func (c *KernelCache) Len() int { return len(c.kernels) }
