// Package catalog provides the built-in descriptor modules and the
// process-wide registry used to decode descriptors from JSON.
package catalog

import (
	"sync"

	"github.com/turtacn/moldesc/internal/domain/descriptor"
)

var (
	registryOnce sync.Once
	registry     *descriptor.Registry
	registryErr  error
)

// mustDescriptor panics on constructor errors in preset lists, whose
// arguments are fixed.
func mustDescriptor(d descriptor.Descriptor, err error) descriptor.Descriptor {
	if err != nil {
		panic(err)
	}
	return d
}

// Root returns the module grouping every built-in descriptor module.
func Root() *descriptor.Module {
	return &descriptor.Module{
		Name:       "descriptors",
		Doc:        "built-in molecular descriptors",
		Submodules: AllModules(),
	}
}

// AllModules returns the built-in modules in presentation order.
func AllModules() []*descriptor.Module {
	return []*descriptor.Module{
		atomCountModule,
		bondCountModule,
		weightModule,
		ringCountModule,
		topologyModule,
		geometryModule,
	}
}

// Module returns the built-in module named name.
func Module(name string) (*descriptor.Module, bool) {
	for _, m := range AllModules() {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}

// Registry returns the registry of every built-in class. It is built once on
// first use.
func Registry() (*descriptor.Registry, error) {
	registryOnce.Do(func() {
		registry, registryErr = descriptor.NewRegistryFromModule(Root())
	})
	return registry, registryErr
}

// FromJSON decodes a descriptor using the built-in registry.
func FromJSON(obj map[string]any) (descriptor.Descriptor, error) {
	r, err := Registry()
	if err != nil {
		return nil, err
	}
	return r.FromJSON(obj)
}

// UnmarshalDescriptor decodes JSON bytes using the built-in registry.
func UnmarshalDescriptor(data []byte) (descriptor.Descriptor, error) {
	r, err := Registry()
	if err != nil {
		return nil, err
	}
	return r.UnmarshalDescriptor(data)
}

// CalculatorFromJSON rebuilds a Calculator from a descriptor list.
func CalculatorFromJSON(objs []map[string]any, opts ...descriptor.Option) (*descriptor.Calculator, error) {
	r, err := Registry()
	if err != nil {
		return nil, err
	}
	return r.CalculatorFromJSON(objs, opts...)
}

// All returns every preset descriptor of every built-in module.
func All() []descriptor.Descriptor {
	ds, err := descriptor.DescriptorsFromModule(Root(), true)
	if err != nil {
		panic(err)
	}
	return ds
}

// Lookup finds a preset descriptor by its column name.
func Lookup(name string) (descriptor.Descriptor, bool) {
	for _, d := range All() {
		if d.String() == name {
			return d, true
		}
	}
	return nil, false
}
