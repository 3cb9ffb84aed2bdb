package descriptor

import (
	pkgerrors "github.com/turtacn/moldesc/pkg/errors"
)

// Class describes one descriptor class: its serialized name, the preset
// instances a module exposes and the constructor used by the JSON codec.
type Class struct {
	Name string
	Doc  string
	// Presets returns the default instances of the class. Intermediate
	// classes that are never reported on their own return nil.
	Presets func() []Descriptor
	// New builds an instance from decoded arguments.
	New func(args ArgMap) (Descriptor, error)
}

// Module groups descriptor classes; modules nest through Submodules.
type Module struct {
	Name       string
	Doc        string
	Classes    []*Class
	Submodules []*Module
}

// Walk calls fn for m and, depth first, every submodule.
func (m *Module) Walk(fn func(*Module)) {
	if m == nil {
		return
	}
	fn(m)
	for _, sub := range m.Submodules {
		sub.Walk(fn)
	}
}

// ClassesFromModule returns the classes declared by m, plus those of its
// submodules when submodule is set.
func ClassesFromModule(m *Module, submodule bool) []*Class {
	if m == nil {
		return nil
	}
	if !submodule {
		return append([]*Class(nil), m.Classes...)
	}
	var out []*Class
	m.Walk(func(mod *Module) {
		out = append(out, mod.Classes...)
	})
	return out
}

// DescriptorsFromModule instantiates the presets of every class in m and,
// when submodule is set, of every nested module. A module that yields no
// descriptor is an error.
func DescriptorsFromModule(m *Module, submodule bool) ([]Descriptor, error) {
	if m == nil {
		return nil, pkgerrors.New(pkgerrors.ErrCodeEmptyModule, "module is nil")
	}
	var out []Descriptor
	for _, cls := range ClassesFromModule(m, submodule) {
		if cls.Presets == nil {
			continue
		}
		out = append(out, cls.Presets()...)
	}
	if len(out) == 0 {
		return nil, pkgerrors.Newf(pkgerrors.ErrCodeEmptyModule, "module %s has no descriptors", m.Name)
	}
	return out, nil
}
