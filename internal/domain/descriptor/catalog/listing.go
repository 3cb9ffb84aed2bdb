package catalog

import (
	"github.com/turtacn/moldesc/internal/domain/descriptor"
	pkgerrors "github.com/turtacn/moldesc/pkg/errors"
)

// Entry describes one preset descriptor for listings.
type Entry struct {
	Name   string         `json:"name"`
	Class  string         `json:"class"`
	Module string         `json:"module"`
	Doc    string         `json:"doc,omitempty"`
	JSON   map[string]any `json:"json"`
}

// Entries lists the presets of the named modules, or of every module when
// none is given, in presentation order.
func Entries(modules ...string) ([]Entry, error) {
	mods := AllModules()
	if len(modules) > 0 {
		mods = nil
		for _, name := range modules {
			m, ok := Module(name)
			if !ok {
				return nil, pkgerrors.InvalidParam("unknown descriptor module").WithDetail(name)
			}
			mods = append(mods, m)
		}
	}

	var out []Entry
	for _, m := range mods {
		m.Walk(func(mod *descriptor.Module) {
			for _, cls := range mod.Classes {
				if cls.Presets == nil {
					continue
				}
				for _, d := range cls.Presets() {
					out = append(out, Entry{
						Name:   d.String(),
						Class:  cls.Name,
						Module: mod.Name,
						Doc:    cls.Doc,
						JSON:   descriptor.ToJSON(d),
					})
				}
			}
		})
	}
	return out, nil
}

// Describe returns the entry of the preset named name.
func Describe(name string) (Entry, bool) {
	entries, _ := Entries()
	for _, e := range entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}
