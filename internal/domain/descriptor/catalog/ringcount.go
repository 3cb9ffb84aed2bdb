package catalog

import (
	"github.com/turtacn/moldesc/internal/domain/descriptor"
	"github.com/turtacn/moldesc/internal/domain/molecule"
)

type ringCount struct{ descriptor.Base }

// RingCount is the cyclomatic number: bonds - atoms + fragments.
func RingCount() descriptor.Descriptor {
	return &ringCount{Base: descriptor.NewBase("RingCount", "nRing")}
}

func (d *ringCount) Dependencies() []descriptor.Descriptor { return nil }

func (d *ringCount) Calculate(ctx *descriptor.Context, _ []descriptor.Value) (descriptor.Value, error) {
	mol := ctx.Mol()
	return len(mol.Bonds()) - len(mol.Atoms()) + molecule.NumComponents(mol), nil
}

var ringCountClass = &descriptor.Class{
	Name:    "RingCount",
	Doc:     "number of rings",
	Presets: func() []descriptor.Descriptor { return []descriptor.Descriptor{RingCount()} },
	New: func(args descriptor.ArgMap) (descriptor.Descriptor, error) {
		if err := args.Only(); err != nil {
			return nil, err
		}
		return RingCount(), nil
	},
}

var ringCountModule = &descriptor.Module{
	Name:    "ringcount",
	Doc:     "ring counts",
	Classes: []*descriptor.Class{ringCountClass},
}
