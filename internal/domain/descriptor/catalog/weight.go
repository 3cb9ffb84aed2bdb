package catalog

import (
	"fmt"

	"github.com/turtacn/moldesc/internal/domain/descriptor"
	"github.com/turtacn/moldesc/internal/domain/molecule"
)

type weight struct {
	descriptor.Base
	averaged bool
}

// Weight is the monoisotopic molecular weight (MW) or, when averaged, that
// weight divided by the number of atoms including hydrogens (AMW).
func Weight(averaged bool) descriptor.Descriptor {
	name := "MW"
	if averaged {
		name = "AMW"
	}
	return &weight{
		Base:     descriptor.NewBase("Weight", name, descriptor.Arg{Name: "averaged", Value: averaged}),
		averaged: averaged,
	}
}

func (d *weight) Dependencies() []descriptor.Descriptor { return nil }

func (d *weight) Calculate(ctx *descriptor.Context, _ []descriptor.Value) (descriptor.Value, error) {
	h, _ := molecule.LookupElement("H")
	var mass float64
	count := 0
	for _, a := range ctx.Mol().Atoms() {
		e, ok := molecule.ElementByNumber(a.AtomicNum)
		if !ok {
			return nil, fmt.Errorf("no mass for atomic number %d", a.AtomicNum)
		}
		mass += e.ExactMass + float64(a.ImplicitH)*h.ExactMass
		count += 1 + a.ImplicitH
	}
	if !d.averaged {
		return mass, nil
	}
	if count == 0 {
		return nil, descriptor.MissingValueError("molecule has no atoms")
	}
	return mass / float64(count), nil
}

var weightClass = &descriptor.Class{
	Name: "Weight",
	Doc:  "molecular weight",
	Presets: func() []descriptor.Descriptor {
		return []descriptor.Descriptor{Weight(false), Weight(true)}
	},
	New: func(args descriptor.ArgMap) (descriptor.Descriptor, error) {
		if err := args.Only("averaged"); err != nil {
			return nil, err
		}
		averaged, err := args.Bool("averaged", false)
		if err != nil {
			return nil, err
		}
		return Weight(averaged), nil
	},
}

var weightModule = &descriptor.Module{
	Name:    "weight",
	Doc:     "molecular weight",
	Classes: []*descriptor.Class{weightClass},
}
