package catalog

import (
	"github.com/turtacn/moldesc/internal/domain/descriptor"
	"github.com/turtacn/moldesc/internal/domain/molecule"
	pkgerrors "github.com/turtacn/moldesc/pkg/errors"
)

// atomCountTypes lists the AtomCount presets in order with their column
// names.
var atomCountTypes = []struct {
	typ  string
	name string
}{
	{"X", "nAtom"},
	{"HeavyAtom", "nHeavyAtom"},
	{"H", "nH"},
	{"C", "nC"},
	{"N", "nN"},
	{"O", "nO"},
	{"S", "nS"},
	{"P", "nP"},
	{"F", "nF"},
	{"Cl", "nCl"},
	{"Br", "nBr"},
	{"I", "nI"},
	{"Hetero", "nHetero"},
	{"Aromatic", "nAromAtom"},
}

type atomCount struct {
	descriptor.Base
	typ string
}

// AtomCount counts atoms of a kind. type is one of X (all atoms including
// hydrogens), HeavyAtom, an element symbol, Hetero (neither C nor H) or
// Aromatic.
func AtomCount(typ string) (descriptor.Descriptor, error) {
	for _, t := range atomCountTypes {
		if t.typ == typ {
			return &atomCount{
				Base: descriptor.NewBase("AtomCount", t.name, descriptor.Arg{Name: "type", Value: typ}),
				typ:  typ,
			}, nil
		}
	}
	return nil, pkgerrors.Newf(pkgerrors.ErrCodeInvalidDescriptorArgs, "unknown atom type %q", typ)
}

func (d *atomCount) Dependencies() []descriptor.Descriptor { return nil }

func (d *atomCount) Calculate(ctx *descriptor.Context, _ []descriptor.Value) (descriptor.Value, error) {
	mol := ctx.Mol()
	switch d.typ {
	case "X":
		return len(mol.Atoms()) + implicitH(mol), nil
	case "HeavyAtom":
		return molecule.NumHeavyAtoms(mol), nil
	case "H":
		return molecule.TotalHydrogens(mol), nil
	}

	n := 0
	for _, a := range mol.Atoms() {
		switch d.typ {
		case "Hetero":
			if a.AtomicNum != 1 && a.AtomicNum != 6 {
				n++
			}
		case "Aromatic":
			if a.Aromatic {
				n++
			}
		default:
			if a.Symbol == d.typ {
				n++
			}
		}
	}
	return n, nil
}

func implicitH(mol molecule.Molecule) int {
	n := 0
	for _, a := range mol.Atoms() {
		n += a.ImplicitH
	}
	return n
}

var atomCountClass = &descriptor.Class{
	Name: "AtomCount",
	Doc:  "number of atoms of a given type",
	Presets: func() []descriptor.Descriptor {
		out := make([]descriptor.Descriptor, 0, len(atomCountTypes))
		for _, t := range atomCountTypes {
			out = append(out, mustDescriptor(AtomCount(t.typ)))
		}
		return out
	},
	New: func(args descriptor.ArgMap) (descriptor.Descriptor, error) {
		if err := args.Only("type"); err != nil {
			return nil, err
		}
		typ, err := args.String("type", "X")
		if err != nil {
			return nil, err
		}
		return AtomCount(typ)
	},
}

var atomCountModule = &descriptor.Module{
	Name:    "atomcount",
	Doc:     "atom counts",
	Classes: []*descriptor.Class{atomCountClass},
}
