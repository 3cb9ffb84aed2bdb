package catalog

import (
	"github.com/turtacn/moldesc/internal/domain/descriptor"
	"github.com/turtacn/moldesc/internal/domain/molecule"
	pkgerrors "github.com/turtacn/moldesc/pkg/errors"
)

var bondCountTypes = []struct {
	typ    string
	suffix string
}{
	{"any", ""},
	{"heavy", "O"},
	{"single", "S"},
	{"double", "D"},
	{"triple", "T"},
	{"aromatic", "A"},
	{"multiple", "M"},
}

type bondCount struct {
	descriptor.Base
	typ      string
	kekulize bool
}

// BondCount counts bonds of a kind, hydrogens included. With kekulize set,
// aromatic bonds are first assigned alternating single and double orders.
func BondCount(typ string, kekulize bool) (descriptor.Descriptor, error) {
	for _, t := range bondCountTypes {
		if t.typ != typ {
			continue
		}
		if kekulize && typ == "aromatic" {
			return nil, pkgerrors.New(pkgerrors.ErrCodeInvalidDescriptorArgs, "aromatic bond count of kekulized molecule is always zero")
		}
		name := "nBonds"
		if kekulize {
			name += "K"
		}
		name += t.suffix
		return &bondCount{
			Base: descriptor.NewBase("BondCount", name,
				descriptor.Arg{Name: "type", Value: typ},
				descriptor.Arg{Name: "kekulize", Value: kekulize}),
			typ:      typ,
			kekulize: kekulize,
		}, nil
	}
	return nil, pkgerrors.Newf(pkgerrors.ErrCodeInvalidDescriptorArgs, "unknown bond type %q", typ)
}

func (d *bondCount) Dependencies() []descriptor.Descriptor { return nil }

func (d *bondCount) Calculate(ctx *descriptor.Context, _ []descriptor.Value) (descriptor.Value, error) {
	mol := ctx.Mol()
	bonds := mol.Bonds()
	orders := make([]molecule.BondOrder, len(bonds))
	for i, b := range bonds {
		orders[i] = b.Order
	}
	if d.kekulize {
		k, err := molecule.Kekulize(mol)
		if err != nil {
			return nil, err
		}
		orders = k
	}

	atoms := mol.Atoms()
	hBonds := implicitH(mol)
	n := 0
	switch d.typ {
	case "any":
		return len(bonds) + hBonds, nil
	case "single":
		n = hBonds
	}
	for i, b := range bonds {
		switch d.typ {
		case "heavy":
			if atoms[b.Begin].AtomicNum != 1 && atoms[b.End].AtomicNum != 1 {
				n++
			}
		case "single":
			if orders[i] == molecule.OrderSingle {
				n++
			}
		case "double":
			if orders[i] == molecule.OrderDouble {
				n++
			}
		case "triple":
			if orders[i] == molecule.OrderTriple {
				n++
			}
		case "aromatic":
			if orders[i] == molecule.OrderAromatic {
				n++
			}
		case "multiple":
			if orders[i] != molecule.OrderSingle {
				n++
			}
		}
	}
	return n, nil
}

var bondCountClass = &descriptor.Class{
	Name: "BondCount",
	Doc:  "number of bonds of a given type",
	Presets: func() []descriptor.Descriptor {
		var out []descriptor.Descriptor
		for _, kekulize := range []bool{false, true} {
			for _, t := range bondCountTypes {
				if kekulize && t.typ == "aromatic" {
					continue
				}
				out = append(out, mustDescriptor(BondCount(t.typ, kekulize)))
			}
		}
		return out
	},
	New: func(args descriptor.ArgMap) (descriptor.Descriptor, error) {
		if err := args.Only("type", "kekulize"); err != nil {
			return nil, err
		}
		typ, err := args.String("type", "any")
		if err != nil {
			return nil, err
		}
		kekulize, err := args.Bool("kekulize", false)
		if err != nil {
			return nil, err
		}
		return BondCount(typ, kekulize)
	},
}

var bondCountModule = &descriptor.Module{
	Name:    "bondcount",
	Doc:     "bond counts",
	Classes: []*descriptor.Class{bondCountClass},
}
