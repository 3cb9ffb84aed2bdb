package catalog

import (
	"fmt"
	"math"

	"github.com/turtacn/moldesc/internal/domain/descriptor"
	"github.com/turtacn/moldesc/internal/domain/molecule"
)

type coordinates struct{ descriptor.Base }

// Coordinates is the intermediate holding the 3D positions of the selected
// conformer. 2D or absent coordinates yield a missing value.
func Coordinates() descriptor.Descriptor {
	return &coordinates{Base: descriptor.NewBase("Coordinates", "Coordinates")}
}

func (d *coordinates) Dependencies() []descriptor.Descriptor { return nil }

func (d *coordinates) Calculate(ctx *descriptor.Context, _ []descriptor.Value) (descriptor.Value, error) {
	conf, err := ctx.Conformer()
	if err != nil {
		return nil, err
	}
	if !conf.Is3D {
		return nil, descriptor.MissingValueError("missing 3D coordinate")
	}
	return conf.Positions, nil
}

func positionsFrom(deps []descriptor.Value) ([]molecule.Point, *descriptor.Missing) {
	if m := descriptor.FirstMissing(deps); m != nil {
		return nil, m
	}
	return deps[0].([]molecule.Point), nil
}

func distance(a, b molecule.Point) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

type radiusOfGyration struct{ descriptor.Base }

// RadiusOfGyration is the mass-weighted root mean square distance of the
// explicit atoms from their centre of mass.
func RadiusOfGyration() descriptor.Descriptor {
	return &radiusOfGyration{Base: descriptor.NewBase("RadiusOfGyration", "RadiusOfGyration")}
}

func (d *radiusOfGyration) Dependencies() []descriptor.Descriptor {
	return []descriptor.Descriptor{Coordinates()}
}

func (d *radiusOfGyration) Calculate(ctx *descriptor.Context, deps []descriptor.Value) (descriptor.Value, error) {
	pos, missing := positionsFrom(deps)
	if missing != nil {
		return missing, nil
	}
	atoms := ctx.Mol().Atoms()
	masses := make([]float64, len(atoms))
	var total float64
	var c molecule.Point
	for i, a := range atoms {
		e, ok := molecule.ElementByNumber(a.AtomicNum)
		if !ok {
			return nil, fmt.Errorf("no mass for atomic number %d", a.AtomicNum)
		}
		masses[i] = e.Mass
		total += e.Mass
		c.X += e.Mass * pos[i].X
		c.Y += e.Mass * pos[i].Y
		c.Z += e.Mass * pos[i].Z
	}
	if total == 0 {
		return nil, descriptor.MissingValueError("molecule has no atoms")
	}
	c.X, c.Y, c.Z = c.X/total, c.Y/total, c.Z/total

	var s float64
	for i, p := range pos {
		r := distance(p, c)
		s += masses[i] * r * r
	}
	return math.Sqrt(s / total), nil
}

type geometricalDiameter struct{ descriptor.Base }

// GeometricalDiameter is the largest interatomic distance.
func GeometricalDiameter() descriptor.Descriptor {
	return &geometricalDiameter{Base: descriptor.NewBase("GeometricalDiameter", "GeomDiameter")}
}

func (d *geometricalDiameter) Dependencies() []descriptor.Descriptor {
	return []descriptor.Descriptor{Coordinates()}
}

func (d *geometricalDiameter) Calculate(_ *descriptor.Context, deps []descriptor.Value) (descriptor.Value, error) {
	pos, missing := positionsFrom(deps)
	if missing != nil {
		return missing, nil
	}
	var best float64
	for i := range pos {
		for j := i + 1; j < len(pos); j++ {
			if r := distance(pos[i], pos[j]); r > best {
				best = r
			}
		}
	}
	return best, nil
}

func noArgs(ctor func() descriptor.Descriptor) func(descriptor.ArgMap) (descriptor.Descriptor, error) {
	return func(args descriptor.ArgMap) (descriptor.Descriptor, error) {
		if err := args.Only(); err != nil {
			return nil, err
		}
		return ctor(), nil
	}
}

var geometryModule = &descriptor.Module{
	Name: "geometry",
	Doc:  "3D shape descriptors",
	Classes: []*descriptor.Class{
		{Name: "Coordinates", Doc: "conformer coordinates (intermediate)", New: noArgs(Coordinates)},
		{
			Name:    "RadiusOfGyration",
			Doc:     "mass-weighted radius of gyration",
			Presets: func() []descriptor.Descriptor { return []descriptor.Descriptor{RadiusOfGyration()} },
			New:     noArgs(RadiusOfGyration),
		},
		{
			Name:    "GeometricalDiameter",
			Doc:     "largest interatomic distance",
			Presets: func() []descriptor.Descriptor { return []descriptor.Descriptor{GeometricalDiameter()} },
			New:     noArgs(GeometricalDiameter),
		},
	},
}
