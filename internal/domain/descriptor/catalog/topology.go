package catalog

import (
	"github.com/turtacn/moldesc/internal/domain/descriptor"
	"github.com/turtacn/moldesc/internal/domain/molecule"
	pkgerrors "github.com/turtacn/moldesc/pkg/errors"
)

// Matrix is the topological distance matrix between heavy atoms, in bonds.
type Matrix struct {
	D [][]int
}

// Eccentricities returns the largest distance from each atom.
func (m *Matrix) Eccentricities() []int {
	out := make([]int, len(m.D))
	for i, row := range m.D {
		for _, d := range row {
			if d > out[i] {
				out[i] = d
			}
		}
	}
	return out
}

type distanceMatrix struct{ descriptor.Base }

// DistanceMatrix is the shared intermediate of the topological descriptors.
// A disconnected molecule has no finite matrix and yields a missing value.
func DistanceMatrix() descriptor.Descriptor {
	return &distanceMatrix{Base: descriptor.NewBase("DistanceMatrix", "DistanceMatrix")}
}

func (d *distanceMatrix) Dependencies() []descriptor.Descriptor { return nil }

func (d *distanceMatrix) Calculate(ctx *descriptor.Context, _ []descriptor.Value) (descriptor.Value, error) {
	mol := ctx.Mol()
	atoms := mol.Atoms()
	heavy := make([]int, 0, len(atoms))
	index := make(map[int]int, len(atoms))
	for i, a := range atoms {
		if a.AtomicNum != 1 {
			index[i] = len(heavy)
			heavy = append(heavy, i)
		}
	}
	if len(heavy) == 0 {
		return nil, descriptor.MissingValueError("molecule has no heavy atoms")
	}

	n := len(heavy)
	dist := make([][]int, n)
	queue := make([]int, 0, n)
	for s := 0; s < n; s++ {
		row := make([]int, n)
		for i := range row {
			row[i] = -1
		}
		row[s] = 0
		queue = append(queue[:0], heavy[s])
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, nb := range mol.Neighbors(cur) {
				j, ok := index[nb]
				if !ok || row[j] >= 0 {
					continue
				}
				row[j] = row[index[cur]] + 1
				queue = append(queue, nb)
			}
		}
		for _, v := range row {
			if v < 0 {
				return nil, descriptor.MissingValueError("molecule is not connected")
			}
		}
		dist[s] = row
	}
	return &Matrix{D: dist}, nil
}

// matrixFrom unpacks the DistanceMatrix dependency.
func matrixFrom(deps []descriptor.Value) (*Matrix, *descriptor.Missing) {
	if m := descriptor.FirstMissing(deps); m != nil {
		return nil, m
	}
	return deps[0].(*Matrix), nil
}

type wienerIndex struct {
	descriptor.Base
	polarity bool
}

// WienerIndex is the sum of all pairwise topological distances (WPath) or,
// with polarity, the number of atom pairs three bonds apart (WPol).
func WienerIndex(polarity bool) descriptor.Descriptor {
	name := "WPath"
	if polarity {
		name = "WPol"
	}
	return &wienerIndex{
		Base:     descriptor.NewBase("WienerIndex", name, descriptor.Arg{Name: "polarity", Value: polarity}),
		polarity: polarity,
	}
}

func (d *wienerIndex) Dependencies() []descriptor.Descriptor {
	return []descriptor.Descriptor{DistanceMatrix()}
}

func (d *wienerIndex) Calculate(_ *descriptor.Context, deps []descriptor.Value) (descriptor.Value, error) {
	m, missing := matrixFrom(deps)
	if missing != nil {
		return missing, nil
	}
	total := 0
	for i := range m.D {
		for j := i + 1; j < len(m.D); j++ {
			if d.polarity {
				if m.D[i][j] == 3 {
					total++
				}
			} else {
				total += m.D[i][j]
			}
		}
	}
	return total, nil
}

type eccentricity struct {
	descriptor.Base
	max bool
}

// Diameter is the largest eccentricity of the heavy-atom graph.
func Diameter() descriptor.Descriptor {
	return &eccentricity{Base: descriptor.NewBase("Diameter", "Diameter"), max: true}
}

// Radius is the smallest eccentricity of the heavy-atom graph.
func Radius() descriptor.Descriptor {
	return &eccentricity{Base: descriptor.NewBase("Radius", "Radius")}
}

func (d *eccentricity) Dependencies() []descriptor.Descriptor {
	return []descriptor.Descriptor{DistanceMatrix()}
}

func (d *eccentricity) Calculate(_ *descriptor.Context, deps []descriptor.Value) (descriptor.Value, error) {
	m, missing := matrixFrom(deps)
	if missing != nil {
		return missing, nil
	}
	ecc := m.Eccentricities()
	best := ecc[0]
	for _, e := range ecc[1:] {
		if (d.max && e > best) || (!d.max && e < best) {
			best = e
		}
	}
	return best, nil
}

type zagrebIndex struct {
	descriptor.Base
	version int
}

// ZagrebIndex is the first (sum of squared heavy-atom degrees) or second
// (sum over heavy bonds of degree products) Zagreb index.
func ZagrebIndex(version int) (descriptor.Descriptor, error) {
	if version != 1 && version != 2 {
		return nil, pkgerrors.Newf(pkgerrors.ErrCodeInvalidDescriptorArgs, "Zagreb index version must be 1 or 2, got %d", version)
	}
	name := "Zagreb1"
	if version == 2 {
		name = "Zagreb2"
	}
	return &zagrebIndex{
		Base:    descriptor.NewBase("ZagrebIndex", name, descriptor.Arg{Name: "version", Value: version}),
		version: version,
	}, nil
}

func (d *zagrebIndex) Dependencies() []descriptor.Descriptor { return nil }

func (d *zagrebIndex) Calculate(ctx *descriptor.Context, _ []descriptor.Value) (descriptor.Value, error) {
	mol := ctx.Mol()
	deg := heavyDegrees(mol)
	total := 0
	if d.version == 1 {
		for _, v := range deg {
			total += v * v
		}
		return total, nil
	}
	atoms := mol.Atoms()
	for _, b := range mol.Bonds() {
		if atoms[b.Begin].AtomicNum == 1 || atoms[b.End].AtomicNum == 1 {
			continue
		}
		total += deg[b.Begin] * deg[b.End]
	}
	return total, nil
}

// heavyDegrees counts heavy neighbours per atom; hydrogens get 0.
func heavyDegrees(mol molecule.Molecule) []int {
	atoms := mol.Atoms()
	deg := make([]int, len(atoms))
	for i, a := range atoms {
		if a.AtomicNum == 1 {
			continue
		}
		for _, nb := range mol.Neighbors(i) {
			if atoms[nb].AtomicNum != 1 {
				deg[i]++
			}
		}
	}
	return deg
}

var topologyModule = &descriptor.Module{
	Name: "topology",
	Doc:  "distance-matrix based topological indices",
	Classes: []*descriptor.Class{
		{
			Name: "DistanceMatrix",
			Doc:  "topological distance matrix (intermediate)",
			New: func(args descriptor.ArgMap) (descriptor.Descriptor, error) {
				if err := args.Only(); err != nil {
					return nil, err
				}
				return DistanceMatrix(), nil
			},
		},
		{
			Name: "WienerIndex",
			Doc:  "Wiener index",
			Presets: func() []descriptor.Descriptor {
				return []descriptor.Descriptor{WienerIndex(false), WienerIndex(true)}
			},
			New: func(args descriptor.ArgMap) (descriptor.Descriptor, error) {
				if err := args.Only("polarity"); err != nil {
					return nil, err
				}
				p, err := args.Bool("polarity", false)
				if err != nil {
					return nil, err
				}
				return WienerIndex(p), nil
			},
		},
		{
			Name:    "Diameter",
			Doc:     "topological diameter",
			Presets: func() []descriptor.Descriptor { return []descriptor.Descriptor{Diameter()} },
			New: func(args descriptor.ArgMap) (descriptor.Descriptor, error) {
				if err := args.Only(); err != nil {
					return nil, err
				}
				return Diameter(), nil
			},
		},
		{
			Name:    "Radius",
			Doc:     "topological radius",
			Presets: func() []descriptor.Descriptor { return []descriptor.Descriptor{Radius()} },
			New: func(args descriptor.ArgMap) (descriptor.Descriptor, error) {
				if err := args.Only(); err != nil {
					return nil, err
				}
				return Radius(), nil
			},
		},
		{
			Name: "ZagrebIndex",
			Doc:  "Zagreb index",
			Presets: func() []descriptor.Descriptor {
				return []descriptor.Descriptor{mustDescriptor(ZagrebIndex(1)), mustDescriptor(ZagrebIndex(2))}
			},
			New: func(args descriptor.ArgMap) (descriptor.Descriptor, error) {
				if err := args.Only("version"); err != nil {
					return nil, err
				}
				v, err := args.Int("version", 1)
				if err != nil {
					return nil, err
				}
				return ZagrebIndex(v)
			},
		},
	},
}
