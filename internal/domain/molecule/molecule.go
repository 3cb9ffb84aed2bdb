// Package molecule defines the molecule abstraction consumed by the
// descriptor engine together with a small in-memory graph implementation
// and readers for SMILES strings and V2000 MDL molblocks.
package molecule

import (
	"fmt"

	pkgerrors "github.com/turtacn/moldesc/pkg/errors"
)

// BondOrder is the multiplicity of a bond.
type BondOrder int

const (
	OrderSingle   BondOrder = 1
	OrderDouble   BondOrder = 2
	OrderTriple   BondOrder = 3
	OrderAromatic BondOrder = 4
)

func (o BondOrder) String() string {
	switch o {
	case OrderSingle:
		return "single"
	case OrderDouble:
		return "double"
	case OrderTriple:
		return "triple"
	case OrderAromatic:
		return "aromatic"
	default:
		return fmt.Sprintf("BondOrder(%d)", int(o))
	}
}

// Valence returns the bond's contribution to atom valence; aromatic bonds
// count 1.5.
func (o BondOrder) Valence() float64 {
	if o == OrderAromatic {
		return 1.5
	}
	return float64(o)
}

// Atom is a heavy or explicit hydrogen atom.
type Atom struct {
	Symbol    string
	AtomicNum int
	Charge    int
	Aromatic  bool
	// ImplicitH is the number of hydrogens attached but not present as atoms.
	ImplicitH int
}

// Bond connects atoms Begin and End by index.
type Bond struct {
	Begin int
	End   int
	Order BondOrder
}

// Other returns the atom on the far side of the bond from idx.
func (b Bond) Other(idx int) int {
	if b.Begin == idx {
		return b.End
	}
	return b.Begin
}

// Point is a Cartesian coordinate in Angstrom.
type Point struct {
	X, Y, Z float64
}

// Conformer is one set of atom coordinates.
type Conformer struct {
	ID        int
	Positions []Point
	Is3D      bool
}

// ErrNoConformer is returned by Conformer when the molecule has none.
var ErrNoConformer = pkgerrors.New(pkgerrors.ErrCodeConformerNotFound, "molecule has no conformer")

// Molecule is the read-only view descriptors compute on. Implementations must
// be safe for concurrent reads.
type Molecule interface {
	Name() string
	Atoms() []Atom
	Bonds() []Bond
	Neighbors(idx int) []int
	NumConformers() int
	// Conformer returns the conformer with the given id; -1 selects the
	// first one.
	Conformer(id int) (Conformer, error)
}

// Graph is the in-memory Molecule built by the readers in this package.
type Graph struct {
	name       string
	atoms      []Atom
	bonds      []Bond
	adj        [][]int
	conformers []Conformer
	props      map[string]string
}

var _ Molecule = (*Graph)(nil)

// NewGraph builds a Graph from atoms and bonds. Bond endpoints must index
// into atoms.
func NewGraph(name string, atoms []Atom, bonds []Bond) (*Graph, error) {
	g := &Graph{
		name:  name,
		atoms: append([]Atom(nil), atoms...),
		bonds: append([]Bond(nil), bonds...),
		adj:   make([][]int, len(atoms)),
		props: map[string]string{},
	}
	for i, b := range g.bonds {
		if b.Begin < 0 || b.Begin >= len(atoms) || b.End < 0 || b.End >= len(atoms) || b.Begin == b.End {
			return nil, pkgerrors.New(pkgerrors.ErrCodeMoleculeInvalidFormat, "bond references invalid atom").
				WithDetail(fmt.Sprintf("bond %d: %d-%d", i, b.Begin, b.End))
		}
		g.adj[b.Begin] = append(g.adj[b.Begin], b.End)
		g.adj[b.End] = append(g.adj[b.End], b.Begin)
	}
	return g, nil
}

func (g *Graph) Name() string            { return g.name }
func (g *Graph) Atoms() []Atom           { return g.atoms }
func (g *Graph) Bonds() []Bond           { return g.bonds }
func (g *Graph) Neighbors(idx int) []int { return g.adj[idx] }
func (g *Graph) NumConformers() int      { return len(g.conformers) }

// Conformer implements Molecule.
func (g *Graph) Conformer(id int) (Conformer, error) {
	if len(g.conformers) == 0 {
		return Conformer{}, ErrNoConformer
	}
	if id == -1 {
		return g.conformers[0], nil
	}
	for _, c := range g.conformers {
		if c.ID == id {
			return c, nil
		}
	}
	return Conformer{}, pkgerrors.Newf(pkgerrors.ErrCodeConformerNotFound, "conformer %d not found", id)
}

// AddConformer attaches coordinates. The position count must match the atom
// count.
func (g *Graph) AddConformer(c Conformer) error {
	if len(c.Positions) != len(g.atoms) {
		return pkgerrors.New(pkgerrors.ErrCodeMoleculeInvalidFormat, "conformer size mismatch").
			WithDetail(fmt.Sprintf("atoms=%d positions=%d", len(g.atoms), len(c.Positions)))
	}
	g.conformers = append(g.conformers, c)
	return nil
}

// SetName replaces the molecule title.
func (g *Graph) SetName(name string) { g.name = name }

// Prop returns an SDF data field.
func (g *Graph) Prop(key string) (string, bool) {
	v, ok := g.props[key]
	return v, ok
}

// SetProp stores an SDF data field.
func (g *Graph) SetProp(key, value string) { g.props[key] = value }

// NumHeavyAtoms counts atoms other than hydrogen.
func NumHeavyAtoms(m Molecule) int {
	n := 0
	for _, a := range m.Atoms() {
		if a.AtomicNum != 1 {
			n++
		}
	}
	return n
}

// TotalHydrogens counts explicit hydrogen atoms plus implicit hydrogens.
func TotalHydrogens(m Molecule) int {
	n := 0
	for _, a := range m.Atoms() {
		if a.AtomicNum == 1 {
			n++
		}
		n += a.ImplicitH
	}
	return n
}

// NumComponents returns the number of connected fragments.
func NumComponents(m Molecule) int {
	atoms := m.Atoms()
	seen := make([]bool, len(atoms))
	count := 0
	stack := make([]int, 0, len(atoms))
	for start := range atoms {
		if seen[start] {
			continue
		}
		count++
		seen[start] = true
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, nb := range m.Neighbors(cur) {
				if !seen[nb] {
					seen[nb] = true
					stack = append(stack, nb)
				}
			}
		}
	}
	return count
}

// AddHs returns a copy of m with implicit hydrogens turned into explicit
// hydrogen atoms bonded to their parents. Coordinates are not generated for
// the new atoms, so conformers are kept only when no hydrogen was added.
func AddHs(m Molecule) (*Graph, error) {
	src := m.Atoms()
	atoms := make([]Atom, 0, len(src)+TotalHydrogens(m))
	bonds := append([]Bond(nil), m.Bonds()...)
	for _, a := range src {
		a.ImplicitH = 0
		atoms = append(atoms, a)
	}
	added := 0
	h, _ := LookupElement("H")
	for i, a := range src {
		for k := 0; k < a.ImplicitH; k++ {
			atoms = append(atoms, Atom{Symbol: h.Symbol, AtomicNum: h.AtomicNum})
			bonds = append(bonds, Bond{Begin: i, End: len(atoms) - 1, Order: OrderSingle})
			added++
		}
	}
	g, err := NewGraph(m.Name(), atoms, bonds)
	if err != nil {
		return nil, err
	}
	if added == 0 {
		for id := 0; id < m.NumConformers(); id++ {
			if c, err := conformerAt(m, id); err == nil {
				g.conformers = append(g.conformers, c)
			}
		}
	}
	if src, ok := m.(*Graph); ok {
		for k, v := range src.props {
			g.props[k] = v
		}
	}
	return g, nil
}

// conformerAt fetches the id-th conformer of m by position.
func conformerAt(m Molecule, pos int) (Conformer, error) {
	if g, ok := m.(*Graph); ok {
		return g.conformers[pos], nil
	}
	if pos == 0 {
		return m.Conformer(-1)
	}
	return m.Conformer(pos)
}
