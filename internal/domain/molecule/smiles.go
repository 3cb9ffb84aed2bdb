package molecule

import (
	"fmt"
	"strings"
	"unicode"

	pkgerrors "github.com/turtacn/moldesc/pkg/errors"
)

// maxSMILESLength bounds accepted input.
const maxSMILESLength = 5000

// bondUnset marks "no explicit bond symbol seen".
const bondUnset BondOrder = 0

type ringOpening struct {
	atom  int
	order BondOrder
}

// smilesParser holds tokeniser state for one SMILES string.
type smilesParser struct {
	src      []rune
	pos      int
	atoms    []Atom
	bonds    []Bond
	organic  []bool
	prev     int
	branch   []int
	nextBond BondOrder
	rings    map[int]ringOpening
}

// FromSMILES parses a SMILES string into a Graph. Supported: the organic
// subset, bracket atoms with isotope, charge and hydrogen count, branches,
// ring closures (including %nn), aromatic lowercase atoms and '.' fragments.
// Stereo markers are accepted and ignored. Organic-subset atoms receive
// implicit hydrogens from their lowest default valence.
func FromSMILES(smiles string) (*Graph, error) {
	s := strings.TrimSpace(smiles)
	if s == "" {
		return nil, invalidSMILES(smiles, "empty SMILES")
	}
	if len(s) > maxSMILESLength {
		return nil, invalidSMILES(smiles, fmt.Sprintf("SMILES exceeds maximum length (%d)", maxSMILESLength))
	}
	// A SMILES may be followed by whitespace and a title.
	name := ""
	if idx := strings.IndexAny(s, " \t"); idx >= 0 {
		name = strings.TrimSpace(s[idx+1:])
		s = s[:idx]
	}

	p := &smilesParser{
		src:   []rune(s),
		prev:  -1,
		rings: map[int]ringOpening{},
	}
	if err := p.parse(); err != nil {
		return nil, invalidSMILES(smiles, err.Error())
	}
	p.assignImplicitHydrogens()

	g, err := NewGraph(name, p.atoms, p.bonds)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// MustSMILES is FromSMILES that panics on error. Intended for tests and
// package-level fixtures.
func MustSMILES(smiles string) *Graph {
	g, err := FromSMILES(smiles)
	if err != nil {
		panic(err)
	}
	return g
}

func invalidSMILES(smiles, reason string) error {
	return pkgerrors.New(pkgerrors.ErrCodeMoleculeInvalidSMILES, reason).WithDetail(smiles)
}

func (p *smilesParser) parse() error {
	for p.pos < len(p.src) {
		ch := p.src[p.pos]
		switch {
		case ch == '(':
			if p.prev < 0 {
				return fmt.Errorf("branch without preceding atom at position %d", p.pos)
			}
			p.branch = append(p.branch, p.prev)
			p.pos++

		case ch == ')':
			if len(p.branch) == 0 {
				return fmt.Errorf("unbalanced ')' at position %d", p.pos)
			}
			p.prev = p.branch[len(p.branch)-1]
			p.branch = p.branch[:len(p.branch)-1]
			p.pos++

		case ch == '-':
			p.nextBond = OrderSingle
			p.pos++
		case ch == '=':
			p.nextBond = OrderDouble
			p.pos++
		case ch == '#':
			p.nextBond = OrderTriple
			p.pos++
		case ch == ':':
			p.nextBond = OrderAromatic
			p.pos++
		case ch == '/' || ch == '\\':
			p.nextBond = OrderSingle
			p.pos++

		case ch == '.':
			if len(p.branch) > 0 {
				return fmt.Errorf("fragment separator inside branch at position %d", p.pos)
			}
			p.prev = -1
			p.nextBond = bondUnset
			p.pos++

		case ch == '%':
			if p.pos+2 >= len(p.src) || !unicode.IsDigit(p.src[p.pos+1]) || !unicode.IsDigit(p.src[p.pos+2]) {
				return fmt.Errorf("malformed ring closure at position %d", p.pos)
			}
			num := int(p.src[p.pos+1]-'0')*10 + int(p.src[p.pos+2]-'0')
			if err := p.ringClosure(num); err != nil {
				return err
			}
			p.pos += 3

		case unicode.IsDigit(ch):
			if err := p.ringClosure(int(ch - '0')); err != nil {
				return err
			}
			p.pos++

		case ch == '[':
			end := p.pos + 1
			for end < len(p.src) && p.src[end] != ']' {
				end++
			}
			if end >= len(p.src) {
				return fmt.Errorf("unclosed bracket at position %d", p.pos)
			}
			atom, err := parseBracketAtom(string(p.src[p.pos+1 : end]))
			if err != nil {
				return err
			}
			p.addAtom(atom, false)
			p.pos = end + 1

		case unicode.IsLetter(ch):
			atom, n, err := p.organicAtom()
			if err != nil {
				return err
			}
			p.addAtom(atom, true)
			p.pos += n

		default:
			return fmt.Errorf("unexpected character %q at position %d", ch, p.pos)
		}
	}

	if len(p.branch) > 0 {
		return fmt.Errorf("unclosed branch")
	}
	if len(p.rings) > 0 {
		for num := range p.rings {
			return fmt.Errorf("unclosed ring %d", num)
		}
	}
	if p.nextBond != bondUnset {
		return fmt.Errorf("dangling bond at end of input")
	}
	if len(p.atoms) == 0 {
		return fmt.Errorf("no atoms")
	}
	return nil
}

func (p *smilesParser) addAtom(a Atom, organic bool) {
	idx := len(p.atoms)
	p.atoms = append(p.atoms, a)
	p.organic = append(p.organic, organic)
	if p.prev >= 0 {
		p.bonds = append(p.bonds, Bond{Begin: p.prev, End: idx, Order: p.resolveOrder(p.nextBond, p.prev, idx)})
	}
	p.nextBond = bondUnset
	p.prev = idx
}

// resolveOrder picks the bond order for an implicit bond: aromatic between
// two aromatic atoms, single otherwise.
func (p *smilesParser) resolveOrder(explicit BondOrder, a, b int) BondOrder {
	if explicit != bondUnset {
		return explicit
	}
	if p.atoms[a].Aromatic && p.atoms[b].Aromatic {
		return OrderAromatic
	}
	return OrderSingle
}

func (p *smilesParser) ringClosure(num int) error {
	if p.prev < 0 {
		return fmt.Errorf("ring closure %d without atom at position %d", num, p.pos)
	}
	open, ok := p.rings[num]
	if !ok {
		p.rings[num] = ringOpening{atom: p.prev, order: p.nextBond}
		p.nextBond = bondUnset
		return nil
	}
	delete(p.rings, num)
	if open.atom == p.prev {
		return fmt.Errorf("ring closure %d bonds atom to itself", num)
	}
	for _, b := range p.bonds {
		if (b.Begin == open.atom && b.End == p.prev) || (b.Begin == p.prev && b.End == open.atom) {
			return fmt.Errorf("ring closure %d duplicates an existing bond", num)
		}
	}
	explicit := p.nextBond
	if explicit == bondUnset {
		explicit = open.order
	} else if open.order != bondUnset && open.order != explicit {
		return fmt.Errorf("conflicting bond orders for ring closure %d", num)
	}
	p.bonds = append(p.bonds, Bond{Begin: open.atom, End: p.prev, Order: p.resolveOrder(explicit, open.atom, p.prev)})
	p.nextBond = bondUnset
	return nil
}

// organicAtom reads an organic-subset symbol at the current position.
func (p *smilesParser) organicAtom() (Atom, int, error) {
	ch := p.src[p.pos]
	if ch == 'C' && p.pos+1 < len(p.src) && p.src[p.pos+1] == 'l' {
		return newAtom("Cl", false), 2, nil
	}
	if ch == 'B' && p.pos+1 < len(p.src) && p.src[p.pos+1] == 'r' {
		return newAtom("Br", false), 2, nil
	}
	switch ch {
	case 'B', 'C', 'N', 'O', 'P', 'S', 'F', 'I':
		return newAtom(string(ch), false), 1, nil
	case 'b', 'c', 'n', 'o', 'p', 's':
		return newAtom(string(unicode.ToUpper(ch)), true), 1, nil
	}
	return Atom{}, 0, fmt.Errorf("unknown organic-subset atom %q at position %d", ch, p.pos)
}

func newAtom(symbol string, aromatic bool) Atom {
	e, _ := LookupElement(symbol)
	return Atom{Symbol: e.Symbol, AtomicNum: e.AtomicNum, Aromatic: aromatic}
}

// parseBracketAtom parses the content inside [...]: isotope, symbol,
// chirality, hydrogen count and charge.
func parseBracketAtom(content string) (Atom, error) {
	runes := []rune(content)
	idx := 0
	for idx < len(runes) && unicode.IsDigit(runes[idx]) {
		idx++
	}
	if idx >= len(runes) || !unicode.IsLetter(runes[idx]) {
		return Atom{}, fmt.Errorf("bracket atom %q has no element", content)
	}

	aromatic := unicode.IsLower(runes[idx])
	sym := strings.ToUpper(string(runes[idx]))
	idx++
	// Second letter only when the two-letter element exists; "[nH]" and
	// "[cH]" must not read as "Nh" or "Ch".
	if idx < len(runes) && unicode.IsLower(runes[idx]) {
		if _, ok := LookupElement(sym + string(runes[idx])); ok {
			sym += string(runes[idx])
			idx++
		}
	}
	e, ok := LookupElement(sym)
	if !ok {
		return Atom{}, pkgerrors.New(pkgerrors.ErrCodeMoleculeUnknownElement, "unknown element").WithDetail(sym)
	}
	atom := Atom{Symbol: e.Symbol, AtomicNum: e.AtomicNum, Aromatic: aromatic}

	for idx < len(runes) && runes[idx] == '@' {
		idx++
	}
	if idx < len(runes) && runes[idx] == 'H' {
		idx++
		atom.ImplicitH = 1
		if idx < len(runes) && unicode.IsDigit(runes[idx]) {
			atom.ImplicitH = int(runes[idx] - '0')
			idx++
		}
	}
	for idx < len(runes) && (runes[idx] == '+' || runes[idx] == '-') {
		sign := 1
		if runes[idx] == '-' {
			sign = -1
		}
		idx++
		if idx < len(runes) && unicode.IsDigit(runes[idx]) {
			atom.Charge += sign * int(runes[idx]-'0')
			idx++
		} else {
			atom.Charge += sign
		}
	}
	// Atom class ":n" is accepted and ignored.
	if idx < len(runes) && runes[idx] == ':' {
		idx++
		for idx < len(runes) && unicode.IsDigit(runes[idx]) {
			idx++
		}
	}
	if idx != len(runes) {
		return Atom{}, fmt.Errorf("unparsed bracket atom content %q", string(runes[idx:]))
	}
	return atom, nil
}

// assignImplicitHydrogens fills ImplicitH for organic-subset atoms. An
// aromatic atom contributes one extra valence unit for its pi bond, and its
// aromatic bonds count as single.
func (p *smilesParser) assignImplicitHydrogens() {
	used := make([]int, len(p.atoms))
	for _, b := range p.bonds {
		v := int(b.Order)
		if b.Order == OrderAromatic {
			v = 1
		}
		used[b.Begin] += v
		used[b.End] += v
	}
	for i := range p.atoms {
		if !p.organic[i] {
			continue
		}
		u := used[i]
		if p.atoms[i].Aromatic {
			u++
		}
		e, _ := LookupElement(p.atoms[i].Symbol)
		p.atoms[i].ImplicitH = implicitHydrogens(e, u, p.atoms[i].Charge)
	}
}
