package molecule

import (
	pkgerrors "github.com/turtacn/moldesc/pkg/errors"
)

// kekulizeBudget bounds the backtracking search.
const kekulizeBudget = 200000

// Kekulize assigns alternating single and double orders to aromatic bonds.
// It returns the bond orders aligned with m.Bonds(); non-aromatic bonds keep
// their order. An aromatic system without a valid assignment is an error.
func Kekulize(m Molecule) ([]BondOrder, error) {
	atoms := m.Atoms()
	bonds := m.Bonds()
	orders := make([]BondOrder, len(bonds))

	fixed := make([]int, len(atoms))
	aromaticDeg := make([]int, len(atoms))
	hasAromatic := false
	for i, b := range bonds {
		orders[i] = b.Order
		if b.Order == OrderAromatic {
			aromaticDeg[b.Begin]++
			aromaticDeg[b.End]++
			hasAromatic = true
			continue
		}
		fixed[b.Begin] += int(b.Order)
		fixed[b.End] += int(b.Order)
	}
	if !hasAromatic {
		return orders, nil
	}

	// An aromatic atom needs a double bond when one more valence unit still
	// fits its default valence.
	needs := make([]bool, len(atoms))
	for i, a := range atoms {
		if aromaticDeg[i] == 0 {
			continue
		}
		e, ok := ElementByNumber(a.AtomicNum)
		if !ok || len(e.Valences) == 0 {
			continue
		}
		used := fixed[i] + aromaticDeg[i] + a.ImplicitH + 1
		if used <= e.Valences[0]+chargeAdjust(e, a.Charge) {
			needs[i] = true
		}
	}

	// Candidate edges: aromatic bonds whose both ends need a double bond.
	adj := make([][]int, len(atoms))
	for i, b := range bonds {
		if b.Order == OrderAromatic && needs[b.Begin] && needs[b.End] {
			adj[b.Begin] = append(adj[b.Begin], i)
			adj[b.End] = append(adj[b.End], i)
		}
	}

	matched := make([]int, len(atoms))
	for i := range matched {
		matched[i] = -1
	}
	budget := kekulizeBudget
	var solve func() bool
	solve = func() bool {
		budget--
		if budget < 0 {
			return false
		}
		// Most constrained unmatched atom first.
		pick, best := -1, 0
		for i := range atoms {
			if !needs[i] || matched[i] >= 0 {
				continue
			}
			free := 0
			for _, bi := range adj[i] {
				if matched[bonds[bi].Other(i)] < 0 {
					free++
				}
			}
			if free == 0 {
				return false
			}
			if pick < 0 || free < best {
				pick, best = i, free
			}
		}
		if pick < 0 {
			return true
		}
		for _, bi := range adj[pick] {
			other := bonds[bi].Other(pick)
			if matched[other] >= 0 {
				continue
			}
			matched[pick], matched[other] = bi, bi
			if solve() {
				return true
			}
			matched[pick], matched[other] = -1, -1
		}
		return false
	}
	if !solve() {
		return nil, pkgerrors.New(pkgerrors.ErrCodeMoleculeParsingFailed, "cannot kekulize aromatic system").WithDetail(m.Name())
	}

	for i, b := range bonds {
		if b.Order != OrderAromatic {
			continue
		}
		if matched[b.Begin] == i {
			orders[i] = OrderDouble
		} else {
			orders[i] = OrderSingle
		}
	}
	return orders, nil
}
