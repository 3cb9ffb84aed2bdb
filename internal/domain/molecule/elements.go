package molecule

// Element holds the periodic-table facts the descriptors need.
type Element struct {
	Symbol    string
	AtomicNum int
	// Mass is the standard atomic weight in g/mol.
	Mass float64
	// ExactMass is the monoisotopic mass of the most abundant isotope.
	ExactMass float64
	// Valences lists default valences in ascending order; empty for elements
	// that never receive implicit hydrogens.
	Valences []int
}

var elementTable = []Element{
	{"H", 1, 1.008, 1.007825, []int{1}},
	{"He", 2, 4.0026, 4.002603, nil},
	{"Li", 3, 6.94, 7.016003, nil},
	{"Be", 4, 9.0122, 9.012183, nil},
	{"B", 5, 10.81, 11.009305, []int{3}},
	{"C", 6, 12.011, 12.0, []int{4}},
	{"N", 7, 14.007, 14.003074, []int{3, 5}},
	{"O", 8, 15.999, 15.994915, []int{2}},
	{"F", 9, 18.998, 18.998403, []int{1}},
	{"Ne", 10, 20.180, 19.992440, nil},
	{"Na", 11, 22.990, 22.989769, nil},
	{"Mg", 12, 24.305, 23.985042, nil},
	{"Al", 13, 26.982, 26.981538, nil},
	{"Si", 14, 28.085, 27.976927, []int{4}},
	{"P", 15, 30.974, 30.973762, []int{3, 5}},
	{"S", 16, 32.06, 31.972071, []int{2, 4, 6}},
	{"Cl", 17, 35.45, 34.968853, []int{1}},
	{"Ar", 18, 39.948, 39.962383, nil},
	{"K", 19, 39.098, 38.963706, nil},
	{"Ca", 20, 40.078, 39.962591, nil},
	{"Fe", 26, 55.845, 55.934936, nil},
	{"Cu", 29, 63.546, 62.929597, nil},
	{"Zn", 30, 65.38, 63.929142, nil},
	{"As", 33, 74.922, 74.921595, []int{3, 5}},
	{"Se", 34, 78.971, 79.916521, []int{2, 4, 6}},
	{"Br", 35, 79.904, 78.918338, []int{1}},
	{"Sn", 50, 118.71, 119.902202, nil},
	{"I", 53, 126.90, 126.904473, []int{1}},
	{"Pt", 78, 195.08, 194.964791, nil},
}

var (
	elementsBySymbol = make(map[string]*Element, len(elementTable))
	elementsByNumber = make(map[int]*Element, len(elementTable))
)

func init() {
	for i := range elementTable {
		e := &elementTable[i]
		elementsBySymbol[e.Symbol] = e
		elementsByNumber[e.AtomicNum] = e
	}
}

// LookupElement returns the element for a symbol such as "C" or "Cl".
func LookupElement(symbol string) (*Element, bool) {
	e, ok := elementsBySymbol[symbol]
	return e, ok
}

// ElementByNumber returns the element with the given atomic number.
func ElementByNumber(n int) (*Element, bool) {
	e, ok := elementsByNumber[n]
	return e, ok
}

// implicitHydrogens returns how many hydrogens complete the lowest default
// valence that accommodates used. Elements without default valences get 0.
func implicitHydrogens(e *Element, used int, charge int) int {
	if e == nil || len(e.Valences) == 0 {
		return 0
	}
	adjust := chargeAdjust(e, charge)
	for _, v := range e.Valences {
		v += adjust
		if v >= used {
			return v - used
		}
	}
	return 0
}

// chargeAdjust applies the isoelectronic rule: N+ takes valence 4, O- and
// Cl- lose one, charged carbon and boron lose one either way.
func chargeAdjust(e *Element, charge int) int {
	switch e.Symbol {
	case "N", "O", "S", "P", "F", "Cl", "Br", "I":
		return charge
	case "C", "B":
		return -abs(charge)
	}
	return 0
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
