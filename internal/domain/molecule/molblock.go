package molecule

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	pkgerrors "github.com/turtacn/moldesc/pkg/errors"
)

// sdfRecordSeparator terminates each record in an SD file.
const sdfRecordSeparator = "$$$$"

// FromMolBlock parses a V2000 MDL molblock. Atom coordinates become
// conformer 0, flagged 3D when the header says so or any z is non-zero.
// Hydrogens listed as atoms stay explicit; heavy atoms receive implicit
// hydrogens from their default valence.
func FromMolBlock(block string) (*Graph, error) {
	lines := strings.Split(strings.ReplaceAll(block, "\r\n", "\n"), "\n")
	g, _, err := parseMolLines(lines)
	return g, err
}

func molFormatError(reason string, args ...interface{}) error {
	return pkgerrors.Newf(pkgerrors.ErrCodeMoleculeInvalidFormat, reason, args...)
}

// field returns line[from:to] trimmed, tolerating short lines.
func field(line string, from, to int) string {
	if from >= len(line) {
		return ""
	}
	if to > len(line) {
		to = len(line)
	}
	return strings.TrimSpace(line[from:to])
}

// parseMolLines parses a molblock starting at lines[0] and returns the
// number of lines consumed up to and including "M  END".
func parseMolLines(lines []string) (*Graph, int, error) {
	if len(lines) < 4 {
		return nil, 0, molFormatError("molblock too short: %d lines", len(lines))
	}
	name := strings.TrimSpace(lines[0])
	dim3 := strings.TrimSpace(field(lines[1], 20, 22)) == "3D"

	counts := lines[3]
	if !strings.Contains(counts, "V2000") && strings.Contains(counts, "V3000") {
		return nil, 0, molFormatError("V3000 molblocks are not supported")
	}
	atomCount, err := strconv.Atoi(field(counts, 0, 3))
	if err != nil {
		return nil, 0, molFormatError("bad atom count %q", field(counts, 0, 3))
	}
	bondCount, err := strconv.Atoi(field(counts, 3, 6))
	if err != nil {
		return nil, 0, molFormatError("bad bond count %q", field(counts, 3, 6))
	}
	if len(lines) < 4+atomCount+bondCount {
		return nil, 0, molFormatError("molblock truncated: expected %d atoms and %d bonds", atomCount, bondCount)
	}

	atoms := make([]Atom, atomCount)
	positions := make([]Point, atomCount)
	for i := 0; i < atomCount; i++ {
		line := lines[4+i]
		x, errX := strconv.ParseFloat(field(line, 0, 10), 64)
		y, errY := strconv.ParseFloat(field(line, 10, 20), 64)
		z, errZ := strconv.ParseFloat(field(line, 20, 30), 64)
		if errX != nil || errY != nil || errZ != nil {
			return nil, 0, molFormatError("bad coordinates on atom line %d", i+1)
		}
		sym := field(line, 31, 34)
		e, ok := LookupElement(sym)
		if !ok {
			return nil, 0, pkgerrors.New(pkgerrors.ErrCodeMoleculeUnknownElement, "unknown element").
				WithDetail(fmt.Sprintf("atom %d: %q", i+1, sym))
		}
		atoms[i] = Atom{Symbol: e.Symbol, AtomicNum: e.AtomicNum}
		// Old-style charge column: 1,2,3 -> +3,+2,+1; 5,6,7 -> -1,-2,-3.
		if c, err := strconv.Atoi(field(line, 36, 39)); err == nil && c > 0 && c != 4 {
			atoms[i].Charge = 4 - c
		}
		positions[i] = Point{X: x, Y: y, Z: z}
		if math.Abs(z) > 1e-6 {
			dim3 = true
		}
	}

	bonds := make([]Bond, bondCount)
	for i := 0; i < bondCount; i++ {
		line := lines[4+atomCount+i]
		from, err1 := strconv.Atoi(field(line, 0, 3))
		to, err2 := strconv.Atoi(field(line, 3, 6))
		order, err3 := strconv.Atoi(field(line, 6, 9))
		if err1 != nil || err2 != nil || err3 != nil {
			return nil, 0, molFormatError("bad bond line %d", i+1)
		}
		if order < 1 || order > 4 {
			return nil, 0, molFormatError("unsupported bond type %d on bond line %d", order, i+1)
		}
		bonds[i] = Bond{Begin: from - 1, End: to - 1, Order: BondOrder(order)}
		if bonds[i].Order == OrderAromatic {
			if from-1 >= 0 && from-1 < atomCount {
				atoms[from-1].Aromatic = true
			}
			if to-1 >= 0 && to-1 < atomCount {
				atoms[to-1].Aromatic = true
			}
		}
	}

	consumed := 4 + atomCount + bondCount
	chargeBlock := false
	for ; consumed < len(lines); consumed++ {
		line := lines[consumed]
		if strings.HasPrefix(line, "M  END") {
			consumed++
			break
		}
		if strings.HasPrefix(line, "M  CHG") {
			if !chargeBlock {
				// Any M  CHG line resets the atom-block charges.
				for j := range atoms {
					atoms[j].Charge = 0
				}
				chargeBlock = true
			}
			if err := applyChargeLine(atoms, line); err != nil {
				return nil, 0, err
			}
		}
	}

	assignMolBlockHydrogens(atoms, bonds)

	g, err := NewGraph(name, atoms, bonds)
	if err != nil {
		return nil, 0, err
	}
	if err := g.AddConformer(Conformer{ID: 0, Positions: positions, Is3D: dim3}); err != nil {
		return nil, 0, err
	}
	return g, consumed, nil
}

// applyChargeLine parses "M  CHGnn8 aaa vvv ...".
func applyChargeLine(atoms []Atom, line string) error {
	fields := strings.Fields(line[6:])
	if len(fields) == 0 {
		return molFormatError("empty M  CHG line")
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || len(fields) < 1+2*n {
		return molFormatError("malformed M  CHG line %q", line)
	}
	for k := 0; k < n; k++ {
		idx, err1 := strconv.Atoi(fields[1+2*k])
		chg, err2 := strconv.Atoi(fields[2+2*k])
		if err1 != nil || err2 != nil || idx < 1 || idx > len(atoms) {
			return molFormatError("malformed M  CHG entry in %q", line)
		}
		atoms[idx-1].Charge = chg
	}
	return nil
}

func assignMolBlockHydrogens(atoms []Atom, bonds []Bond) {
	used := make([]int, len(atoms))
	aromaticBonds := make([]int, len(atoms))
	for _, b := range bonds {
		if b.Order == OrderAromatic {
			used[b.Begin]++
			used[b.End]++
			aromaticBonds[b.Begin]++
			aromaticBonds[b.End]++
			continue
		}
		used[b.Begin] += int(b.Order)
		used[b.End] += int(b.Order)
	}
	for i := range atoms {
		if atoms[i].AtomicNum == 1 {
			continue
		}
		u := used[i]
		if aromaticBonds[i] > 0 {
			u++
		}
		e, _ := ElementByNumber(atoms[i].AtomicNum)
		atoms[i].ImplicitH = implicitHydrogens(e, u, atoms[i].Charge)
	}
}

// SDFReader iterates over the records of an SD file.
type SDFReader struct {
	sc     *bufio.Scanner
	record int
}

// NewSDFReader wraps r. Records are separated by "$$$$" lines.
func NewSDFReader(r io.Reader) *SDFReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &SDFReader{sc: sc}
}

// Next returns the next molecule, or io.EOF once the input is exhausted. A
// malformed record yields an error wrapping the record number; the reader
// stays positioned at the following record.
func (r *SDFReader) Next() (*Graph, error) {
	var lines []string
	for r.sc.Scan() {
		line := strings.TrimRight(r.sc.Text(), "\r")
		if strings.TrimSpace(line) == sdfRecordSeparator {
			if len(lines) == 0 {
				continue
			}
			return r.build(lines)
		}
		lines = append(lines, line)
	}
	if err := r.sc.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrCodeMoleculeParsingFailed, "read SD file")
	}
	if len(lines) == 0 || strings.TrimSpace(strings.Join(lines, "")) == "" {
		return nil, io.EOF
	}
	return r.build(lines)
}

func (r *SDFReader) build(lines []string) (*Graph, error) {
	r.record++
	g, consumed, err := parseMolLines(lines)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrCodeMoleculeParsingFailed, "parse SD record").
			WithDetail(fmt.Sprintf("record %d", r.record))
	}
	parseDataItems(g, lines[consumed:])
	return g, nil
}

// parseDataItems reads "> <NAME>" data headers followed by value lines.
func parseDataItems(g *Graph, lines []string) {
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if !strings.HasPrefix(line, ">") {
			continue
		}
		open := strings.Index(line, "<")
		end := strings.LastIndex(line, ">")
		if open < 0 || end <= open {
			continue
		}
		key := line[open+1 : end]
		var values []string
		for i+1 < len(lines) && strings.TrimSpace(lines[i+1]) != "" {
			i++
			values = append(values, lines[i])
		}
		g.SetProp(key, strings.Join(values, "\n"))
	}
}

// SplitSDF cuts SD file text into its record texts, dropping the "$$$$"
// separators and blank records.
func SplitSDF(text string) []string {
	var (
		out []string
		cur []string
	)
	flush := func() {
		rec := strings.Join(cur, "\n")
		if strings.TrimSpace(rec) != "" {
			out = append(out, rec)
		}
		cur = cur[:0]
	}
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) == sdfRecordSeparator {
			flush()
			continue
		}
		cur = append(cur, line)
	}
	flush()
	return out
}

// ReadAll drains the reader.
func (r *SDFReader) ReadAll() ([]*Graph, error) {
	var out []*Graph
	for {
		g, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, g)
	}
}
