package chem

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

const hydrogenMass = 1.008

var atomicMass = map[string]float64{
	"H": 1.008, "Li": 6.94, "B": 10.81, "C": 12.011, "N": 14.007, "O": 15.999, "F": 18.998,
	"Na": 22.990, "Mg": 24.305, "Al": 26.982, "Si": 28.085, "P": 30.974, "S": 32.06, "Cl": 35.45,
	"K": 39.098, "Ca": 40.078, "Fe": 55.845, "Co": 58.933, "Ni": 58.693, "Cu": 63.546,
	"Zn": 65.38, "As": 74.922, "Se": 78.971, "Br": 79.904, "Ag": 107.868, "Sn": 118.71,
	"I": 126.904, "Pt": 195.084, "Au": 196.967, "Hg": 200.592,
}

// Organic-subset valences used to infer implicit hydrogens.
var valences = map[string][]int{
	"B": {3}, "C": {4}, "N": {3, 5}, "O": {2}, "P": {3, 5}, "S": {2, 4, 6},
	"F": {1}, "Cl": {1}, "Br": {1}, "I": {1},
}

// Additive logP contributions per heavy atom, a coarse stand-in for Crippen's method.
var logPContribution = map[string]float64{
	"C": 0.5, "N": -1.0, "O": -0.9, "F": 0.4, "Cl": 0.9, "Br": 1.1, "I": 1.4, "S": 0.4, "P": -0.5,
}

const aromaticCarbonLogP = 0.35

// Descriptors are heuristic estimates derived from the parsed notation.
type Descriptors struct {
	Formula         string  `json:"molecular_formula"`
	MolecularWeight float64 `json:"molecular_weight"`
	LogP            float64 `json:"logp"`
	HeavyAtoms      int     `json:"num_atoms"`
	Bonds           int     `json:"num_bonds"`
	Rings           int     `json:"num_rings"`
	AromaticAtoms   int     `json:"num_aromatic_atoms"`
	HBondDonors     int     `json:"hbd"`
	HBondAcceptors  int     `json:"hba"`
}

// Map returns the descriptors as a generic map for JSON detail payloads.
func (d Descriptors) Map() map[string]any {
	return map[string]any{
		"molecular_formula":  d.Formula,
		"molecular_weight":   d.MolecularWeight,
		"logp":               d.LogP,
		"num_atoms":          d.HeavyAtoms,
		"num_bonds":          d.Bonds,
		"num_rings":          d.Rings,
		"num_aromatic_atoms": d.AromaticAtoms,
		"hbd":                d.HBondDonors,
		"hba":                d.HBondAcceptors,
	}
}

// Describe parses smiles and estimates its descriptors.
func Describe(smiles string) (Descriptors, error) {
	mol, err := Parse(smiles)
	if err != nil {
		return Descriptors{}, err
	}
	return mol.Descriptors()
}

func (m *Molecule) Descriptors() (Descriptors, error) {
	d := Descriptors{Bonds: m.bonds, Rings: m.rings}
	counts := map[string]int{}
	for _, a := range m.atoms {
		if a.symbol == "*" {
			return Descriptors{}, fmt.Errorf("%w: wildcard atom has no mass", ErrInvalidNotation)
		}
		mass, ok := atomicMass[a.symbol]
		if !ok {
			return Descriptors{}, fmt.Errorf("%w: unsupported element %s", ErrInvalidNotation, a.symbol)
		}
		h := a.implicitHydrogens()
		counts[a.symbol]++
		counts["H"] += h
		d.MolecularWeight += mass + float64(h)*hydrogenMass
		if a.symbol != "H" {
			d.HeavyAtoms++
		}
		if a.aromatic {
			d.AromaticAtoms++
		}
		if a.aromatic && a.symbol == "C" {
			d.LogP += aromaticCarbonLogP
		} else {
			d.LogP += logPContribution[a.symbol]
		}
		if a.symbol == "N" || a.symbol == "O" {
			d.HBondAcceptors++
			if h > 0 {
				d.HBondDonors++
			}
		}
	}
	d.MolecularWeight = round(d.MolecularWeight, 3)
	d.LogP = round(d.LogP, 2)
	d.Formula = hillFormula(counts)
	return d, nil
}

func (a *atom) implicitHydrogens() int {
	if a.bracket {
		return a.hCount
	}
	allowed := valences[a.symbol]
	used := a.bondSum
	// Aromatic atoms carry one delocalised bond order, except the two-valent
	// heteroatoms that donate a lone pair.
	if a.aromatic && a.symbol != "O" && a.symbol != "S" {
		used++
	}
	for _, v := range allowed {
		if float64(v) >= used {
			return int(math.Round(float64(v) - used))
		}
	}
	return 0
}

// hillFormula orders carbon, then hydrogen, then the rest alphabetically;
// without carbon everything is alphabetical.
func hillFormula(counts map[string]int) string {
	var syms []string
	for s, n := range counts {
		if n > 0 {
			syms = append(syms, s)
		}
	}
	sort.Strings(syms)
	if counts["C"] > 0 {
		rest := make([]string, 0, len(syms))
		for _, s := range syms {
			if s != "C" && s != "H" {
				rest = append(rest, s)
			}
		}
		syms = append([]string{"C"}, rest...)
		if counts["H"] > 0 {
			syms = append([]string{"C", "H"}, rest...)
		}
	}
	var b strings.Builder
	for _, s := range syms {
		b.WriteString(s)
		if n := counts[s]; n > 1 {
			b.WriteString(strconv.Itoa(n))
		}
	}
	return b.String()
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
