// Package chem parses SMILES structure notation far enough to check that it is
// well formed and to estimate simple molecular descriptors.
package chem

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidNotation is wrapped by every parse failure.
var ErrInvalidNotation = errors.New("invalid structure notation")

type atom struct {
	symbol   string
	aromatic bool
	bracket  bool
	hCount   int
	charge   int
	bondSum  float64
}

// Molecule is the parsed atom graph of a SMILES string.
type Molecule struct {
	atoms []*atom
	bonds int
	rings int
}

type ringOpen struct {
	atom  int
	order float64
}

var bracketRe = regexp.MustCompile(`^(\d+)?([A-Z][a-z]?|[a-z]{1,2}|\*)(@{1,2}(?:TH|AL|SP|TB|OH)?\d*)?(H\d*)?([+-]+\d*)?(:\d+)?$`)

var aromaticBracket = map[string]bool{"b": true, "c": true, "n": true, "o": true, "p": true, "s": true, "se": true, "as": true}

var elements = func() map[string]bool {
	m := make(map[string]bool, 118)
	for _, sym := range strings.Fields(`
		H He Li Be B C N O F Ne Na Mg Al Si P S Cl Ar K Ca Sc Ti V Cr Mn Fe Co Ni Cu Zn
		Ga Ge As Se Br Kr Rb Sr Y Zr Nb Mo Tc Ru Rh Pd Ag Cd In Sn Sb Te I Xe Cs Ba La Ce
		Pr Nd Pm Sm Eu Gd Tb Dy Ho Er Tm Yb Lu Hf Ta W Re Os Ir Pt Au Hg Tl Pb Bi Po At Rn
		Fr Ra Ac Th Pa U Np Pu Am Cm Bk Cf Es Fm Md No Lr Rf Db Sg Bh Hs Mt Ds Rg Cn Nh Fl
		Mc Lv Ts Og`) {
		m[sym] = true
	}
	return m
}()

func invalid(pos int, format string, args ...any) error {
	return fmt.Errorf("%w: %s at position %d", ErrInvalidNotation, fmt.Sprintf(format, args...), pos)
}

// Validate reports whether smiles is structurally well formed.
func Validate(smiles string) error {
	_, err := Parse(smiles)
	return err
}

// Parse reads a SMILES string into a Molecule.
func Parse(smiles string) (*Molecule, error) {
	s := strings.TrimSpace(smiles)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidNotation)
	}
	mol := &Molecule{}
	prev := -1
	var branches []int
	var pending float64
	hasBond := false
	open := map[int]ringOpen{}

	connect := func(idx int) {
		if prev >= 0 {
			order := 1.0
			if hasBond {
				order = pending
			}
			mol.atoms[prev].bondSum += order
			mol.atoms[idx].bondSum += order
			mol.bonds++
		}
		prev = idx
		pending, hasBond = 0, false
	}

	for i := 0; i < len(s); {
		ch := s[i]
		switch {
		case ch == '(':
			if prev < 0 {
				return nil, invalid(i, "branch without a preceding atom")
			}
			if hasBond {
				return nil, invalid(i, "bond before branch")
			}
			if i+1 < len(s) && s[i+1] == ')' {
				return nil, invalid(i, "empty branch")
			}
			branches = append(branches, prev)
			i++
		case ch == ')':
			if len(branches) == 0 {
				return nil, invalid(i, "unbalanced ')'")
			}
			if hasBond {
				return nil, invalid(i, "dangling bond")
			}
			prev = branches[len(branches)-1]
			branches = branches[:len(branches)-1]
			i++
		case strings.IndexByte(`-=#$:/\`, ch) >= 0:
			if prev < 0 || hasBond {
				return nil, invalid(i, "unexpected bond %q", ch)
			}
			pending, hasBond = bondOrder(ch), true
			i++
		case ch == '.':
			if prev < 0 || hasBond {
				return nil, invalid(i, "unexpected '.'")
			}
			prev = -1
			i++
		case ch == '%' || (ch >= '0' && ch <= '9'):
			if prev < 0 {
				return nil, invalid(i, "ring closure without a preceding atom")
			}
			num, width, err := ringNumber(s, i)
			if err != nil {
				return nil, err
			}
			if o, ok := open[num]; ok {
				if o.atom == prev {
					return nil, invalid(i, "ring %d closes on its own atom", num)
				}
				order := 1.0
				switch {
				case hasBond:
					order = pending
				case o.order > 0:
					order = o.order
				}
				mol.atoms[prev].bondSum += order
				mol.atoms[o.atom].bondSum += order
				mol.bonds++
				mol.rings++
				delete(open, num)
			} else {
				o := ringOpen{atom: prev}
				if hasBond {
					o.order = pending
				}
				open[num] = o
			}
			pending, hasBond = 0, false
			i += width
		case ch == '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return nil, invalid(i, "unclosed bracket atom")
			}
			a, err := parseBracket(s[i+1:i+end], i)
			if err != nil {
				return nil, err
			}
			mol.atoms = append(mol.atoms, a)
			connect(len(mol.atoms) - 1)
			i += end + 1
		default:
			sym, aromatic, width := organicAtom(s, i)
			if width == 0 {
				return nil, invalid(i, "unexpected character %q", ch)
			}
			mol.atoms = append(mol.atoms, &atom{symbol: sym, aromatic: aromatic})
			connect(len(mol.atoms) - 1)
			i += width
		}
	}

	switch {
	case hasBond:
		return nil, invalid(len(s), "dangling bond")
	case len(branches) > 0:
		return nil, invalid(len(s), "unclosed branch")
	case len(open) > 0:
		return nil, invalid(len(s), "unclosed ring")
	case len(mol.atoms) == 0:
		return nil, fmt.Errorf("%w: no atoms", ErrInvalidNotation)
	}
	return mol, nil
}

func bondOrder(ch byte) float64 {
	switch ch {
	case '=':
		return 2
	case '#':
		return 3
	case '$':
		return 4
	default:
		return 1
	}
}

func ringNumber(s string, i int) (int, int, error) {
	if s[i] != '%' {
		return int(s[i] - '0'), 1, nil
	}
	if i+2 >= len(s) || !isDigit(s[i+1]) || !isDigit(s[i+2]) {
		return 0, 0, invalid(i, "'%%' must be followed by two digits")
	}
	n, _ := strconv.Atoi(s[i+1 : i+3])
	return n, 3, nil
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func organicAtom(s string, i int) (string, bool, int) {
	if i+1 < len(s) {
		switch s[i : i+2] {
		case "Cl":
			return "Cl", false, 2
		case "Br":
			return "Br", false, 2
		}
	}
	switch s[i] {
	case 'B', 'C', 'N', 'O', 'P', 'S', 'F', 'I':
		return string(s[i]), false, 1
	case 'b', 'c', 'n', 'o', 'p', 's':
		return strings.ToUpper(string(s[i])), true, 1
	}
	return "", false, 0
}

func parseBracket(body string, pos int) (*atom, error) {
	if body == "" {
		return nil, invalid(pos, "empty bracket atom")
	}
	m := bracketRe.FindStringSubmatch(body)
	if m == nil {
		return nil, invalid(pos, "malformed bracket atom [%s]", body)
	}
	a := &atom{bracket: true}
	sym := m[2]
	if sym != "*" && strings.ToLower(sym) == sym {
		if !aromaticBracket[sym] {
			return nil, invalid(pos, "unknown aromatic symbol %q", sym)
		}
		a.aromatic = true
		sym = strings.ToUpper(sym[:1]) + sym[1:]
	}
	if sym != "*" && !elements[sym] {
		return nil, invalid(pos, "unknown element %q", sym)
	}
	a.symbol = sym
	if h := m[4]; h != "" {
		a.hCount = 1
		if len(h) > 1 {
			a.hCount, _ = strconv.Atoi(h[1:])
		}
	}
	if c := m[5]; c != "" {
		sign := 1
		if c[0] == '-' {
			sign = -1
		}
		signs := strings.TrimRight(c, "0123456789")
		if digits := c[len(signs):]; digits != "" {
			n, _ := strconv.Atoi(digits)
			a.charge = sign * n
		} else {
			a.charge = sign * len(signs)
		}
	}
	return a, nil
}
