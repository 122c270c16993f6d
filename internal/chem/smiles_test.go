package chem

import (
	"errors"
	"math"
	"testing"
)

func TestValidateAccepts(t *testing.T) {
	valid := []string{
		"CCO",
		"c1ccccc1",
		"CC(=O)O",
		"CC(=O)Oc1ccccc1C(=O)O",
		"C1CC2CCC1C2",
		"[NH4+]",
		"[Na+].[Cl-]",
		"N[C@@H](C)C(=O)O",
		"C%10CCCCC%10",
		"c1ccc2ccccc2c1",
		"F/C=C/F",
		"[13CH4]",
		"c1cc[nH]c1",
		"[Fe+2]",
		"[Og]",
		"[se]1cccc1",
	}
	for _, s := range valid {
		if err := Validate(s); err != nil {
			t.Fatalf("%s: unexpected error: %v", s, err)
		}
	}
}

func TestValidateRejects(t *testing.T) {
	invalid := []string{
		"",
		"   ",
		"C(C",
		"CC)",
		"C1CC",
		"CC=",
		"=CC",
		"C()C",
		"[]",
		"[C",
		"C$$C",
		"1CC",
		"CXC",
		"C%1C",
		"C11",
		"(C)C",
		"[Xx]",
		"[Qq+]",
		"[Cx]",
	}
	for _, s := range invalid {
		err := Validate(s)
		if err == nil {
			t.Fatalf("%q: expected error", s)
		}
		if !errors.Is(err, ErrInvalidNotation) {
			t.Fatalf("%q: error should wrap ErrInvalidNotation: %v", s, err)
		}
	}
}

func TestDescribe(t *testing.T) {
	cases := []struct {
		smiles  string
		formula string
		weight  float64
		rings   int
	}{
		{"CCO", "C2H6O", 46.069, 0},
		{"c1ccccc1", "C6H6", 78.114, 1},
		{"CC(=O)O", "C2H4O2", 60.052, 0},
		{"c1ccncc1", "C5H5N", 79.102, 1},
		{"c1ccoc1", "C4H4O", 68.075, 1},
		{"[Na+].[Cl-]", "ClNa", 58.44, 0},
	}
	for _, tc := range cases {
		t.Run(tc.smiles, func(t *testing.T) {
			d, err := Describe(tc.smiles)
			if err != nil {
				t.Fatalf("describe: %v", err)
			}
			if d.Formula != tc.formula {
				t.Fatalf("formula: want=%s got=%s", tc.formula, d.Formula)
			}
			if math.Abs(d.MolecularWeight-tc.weight) > 0.01 {
				t.Fatalf("weight: want=%.3f got=%.3f", tc.weight, d.MolecularWeight)
			}
			if d.Rings != tc.rings {
				t.Fatalf("rings: want=%d got=%d", tc.rings, d.Rings)
			}
		})
	}
}

func TestDescribeHydrogenBonding(t *testing.T) {
	d, err := Describe("CCO")
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if d.HBondDonors != 1 || d.HBondAcceptors != 1 {
		t.Fatalf("ethanol hbd/hba: %d/%d", d.HBondDonors, d.HBondAcceptors)
	}
	if d.HeavyAtoms != 3 || d.Bonds != 2 {
		t.Fatalf("ethanol atoms/bonds: %d/%d", d.HeavyAtoms, d.Bonds)
	}
}

func TestDescribeLogPOrdering(t *testing.T) {
	ethanol, _ := Describe("CCO")
	benzene, _ := Describe("c1ccccc1")
	if !(benzene.LogP > ethanol.LogP) {
		t.Fatalf("benzene should be more lipophilic than ethanol: %.2f vs %.2f", benzene.LogP, ethanol.LogP)
	}
}

func TestDescribeRejectsUnknownElement(t *testing.T) {
	if _, err := Describe("[Xx]"); err == nil {
		t.Fatalf("expected unsupported element error")
	}
	if _, err := Describe("*C"); err == nil {
		t.Fatalf("expected invalid character error for bare wildcard")
	}
}
