// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package namegen

import "testing"

func TestGenerateDeterministic(t *testing.T) {
	if Generate(42) != Generate(42) {
		t.Fatal("Generate must be a pure function of its seed")
	}
}

func TestGenerateVariesAcrossSeeds(t *testing.T) {
	seen := make(map[string]bool)
	for seed := uint32(0); seed < 20; seed++ {
		seen[Generate(seed)] = true
	}
	if len(seen) < 10 {
		t.Fatalf("expected reasonable variety across 20 seeds, got %d distinct names", len(seen))
	}
}
