// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package capset

import "testing"

func contains(set []string, name string) bool {
	for _, s := range set {
		if s == name {
			return true
		}
	}
	return false
}

func TestComputeDefaultOnly(t *testing.T) {
	got := Compute(nil, nil)
	if len(got) != len(DefaultCaps) {
		t.Fatalf("got %d caps, want %d", len(got), len(DefaultCaps))
	}
	if !contains(got, "NET_RAW") {
		t.Fatal("expected NET_RAW in the default set")
	}
}

func TestComputeAddOnTopOfDefault(t *testing.T) {
	got := Compute([]string{"sys_admin"}, nil)
	if !contains(got, "SYS_ADMIN") {
		t.Fatal("expected SYS_ADMIN to be added")
	}
	if !contains(got, "CHOWN") {
		t.Fatal("default caps must still be present")
	}
}

func TestComputeDropRemovesDefault(t *testing.T) {
	got := Compute(nil, []string{"NET_RAW"})
	if contains(got, "NET_RAW") {
		t.Fatal("NET_RAW should have been dropped")
	}
	if !contains(got, "CHOWN") {
		t.Fatal("other defaults must survive an unrelated drop")
	}
}

func TestComputeDropAllClearsDefaults(t *testing.T) {
	got := Compute(nil, []string{"ALL"})
	if len(got) != 0 {
		t.Fatalf("expected an empty set after --cap-drop ALL, got %v", got)
	}
}

func TestComputeDropAllThenAddKeepsOnlyTheAdd(t *testing.T) {
	got := Compute([]string{"NET_ADMIN"}, []string{"ALL"})
	if len(got) != 1 || got[0] != "NET_ADMIN" {
		t.Fatalf("got %v, want [NET_ADMIN]", got)
	}
}

func TestComputeIsSortedAndDeduplicated(t *testing.T) {
	got := Compute([]string{"chown", "CHOWN"}, nil)
	count := 0
	for _, c := range got {
		if c == "CHOWN" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("CHOWN appears %d times, want 1", count)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1] > got[i] {
			t.Fatalf("result not sorted: %v", got)
		}
	}
}
