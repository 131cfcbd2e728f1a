// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package seccomp

import "testing"

func contains(set []string, name string) bool {
	for _, s := range set {
		if s == name {
			return true
		}
	}
	return false
}

func TestComputeDenySetIncludesDefaults(t *testing.T) {
	got := ComputeDenySet(nil, nil)
	if !contains(got, "ptrace") {
		t.Fatal("expected ptrace in the default deny set")
	}
	if len(got) != len(DefaultDeny) {
		t.Fatalf("got %d entries, want %d", len(got), len(DefaultDeny))
	}
}

func TestComputeDenySetUserDenyAdds(t *testing.T) {
	got := ComputeDenySet(nil, []string{"clone3"})
	if !contains(got, "clone3") {
		t.Fatal("expected user-deny entry clone3 to be present")
	}
}

func TestComputeDenySetUserAllowOverridesDefault(t *testing.T) {
	got := ComputeDenySet([]string{"ptrace"}, nil)
	if contains(got, "ptrace") {
		t.Fatal("user allow-list entry should remove ptrace from the deny set")
	}
}

func TestComputeDenySetIsSortedAndDeduplicated(t *testing.T) {
	got := ComputeDenySet(nil, []string{"ptrace", "ptrace"})
	count := 0
	for _, s := range got {
		if s == "ptrace" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("ptrace appears %d times, want 1", count)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1] > got[i] {
			t.Fatalf("result not sorted: %v", got)
		}
	}
}
