// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package options

import (
	"errors"
	"testing"
)

func TestValidateEmptyArgv(t *testing.T) {
	o := &SandboxOptions{}
	if err := o.Validate(); !errors.Is(err, ErrInvalidOption) {
		t.Fatalf("expected ErrInvalidOption, got %v", err)
	}
}

func TestValidateHostFsRejectsBinds(t *testing.T) {
	o := &SandboxOptions{
		Argv: []string{"/bin/true"},
		FS:   FSHost,
		BindRO: []BindSpec{
			{HostPath: "/etc", Dest: "/etc"},
		},
	}
	if err := o.Validate(); !errors.Is(err, ErrInvalidOption) {
		t.Fatalf("expected ErrInvalidOption for host+bind conflict, got %v", err)
	}
}

func TestValidateRelativeBindDest(t *testing.T) {
	o := &SandboxOptions{
		Argv: []string{"/bin/true"},
		FS:   FSTmpfs,
		BindRW: []BindSpec{
			{HostPath: "/data", Dest: "relative/path"},
		},
	}
	if err := o.Validate(); !errors.Is(err, ErrInvalidOption) {
		t.Fatalf("expected ErrInvalidOption for relative dest, got %v", err)
	}
}

func TestValidateNegativeResources(t *testing.T) {
	base := SandboxOptions{Argv: []string{"/bin/true"}, FS: FSTmpfs}

	cpus := base
	cpus.CPUs = -1
	if err := cpus.Validate(); !errors.Is(err, ErrInvalidOption) {
		t.Fatalf("expected error for negative cpus")
	}

	mem := base
	mem.MemoryBytes = -1
	if err := mem.Validate(); !errors.Is(err, ErrInvalidOption) {
		t.Fatalf("expected error for negative memory")
	}
}

func TestMergedEnvOrderAndOverride(t *testing.T) {
	o := &SandboxOptions{
		Env: map[string]string{
			"ZETA": "1",
			"ALPHA": "2",
			"PATH":  "/custom/bin",
		},
	}

	got := o.MergedEnv()
	want := []string{
		"PATH=/custom/bin",
		"HOME=/root",
		"TERM=xterm",
		"LANG=C.UTF-8",
		"ALPHA=2",
		"ZETA=1",
	}

	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: got %q want %q (full: %v)", i, got[i], want[i], got)
		}
	}
}

func TestMergedEnvStableAcrossCalls(t *testing.T) {
	o := &SandboxOptions{Env: map[string]string{"FOO": "bar", "BAZ": "qux"}}

	first := o.MergedEnv()
	second := o.MergedEnv()

	if len(first) != len(second) {
		t.Fatalf("length mismatch between repeated calls")
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("index %d differs between calls: %q vs %q", i, first[i], second[i])
		}
	}
}

func TestNeedsPrivilege(t *testing.T) {
	cases := []struct {
		name string
		o    SandboxOptions
		want bool
	}{
		{"bridge network", SandboxOptions{Net: NetBridge}, true},
		{"cpu limit", SandboxOptions{CPUs: 0.5}, true},
		{"memory limit", SandboxOptions{MemoryBytes: 1024}, true},
		{"tmpfs root", SandboxOptions{FS: FSTmpfs}, true},
		{"host root, no binds, no limits, still needs a cgroup", SandboxOptions{FS: FSHost, Net: NetNone}, true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.o.NeedsPrivilege(); got != c.want {
				t.Fatalf("NeedsPrivilege() = %v, want %v", got, c.want)
			}
		})
	}
}
