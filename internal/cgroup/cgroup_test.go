// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package cgroup

import (
	"os"
	"testing"
)

// writeCPUMax/writeMemoryMax are exercised through a Limiter pointed at a
// tmp dir rather than the real cgroupfs, since writing cpu.max/memory.max
// requires an actual cgroup v2 mount.
func TestCPUMaxBoundary(t *testing.T) {
	dir := t.TempDir()
	l := &Limiter{Dir: dir}

	if err := l.writeCPUMax(0); err != nil {
		t.Fatal(err)
	}
	assertFile(t, dir+"/cpu.max", "max 100000")

	if err := l.writeCPUMax(1.5); err != nil {
		t.Fatal(err)
	}
	assertFile(t, dir+"/cpu.max", "150000 100000")

	if err := l.writeCPUMax(0.5); err != nil {
		t.Fatal(err)
	}
	assertFile(t, dir+"/cpu.max", "50000 100000")
}

func TestMemoryMaxBoundary(t *testing.T) {
	dir := t.TempDir()
	l := &Limiter{Dir: dir}

	if err := l.writeMemoryMax(0); err != nil {
		t.Fatal(err)
	}
	assertFile(t, dir+"/memory.max", "max")

	if err := l.writeMemoryMax(67108864); err != nil {
		t.Fatal(err)
	}
	assertFile(t, dir+"/memory.max", "67108864")
}

func assertFile(t *testing.T, path, want string) {
	t.Helper()
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != want {
		t.Fatalf("%s: got %q, want %q", path, got, want)
	}
}
