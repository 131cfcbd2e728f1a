// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package orchestrator

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCgroupHasLiveProc(t *testing.T) {
	dir := t.TempDir()
	procs := filepath.Join(dir, "cgroup.procs")

	if err := os.WriteFile(procs, []byte(""), 0644); err != nil {
		t.Fatal(err)
	}
	if cgroupHasLiveProc(dir) {
		t.Fatal("empty cgroup.procs should not count as live")
	}

	if err := os.WriteFile(procs, []byte("1234\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if !cgroupHasLiveProc(dir) {
		t.Fatal("non-empty cgroup.procs should count as live")
	}
}

func TestCgroupHasLiveProcMissingDir(t *testing.T) {
	if cgroupHasLiveProc(filepath.Join(t.TempDir(), "gone")) {
		t.Fatal("missing cgroup.procs should not count as live")
	}
}
