// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package orchestrator

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sandia-minimega/microbox/internal/cgroup"
	"github.com/sandia-minimega/microbox/internal/minilog"
	"github.com/sandia-minimega/microbox/internal/netplumber"
)

// GC opportunistically removes leftover per-sandbox cgroups and host veths
// from runs that never reached Teardown (a killed microbox process, a host
// reboot that left a cgroup directory behind). It is best-effort and safe
// to call at any time, including while other sandboxes are active: it only
// touches cgroup child directories with no live PID and host veths whose
// owning pid is already gone, following the same "walk the managed tree,
// remove anything with no live owner" shape as the teacher's
// containerNuke/containerCleanCgroupDirs (cmd/minimega/container.go),
// generalized from minimega's four cgroup-v1 hierarchies down to the
// spec's single cgroup v2 parent, and from its per-VM veth naming to
// microbox's own mbxh<pid> scheme.
func GC() {
	gcCgroups()
	gcVeths()
}

// gcCgroups removes child cgroup directories under the shared parent group
// that contain no live process, mirroring containerCleanCgroupDirs's
// walk-and-remove-empty-dirs pass, translated onto v2's single
// cgroup.procs file per directory instead of v1's per-hierarchy tasks
// files.
func gcCgroups() {
	parent := filepath.Join("/sys/fs/cgroup", "microbox")
	entries, err := os.ReadDir(parent)
	if err != nil {
		return
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(parent, e.Name())
		if cgroupHasLiveProc(dir) {
			continue
		}

		minilog.Debug("gc: removing stale cgroup %s", dir)
		l := &cgroup.Limiter{Dir: dir}
		if err := l.Kill(); err != nil {
			minilog.Warn("gc: remove cgroup %s: %v", dir, err)
		}
	}
}

func cgroupHasLiveProc(dir string) bool {
	data, err := os.ReadFile(filepath.Join(dir, "cgroup.procs"))
	if err != nil {
		return false
	}
	return len(strings.Fields(string(data))) > 0
}

// gcVeths removes host veths matching microbox's naming scheme whose owning
// pid is no longer alive, leaving every other interface (the bridge
// itself, and anything not ours) untouched.
func gcVeths() {
	stale, err := netplumber.StaleHostVeths()
	if err != nil {
		return
	}
	for _, name := range stale {
		minilog.Debug("gc: removing stale veth %s", name)
		if err := netplumber.Teardown(name); err != nil {
			minilog.Warn("gc: remove veth %s: %v", name, err)
		}
	}
}
