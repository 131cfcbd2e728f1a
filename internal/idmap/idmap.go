// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package idmap writes the uid_map/gid_map/setgroups files that give a
// freshly-cloned child user namespace a coherent identity (C2). It must run
// before the child leaves its sync pipe read (see internal/syncpipe), the
// same way the teacher arranges its own pid-namespace setup to happen
// before the child is allowed to proceed past containerShim's sync read.
package idmap

import (
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strconv"

	"github.com/sandia-minimega/microbox/internal/options"
)

// Map writes setgroups/uid_map/gid_map for pid. hostUID/hostGID are the
// caller's own ids (os.Getuid/os.Getgid in the parent).
func Map(pid int, hostUID, hostGID int) error {
	procDir := fmt.Sprintf("/proc/%d", pid)

	if err := os.WriteFile(filepath.Join(procDir, "setgroups"), []byte("deny"), 0644); err != nil {
		return fmt.Errorf("%w: setgroups: %v", options.ErrIdMapFailed, err)
	}

	if hostUID == 0 {
		return mapPrivileged(procDir, hostUID, hostGID)
	}
	return mapUnprivileged(pid, hostUID, hostGID)
}

// mapPrivileged handles the euid-0 caller: container root maps directly to
// host root, a one-entry range.
func mapPrivileged(procDir string, hostUID, hostGID int) error {
	uidLine := fmt.Sprintf("0 %d 1\n", hostUID)
	gidLine := fmt.Sprintf("0 %d 1\n", hostGID)

	if err := os.WriteFile(filepath.Join(procDir, "uid_map"), []byte(uidLine), 0644); err != nil {
		return fmt.Errorf("%w: uid_map: %v", options.ErrIdMapFailed, err)
	}
	if err := os.WriteFile(filepath.Join(procDir, "gid_map"), []byte(gidLine), 0644); err != nil {
		return fmt.Errorf("%w: gid_map: %v", options.ErrIdMapFailed, err)
	}
	return nil
}

// mapUnprivileged handles the non-root caller: delegate to newuidmap/
// newgidmap, which know the caller's subordinate id ranges from
// /etc/subuid and /etc/subgid. Container root is mapped to the start of
// that range (full length), plus the caller's own id mapped identity
// (length 1), matching the spec's "never silently degrade to a no-root
// mapping" requirement.
func mapUnprivileged(pid int, hostUID, hostGID int) error {
	newuidmap, err := exec.LookPath("newuidmap")
	if err != nil {
		return fmt.Errorf("%w: newuidmap not found; configure /etc/subuid and install uidmap", options.ErrIdMapFailed)
	}
	newgidmap, err := exec.LookPath("newgidmap")
	if err != nil {
		return fmt.Errorf("%w: newgidmap not found; configure /etc/subgid and install uidmap", options.ErrIdMapFailed)
	}

	me, err := user.Current()
	if err != nil {
		return fmt.Errorf("%w: %v", options.ErrIdMapFailed, err)
	}

	subUID, subUIDLen, err := subordinateRange("/etc/subuid", me.Username)
	if err != nil {
		return fmt.Errorf("%w: %v", options.ErrIdMapFailed, err)
	}
	subGID, subGIDLen, err := subordinateRange("/etc/subgid", me.Username)
	if err != nil {
		return fmt.Errorf("%w: %v", options.ErrIdMapFailed, err)
	}

	pidStr := strconv.Itoa(pid)

	uidArgs := []string{pidStr,
		"0", strconv.Itoa(subUID), strconv.Itoa(subUIDLen),
		strconv.Itoa(hostUID), strconv.Itoa(hostUID), "1",
	}
	if out, err := exec.Command(newuidmap, uidArgs...).CombinedOutput(); err != nil {
		return fmt.Errorf("%w: newuidmap: %v: %s", options.ErrIdMapFailed, err, out)
	}

	gidArgs := []string{pidStr,
		"0", strconv.Itoa(subGID), strconv.Itoa(subGIDLen),
		strconv.Itoa(hostGID), strconv.Itoa(hostGID), "1",
	}
	if out, err := exec.Command(newgidmap, gidArgs...).CombinedOutput(); err != nil {
		return fmt.Errorf("%w: newgidmap: %v: %s", options.ErrIdMapFailed, err, out)
	}

	return nil
}
