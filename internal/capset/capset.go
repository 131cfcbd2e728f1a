// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package capset computes and applies the child's capability sets (C7):
// default_caps ∪ add \ drop, installed into the bounding, permitted,
// effective, and inheritable sets together, after PR_SET_NO_NEW_PRIVS and
// clearing the ambient set. The teacher does this with raw capget/capset/
// prctl syscalls and a hand-rolled capHeader/capData pair
// (cmd/minimega/container.go's containerSetCapabilities/capget/capset/
// prctl), built against the old capability-version-2 ABI with a fixed
// 32-bit word; this package keeps the same "compute the final set, then
// one syscall to install everything" shape but delegates the ABI handling
// to github.com/moby/sys/capability, which already knows about the
// 64-bit-capable version-3 ABI the teacher's raw struct does not.
package capset

import (
	"fmt"
	"sort"
	"strings"

	"github.com/moby/sys/capability"
	"golang.org/x/sys/unix"

	"github.com/sandia-minimega/microbox/internal/options"
)

// DefaultCaps is the Docker-equivalent baseline allow-list the spec's data
// model refers to.
var DefaultCaps = []string{
	"CHOWN",
	"DAC_OVERRIDE",
	"FSETID",
	"FOWNER",
	"MKNOD",
	"NET_RAW",
	"SETGID",
	"SETUID",
	"SETFCAP",
	"SETPCAP",
	"NET_BIND_SERVICE",
	"SYS_CHROOT",
	"KILL",
	"AUDIT_WRITE",
}

// Compute returns the final, deduplicated, sorted capability name set:
// default ∪ add \ drop. "ALL" in drop removes every default capability
// (the --cap-drop ALL escape hatch).
func Compute(add, drop []string) []string {
	dropAll := false
	dropSet := make(map[string]bool, len(drop))
	for _, d := range drop {
		if strings.EqualFold(d, "ALL") {
			dropAll = true
			continue
		}
		dropSet[strings.TrimPrefix(strings.ToUpper(d), "CAP_")] = true
	}

	result := make(map[string]bool)
	if !dropAll {
		for _, c := range DefaultCaps {
			result[c] = true
		}
	}
	for _, c := range add {
		result[strings.TrimPrefix(strings.ToUpper(c), "CAP_")] = true
	}
	for c := range dropSet {
		delete(result, c)
	}

	out := make([]string, 0, len(result))
	for c := range result {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Apply installs names as the bounding, permitted, effective, and
// inheritable sets of the current process, after setting no_new_privs and
// clearing the ambient set. Called in the child, after filesystem setup
// and network finalization, before seccomp installation.
func Apply(names []string) error {
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("%w: PR_SET_NO_NEW_PRIVS: %v", options.ErrCapabilityFailed, err)
	}

	caps, err := capability.NewPid2(0)
	if err != nil {
		return fmt.Errorf("%w: load process capabilities: %v", options.ErrCapabilityFailed, err)
	}
	if err := caps.Load(); err != nil {
		return fmt.Errorf("%w: load process capabilities: %v", options.ErrCapabilityFailed, err)
	}

	caps.Clear(capability.AMBS)

	resolved := make([]capability.Cap, 0, len(names))
	for _, name := range names {
		c, err := resolveCap(name)
		if err != nil {
			return fmt.Errorf("%w: %v", options.ErrCapabilityFailed, err)
		}
		resolved = append(resolved, c)
	}

	caps.Clear(capability.CAPS | capability.BOUNDING)
	caps.Set(capability.CAPS|capability.BOUNDING, resolved...)

	if err := caps.Apply(capability.CAPS | capability.BOUNDING | capability.AMBS); err != nil {
		return fmt.Errorf("%w: apply capability sets: %v", options.ErrCapabilityFailed, err)
	}

	return nil
}

// resolveCap maps a capability name (with or without the CAP_ prefix) to
// its capability.Cap value. Unknown names are fatal, per the spec: the
// user named a specific capability, so silently ignoring a typo would be
// worse than failing loudly.
func resolveCap(name string) (capability.Cap, error) {
	want := strings.ToUpper(strings.TrimPrefix(strings.ToUpper(name), "CAP_"))
	for _, c := range capability.List() {
		if strings.ToUpper(c.String()) == want {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown capability %q", name)
}
