// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package seccomp builds and loads the child's syscall filter (C8): default
// action ALLOW, with ERRNO(ENOSYS) for the computed deny set. There is no
// teacher precedent for this component — minimega's container isolation
// stops at namespaces/cgroups/capabilities and never installs a seccomp
// filter — so this package is grounded directly on
// github.com/seccomp/libseccomp-golang (pulled from canonical-snapd's
// go.mod) rather than adapted from teacher code; the default-allow,
// denylist-of-dangerous-syscalls shape still follows the same
// "compute a set, install it in one pass" structure as internal/capset.
package seccomp

import (
	"fmt"
	"sort"

	libseccomp "github.com/seccomp/libseccomp-golang"
	"golang.org/x/sys/unix"

	"github.com/sandia-minimega/microbox/internal/options"
)

// DefaultDeny is the fixed baseline deny set: kernel module and kexec
// loading, keyring/bpf, ptrace, clock tampering, reboot/quota/nfsservctl/
// sysfs/_sysctl, personality, mount/root-switching, namespace escapes,
// handle-based file lookup, perf/fanotify, userfaultfd/vm86/io permission
// syscalls, NUMA migration, kcmp, acct, the new-style mount API, and
// io_uring.
var DefaultDeny = []string{
	"create_module", "init_module", "finit_module", "delete_module",
	"kexec_load", "kexec_file_load",
	"add_key", "request_key", "keyctl", "bpf",
	"ptrace", "process_vm_readv", "process_vm_writev",
	"adjtimex", "clock_adjtime", "settimeofday", "stime",
	"reboot", "quotactl", "nfsservctl", "sysfs", "_sysctl",
	"personality",
	"mount", "umount", "umount2", "pivot_root",
	"setns", "unshare",
	"open_by_handle_at", "name_to_handle_at", "lookup_dcookie",
	"perf_event_open", "fanotify_init",
	"userfaultfd", "vm86", "vm86old", "iopl", "ioperm",
	"set_mempolicy", "move_pages",
	"kcmp",
	"acct",
	"open_tree", "move_mount", "fsopen", "fsconfig", "fsmount", "fspick", "mount_setattr",
	"io_uring_setup", "io_uring_enter", "io_uring_register",
}

// ComputeDenySet returns sort(unique(DefaultDeny ∪ userDeny \ userAllow)).
func ComputeDenySet(userAllow, userDeny []string) []string {
	allow := make(map[string]bool, len(userAllow))
	for _, s := range userAllow {
		allow[s] = true
	}

	set := make(map[string]bool, len(DefaultDeny)+len(userDeny))
	for _, s := range DefaultDeny {
		set[s] = true
	}
	for _, s := range userDeny {
		set[s] = true
	}
	for s := range allow {
		delete(set, s)
	}

	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Install builds a filter with default action ALLOW and ERRNO(ENOSYS) for
// every name in deny, then loads it into the kernel. Names the running
// kernel/architecture doesn't recognize are skipped silently — unlike
// capability names, a syscall name is architecture-dependent, so an
// unresolved name is expected, not a user mistake. Must be the very last
// thing the child does before exec.
func Install(deny []string) error {
	filter, err := libseccomp.NewFilter(libseccomp.ActAllow)
	if err != nil {
		return fmt.Errorf("%w: new filter: %v", options.ErrSeccompFailed, err)
	}

	errnoNoSys := libseccomp.ActErrno.SetReturnCode(int16(unix.ENOSYS))

	for _, name := range deny {
		sc, err := libseccomp.GetSyscallFromName(name)
		if err != nil {
			continue
		}
		if err := filter.AddRule(sc, errnoNoSys); err != nil {
			continue
		}
	}

	if err := filter.Load(); err != nil {
		return fmt.Errorf("%w: load filter: %v", options.ErrSeccompFailed, err)
	}

	return nil
}
