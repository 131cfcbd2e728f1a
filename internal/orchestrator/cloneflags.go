// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package orchestrator

import (
	"syscall"

	"github.com/sandia-minimega/microbox/internal/options"
)

// cloneFlags computes the namespace flags for the child's clone, following
// the teacher's CONTAINER_FLAGS constant (cmd/minimega/container.go) but
// generalized: PID/UTS/IPC/mount/cgroup/time namespaces are unconditional
// per the spec, while user and network namespaces depend on the plan.
func cloneFlags(opts *options.SandboxOptions) uintptr {
	flags := syscall.CLONE_NEWPID |
		syscall.CLONE_NEWUTS |
		syscall.CLONE_NEWIPC |
		syscall.CLONE_NEWCGROUP |
		syscall.CLONE_NEWTIME |
		syscall.CLONE_NEWNS

	if opts.UserNs == options.UserNsIsolated {
		flags |= syscall.CLONE_NEWUSER
	}
	if opts.Net != options.NetHost {
		flags |= syscall.CLONE_NEWNET
	}

	return uintptr(flags)
}
