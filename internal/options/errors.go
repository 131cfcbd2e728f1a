// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package options

import "errors"

// Sentinel error kinds, wrapped with context via fmt.Errorf("%w: ...", Kind)
// throughout the rest of the module, following the teacher's plain
// fmt.Errorf wrapping style rather than a custom error package.
var (
	ErrInvalidOption     = errors.New("invalid option")
	ErrPrivilegeRequired  = errors.New("privilege required")
	ErrCloneFailed        = errors.New("clone failed")
	ErrIdMapFailed        = errors.New("id map failed")
	ErrCgroupFailed       = errors.New("cgroup failed")
	ErrMountFailed        = errors.New("mount failed")
	ErrNetlinkFailed      = errors.New("netlink failed")
	ErrFirewallFailed     = errors.New("firewall failed")
	ErrIpamExhausted      = errors.New("ipam exhausted")
	ErrIpamBusy           = errors.New("ipam busy")
	ErrSeccompFailed      = errors.New("seccomp failed")
	ErrCapabilityFailed   = errors.New("capability failed")
	ErrChildSetupFailed   = errors.New("child setup failed")
	ErrExecFailed         = errors.New("exec failed")
)
