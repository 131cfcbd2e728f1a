// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package orchestrator ties the other components together into the single
// sandbox lifecycle (C9): validate, clone, parent-side setup, wake, wait,
// teardown. The re-exec-self-with-a-magic-argument shape and the
// extra-pipe-fd handoff are adapted from the teacher's
// ContainerVM.launch/containerShim (cmd/minimega/container.go): minimega
// passes a long positional argument list describing one VM; this package
// passes a single JSON-encoded options.SandboxOptions file instead, since
// the spec's option set is considerably richer (bind mount lists, syscall
// allow/deny lists) than fits comfortably as positional args.
package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/sandia-minimega/microbox/internal/cgroup"
	"github.com/sandia-minimega/microbox/internal/idmap"
	"github.com/sandia-minimega/microbox/internal/ipam"
	"github.com/sandia-minimega/microbox/internal/minilog"
	"github.com/sandia-minimega/microbox/internal/namegen"
	"github.com/sandia-minimega/microbox/internal/netplumber"
	"github.com/sandia-minimega/microbox/internal/options"
	"github.com/sandia-minimega/microbox/internal/syncpipe"

	"golang.org/x/sys/unix"
)

// MagicArg is the argv[1] value that tells a re-exec'd microbox binary to
// run the child shim instead of the normal CLI, mirroring the teacher's
// CONTAINER_MAGIC.
const MagicArg = "MICROBOX_CHILD"

// Handle is the live orchestrator-owned state for one launched sandbox,
// layered on top of options.SandboxProcess with the bits teardown needs
// that the caller doesn't need to see.
type Handle struct {
	Process *options.SandboxProcess

	cmd       *exec.Cmd
	dir       string
	cgroupDir *cgroup.Limiter
	ipamCIDR  string
	ipamAddr  string
}

// Launch validates opts, spawns the child in its own namespaces, performs
// all parent-side setup (id mapping, cgroup limits, bridge host side), and
// wakes the child. It returns once the child is running and ready to build
// its own filesystem and exec the user program; it does not wait for exit.
func Launch(opts *options.SandboxOptions) (*Handle, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.NeedsPrivilege() && os.Geteuid() != 0 {
		return nil, fmt.Errorf("%w: this configuration requires effective uid 0", options.ErrPrivilegeRequired)
	}

	id := options.NewID()
	dir := sandboxDir(id)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("%w: mkdir %s: %v", options.ErrChildSetupFailed, dir, err)
	}

	if err := writeJSON(optionsPath(dir), opts); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	pipe, err := syncpipe.New()
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("%w: sync pipe: %v", options.ErrChildSetupFailed, err)
	}

	cmd := &exec.Cmd{
		Path:       "/proc/self/exe",
		Args:       []string{os.Args[0], MagicArg, dir},
		Stdin:      os.Stdin,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		ExtraFiles: []*os.File{pipe.Read},
		SysProcAttr: &syscall.SysProcAttr{
			Cloneflags: cloneFlags(opts),
		},
	}

	if err := cmd.Start(); err != nil {
		pipe.Abort()
		os.RemoveAll(dir)
		return nil, fmt.Errorf("%w: start child: %v", options.ErrCloneFailed, err)
	}

	pid := cmd.Process.Pid
	// A display name is only for the log line below; the sandbox's real
	// identity is always id (see options.NewID).
	displayName := namegen.Generate(uint32(pid))
	minilog.Debug("microbox %s (%s): child pid %d", id, displayName, pid)

	// pidfd lets a caller poll() for exit without racing pid reuse; best
	// effort, since not every kernel carries pidfd_open.
	pidfd, err := unix.PidfdOpen(pid, 0)
	if err != nil {
		pidfd = -1
	}

	h := &Handle{
		Process: &options.SandboxProcess{ID: id, Pid: pid, PidFD: pidfd},
		cmd:     cmd,
		dir:     dir,
	}

	if err := h.parentSetup(opts, pipe); err != nil {
		pipe.Abort()
		cmd.Process.Kill()
		cmd.Wait()
		h.Teardown()
		return nil, err
	}

	if err := pipe.Wake(); err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		h.Teardown()
		return nil, fmt.Errorf("%w: wake child: %v", options.ErrChildSetupFailed, err)
	}
	pipe.CloseParentEnds()

	return h, nil
}

// parentSetup runs every step that must complete before the child is
// allowed past its sync-pipe read: id mapping, cgroup attach, and (for
// bridge networking) the host side of the veth pair plus firewall rules.
func (h *Handle) parentSetup(opts *options.SandboxOptions, pipe *syncpipe.Pipe) error {
	pid := h.Process.Pid

	if opts.UserNs == options.UserNsIsolated {
		if err := idmap.Map(pid, os.Getuid(), os.Getgid()); err != nil {
			return err
		}
	}

	// Every spawn gets a cgroup, even with cpus=0/memory=0: cgroup.New
	// writes the "max 100000"/"max" unlimited sentinels in that case, but
	// the child must still be a member of exactly one cgroup under the
	// parent group (spec.md §4.3, §8).
	if err := cgroup.EnsureParent(); err != nil {
		return err
	}
	limiter, err := cgroup.New(pid, time.Now().UnixNano(), opts.CPUs, opts.MemoryBytes)
	if err != nil {
		return err
	}
	if err := limiter.Attach(pid); err != nil {
		return err
	}
	h.cgroupDir = limiter
	h.Process.CgroupDir = limiter.Dir

	if opts.Net == options.NetBridge {
		net, err := h.setupBridgeHostSide(opts, pid)
		if err != nil {
			return err
		}
		h.Process.Network = net
		if err := writeJSON(networkPath(h.dir), net); err != nil {
			return err
		}
	}

	return nil
}

func (h *Handle) setupBridgeHostSide(opts *options.SandboxOptions, pid int) (*options.NetConfig, error) {
	bridge, bridgeAddr, err := netplumber.EnsureBridge()
	if err != nil {
		return nil, err
	}

	hostVeth, peerVeth, err := netplumber.SetupHostSide(pid, bridge)
	if err != nil {
		return nil, err
	}
	h.ipamCIDR = ipamSubnet

	store := ipam.New(ipamDBPath())
	addr, err := store.Allocate(ipamSubnet, []string{bridgeAddr.String()})
	if err != nil {
		return nil, err
	}
	h.ipamAddr = addr.String()

	if err := netplumber.EnableIPForwarding(); err != nil {
		return nil, err
	}
	if err := netplumber.InstallFirewallRules(ipamSubnet); err != nil {
		return nil, err
	}

	return &options.NetConfig{
		Bridge:       "mbx0",
		HostVeth:     hostVeth,
		PeerVeth:     peerVeth,
		BridgeAddr:   bridgeAddr.String(),
		ContainerIP:  addr.String(),
		PrefixLength: 24,
	}, nil
}

// ipamSubnet is the fixed pool bridged sandboxes draw addresses from; it
// must match netplumber's bridge CIDR.
const ipamSubnet = "172.30.0.0/24"

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %v", options.ErrChildSetupFailed, path, err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("%w: write %s: %v", options.ErrChildSetupFailed, path, err)
	}
	return nil
}
