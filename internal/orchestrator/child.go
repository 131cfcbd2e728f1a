// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package orchestrator

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"syscall"

	"github.com/sandia-minimega/microbox/internal/capset"
	"github.com/sandia-minimega/microbox/internal/fsbuilder"
	"github.com/sandia-minimega/microbox/internal/netplumber"
	"github.com/sandia-minimega/microbox/internal/options"
	"github.com/sandia-minimega/microbox/internal/seccomp"
	"github.com/sandia-minimega/microbox/internal/syncpipe"
)

// syncPipeFD is the fixed fd the child's end of the sync pipe arrives on,
// since it is always the first (and only) entry in ExtraFiles.
const syncPipeFD = 3

// RunChild is the child-side shim: it never returns on success (it execs
// the user program), mirroring containerShim's own terminal exec. On any
// failure it prints one diagnostic to stderr and exits 127, per the spec.
// dir is the sandbox's run directory, containing options.json and (for
// bridge networking) network.json, written by the parent before Launch
// wakes the child.
func RunChild(dir string) {
	if err := runChild(dir); err != nil {
		fmt.Fprintln(os.Stderr, "microbox:", err)
		os.Exit(127)
	}
}

func runChild(dir string) error {
	opts, err := readOptions(optionsPath(dir))
	if err != nil {
		return err
	}

	pipe := &syncpipe.Pipe{Read: os.NewFile(uintptr(syncPipeFD), "syncpipe")}
	if err := pipe.Wait(); err != nil {
		return fmt.Errorf("%w: sync pipe: %v", options.ErrChildSetupFailed, err)
	}

	if opts.Hostname != "" {
		if err := syscall.Sethostname([]byte(opts.Hostname)); err != nil {
			return fmt.Errorf("%w: sethostname: %v", options.ErrChildSetupFailed, err)
		}
	}

	if err := fsbuilder.Build(opts); err != nil {
		return err
	}

	if opts.Net == options.NetBridge {
		if err := finalizeChildNetwork(dir); err != nil {
			return err
		}
	}

	caps := capset.Compute(opts.CapAdd, opts.CapDrop)
	if err := capset.Apply(caps); err != nil {
		return err
	}

	deny := seccomp.ComputeDenySet(opts.SyscallAllow, opts.SyscallDeny)
	if err := seccomp.Install(deny); err != nil {
		return err
	}

	argv0, err := exec.LookPath(opts.Argv[0])
	if err != nil {
		return fmt.Errorf("%w: %v", options.ErrExecFailed, err)
	}

	if err := syscall.Exec(argv0, opts.Argv, opts.MergedEnv()); err != nil {
		return fmt.Errorf("%w: exec %s: %v", options.ErrExecFailed, opts.Argv[0], err)
	}

	panic("unreachable: syscall.Exec only returns on error")
}

func finalizeChildNetwork(dir string) error {
	nc, err := readNetwork(networkPath(dir))
	if err != nil {
		return err
	}

	bridgeIP := netIP(nc.BridgeAddr)
	containerIP := netIP(nc.ContainerIP)

	return netplumber.FinalizeChildSide(nc.PeerVeth, "eth0", containerIP, nc.PrefixLength, bridgeIP)
}

func netIP(s string) net.IP {
	return net.ParseIP(s)
}

func readOptions(path string) (*options.SandboxOptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read options: %v", options.ErrChildSetupFailed, err)
	}
	var opts options.SandboxOptions
	if err := json.Unmarshal(data, &opts); err != nil {
		return nil, fmt.Errorf("%w: parse options: %v", options.ErrChildSetupFailed, err)
	}
	return &opts, nil
}

func readNetwork(path string) (*options.NetConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read network config: %v", options.ErrChildSetupFailed, err)
	}
	var nc options.NetConfig
	if err := json.Unmarshal(data, &nc); err != nil {
		return nil, fmt.Errorf("%w: parse network config: %v", options.ErrChildSetupFailed, err)
	}
	return &nc, nil
}
