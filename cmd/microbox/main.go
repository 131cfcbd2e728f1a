// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Command microbox launches a single sandboxed process: its own pid/mount/
// uts/ipc/cgroup/time namespace, optionally its own user and network
// namespace, a constructed root filesystem, capability and seccomp
// restriction, and (optionally) bridged networking.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/sandia-minimega/microbox/internal/cli"
	"github.com/sandia-minimega/microbox/internal/minilog"
	"github.com/sandia-minimega/microbox/internal/orchestrator"
)

const banner = `microbox, a minimal Linux sandbox launcher`

func usage() {
	fmt.Println(banner)
	fmt.Println("usage: microbox [option]... program [arg]...")
}

func main() {
	// Re-exec shim: a microbox invocation with MagicArg as argv[1] is the
	// child half of a sandbox this same binary just launched, not a fresh
	// CLI invocation. See orchestrator.Launch/RunChild.
	if len(os.Args) > 2 && os.Args[1] == orchestrator.MagicArg {
		orchestrator.RunChild(os.Args[2])
		return
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := cli.Parse(os.Args[1:])
	if errors.Is(err, cli.ErrHelp) || errors.Is(err, cli.ErrVersion) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "microbox:", err)
		os.Exit(1)
	}
	cli.InitLogging(cfg)
	orchestrator.GC()

	handle, err := orchestrator.Launch(cfg.Opts)
	if err != nil {
		minilog.Error("launch: %v", err)
		os.Exit(1)
	}

	code := handle.Wait()
	handle.Teardown()
	os.Exit(code)
}
