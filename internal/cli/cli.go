// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package cli parses the microbox command line into a SandboxOptions,
// following the teacher's flat flag.* var-block style
// (cmd/minimega/main.go) rather than a subcommand framework.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sandia-minimega/microbox/internal/minilog"
	"github.com/sandia-minimega/microbox/internal/options"
	"github.com/sandia-minimega/microbox/internal/sizeparse"
)

// Version is the microbox release printed by --version.
const Version = "0.1.0"

// ErrHelp and ErrVersion are returned by Parse when --help/--version was
// given; both cases already printed their output and the caller should
// exit 0 rather than treat this as a parse failure.
var (
	ErrHelp    = errors.New("help requested")
	ErrVersion = errors.New("version requested")
)

// repeatedFlag collects a flag passed more than once (e.g. -mount-ro,
// -cap-add) into a slice, the same way net/http handles repeated header
// flags.
type repeatedFlag []string

func (r *repeatedFlag) String() string { return strings.Join(*r, ",") }
func (r *repeatedFlag) Set(s string) error {
	*r = append(*r, s)
	return nil
}

// Config holds everything parsed from argv that isn't part of
// options.SandboxOptions itself (the logging flags).
type Config struct {
	Opts      *options.SandboxOptions
	LogLevel  string
	LogFormat string
}

// Parse parses args (excluding argv[0]) into a Config. argv is whatever
// follows all recognized flags: the program to run inside the sandbox and
// its own arguments. --help/--version are checked for first, ahead of
// flag.Parse, since they take priority over every other flag (spec.md §6:
// "help/version → 0") and aren't registered as ordinary flags.Bool values
// (flag.Parse would otherwise report its own stdlib ErrHelp on -h/-help,
// which this package wants to distinguish from a real parse failure).
func Parse(args []string) (*Config, error) {
	for _, a := range args {
		if a == "--" {
			break
		}
		switch a {
		case "--help", "-help", "-h":
			printUsage()
			return nil, ErrHelp
		case "--version", "-version":
			fmt.Println("microbox", Version)
			return nil, ErrVersion
		}
	}

	fs := flag.NewFlagSet("microbox", flag.ContinueOnError)

	fsKind := fs.String("fs", "tmpfs", "root filesystem: tmpfs, host, or a path to use as a rootfs")
	readOnly := fs.Bool("readonly", false, "mount the root filesystem read-only")
	storage := fs.String("storage", "256M", "tmpfs size for the sandbox root")

	var mountRO, mountRW repeatedFlag
	fs.Var(&mountRO, "mount-ro", "HOST:DEST bind mount, read-only (repeatable)")
	fs.Var(&mountRW, "mount-rw", "HOST:DEST bind mount, read-write (repeatable)")

	net := fs.String("net", "none", "network mode: none, host, or bridge")
	var dns repeatedFlag
	fs.Var(&dns, "dns", "nameserver to write into /etc/resolv.conf (repeatable)")

	hostname := fs.String("hostname", "", "hostname to set inside the sandbox")
	userNs := fs.String("userns", "isolated", "user namespace mode: isolated or host")
	var capAdd, capDrop repeatedFlag
	fs.Var(&capAdd, "cap-add", "capability to add on top of the default set (repeatable)")
	fs.Var(&capDrop, "cap-drop", "capability to drop, or ALL to start from an empty set (repeatable)")

	cpus := fs.Float64("cpus", 0, "CPU quota in cores (0 = unlimited)")
	memory := fs.String("memory", "", "memory limit (0/empty = unlimited)")

	var syscallAllow, syscallDeny repeatedFlag
	fs.Var(&syscallAllow, "allow-syscall", "remove a syscall from the default deny set (repeatable)")
	fs.Var(&syscallDeny, "deny-syscall", "add a syscall to the deny set (repeatable)")

	var env repeatedFlag
	fs.Var(&env, "env", "KEY=VALUE to set in the sandbox environment (repeatable)")

	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error, fatal")
	logFormat := fs.String("log-format", "text", "log format: text or json")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	opts := &options.SandboxOptions{
		ReadOnly: *readOnly,
		Hostname: *hostname,
		DNS:      []string(dns),
		CapAdd:   []string(capAdd),
		CapDrop:  []string(capDrop),
		CPUs:     *cpus,

		SyscallAllow: []string(syscallAllow),
		SyscallDeny:  []string(syscallDeny),

		Argv: fs.Args(),
		Env:  map[string]string{},
	}

	for _, kv := range env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid -env value %q, expected KEY=VALUE", kv)
		}
		opts.Env[k] = v
	}

	storageBytes, err := sizeparse.Bytes(*storage)
	if err != nil {
		return nil, err
	}
	opts.StorageBytes = storageBytes

	memBytes, err := sizeparse.Bytes(*memory)
	if err != nil {
		return nil, err
	}
	opts.MemoryBytes = memBytes

	if err := parseFS(opts, *fsKind); err != nil {
		return nil, err
	}
	if err := parseNet(opts, *net); err != nil {
		return nil, err
	}
	if err := parseUserNs(opts, *userNs); err != nil {
		return nil, err
	}

	for _, b := range mountRO {
		spec, err := parseBind(b)
		if err != nil {
			return nil, err
		}
		opts.BindRO = append(opts.BindRO, spec)
	}
	for _, b := range mountRW {
		spec, err := parseBind(b)
		if err != nil {
			return nil, err
		}
		opts.BindRW = append(opts.BindRW, spec)
	}

	return &Config{Opts: opts, LogLevel: *logLevel, LogFormat: *logFormat}, nil
}

func parseFS(opts *options.SandboxOptions, s string) error {
	switch s {
	case "tmpfs", "":
		opts.FS = options.FSTmpfs
	case "host":
		opts.FS = options.FSHost
	default:
		opts.FS = options.FSRootfs
		opts.RootfsPath = s
	}
	return nil
}

func parseNet(opts *options.SandboxOptions, s string) error {
	switch s {
	case "none":
		opts.Net = options.NetNone
	case "host":
		opts.Net = options.NetHost
	case "bridge":
		opts.Net = options.NetBridge
	default:
		return fmt.Errorf("invalid -net value %q: want none, host, or bridge", s)
	}
	return nil
}

func parseUserNs(opts *options.SandboxOptions, s string) error {
	switch s {
	case "isolated", "":
		opts.UserNs = options.UserNsIsolated
	case "host":
		opts.UserNs = options.UserNsHost
	default:
		return fmt.Errorf("invalid -userns value %q: want isolated or host", s)
	}
	return nil
}

func parseBind(s string) (options.BindSpec, error) {
	host, dest, ok := strings.Cut(s, ":")
	if !ok {
		return options.BindSpec{}, fmt.Errorf("invalid bind spec %q, expected HOST:DEST", s)
	}
	return options.BindSpec{HostPath: host, Dest: dest}, nil
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: microbox [flags] -- argv...")
	fmt.Fprintln(os.Stderr)
	fs := flag.NewFlagSet("microbox", flag.ContinueOnError)
	fs.String("fs", "tmpfs", "root filesystem: tmpfs, host, or a path to use as a rootfs")
	fs.Bool("readonly", false, "mount the root filesystem read-only")
	fs.String("storage", "256M", "tmpfs size for the sandbox root")
	fs.String("mount-ro", "", "HOST:DEST bind mount, read-only (repeatable)")
	fs.String("mount-rw", "", "HOST:DEST bind mount, read-write (repeatable)")
	fs.String("net", "none", "network mode: none, host, or bridge")
	fs.String("dns", "", "nameserver to write into /etc/resolv.conf (repeatable)")
	fs.String("hostname", "", "hostname to set inside the sandbox")
	fs.String("userns", "isolated", "user namespace mode: isolated or host")
	fs.String("cap-add", "", "capability to add on top of the default set (repeatable)")
	fs.String("cap-drop", "", "capability to drop, or ALL to start from an empty set (repeatable)")
	fs.Float64("cpus", 0, "CPU quota in cores (0 = unlimited)")
	fs.String("memory", "", "memory limit (0/empty = unlimited)")
	fs.String("allow-syscall", "", "remove a syscall from the default deny set (repeatable)")
	fs.String("deny-syscall", "", "add a syscall to the deny set (repeatable)")
	fs.String("env", "", "KEY=VALUE to set in the sandbox environment (repeatable)")
	fs.String("log-level", "info", "log level: debug, info, warn, error, fatal")
	fs.String("log-format", "text", "log format: text or json")
	fs.SetOutput(os.Stderr)
	fs.PrintDefaults()
}

// InitLogging parses the level/format strings and registers the default
// stderr logger, exiting via minilog.Fatal on an invalid value.
func InitLogging(c *Config) {
	level, err := minilog.ParseLevel(c.LogLevel)
	if err != nil {
		minilog.Fatal("%v", err)
	}
	format, err := minilog.ParseFormat(c.LogFormat)
	if err != nil {
		minilog.Fatal("%v", err)
	}
	minilog.Init(level, format)
}
