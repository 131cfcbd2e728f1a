// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package fsbuilder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sandia-minimega/microbox/internal/options"
)

var defaultDNS = []string{"8.8.8.8", "8.8.4.4"}

func buildEtc(newRoot string, opts *options.SandboxOptions) error {
	etcPath := filepath.Join(newRoot, "etc")
	if err := os.MkdirAll(etcPath, 0755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", options.ErrMountFailed, etcPath, err)
	}

	if err := writeResolvConf(etcPath, opts.DNS); err != nil {
		return err
	}

	if err := bindHostEtcHosts(etcPath); err != nil {
		return err
	}

	if opts.Hostname != "" {
		path := filepath.Join(etcPath, "hostname")
		if err := os.WriteFile(path, []byte(opts.Hostname+"\n"), 0644); err != nil {
			return fmt.Errorf("%w: write /etc/hostname: %v", options.ErrMountFailed, err)
		}
	}

	return nil
}

func writeResolvConf(etcPath string, dns []string) error {
	if len(dns) == 0 {
		dns = defaultDNS
	}

	path := filepath.Join(etcPath, "resolv.conf")
	// a pre-existing resolv.conf is very often a symlink into a mount the
	// host manages; remove it before writing so we don't clobber the host.
	if fi, err := os.Lstat(path); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		os.Remove(path)
	}

	var lines []string
	for _, server := range dns {
		lines = append(lines, "nameserver "+server)
	}
	content := strings.Join(lines, "\n") + "\n"

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("%w: write /etc/resolv.conf: %v", options.ErrMountFailed, err)
	}
	return nil
}

func bindHostEtcHosts(etcPath string) error {
	const hostHosts = "/etc/hosts"
	if _, err := os.Stat(hostHosts); err != nil {
		return nil
	}

	target := filepath.Join(etcPath, "hosts")
	f, err := os.OpenFile(target, os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", options.ErrMountFailed, target, err)
	}
	f.Close()

	if err := syscall.Mount(hostHosts, target, "", syscall.MS_BIND, ""); err != nil {
		return fmt.Errorf("%w: bind /etc/hosts: %v", options.ErrMountFailed, err)
	}
	roFlags := uintptr(syscall.MS_BIND | syscall.MS_REMOUNT | syscall.MS_RDONLY)
	if err := syscall.Mount("", target, "", roFlags, ""); err != nil {
		return fmt.Errorf("%w: ro remount /etc/hosts: %v", options.ErrMountFailed, err)
	}
	return nil
}
