// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package fsbuilder

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/sandia-minimega/microbox/internal/options"
)

// maskedPaths are hidden with a read-only empty overlay (directories) or a
// bind-mount of /dev/null (files); missing entries are skipped silently.
// List and masking strategy follow the teacher's containerMaskedPaths/
// containerMaskPaths, extended with the additional procfs leak points the
// spec calls out (kcore, keys, latency_stats, sched_debug, powercap).
var maskedPaths = []string{
	"asound",
	"acpi",
	"interrupts",
	"kcore",
	"keys",
	"latency_stats",
	"timer_list",
	"timer_stats",
	"sched_debug",
	"scsi",
	"firmware",
	"devices/virtual/powercap",
}

// readOnlyPaths are bind-remounted read-only in place, following
// containerReadOnlyPaths/containerRemountReadOnly.
var readOnlyPaths = []string{
	"sys",
	"sysrq-trigger",
	"irq",
	"bus",
	"fs",
}

func buildProc(newRoot string) error {
	procPath := filepath.Join(newRoot, "proc")
	if err := os.MkdirAll(procPath, 0555); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", options.ErrMountFailed, procPath, err)
	}
	flags := uintptr(syscall.MS_NOSUID | syscall.MS_NOEXEC | syscall.MS_NODEV)
	if err := syscall.Mount("proc", procPath, "proc", flags, ""); err != nil {
		return fmt.Errorf("%w: mount proc: %v", options.ErrMountFailed, err)
	}

	if err := maskProcPaths(procPath); err != nil {
		return err
	}
	return remountProcReadOnly(procPath)
}

func maskProcPaths(procPath string) error {
	for _, rel := range maskedPaths {
		target := filepath.Join(procPath, rel)
		info, err := os.Stat(target)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			continue
		}

		var src string
		if info.IsDir() {
			if err := mountTmpfs(target, 0); err != nil {
				continue
			}
			if err := syscall.Mount("", target, "", syscall.MS_REMOUNT|syscall.MS_RDONLY, ""); err != nil {
				return fmt.Errorf("%w: mask dir %s: %v", options.ErrMountFailed, target, err)
			}
			continue
		}
		src = "/dev/null"
		if err := syscall.Mount(src, target, "", syscall.MS_BIND, ""); err != nil {
			return fmt.Errorf("%w: mask %s: %v", options.ErrMountFailed, target, err)
		}
	}
	return nil
}

func remountProcReadOnly(procPath string) error {
	for _, rel := range readOnlyPaths {
		target := filepath.Join(procPath, rel)
		if _, err := os.Stat(target); os.IsNotExist(err) {
			continue
		}

		flags := uintptr(syscall.MS_REMOUNT | syscall.MS_RDONLY)
		if err := syscall.Mount("", target, "", flags, ""); err == nil {
			continue // it was already its own mountpoint
		}

		if err := syscall.Mount(target, target, "", syscall.MS_BIND, ""); err != nil {
			return fmt.Errorf("%w: bind %s for ro remount: %v", options.ErrMountFailed, target, err)
		}
		roFlags := uintptr(syscall.MS_BIND | syscall.MS_REMOUNT | syscall.MS_RDONLY |
			syscall.MS_REC | syscall.MS_NOEXEC | syscall.MS_NOSUID | syscall.MS_NODEV)
		if err := syscall.Mount(target, target, "", roFlags, ""); err != nil {
			return fmt.Errorf("%w: ro remount %s: %v", options.ErrMountFailed, target, err)
		}
	}
	return nil
}
