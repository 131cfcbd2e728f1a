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

// bindMount resolves b.Dest under newRoot and bind-mounts b.HostPath onto
// it, generalizing the teacher's containerMountVolumes/mkdirMount (which
// only ever handle directories) to also cover single files and to support
// a read-only reapply pass.
func bindMount(newRoot string, b options.BindSpec, readOnly bool) error {
	target := filepath.Join(newRoot, b.Dest)

	fi, err := os.Lstat(b.HostPath)
	if err != nil {
		return fmt.Errorf("%w: stat bind source %s: %v", options.ErrMountFailed, b.HostPath, err)
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("%w: bind source %s is a symlink", options.ErrMountFailed, b.HostPath)
	}

	if fi.IsDir() {
		if err := os.MkdirAll(target, 0755); err != nil {
			return fmt.Errorf("%w: mkdir %s: %v", options.ErrMountFailed, target, err)
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("%w: mkdir parent of %s: %v", options.ErrMountFailed, target, err)
		}
		f, err := os.OpenFile(target, os.O_CREATE, 0644)
		if err != nil {
			return fmt.Errorf("%w: touch %s: %v", options.ErrMountFailed, target, err)
		}
		f.Close()
	}

	flags := uintptr(syscall.MS_BIND | syscall.MS_REC | syscall.MS_NOSUID | syscall.MS_NODEV)
	if err := syscall.Mount(b.HostPath, target, "", flags, ""); err != nil {
		return fmt.Errorf("%w: bind %s onto %s: %v", options.ErrMountFailed, b.HostPath, target, err)
	}

	if readOnly {
		roFlags := uintptr(syscall.MS_BIND | syscall.MS_REMOUNT | syscall.MS_RDONLY | syscall.MS_NOSUID | syscall.MS_NODEV)
		if err := syscall.Mount("", target, "", roFlags, ""); err != nil {
			return fmt.Errorf("%w: ro remount bind %s: %v", options.ErrMountFailed, target, err)
		}
	}

	return nil
}
