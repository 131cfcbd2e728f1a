// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package fsbuilder

import (
	"fmt"
	"os"
	"syscall"

	"github.com/sandia-minimega/microbox/internal/options"
)

// pivotInto implements the pivot_root procedure in the spec: chdir into the
// new root, mkdir .old_root, pivot_root(., ./.old_root), chdir to the new
// "/", detach-unmount the old root, remove the now-empty mountpoint. This
// replaces the teacher's containerChroot (MS_MOVE of fsPath onto "/" plus a
// later chroot), since the spec calls for pivot_root specifically so the
// old root can be fully unmounted rather than just shadowed.
func pivotInto(newRoot string) error {
	if err := os.Chdir(newRoot); err != nil {
		return fmt.Errorf("%w: chdir %s: %v", options.ErrMountFailed, newRoot, err)
	}

	oldRoot := ".old_root"
	if err := os.MkdirAll(oldRoot, 0700); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", options.ErrMountFailed, oldRoot, err)
	}

	if err := syscall.PivotRoot(".", oldRoot); err != nil {
		return fmt.Errorf("%w: pivot_root: %v", options.ErrMountFailed, err)
	}

	if err := os.Chdir("/"); err != nil {
		return fmt.Errorf("%w: chdir /: %v", options.ErrMountFailed, err)
	}

	if err := syscall.Unmount("/"+oldRoot, syscall.MNT_DETACH); err != nil {
		return fmt.Errorf("%w: detach old root: %v", options.ErrMountFailed, err)
	}

	if err := os.Remove("/" + oldRoot); err != nil {
		return fmt.Errorf("%w: rmdir old root: %v", options.ErrMountFailed, err)
	}

	return nil
}
