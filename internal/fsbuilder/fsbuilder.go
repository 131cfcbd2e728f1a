// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package fsbuilder constructs the child's mount namespace (C4): the
// tmpfs/host/overlay root, /proc, /dev, /tmp, /etc, user bind mounts, and
// the pivot_root switch. Everything here runs in the child, after clone but
// before exec, and only inside the child's own mount namespace.
//
// The host-root tmpfs-then-bind-then-pivot sequence and the
// mask/read-only-remount pass are adapted from the teacher's
// containerSetupRoot/containerMountDefaults/containerMaskPaths/
// containerRemountReadOnly (cmd/minimega/container.go), which move/bind
// mount into a fixed fsPath rather than pivot_root into a tmpfs the way the
// spec requires; the sequencing and helper shapes (mkdirMount, walk-a-list
// masking) are kept, the root-switch primitive is not.
package fsbuilder

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/sandia-minimega/microbox/internal/options"
)

const boxRoot = "/box"

// Build runs the full C4 sequence for opts inside the calling process's own
// mount namespace (already created for it by clone). It
// must run before any other child-side setup that depends on paths inside
// the new root (network finalization, capability apply).
func Build(opts *options.SandboxOptions) error {
	if err := syscall.Mount("", "/", "", syscall.MS_PRIVATE|syscall.MS_REC, ""); err != nil {
		return fmt.Errorf("%w: rec-private remount of /: %v", options.ErrMountFailed, err)
	}

	var newRoot string
	var err error

	switch opts.FS {
	case options.FSHost:
		newRoot, err = buildHostRoot(opts)
	case options.FSTmpfs:
		newRoot, err = buildTmpfsRoot(opts)
	case options.FSRootfs:
		newRoot, err = buildOverlayRoot(opts)
	default:
		return fmt.Errorf("%w: unknown fs kind %v", options.ErrMountFailed, opts.FS)
	}
	if err != nil {
		return err
	}

	if opts.FS != options.FSHost {
		if err := buildProc(newRoot); err != nil {
			return err
		}
		if err := buildDev(newRoot); err != nil {
			return err
		}
		if err := buildTmp(newRoot); err != nil {
			return err
		}
		if err := buildEtc(newRoot, opts); err != nil {
			return err
		}
		for _, b := range opts.BindRO {
			if err := bindMount(newRoot, b, true); err != nil {
				return err
			}
		}
		for _, b := range opts.BindRW {
			if err := bindMount(newRoot, b, false); err != nil {
				return err
			}
		}
	}

	if err := pivotInto(newRoot); err != nil {
		return err
	}

	if opts.ReadOnly {
		if err := syscall.Mount("", "/", "", syscall.MS_REMOUNT|syscall.MS_RDONLY, ""); err != nil {
			return fmt.Errorf("%w: read-only remount of new root: %v", options.ErrMountFailed, err)
		}
	}

	return nil
}

func mountTmpfs(target string, sizeBytes int64) error {
	if err := os.MkdirAll(target, 0755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", options.ErrMountFailed, target, err)
	}
	data := "mode=755"
	if sizeBytes > 0 {
		data = fmt.Sprintf("mode=755,size=%d", sizeBytes)
	}
	if err := syscall.Mount("tmpfs", target, "tmpfs", syscall.MS_NOSUID|syscall.MS_NODEV, data); err != nil {
		return fmt.Errorf("%w: mount tmpfs on %s: %v", options.ErrMountFailed, target, err)
	}
	return nil
}

func buildHostRoot(opts *options.SandboxOptions) (string, error) {
	if err := mountTmpfs(boxRoot, opts.StorageBytes); err != nil {
		return "", err
	}

	flags := uintptr(syscall.MS_BIND | syscall.MS_REC)
	if err := syscall.Mount("/", boxRoot, "", flags, ""); err != nil {
		return "", fmt.Errorf("%w: bind host / onto %s: %v", options.ErrMountFailed, boxRoot, err)
	}
	if opts.ReadOnly {
		roFlags := uintptr(syscall.MS_BIND | syscall.MS_REMOUNT | syscall.MS_RDONLY)
		if err := syscall.Mount("", boxRoot, "", roFlags, ""); err != nil {
			return "", fmt.Errorf("%w: read-only remount of host bind: %v", options.ErrMountFailed, err)
		}
	}

	return boxRoot, nil
}

func buildTmpfsRoot(opts *options.SandboxOptions) (string, error) {
	if err := mountTmpfs(boxRoot, opts.StorageBytes); err != nil {
		return "", err
	}
	return boxRoot, nil
}

func buildOverlayRoot(opts *options.SandboxOptions) (string, error) {
	if err := mountTmpfs(boxRoot, opts.StorageBytes); err != nil {
		return "", err
	}

	overlay := filepath.Join(boxRoot, "overlay")
	upper := filepath.Join(overlay, "upper")
	work := filepath.Join(overlay, "work")
	merged := filepath.Join(overlay, "merged")

	for _, d := range []string{upper, work, merged} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return "", fmt.Errorf("%w: mkdir %s: %v", options.ErrMountFailed, d, err)
		}
	}

	data := fmt.Sprintf("lowerdir=%s,upperdir=%s,workdir=%s", opts.RootfsPath, upper, work)
	if err := syscall.Mount("overlay", merged, "overlay", 0, data); err != nil {
		return "", fmt.Errorf("%w: mount overlay on %s: %v", options.ErrMountFailed, merged, err)
	}

	return merged, nil
}
