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

// devSymlinks mirrors containerLinks/containerPtmx: pairs of
// (target-of-the-link, path-under-/dev-to-create-it-at).
var devSymlinks = [][2]string{
	{"/proc/self/fd", "dev/fd"},
	{"/proc/self/fd/0", "dev/stdin"},
	{"/proc/self/fd/1", "dev/stdout"},
	{"/proc/self/fd/2", "dev/stderr"},
	{"/proc/kcore", "dev/core"},
	{"pts/ptmx", "dev/ptmx"},
}

// devBindAllow is the host device allow-list bind-mounted into the new
// /dev, per the spec. containerMknodDevices creates these with mknod
// instead, which requires CAP_MKNOD in the box's own user namespace; bind
// mounting the host nodes works under an unprivileged mapping too.
var devBindAllow = []string{
	"null",
	"zero",
	"random",
	"urandom",
	"tty",
}

func buildDev(newRoot string) error {
	devPath := filepath.Join(newRoot, "dev")
	if err := mountTmpfs(devPath, 65536); err != nil {
		return err
	}

	ptsPath := filepath.Join(devPath, "pts")
	if err := os.MkdirAll(ptsPath, 0755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", options.ErrMountFailed, ptsPath, err)
	}
	ptsFlags := uintptr(syscall.MS_NOEXEC | syscall.MS_NOSUID)
	if err := syscall.Mount("devpts", ptsPath, "devpts", ptsFlags, "newinstance,ptmxmode=0666,mode=620"); err != nil {
		return fmt.Errorf("%w: mount devpts: %v", options.ErrMountFailed, err)
	}

	shmPath := filepath.Join(devPath, "shm")
	if err := os.MkdirAll(shmPath, 01777); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", options.ErrMountFailed, shmPath, err)
	}
	shmFlags := uintptr(syscall.MS_NOEXEC | syscall.MS_NOSUID | syscall.MS_NODEV)
	if err := syscall.Mount("tmpfs", shmPath, "tmpfs", shmFlags, "mode=1777"); err != nil {
		return fmt.Errorf("%w: mount /dev/shm: %v", options.ErrMountFailed, err)
	}

	mqueuePath := filepath.Join(devPath, "mqueue")
	if err := os.MkdirAll(mqueuePath, 0755); err == nil {
		// best-effort: not every kernel build carries the mqueue fs
		_ = syscall.Mount("mqueue", mqueuePath, "mqueue", 0, "")
	}

	for _, l := range devSymlinks {
		path := filepath.Join(newRoot, l[1])
		os.Remove(path)
		if err := os.Symlink(l[0], path); err != nil {
			return fmt.Errorf("%w: symlink %s: %v", options.ErrMountFailed, path, err)
		}
	}

	for _, name := range devBindAllow {
		hostPath := filepath.Join("/dev", name)
		if _, err := os.Stat(hostPath); err != nil {
			continue
		}
		target := filepath.Join(devPath, name)
		f, err := os.OpenFile(target, os.O_CREATE, 0666)
		if err != nil {
			return fmt.Errorf("%w: create %s: %v", options.ErrMountFailed, target, err)
		}
		f.Close()
		if err := syscall.Mount(hostPath, target, "", syscall.MS_BIND, ""); err != nil {
			return fmt.Errorf("%w: bind %s: %v", options.ErrMountFailed, hostPath, err)
		}
	}

	return nil
}

func buildTmp(newRoot string) error {
	tmpPath := filepath.Join(newRoot, "tmp")
	if err := os.MkdirAll(tmpPath, 01777); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", options.ErrMountFailed, tmpPath, err)
	}
	return os.Chmod(tmpPath, 01777)
}
