// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package cgroup implements the cgroup v2 limiter (C3): a shared parent
// group under the cgroup root, and one uniquely-named child directory per
// sandbox with cpu.max/memory.max written before the child is attached.
//
// The directory layout and "ensure parent dirs, write limit files, attach
// last" ordering follows the teacher's containerPopulateCgroups
// (cmd/minimega/container.go), translated from its four cgroup v1
// hierarchies (freezer/memory/devices/cpu) onto the single unified v2
// hierarchy the spec requires.
package cgroup

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sandia-minimega/microbox/internal/options"
)

const (
	cgroupRoot = "/sys/fs/cgroup"
	parentName = "microbox"

	cfsPeriod = 100000 // 100ms, fixed per spec
)

// Limiter owns the directory for one sandbox's cgroup.
type Limiter struct {
	Dir string
}

// EnsureParent creates the shared parent group and enables the cpu/memory
// controllers on the cgroup root and on the parent, matching
// containerInit's "inherit cpusets"/"use_hierarchy" setup, generalized to
// v2's subtree_control knob. EBUSY on controller enable is non-fatal (the
// controller may already be enabled by a previous run).
func EnsureParent() error {
	parent := filepath.Join(cgroupRoot, parentName)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", options.ErrCgroupFailed, parent, err)
	}

	for _, dir := range []string{cgroupRoot, parent} {
		if err := enableControllers(dir); err != nil {
			return err
		}
	}

	return nil
}

func enableControllers(dir string) error {
	path := filepath.Join(dir, "cgroup.subtree_control")
	for _, ctrl := range []string{"+cpu", "+memory"} {
		err := os.WriteFile(path, []byte(ctrl), 0644)
		if err != nil && !os.IsExist(err) && !isEBUSY(err) {
			return fmt.Errorf("%w: enable %s on %s: %v", options.ErrCgroupFailed, ctrl, dir, err)
		}
	}
	return nil
}

func isEBUSY(err error) bool {
	return strings.Contains(err.Error(), "device or resource busy")
}

// New creates a uniquely-named child cgroup (derived from pid and a
// timestamp, to avoid name reuse races) and writes cpu.max/memory.max
// before anything is attached.
func New(pid int, nowNano int64, cpus float64, memoryBytes int64) (*Limiter, error) {
	name := fmt.Sprintf("%d-%d", pid, nowNano)
	dir := filepath.Join(cgroupRoot, parentName, name)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: mkdir %s: %v", options.ErrCgroupFailed, dir, err)
	}

	l := &Limiter{Dir: dir}

	if err := l.writeCPUMax(cpus); err != nil {
		return nil, err
	}
	if err := l.writeMemoryMax(memoryBytes); err != nil {
		return nil, err
	}

	return l, nil
}

func (l *Limiter) writeCPUMax(cpus float64) error {
	var line string
	if cpus == 0 {
		line = fmt.Sprintf("max %d", cfsPeriod)
	} else {
		quota := int(cpus*float64(cfsPeriod) + 0.5)
		line = fmt.Sprintf("%d %d", quota, cfsPeriod)
	}
	path := filepath.Join(l.Dir, "cpu.max")
	if err := os.WriteFile(path, []byte(line), 0644); err != nil {
		return fmt.Errorf("%w: cpu.max: %v", options.ErrCgroupFailed, err)
	}
	return nil
}

func (l *Limiter) writeMemoryMax(memoryBytes int64) error {
	var line string
	if memoryBytes == 0 {
		line = "max"
	} else {
		line = strconv.FormatInt(memoryBytes, 10)
	}
	path := filepath.Join(l.Dir, "memory.max")
	if err := os.WriteFile(path, []byte(line), 0644); err != nil {
		return fmt.Errorf("%w: memory.max: %v", options.ErrCgroupFailed, err)
	}

	// best-effort: disallow swap entirely
	_ = os.WriteFile(filepath.Join(l.Dir, "memory.swap.max"), []byte("0"), 0644)

	return nil
}

// Attach writes pid to cgroup.procs. Must be called only after the limit
// files are already in place, so the child never runs unlimited even for an
// instant.
func (l *Limiter) Attach(pid int) error {
	path := filepath.Join(l.Dir, "cgroup.procs")
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0644); err != nil {
		return fmt.Errorf("%w: attach pid %d: %v", options.ErrCgroupFailed, pid, err)
	}
	return nil
}

// Kill kills every process in the cgroup through cgroup.kill (best-effort
// fallback to signalling each listed pid if cgroup.kill is unavailable on
// this kernel), then removes the directory.
func (l *Limiter) Kill() error {
	killPath := filepath.Join(l.Dir, "cgroup.kill")
	if err := os.WriteFile(killPath, []byte("1"), 0644); err != nil {
		l.killRemainingPids()
	}

	if err := os.Remove(l.Dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: remove %s: %v", options.ErrCgroupFailed, l.Dir, err)
	}
	return nil
}

func (l *Limiter) killRemainingPids() {
	data, err := os.ReadFile(filepath.Join(l.Dir, "cgroup.procs"))
	if err != nil {
		return
	}
	for _, field := range strings.Fields(string(data)) {
		pid, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		p, err := os.FindProcess(pid)
		if err != nil {
			continue
		}
		_ = p.Kill()
	}
}
