// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package syncpipe implements the one-shot handshake (C1) that lets the
// parent gate the child until all host-side setup has completed. The shape
// is the same two-pipe handoff the teacher uses to synchronize freezing a
// container before calling its init program (see containerShim's sync1/sync2
// pair in cmd/minimega/container.go), reduced to the single byte the spec
// calls for.
package syncpipe

import "os"

// Pipe is a single close-on-exec pipe: the parent holds Write, the child
// holds Read. Only the read end is passed to the child via
// exec.Cmd.ExtraFiles, so the child always knows it by a fixed fd number.
type Pipe struct {
	Read  *os.File
	Write *os.File
}

// New creates a fresh sync pipe.
func New() (*Pipe, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	return &Pipe{Read: r, Write: w}, nil
}

// Wake signals the child that parent-side setup succeeded. Must be called
// exactly once, after every parent-side step (id mapping, cgroup setup,
// bridge host-side setup) has completed.
func (p *Pipe) Wake() error {
	_, err := p.Write.Write([]byte{1})
	return err
}

// Abort closes both ends without writing, so the child's blocking read
// returns EOF and it can exit(127) rather than proceed with unmapped
// identity or unconfigured networking.
func (p *Pipe) Abort() {
	p.Read.Close()
	p.Write.Close()
}

// CloseParentEnds closes the ends the parent no longer needs after handing
// the read end off to the child process and waking it.
func (p *Pipe) CloseParentEnds() {
	p.Read.Close()
	p.Write.Close()
}

// Wait blocks in the child until the parent writes the wake byte or closes
// the pipe. Returns the read error (io.EOF) if the parent aborted.
func (p *Pipe) Wait() error {
	buf := make([]byte, 1)
	n, err := p.Read.Read(buf)
	if err != nil {
		return err
	}
	if n != 1 {
		return errShortRead
	}
	return nil
}

var errShortRead = shortReadError{}

type shortReadError struct{}

func (shortReadError) Error() string { return "syncpipe: short read on wake byte" }
