// Package ttyctl owns the controlling terminal: raw mode, input bytes, output writes and geometry.
package ttyctl

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"pkt.systems/shellm/schema"
)

// Size is a terminal geometry in cells.
type Size struct {
	Rows int
	Cols int
}

// Controller wraps the terminal's input and output files.
type Controller struct {
	in  *os.File
	out *os.File
	br  *bufio.Reader
}

// New returns a Controller reading from in and writing to out.
func New(in, out *os.File) *Controller {
	return &Controller{in: in, out: out, br: bufio.NewReaderSize(in, 4096)}
}

// IsTerminal reports whether both sides are terminals.
func (c *Controller) IsTerminal() bool {
	return term.IsTerminal(int(c.in.Fd())) && term.IsTerminal(int(c.out.Fd()))
}

// Enter switches the input terminal to raw mode. The returned handle restores the previous
// attributes; Restore may be called any number of times.
func (c *Controller) Enter() (*RawMode, error) {
	fd := int(c.in.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("%w: %s is not a terminal", schema.ErrRawMode, c.in.Name())
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", schema.ErrRawMode, err)
	}
	return &RawMode{fd: fd, state: state}, nil
}

// ReadByte blocks until one input byte is available.
func (c *Controller) ReadByte() (byte, error) {
	return c.br.ReadByte()
}

// Buffered returns how many input bytes can be read without blocking.
func (c *Controller) Buffered() int {
	return c.br.Buffered()
}

// Write writes p to the terminal.
func (c *Controller) Write(p []byte) (int, error) {
	return c.out.Write(p)
}

// Size returns the current terminal geometry.
func (c *Controller) Size() (Size, error) {
	ws, err := unix.IoctlGetWinsize(int(c.out.Fd()), unix.TIOCGWINSZ)
	if err != nil {
		ws, err = unix.IoctlGetWinsize(int(c.in.Fd()), unix.TIOCGWINSZ)
	}
	if err != nil {
		return Size{}, fmt.Errorf("%w: query window size: %v", schema.ErrRawMode, err)
	}
	if ws.Row == 0 || ws.Col == 0 {
		return Size{}, fmt.Errorf("%w: terminal reports zero size", schema.ErrRawMode)
	}
	return Size{Rows: int(ws.Row), Cols: int(ws.Col)}, nil
}

// WatchResize delivers the new geometry after every SIGWINCH until ctx is done.
func (c *Controller) WatchResize(ctx context.Context) <-chan Size {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGWINCH)
	out := make(chan Size, 1)
	go func() {
		defer close(out)
		defer signal.Stop(sigCh)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigCh:
				size, err := c.Size()
				if err != nil {
					continue
				}
				select {
				case out <- size:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// RawMode is the scoped raw-mode handle returned by Enter.
type RawMode struct {
	fd    int
	state *term.State
	once  sync.Once
	err   error
}

// Restore puts the terminal back into the mode it had before Enter.
func (r *RawMode) Restore() error {
	if r == nil {
		return nil
	}
	r.once.Do(func() {
		r.err = term.Restore(r.fd, r.state)
	})
	return r.err
}
