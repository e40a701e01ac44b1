package proxy

import (
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/x/vt"
)

const (
	seqHideCursor  = "\x1b[?25l"
	seqShowCursor  = "\x1b[?25h"
	seqSaveCursor  = "\x1b7"
	seqRestoreCur  = "\x1b8"
	seqClearLine   = "\x1b[2K"
	seqClearScreen = "\x1b[H\x1b[2J"
	seqPasteOn     = "\x1b[?2004h"
	seqPasteOff    = "\x1b[?2004l"
	seqPasteStart  = "\x1b[200~"
	seqPasteEnd    = "\x1b[201~"
)

func cursorTo(row, col int) string {
	return "\x1b[" + strconv.Itoa(row) + ";" + strconv.Itoa(col) + "H"
}

// shadowScreen mirrors what the shell has drawn on the real terminal.
type shadowScreen interface {
	io.Writer
	Resize(rows, cols int)
	// Lines returns one styled string per screen row.
	Lines() []string
	// Cursor returns the 1-based cursor position.
	Cursor() (row, col int)
	Close() error
}

// vtShadow is a shadowScreen backed by a virtual terminal emulator.
type vtShadow struct {
	emu     *vt.Emulator
	rows    int
	drained chan struct{}
	once    sync.Once
	err     error
}

func newVTShadow(rows, cols int) *vtShadow {
	s := &vtShadow{emu: vt.NewEmulator(cols, rows), rows: rows, drained: make(chan struct{})}
	// Replies to terminal queries land on the read side and are discarded.
	go func() {
		defer close(s.drained)
		_, _ = io.Copy(io.Discard, s.emu)
	}()
	return s
}

func (s *vtShadow) Write(p []byte) (int, error) {
	return s.emu.Write(p)
}

func (s *vtShadow) Resize(rows, cols int) {
	s.rows = rows
	s.emu.Resize(cols, rows)
}

func (s *vtShadow) Lines() []string {
	rendered := strings.ReplaceAll(s.emu.Render(), "\r\n", "\n")
	lines := strings.Split(rendered, "\n")
	if len(lines) > s.rows {
		lines = lines[:s.rows]
	}
	for len(lines) < s.rows {
		lines = append(lines, "")
	}
	return lines
}

func (s *vtShadow) Cursor() (int, int) {
	pos := s.emu.CursorPosition()
	return pos.Y + 1, pos.X + 1
}

// Close stops the reply drain before closing the emulator, so the two never touch it at once.
func (s *vtShadow) Close() error {
	s.once.Do(func() {
		if c, ok := s.emu.InputPipe().(io.Closer); ok {
			_ = c.Close()
		}
		<-s.drained
		s.err = s.emu.Close()
	})
	return s.err
}
