package proxy

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

type fakeShadow struct {
	lines   []string
	row     int
	col     int
	written bytes.Buffer
	resized [][2]int
}

func newFakeShadow(rows int) *fakeShadow {
	s := &fakeShadow{row: 1, col: 1}
	for i := 1; i <= rows; i++ {
		s.lines = append(s.lines, fmt.Sprintf("shell row %d", i))
	}
	return s
}

func (s *fakeShadow) Write(p []byte) (int, error) { return s.written.Write(p) }
func (s *fakeShadow) Resize(rows, cols int) {
	s.resized = append(s.resized, [2]int{rows, cols})
	for len(s.lines) < rows {
		s.lines = append(s.lines, "")
	}
	s.lines = s.lines[:rows]
}
func (s *fakeShadow) Lines() []string    { return append([]string(nil), s.lines...) }
func (s *fakeShadow) Cursor() (int, int) { return s.row, s.col }
func (s *fakeShadow) Close() error       { return nil }

// screenModel applies the cursor-addressed writes the overlay emits to a grid of rows.
type screenModel struct {
	rows []string
	row  int
}

func newScreenModel(lines []string) *screenModel {
	return &screenModel{rows: append([]string(nil), lines...)}
}

func (m *screenModel) apply(t *testing.T, data []byte) {
	t.Helper()
	s := string(data)
	for len(s) > 0 {
		if !strings.HasPrefix(s, "\x1b") {
			next := strings.Index(s, "\x1b")
			if next < 0 {
				next = len(s)
			}
			if m.row < 1 || m.row > len(m.rows) {
				t.Fatalf("text %q written outside the screen at row %d", s[:next], m.row)
			}
			m.rows[m.row-1] += s[:next]
			s = s[next:]
			continue
		}
		switch {
		case strings.HasPrefix(s, "\x1b7"), strings.HasPrefix(s, "\x1b8"):
			s = s[2:]
		default:
			end := strings.IndexFunc(s[2:], func(r rune) bool { return r >= 0x40 && r <= 0x7e }) + 2
			seq := s[:end+1]
			s = s[end+1:]
			switch {
			case strings.HasSuffix(seq, "H"):
				var row, col int
				if _, err := fmt.Sscanf(seq, "\x1b[%d;%dH", &row, &col); err != nil {
					t.Fatalf("bad cursor sequence %q", seq)
				}
				m.row = row
			case seq == "\x1b[2K":
				m.rows[m.row-1] = ""
			}
		}
	}
}

func (m *screenModel) plain() []string {
	out := make([]string, len(m.rows))
	for i, row := range m.rows {
		out[i] = strings.ReplaceAll(row, ansiReset, "")
	}
	return out
}

func TestOverlayShowUpdateHideRestoresRows(t *testing.T) {
	shadow := newFakeShadow(6)
	o := newOverlay(shadow, 6)
	screen := newScreenModel(shadow.lines)

	screen.apply(t, o.Show(frame{lines: []string{"a", "b"}}))
	got := screen.plain()
	if got[4] != "a" || got[5] != "b" || got[3] != "shell row 4" {
		t.Fatalf("unexpected screen after show %q", got)
	}
	if o.Height() != 2 {
		t.Fatalf("expected height 2, got %d", o.Height())
	}

	screen.apply(t, o.Update(frame{lines: []string{"a", "b", "c", "d"}}))
	got = screen.plain()
	if got[2] != "a" || got[5] != "d" || got[1] != "shell row 2" {
		t.Fatalf("unexpected screen after grow %q", got)
	}

	screen.apply(t, o.Update(frame{lines: []string{"z"}}))
	got = screen.plain()
	if got[2] != "shell row 3" || got[4] != "shell row 5" || got[5] != "z" {
		t.Fatalf("unexpected screen after shrink %q", got)
	}

	screen.apply(t, o.Hide())
	got = screen.plain()
	for i, line := range got {
		if line != shadow.lines[i] {
			t.Fatalf("row %d not restored: %q", i+1, got)
		}
	}
	if o.Visible() || o.Height() != 0 {
		t.Fatalf("expected hidden overlay")
	}
}

func TestOverlayUpdateSkipsUnchangedRows(t *testing.T) {
	o := newOverlay(newFakeShadow(4), 4)
	o.Show(frame{lines: []string{"same", "old"}})
	out := string(o.Update(frame{lines: []string{"same", "new"}}))
	if strings.Contains(out, "same") || !strings.Contains(out, "new") {
		t.Fatalf("expected only the changed row repainted, got %q", out)
	}
}

func TestOverlayNeverExceedsRows(t *testing.T) {
	shadow := newFakeShadow(3)
	o := newOverlay(shadow, 3)
	screen := newScreenModel(shadow.lines)
	screen.apply(t, o.Show(frame{lines: []string{"1", "2", "3", "4", "5"}}))
	if o.Height() != 3 {
		t.Fatalf("expected height clamped to 3, got %d", o.Height())
	}
	if got := screen.plain(); got[0] != "3" || got[2] != "5" {
		t.Fatalf("expected newest lines kept, got %q", got)
	}
}

func TestOverlayResizeRedrawsAndShrinks(t *testing.T) {
	shadow := newFakeShadow(10)
	o := newOverlay(shadow, 10)
	o.Show(frame{lines: []string{"a", "b", "c", "d", "e", "f"}})

	shadow.Resize(4, 40)
	screen := newScreenModel(make([]string, 4))
	screen.apply(t, o.Resize(4))
	if got := screen.plain(); got[0] != "shell row 1" || got[3] != "shell row 4" {
		t.Fatalf("expected shell rows redrawn after resize, got %q", got)
	}
	screen.apply(t, o.Update(frame{lines: []string{"a", "b", "c", "d", "e", "f"}}))
	if o.Height() > 4 {
		t.Fatalf("overlay taller than terminal: %d", o.Height())
	}
}

func TestOverlayShowsCursorOnlyWhenRequested(t *testing.T) {
	o := newOverlay(newFakeShadow(5), 5)
	out := string(o.Show(frame{lines: []string{"header", "you> q"}, cursorRow: 2, cursorCol: 7}))
	if !strings.HasSuffix(out, "\x1b[5;7H"+seqShowCursor) {
		t.Fatalf("expected cursor at row 5 col 7, got %q", out)
	}
	out = string(o.Update(frame{lines: []string{"header", "you> q"}}))
	if strings.Contains(out, seqShowCursor) {
		t.Fatalf("expected hidden cursor, got %q", out)
	}
}
