package proxy

import "strings"

// overlay owns a bottom-anchored block of terminal rows. Before the first paint it snapshots the
// shell's screen from the shadow so every covered row can be written back on hide. Methods return
// the bytes to send to the terminal; the caller performs the write.
type overlay struct {
	shadow  shadowScreen
	rows    int
	top     int
	painted []string
	saved   []string
	visible bool
}

func newOverlay(shadow shadowScreen, rows int) *overlay {
	return &overlay{shadow: shadow, rows: rows, top: rows + 1}
}

// Visible reports whether the overlay currently owns rows.
func (o *overlay) Visible() bool {
	return o.visible
}

// Height is the number of rows the overlay covers.
func (o *overlay) Height() int {
	if !o.visible {
		return 0
	}
	return o.rows - o.top + 1
}

// Show snapshots the screen and paints f.
func (o *overlay) Show(f frame) []byte {
	if o.visible {
		return o.Update(f)
	}
	o.saved = o.shadow.Lines()
	o.visible = true
	o.top = o.rows + 1
	o.painted = nil
	var b strings.Builder
	b.WriteString(seqSaveCursor)
	b.WriteString(seqHideCursor)
	o.paint(&b, f)
	return []byte(b.String())
}

// Update repaints the rows whose content changed and gives back rows the overlay no longer needs.
func (o *overlay) Update(f frame) []byte {
	if !o.visible {
		return o.Show(f)
	}
	var b strings.Builder
	b.WriteString(seqHideCursor)
	o.paint(&b, f)
	return []byte(b.String())
}

// Hide writes the saved rows back and returns the cursor to where the shell left it.
func (o *overlay) Hide() []byte {
	if !o.visible {
		return nil
	}
	var b strings.Builder
	for row := o.top; row <= o.rows; row++ {
		o.restoreRow(&b, row)
	}
	b.WriteString(seqRestoreCur)
	b.WriteString(seqShowCursor)
	o.visible = false
	o.top = o.rows + 1
	o.painted = nil
	o.saved = nil
	return []byte(b.String())
}

// Resize adopts new geometry. A visible overlay redraws the whole shell screen from a fresh
// snapshot, since the terminal may have reflowed the old rows; the next Update paints it again.
func (o *overlay) Resize(rows int) []byte {
	o.rows = rows
	o.top = rows + 1
	o.painted = nil
	if !o.visible {
		return nil
	}
	o.saved = o.shadow.Lines()
	var b strings.Builder
	b.WriteString(seqHideCursor)
	for row := 1; row <= rows; row++ {
		o.restoreRow(&b, row)
	}
	row, col := o.shadow.Cursor()
	b.WriteString(cursorTo(row, col))
	b.WriteString(seqSaveCursor)
	return []byte(b.String())
}

func (o *overlay) paint(b *strings.Builder, f frame) {
	lines := f.lines
	if len(lines) > o.rows {
		lines = lines[len(lines)-o.rows:]
	}
	newTop := o.rows - len(lines) + 1
	for row := o.top; row < newTop; row++ {
		o.restoreRow(b, row)
	}
	for i, line := range lines {
		row := newTop + i
		if row >= o.top {
			if idx := row - o.top; idx < len(o.painted) && o.painted[idx] == line {
				continue
			}
		}
		b.WriteString(cursorTo(row, 1))
		b.WriteString(ansiReset)
		b.WriteString(seqClearLine)
		b.WriteString(line)
		b.WriteString(ansiReset)
	}
	o.painted = append(o.painted[:0:0], lines...)
	o.top = newTop
	if f.cursorRow > 0 && f.cursorRow <= len(lines) {
		b.WriteString(cursorTo(newTop+f.cursorRow-1, max(f.cursorCol, 1)))
		b.WriteString(seqShowCursor)
	}
}

func (o *overlay) restoreRow(b *strings.Builder, row int) {
	if row < 1 || row > o.rows {
		return
	}
	b.WriteString(cursorTo(row, 1))
	b.WriteString(ansiReset)
	b.WriteString(seqClearLine)
	if row-1 < len(o.saved) {
		b.WriteString(o.saved[row-1])
	}
	b.WriteString(ansiReset)
}
