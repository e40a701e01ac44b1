package proxy

// lineEditor is the single-line question buffer of the chat prompt.
type lineEditor struct {
	buf    []rune
	cursor int
}

func (e *lineEditor) String() string {
	return string(e.buf)
}

func (e *lineEditor) Len() int {
	return len(e.buf)
}

func (e *lineEditor) Cursor() int {
	return e.cursor
}

func (e *lineEditor) Clear() {
	e.buf = nil
	e.cursor = 0
}

func (e *lineEditor) InsertRune(r rune) {
	e.InsertString(string(r))
}

func (e *lineEditor) InsertString(s string) {
	if s == "" {
		return
	}
	e.clampCursor()
	runes := []rune(s)
	tail := append([]rune(nil), e.buf[e.cursor:]...)
	e.buf = append(append(e.buf[:e.cursor], runes...), tail...)
	e.cursor += len(runes)
}

func (e *lineEditor) Backspace() {
	if e.cursor <= 0 {
		return
	}
	e.buf = append(e.buf[:e.cursor-1], e.buf[e.cursor:]...)
	e.cursor--
}

func (e *lineEditor) Delete() {
	if e.cursor < 0 || e.cursor >= len(e.buf) {
		return
	}
	e.buf = append(e.buf[:e.cursor], e.buf[e.cursor+1:]...)
}

func (e *lineEditor) MoveLeft() {
	if e.cursor > 0 {
		e.cursor--
	}
}

func (e *lineEditor) MoveRight() {
	if e.cursor < len(e.buf) {
		e.cursor++
	}
}

func (e *lineEditor) MoveStart() {
	e.cursor = 0
}

func (e *lineEditor) MoveEnd() {
	e.cursor = len(e.buf)
}

func (e *lineEditor) MoveWordLeft() {
	i := e.cursor
	for i > 0 && isSpace(e.buf[i-1]) {
		i--
	}
	for i > 0 && !isSpace(e.buf[i-1]) {
		i--
	}
	e.cursor = i
}

func (e *lineEditor) MoveWordRight() {
	i := e.cursor
	for i < len(e.buf) && isSpace(e.buf[i]) {
		i++
	}
	for i < len(e.buf) && !isSpace(e.buf[i]) {
		i++
	}
	e.cursor = i
}

func (e *lineEditor) DeleteWordBackward() {
	start := e.cursor
	e.MoveWordLeft()
	if e.cursor == start {
		return
	}
	e.buf = append(e.buf[:e.cursor], e.buf[start:]...)
}

func (e *lineEditor) KillLineStart() {
	if e.cursor <= 0 {
		return
	}
	e.buf = append(e.buf[:0], e.buf[e.cursor:]...)
	e.cursor = 0
}

func (e *lineEditor) KillLineEnd() {
	if e.cursor >= len(e.buf) {
		return
	}
	e.buf = e.buf[:e.cursor]
}

func (e *lineEditor) clampCursor() {
	if e.cursor < 0 {
		e.cursor = 0
	}
	if e.cursor > len(e.buf) {
		e.cursor = len(e.buf)
	}
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t'
}
