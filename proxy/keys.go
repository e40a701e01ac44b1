package proxy

import (
	"bytes"
	"unicode/utf8"
)

const (
	ctrlA     = 0x01
	ctrlC     = 0x03
	ctrlD     = 0x04
	ctrlE     = 0x05
	ctrlK     = 0x0b
	ctrlL     = 0x0c
	ctrlR     = 0x12
	ctrlU     = 0x15
	ctrlW     = 0x17
	esc       = 0x1b
	backspace = 0x7f
)

type keyKind int

const (
	keyRune keyKind = iota
	keyEnter
	keyBackspace
	keyDelete
	keyLeft
	keyRight
	keyHome
	keyEnd
	keyCtrlA
	keyCtrlE
	keyCtrlU
	keyCtrlK
	keyCtrlW
	keyCtrlC
	keyCtrlL
	keyCtrlR
	keyTab
	keyAltB
	keyAltF
	keyPaste
	keyUnknown
)

type key struct {
	kind keyKind
	r    rune
	text string
}

type decodeState int

const (
	stateGround decodeState = iota
	stateEscape
	stateCSI
	stateSS3
	stateRune
	statePaste
)

var pasteEnd = []byte("\x1b[201~")

// maxPasteBytes bounds a bracketed paste whose end marker never arrives.
const maxPasteBytes = 64 * 1024

// keyDecoder turns chat-mode input bytes into keys one byte at a time, so that a key split across
// reads decodes the same as one delivered whole.
type keyDecoder struct {
	state     decodeState
	seq       []byte
	lastWasCR bool
}

func (d *keyDecoder) Reset() {
	d.state = stateGround
	d.seq = d.seq[:0]
	d.lastWasCR = false
}

// Feed consumes b and reports a key when one is complete.
func (d *keyDecoder) Feed(b byte) (key, bool) {
	switch d.state {
	case stateEscape:
		return d.feedEscape(b)
	case stateCSI:
		return d.feedCSI(b)
	case stateSS3:
		d.state = stateGround
		switch b {
		case 'H':
			return key{kind: keyHome}, true
		case 'F':
			return key{kind: keyEnd}, true
		}
		return key{kind: keyUnknown}, true
	case stateRune:
		d.seq = append(d.seq, b)
		if !utf8.FullRune(d.seq) {
			return key{}, false
		}
		r, _ := utf8.DecodeRune(d.seq)
		d.state = stateGround
		d.seq = d.seq[:0]
		if r == utf8.RuneError {
			return key{kind: keyUnknown}, true
		}
		return key{kind: keyRune, r: r}, true
	case statePaste:
		if b == ctrlC || b == ctrlL {
			// Reserved keys cannot be pasted through; they abandon the paste and still act.
			d.state = stateGround
			d.seq = d.seq[:0]
			if b == ctrlL {
				return key{kind: keyCtrlL}, true
			}
			return key{kind: keyCtrlC}, true
		}
		if b == ctrlR {
			return key{kind: keyCtrlR}, true
		}
		d.seq = append(d.seq, b)
		if len(d.seq) > maxPasteBytes {
			text := pasteText(d.seq)
			d.state = stateGround
			d.seq = d.seq[:0]
			return key{kind: keyPaste, text: text}, true
		}
		if !bytes.HasSuffix(d.seq, pasteEnd) {
			return key{}, false
		}
		text := pasteText(d.seq[:len(d.seq)-len(pasteEnd)])
		d.state = stateGround
		d.seq = d.seq[:0]
		return key{kind: keyPaste, text: text}, true
	}
	return d.feedGround(b)
}

func (d *keyDecoder) feedGround(b byte) (key, bool) {
	if d.lastWasCR {
		d.lastWasCR = false
		if b == '\n' {
			return key{}, false
		}
	}
	switch b {
	case esc:
		d.state = stateEscape
		return key{}, false
	case '\r':
		d.lastWasCR = true
		return key{kind: keyEnter}, true
	case '\n':
		return key{kind: keyEnter}, true
	case backspace, 0x08:
		return key{kind: keyBackspace}, true
	case ctrlA:
		return key{kind: keyCtrlA}, true
	case ctrlE:
		return key{kind: keyCtrlE}, true
	case ctrlU:
		return key{kind: keyCtrlU}, true
	case ctrlK:
		return key{kind: keyCtrlK}, true
	case ctrlW:
		return key{kind: keyCtrlW}, true
	case ctrlD:
		return key{kind: keyDelete}, true
	case ctrlC:
		return key{kind: keyCtrlC}, true
	case ctrlL:
		return key{kind: keyCtrlL}, true
	case ctrlR:
		return key{kind: keyCtrlR}, true
	case '\t':
		return key{kind: keyTab}, true
	}
	if b < 0x20 {
		return key{kind: keyUnknown}, true
	}
	if b < utf8.RuneSelf {
		return key{kind: keyRune, r: rune(b)}, true
	}
	d.state = stateRune
	d.seq = append(d.seq[:0], b)
	return key{}, false
}

func (d *keyDecoder) feedEscape(b byte) (key, bool) {
	switch b {
	case '[':
		d.state = stateCSI
		d.seq = d.seq[:0]
		return key{}, false
	case 'O':
		d.state = stateSS3
		return key{}, false
	case 'b', 'B':
		d.state = stateGround
		return key{kind: keyAltB}, true
	case 'f', 'F':
		d.state = stateGround
		return key{kind: keyAltF}, true
	}
	d.state = stateGround
	if b < 0x20 || b == backspace {
		// A lone ESC followed by a control key: the control key still counts.
		return d.feedGround(b)
	}
	return key{kind: keyUnknown}, true
}

func (d *keyDecoder) feedCSI(b byte) (key, bool) {
	if b < 0x20 {
		d.state = stateGround
		d.seq = d.seq[:0]
		return d.feedGround(b)
	}
	d.seq = append(d.seq, b)
	if b < 0x40 || b > 0x7e {
		if len(d.seq) > 16 {
			d.state = stateGround
			d.seq = d.seq[:0]
			return key{kind: keyUnknown}, true
		}
		return key{}, false
	}
	seq := string(d.seq)
	d.state = stateGround
	d.seq = d.seq[:0]
	switch seq {
	case "A", "B":
		return key{kind: keyUnknown}, true
	case "C":
		return key{kind: keyRight}, true
	case "D":
		return key{kind: keyLeft}, true
	case "H", "1~", "7~":
		return key{kind: keyHome}, true
	case "F", "4~", "8~":
		return key{kind: keyEnd}, true
	case "3~":
		return key{kind: keyDelete}, true
	case "200~":
		d.state = statePaste
		return key{}, false
	}
	return key{kind: keyUnknown}, true
}

// pasteText flattens pasted bytes to one line: CR/LF become spaces, other control bytes are
// dropped and invalid UTF-8 is skipped.
func pasteText(p []byte) string {
	out := make([]rune, 0, len(p))
	lastCR := false
	for len(p) > 0 {
		r, size := utf8.DecodeRune(p)
		p = p[size:]
		switch {
		case r == utf8.RuneError && size == 1:
		case r == '\n' && lastCR:
		case r == '\r' || r == '\n' || r == '\t':
			out = append(out, ' ')
		case r < 0x20 || r == backspace:
		default:
			out = append(out, r)
		}
		lastCR = r == '\r'
	}
	return string(out)
}
