package proxy

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// injector turns an accepted command into the keystrokes the shell receives. It watches shell
// output for bracketed-paste mode so multi-line commands reach line editors as a single paste.
type injector struct {
	autoExecute bool
	pasteMode   bool
	tail        []byte
}

var (
	pasteOnSeq  = []byte(seqPasteOn)
	pasteOffSeq = []byte(seqPasteOff)
)

// Observe tracks bracketed-paste toggles in shell output, including toggles split across chunks.
func (i *injector) Observe(p []byte) {
	if len(p) == 0 {
		return
	}
	data := append(i.tail, p...)
	on := bytes.LastIndex(data, pasteOnSeq)
	off := bytes.LastIndex(data, pasteOffSeq)
	switch {
	case on > off:
		i.pasteMode = true
	case off > on:
		i.pasteMode = false
	}
	keep := min(len(data), len(pasteOnSeq)-1)
	i.tail = append(i.tail[:0:0], data[len(data)-keep:]...)
}

// Encode returns the bytes to write for command, or nil when nothing printable is left.
func (i *injector) Encode(command string) []byte {
	text := cleanCommand(command, i.pasteMode)
	if text == "" {
		return nil
	}
	var b strings.Builder
	if i.pasteMode {
		b.WriteString(seqPasteStart)
		b.WriteString(text)
		b.WriteString(seqPasteEnd)
	} else {
		b.WriteString(text)
	}
	if i.autoExecute {
		b.WriteByte('\r')
	}
	return []byte(b.String())
}

// cleanCommand strips control bytes except TAB. Line breaks survive only inside a paste.
func cleanCommand(command string, keepNewlines bool) string {
	command = strings.ReplaceAll(command, "\r\n", "\n")
	command = strings.TrimRight(command, " \t\r\n")
	var b strings.Builder
	for _, r := range command {
		switch {
		case r == utf8.RuneError:
		case r == '\n' || r == '\r':
			if keepNewlines {
				b.WriteByte('\n')
			} else {
				b.WriteByte(' ')
			}
		case r == '\t':
			b.WriteByte('\t')
		case r < 0x20 || r == 0x7f || (r >= 0x80 && r < 0xa0):
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
