// Package markdown understands the small slice of markdown assistant replies use:
// inline emphasis for display and fenced code blocks for payload extraction.
package markdown

import "strings"

// Span is a run of text sharing one inline style.
type Span struct {
	Text   string
	Bold   bool
	Italic bool
	Code   bool
}

type inlineParser struct {
	spans []Span
	buf   strings.Builder
	style Span
}

// ParseInline splits input into styled spans. Supported markers are **bold**, *italic* and `code`;
// a marker without a closing partner is kept as literal text.
func ParseInline(input string) []Span {
	if input == "" {
		return nil
	}
	p := &inlineParser{}
	for i := 0; i < len(input); {
		i = p.step(input, i)
	}
	p.flush()
	return p.spans
}

func (p *inlineParser) step(in string, i int) int {
	ch := in[i]
	switch {
	case ch == '\\' && i+1 < len(in):
		p.buf.WriteByte(in[i+1])
		return i + 2
	case ch == '`' && (p.style.Code || strings.Contains(in[i+1:], "`")):
		p.flush()
		p.style.Code = !p.style.Code
		return i + 1
	case p.style.Code:
	case strings.HasPrefix(in[i:], "**"):
		if p.style.Bold || strings.Contains(in[i+2:], "**") {
			p.flush()
			p.style.Bold = !p.style.Bold
		} else {
			p.buf.WriteString("**")
		}
		return i + 2
	case ch == '*' && (p.style.Italic || strings.Contains(in[i+1:], "*")):
		p.flush()
		p.style.Italic = !p.style.Italic
		return i + 1
	}
	p.buf.WriteByte(ch)
	return i + 1
}

func (p *inlineParser) flush() {
	if p.buf.Len() == 0 {
		return
	}
	span := p.style
	span.Text = p.buf.String()
	p.spans = append(p.spans, span)
	p.buf.Reset()
}

// Block is a fenced code block.
type Block struct {
	Info   string
	Body   string
	Closed bool
}

// FencedBlocks returns the ``` fenced blocks of text in order. A trailing block without a
// closing fence is returned with Closed=false so partial replies can be inspected.
func FencedBlocks(text string) []Block {
	var blocks []Block
	rest := text
	for {
		start := strings.Index(rest, "```")
		if start < 0 {
			return blocks
		}
		rest = rest[start+3:]
		info := rest
		nl := strings.IndexByte(rest, '\n')
		if nl < 0 {
			blocks = append(blocks, Block{Info: strings.TrimSpace(info)})
			return blocks
		}
		info = rest[:nl]
		rest = rest[nl+1:]
		end := strings.Index(rest, "```")
		if end < 0 {
			blocks = append(blocks, Block{Info: strings.TrimSpace(info), Body: rest})
			return blocks
		}
		blocks = append(blocks, Block{Info: strings.TrimSpace(info), Body: rest[:end], Closed: true})
		rest = rest[end+3:]
	}
}

// CodeBody returns the body of the first block tagged lang, else of the first block, else text itself.
func CodeBody(text, lang string) string {
	blocks := FencedBlocks(text)
	if len(blocks) == 0 {
		return text
	}
	for _, block := range blocks {
		if strings.EqualFold(block.Info, lang) {
			return block.Body
		}
	}
	return blocks[0].Body
}
