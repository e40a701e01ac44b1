package proxy

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"

	"pkt.systems/shellm/internal/i18n"
	"pkt.systems/shellm/internal/markdown"
)

// view is the overlay content at one point in time.
type view struct {
	lang             i18n.Language
	mode             Mode
	input            string
	cursor           int
	answer           string
	reasoning        string
	reasoningVisible bool
	command          string
	replied          bool
	notice           string
}

// frame is a laid-out overlay. cursorRow is 1-based within lines; zero hides the cursor.
type frame struct {
	lines     []string
	cursorRow int
	cursorCol int
}

// layout renders v into at most limit lines of width cells. When content does not fit, reasoning
// goes first, then the hint and header lines, then the oldest answer text. The question and the
// candidate stay.
func layout(v view, width, limit int, theme overlayTheme) frame {
	if width <= 0 || limit <= 0 {
		return frame{}
	}
	header := wrapStyled(i18n.T(v.lang, i18n.Welcome), width, theme.fg(theme.MetaFG)+ansiDim)
	input, inputRow, inputCol := renderInputLines(stylePrompt(i18n.T(v.lang, i18n.PromptUser), theme), v.input, v.cursor, width)
	reasoning := reasoningLines(v, width, theme)
	answer := answerLines(v, width, theme)
	var candidate, hint, notice []string
	if v.mode == ReviewCommand {
		candidate = candidateLines(v, width, theme)
		hint = wrapStyled(i18n.T(v.lang, i18n.ReviewHint), width, theme.fg(theme.MetaFG)+ansiDim)
	}
	if v.notice != "" {
		notice = wrapStyled(v.notice, width, theme.fg(theme.ErrorFG)+ansiBold)
	}

	total := len(header) + len(input) + len(reasoning) + len(answer) + len(candidate) + len(hint) + len(notice)
	var marker []string
	if total > limit {
		budget := limit
		if limit >= 3 {
			marker = wrapStyled(i18n.T(v.lang, i18n.Truncated), width, theme.fg(theme.MetaFG)+ansiDim)[:1]
			budget--
		}
		excess := total - budget
		for _, section := range []*[]string{&reasoning, &hint, &header, &answer} {
			cut := min(excess, len(*section))
			*section = (*section)[cut:]
			excess -= cut
		}
		if excess > 0 && len(input) > 1 {
			cut := min(excess, len(input)-1, inputRow-1)
			input = input[cut:]
			inputRow -= cut
		}
	}

	lines := make([]string, 0, limit)
	for _, section := range [][]string{marker, header, input, reasoning, answer, candidate, hint, notice} {
		lines = append(lines, section...)
	}
	f := frame{lines: lines}
	if v.mode == ChatInput {
		f.cursorRow = len(marker) + len(header) + inputRow
		f.cursorCol = inputCol
	}
	if len(f.lines) > limit {
		drop := len(f.lines) - limit
		if f.cursorRow > 0 {
			// The window ends no earlier than the cursor row; the rest is cut from below.
			drop = min(drop, f.cursorRow-1)
		}
		f.lines = f.lines[drop : drop+limit]
		if f.cursorRow > 0 {
			f.cursorRow -= drop
		}
	}
	for i, line := range f.lines {
		f.lines[i] = ansi.Truncate(line, width, "")
	}
	return f
}

func reasoningLines(v view, width int, theme overlayTheme) []string {
	if strings.TrimSpace(v.reasoning) == "" {
		return nil
	}
	if !v.reasoningVisible {
		return wrapStyled(i18n.T(v.lang, i18n.HintToggleReasoning), width, theme.fg(theme.MetaFG)+ansiDim)
	}
	markerStyle := theme.fg(theme.ReasoningBold) + ansiBold
	lines := wrapStyled(i18n.T(v.lang, i18n.ReasoningStart), width, markerStyle)
	lines = append(lines, wrapStyled(v.reasoning, width, theme.fg(theme.ReasoningFG)+ansiItalic)...)
	return append(lines, wrapStyled(i18n.T(v.lang, i18n.ReasoningEnd), width, markerStyle)...)
}

func answerLines(v view, width int, theme overlayTheme) []string {
	if v.mode != Streaming && v.answer == "" {
		return nil
	}
	prefix := i18n.T(v.lang, i18n.PromptAssistant)
	prefixWidth := ansi.StringWidth(prefix)
	styledPrefix := theme.fg(theme.PromptFG) + ansiBold + prefix + ansiReset
	indent := strings.Repeat(" ", prefixWidth)
	avail := width - prefixWidth
	if avail < 1 {
		return wrapStyled(prefix+v.answer, width, theme.fg(theme.AnswerFG))
	}
	var body []string
	if strings.TrimSpace(v.answer) == "" {
		body = wrapStyled(i18n.T(v.lang, i18n.Thinking), avail, theme.fg(theme.MetaFG)+ansiDim)
	} else {
		style := markdownStyle{base: theme.fg(theme.AnswerFG), code: theme.fg(theme.CodeFG), bold: theme.fg(theme.ReasoningBold)}
		for _, paragraph := range strings.Split(sanitizeText(v.answer), "\n") {
			body = append(body, renderMarkdownLines(paragraph, avail, style)...)
		}
	}
	lines := make([]string, 0, len(body))
	for i, line := range body {
		if i == 0 {
			lines = append(lines, styledPrefix+line)
			continue
		}
		lines = append(lines, indent+line)
	}
	return lines
}

func candidateLines(v view, width int, theme overlayTheme) []string {
	if strings.TrimSpace(v.command) == "" {
		return wrapStyled(i18n.T(v.lang, i18n.NoCommand), width, theme.fg(theme.MetaFG)+ansiDim)
	}
	prefix := i18n.T(v.lang, i18n.PromptCandidate)
	prefixWidth := ansi.StringWidth(prefix)
	avail := max(width-prefixWidth, 1)
	wrapped := strings.Split(ansi.Hardwrap(sanitizeText(v.command), avail, true), "\n")
	style := theme.fg(theme.CandidateFG) + ansiBold
	lines := make([]string, 0, len(wrapped))
	for i, line := range wrapped {
		lead := strings.Repeat(" ", prefixWidth)
		if i == 0 {
			lead = theme.fg(theme.MetaFG) + prefix + ansiReset
		}
		lines = append(lines, lead+style+line+ansiReset)
	}
	return lines
}

func stylePrompt(prefix string, theme overlayTheme) string {
	return ansiBold + theme.fg(theme.PromptFG) + prefix + ansiReset
}

// wrapStyled word-wraps sanitized text to width and styles each line.
func wrapStyled(text string, width int, style string) []string {
	if width <= 0 {
		return nil
	}
	wrapped := ansi.Wrap(sanitizeText(text), width, "")
	lines := strings.Split(wrapped, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if style == "" {
			out = append(out, line)
			continue
		}
		out = append(out, style+line+ansiReset)
	}
	return out
}

// sanitizeText removes escape sequences and control characters, keeping newlines.
func sanitizeText(text string) string {
	text = ansi.Strip(text)
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		switch {
		case r == utf8.RuneError && size == 1:
		case r == '\n':
			b.WriteByte('\n')
		case r == '\t':
			b.WriteString("    ")
		case r < 0x20 || r == 0x7f:
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// renderInputLines lays out prefix+input wrapped to width and returns the lines plus the 1-based
// row and column of the cursor.
func renderInputLines(prefix, input string, cursor, width int) ([]string, int, int) {
	inputRunes := []rune(input)
	cursor = max(0, min(cursor, len(inputRunes)))
	prefixWidth := ansi.StringWidth(prefix)
	prefixVisible := prefix
	if prefixWidth >= width {
		prefixVisible = ansi.Truncate(prefix, max(width-1, 0), "")
		prefixWidth = ansi.StringWidth(prefixVisible)
	}
	indent := strings.Repeat(" ", prefixWidth)
	avail := max(width-prefixWidth, 1)

	lines := []string{}
	var line strings.Builder
	row, col := 0, 0
	cursorRow, cursorCol := 1, prefixWidth+1
	flush := func() {
		lead := prefixVisible
		if row > 0 {
			lead = indent
		}
		lines = append(lines, lead+line.String())
		line.Reset()
		row++
		col = 0
	}
	for i, r := range inputRunes {
		w := runewidth.RuneWidth(r)
		if col+w > avail && col > 0 {
			flush()
		}
		if i == cursor {
			cursorRow, cursorCol = row+1, prefixWidth+col+1
		}
		line.WriteRune(r)
		col += w
	}
	if cursor == len(inputRunes) {
		cursorRow, cursorCol = row+1, prefixWidth+col+1
	}
	if line.Len() > 0 || row == 0 {
		flush()
	}
	return lines, cursorRow, min(cursorCol, width)
}

type markdownStyle struct {
	base string
	bold string
	code string
}

// renderMarkdownLines word-wraps one paragraph of inline markdown to width, carrying span styles
// across line breaks.
func renderMarkdownLines(text string, width int, style markdownStyle) []string {
	spans := markdown.ParseInline(text)
	if len(spans) == 0 || width <= 0 {
		return []string{""}
	}
	lines := make([]string, 0, 4)
	var b strings.Builder
	visible := 0
	current := ""
	suppressLeadingSpace := false

	styleFor := func(span markdown.Span) string {
		code := style.base
		if span.Code {
			code += style.code
		}
		if span.Bold {
			code += ansiBold + style.bold
		}
		if span.Italic {
			code += ansiItalic
		}
		return code
	}
	apply := func(code string) {
		if code == current && b.Len() > 0 {
			return
		}
		b.WriteString(ansiReset)
		b.WriteString(code)
		current = code
	}
	flushLine := func(wrapped bool) {
		if b.Len() == 0 {
			return
		}
		b.WriteString(ansiReset)
		lines = append(lines, b.String())
		b.Reset()
		visible = 0
		current = ""
		suppressLeadingSpace = wrapped
	}

	for _, span := range spans {
		code := styleFor(span)
		for _, word := range splitWords(span.Text) {
			if word == " " {
				if visible == 0 && suppressLeadingSpace {
					continue
				}
				if visible+1 > width {
					flushLine(true)
					continue
				}
				apply(code)
				b.WriteByte(' ')
				visible++
				continue
			}
			wordWidth := runewidth.StringWidth(word)
			if wordWidth > width {
				if visible > 0 {
					flushLine(true)
				}
				for _, r := range word {
					w := runewidth.RuneWidth(r)
					if visible+w > width {
						flushLine(true)
					}
					apply(code)
					b.WriteRune(r)
					visible += w
				}
				suppressLeadingSpace = false
				continue
			}
			if visible+wordWidth > width && visible > 0 {
				flushLine(true)
			}
			apply(code)
			b.WriteString(word)
			visible += wordWidth
			suppressLeadingSpace = false
		}
	}
	flushLine(false)
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}

// splitWords splits text into words and single-space separators.
func splitWords(text string) []string {
	var words []string
	var buf strings.Builder
	for _, r := range text {
		if unicode.IsSpace(r) {
			if buf.Len() > 0 {
				words = append(words, buf.String())
				buf.Reset()
			}
			words = append(words, " ")
			continue
		}
		buf.WriteRune(r)
	}
	if buf.Len() > 0 {
		words = append(words, buf.String())
	}
	return words
}
