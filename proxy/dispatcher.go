package proxy

import (
	"strings"
	"unicode"

	"pkt.systems/pslog"
	"pkt.systems/shellm/internal/i18n"
	"pkt.systems/shellm/schema"
)

type effectKind int

const (
	// effShellWrite sends data to the shell's input.
	effShellWrite effectKind = iota + 1
	// effTermWrite sends shell output to the terminal.
	effTermWrite
	// effRender shows or updates the overlay with view.
	effRender
	// effHide erases the overlay.
	effHide
	// effSubmit starts the assistant request.
	effSubmit
	// effCancel cancels the request of exchange and waits for its reader.
	effCancel
	// effInject writes command to the shell.
	effInject
	// effResize propagates rows/cols to the shell and the screen model.
	effResize
	// effNotice arms the notice timer for seq.
	effNotice
)

type effect struct {
	kind     effectKind
	data     []byte
	view     view
	exchange string
	request  schema.ChatRequest
	command  string
	rows     int
	cols     int
	seq      uint64
}

// exchange is one question and its reply.
type exchange struct {
	id               string
	editor           lineEditor
	question         string
	answer           string
	reasoning        string
	command          string
	replied          bool
	injected         bool
	reasoningVisible bool
}

// dispatcher is the mode state machine. It never performs I/O: every event yields the effects the
// orchestrator must carry out, in order.
type dispatcher struct {
	log       pslog.Logger
	lang      i18n.Language
	newID     func() string
	mode      Mode
	rows      int
	cols      int
	reasoning bool
	exchange  *exchange
	history   []schema.Turn
	decoder   keyDecoder
	overlayUp bool
	pending   []byte
	notice    string
	noticeSeq uint64
}

func newDispatcher(log pslog.Logger, lang i18n.Language, rows, cols int, newID func() string) *dispatcher {
	return &dispatcher{log: log, lang: lang, rows: rows, cols: cols, newID: newID}
}

// Mode returns the current mode.
func (d *dispatcher) Mode() Mode {
	return d.mode
}

// ReasoningVisible reports the reasoning toggle.
func (d *dispatcher) ReasoningVisible() bool {
	return d.reasoning
}

// OverlayUp reports whether the overlay owns screen rows.
func (d *dispatcher) OverlayUp() bool {
	return d.overlayUp
}

// Input handles a chunk of terminal input.
func (d *dispatcher) Input(p []byte) []effect {
	var out []effect
	var forward []byte
	flush := func() {
		if len(forward) == 0 {
			return
		}
		out = append(out, effect{kind: effShellWrite, data: forward})
		forward = nil
	}
	for _, b := range p {
		if d.mode != Passthrough {
			if k, ok := d.decoder.Feed(b); ok {
				out = append(out, d.handleKey(k)...)
			}
			continue
		}
		if d.notice != "" {
			flush()
			out = append(out, d.dismissNotice()...)
		}
		switch b {
		case ctrlL:
			flush()
			out = append(out, d.openChat()...)
		case ctrlR:
			flush()
			out = append(out, d.toggleReasoning()...)
		default:
			forward = append(forward, b)
		}
	}
	flush()
	return out
}

// ShellOutput handles a chunk read from the shell. While the overlay is up the bytes are held
// back and released when it is erased.
func (d *dispatcher) ShellOutput(p []byte) []effect {
	if len(p) == 0 {
		return nil
	}
	if d.overlayUp {
		d.pending = append(d.pending, p...)
		return nil
	}
	return []effect{{kind: effTermWrite, data: append([]byte(nil), p...)}}
}

// Stream handles one event from the request of exchange id.
func (d *dispatcher) Stream(id string, ev schema.StreamEvent) []effect {
	if !d.live(id) {
		d.log.Debug("stale stream event dropped", "exchange", id, "kind", ev.Kind)
		return nil
	}
	ex := d.exchange
	switch ev.Kind {
	case schema.StreamToken:
		ex.answer += ev.Text
	case schema.StreamReasoning:
		ex.reasoning += ev.Text
	case schema.StreamDone:
		ex.command = strings.TrimSpace(ev.Command)
		if strings.TrimSpace(ev.Answer) != "" {
			ex.answer = ev.Answer
		}
		ex.replied = true
		d.setMode(ReviewCommand)
		d.log.Info("assistant reply received", "exchange", id, "has_command", ex.command != "")
	case schema.StreamError:
		d.log.Warn("assistant request failed", "exchange", id, "kind", ev.Error, "err", ev.Message)
		return d.fail(ev.Error)
	default:
		return nil
	}
	return []effect{d.render()}
}

// StreamFinished handles the end of a request reader. A stream that ends without a final event
// counts as a network failure.
func (d *dispatcher) StreamFinished(id string, err error) []effect {
	if !d.live(id) {
		return nil
	}
	d.log.Warn("assistant stream ended without a reply", "exchange", id, "err", err)
	return d.fail(schema.ErrorNetwork)
}

// Resize adopts new terminal geometry.
func (d *dispatcher) Resize(rows, cols int) []effect {
	d.rows, d.cols = rows, cols
	out := []effect{{kind: effResize, rows: rows, cols: cols}}
	if d.overlayUp {
		out = append(out, d.render())
	}
	return out
}

// NoticeExpired dismisses the error notice armed with seq.
func (d *dispatcher) NoticeExpired(seq uint64) []effect {
	if d.notice == "" || seq != d.noticeSeq {
		return nil
	}
	return d.dismissNotice()
}

// Teardown erases the overlay and releases held shell output.
func (d *dispatcher) Teardown() []effect {
	d.notice = ""
	return d.hide()
}

func (d *dispatcher) handleKey(k key) []effect {
	switch d.mode {
	case ChatInput:
		return d.chatKey(k)
	case Streaming:
		switch k.kind {
		case keyCtrlC:
			id := d.exchange.id
			d.log.Info("assistant request cancelled", "exchange", id)
			return append([]effect{{kind: effCancel, exchange: id}}, d.closeChat()...)
		case keyCtrlR:
			return d.toggleReasoning()
		}
	case ReviewCommand:
		return d.reviewKey(k)
	}
	return nil
}

func (d *dispatcher) chatKey(k key) []effect {
	ed := &d.exchange.editor
	switch k.kind {
	case keyCtrlC:
		return d.closeChat()
	case keyCtrlR:
		return d.toggleReasoning()
	case keyEnter:
		return d.submit()
	case keyPaste:
		ed.InsertString(k.text)
	case keyRune:
		if !unicode.IsPrint(k.r) {
			return nil
		}
		ed.InsertRune(k.r)
	case keyBackspace:
		ed.Backspace()
	case keyDelete:
		ed.Delete()
	case keyLeft:
		ed.MoveLeft()
	case keyRight:
		ed.MoveRight()
	case keyHome, keyCtrlA:
		ed.MoveStart()
	case keyEnd, keyCtrlE:
		ed.MoveEnd()
	case keyAltB:
		ed.MoveWordLeft()
	case keyAltF:
		ed.MoveWordRight()
	case keyCtrlU:
		ed.KillLineStart()
	case keyCtrlK:
		ed.KillLineEnd()
	case keyCtrlW:
		ed.DeleteWordBackward()
	default:
		return nil
	}
	return []effect{d.render()}
}

func (d *dispatcher) reviewKey(k key) []effect {
	switch k.kind {
	case keyCtrlL:
		return d.accept()
	case keyCtrlC:
		return d.closeChat()
	case keyCtrlR:
		return d.toggleReasoning()
	case keyPaste:
		d.followUp()
		d.exchange.editor.InsertString(k.text)
		return []effect{d.render()}
	case keyRune:
		if !unicode.IsPrint(k.r) {
			return nil
		}
		d.followUp()
		d.exchange.editor.InsertRune(k.r)
		return []effect{d.render()}
	}
	return nil
}

func (d *dispatcher) openChat() []effect {
	d.exchange = d.newExchange()
	d.decoder.Reset()
	d.overlayUp = true
	d.setMode(ChatInput)
	return []effect{d.render()}
}

func (d *dispatcher) newExchange() *exchange {
	return &exchange{id: d.newID(), reasoningVisible: d.reasoning}
}

func (d *dispatcher) submit() []effect {
	ex := d.exchange
	question := strings.TrimSpace(ex.editor.String())
	if question == "" {
		return nil
	}
	ex.question = question
	d.setMode(Streaming)
	d.log.Info("assistant request submitted", "exchange", ex.id, "history", len(d.history))
	req := schema.ChatRequest{
		ID:       ex.id,
		Question: question,
		History:  append([]schema.Turn(nil), d.history...),
	}
	return []effect{d.render(), {kind: effSubmit, exchange: ex.id, request: req}}
}

// followUp moves the reviewed exchange into history and starts a new one.
func (d *dispatcher) followUp() {
	ex := d.exchange
	d.history = append(d.history, schema.Turn{Question: ex.question, Answer: ex.answer, Command: ex.command})
	d.exchange = d.newExchange()
	d.decoder.Reset()
	d.setMode(ChatInput)
}

func (d *dispatcher) accept() []effect {
	ex := d.exchange
	out := d.closeChat()
	if ex.command == "" || ex.injected {
		return out
	}
	ex.injected = true
	d.log.Info("command accepted", "exchange", ex.id)
	return append(out, effect{kind: effInject, exchange: ex.id, command: ex.command})
}

func (d *dispatcher) fail(kind schema.ErrorKind) []effect {
	d.notice = errorMessage(d.lang, kind)
	v := d.view()
	d.exchange = nil
	d.history = nil
	d.setMode(Passthrough)
	d.noticeSeq++
	v.mode = Passthrough
	return []effect{{kind: effRender, view: v}, {kind: effNotice, seq: d.noticeSeq}}
}

func (d *dispatcher) dismissNotice() []effect {
	d.notice = ""
	return d.hide()
}

// closeChat returns to Passthrough from any chat mode.
func (d *dispatcher) closeChat() []effect {
	d.exchange = nil
	d.history = nil
	d.setMode(Passthrough)
	return d.hide()
}

func (d *dispatcher) hide() []effect {
	var out []effect
	if d.overlayUp {
		d.overlayUp = false
		out = append(out, effect{kind: effHide})
	}
	if len(d.pending) > 0 {
		out = append(out, effect{kind: effTermWrite, data: d.pending})
		d.pending = nil
	}
	return out
}

func (d *dispatcher) toggleReasoning() []effect {
	d.reasoning = !d.reasoning
	if d.exchange != nil {
		d.exchange.reasoningVisible = d.reasoning
	}
	d.log.Debug("reasoning visibility toggled", "visible", d.reasoning)
	if d.mode == Passthrough {
		return nil
	}
	return []effect{d.render()}
}

func (d *dispatcher) live(id string) bool {
	return d.mode == Streaming && d.exchange != nil && d.exchange.id == id
}

func (d *dispatcher) setMode(m Mode) {
	if d.mode == m {
		return
	}
	d.log.Debug("mode transition", "from", d.mode, "to", m)
	d.mode = m
}

func (d *dispatcher) render() effect {
	return effect{kind: effRender, view: d.view()}
}

func (d *dispatcher) view() view {
	v := view{lang: d.lang, mode: d.mode, notice: d.notice, reasoningVisible: d.reasoning}
	if ex := d.exchange; ex != nil {
		v.input = ex.editor.String()
		v.cursor = ex.editor.Cursor()
		if d.mode != ChatInput {
			v.input = ex.question
			v.cursor = len([]rune(ex.question))
		}
		v.answer = ex.answer
		v.reasoning = ex.reasoning
		v.reasoningVisible = ex.reasoningVisible
		v.command = ex.command
		v.replied = ex.replied
	}
	return v
}

func errorMessage(lang i18n.Language, kind schema.ErrorKind) string {
	switch kind {
	case schema.ErrorAuth:
		return i18n.T(lang, i18n.ErrAuth)
	case schema.ErrorRateLimit:
		return i18n.T(lang, i18n.ErrRateLimit)
	case schema.ErrorMalformedResponse:
		return i18n.T(lang, i18n.ErrMalformed)
	default:
		return i18n.T(lang, i18n.ErrNetwork)
	}
}
