package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/shellm/internal/assistant"
	"pkt.systems/shellm/internal/i18n"
	"pkt.systems/shellm/internal/logx"
	"pkt.systems/shellm/internal/ttyctl"
	"pkt.systems/shellm/schema"
)

// Terminal is the physical terminal as seen by the event loop.
type Terminal interface {
	ReadByte() (byte, error)
	Buffered() int
	Write(p []byte) (int, error)
}

// Shell is the child shell as seen by the event loop.
type Shell interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Resize(rows, cols int) error
	Done() <-chan struct{}
}

// exitGrace is how long output may still arrive after the child exits before the loop stops.
const exitGrace = 200 * time.Millisecond

type streamReader struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// session is the event loop. It is the only writer to the terminal and to the shell's input.
type session struct {
	log         pslog.Logger
	term        Terminal
	shell       Shell
	client      assistant.Client
	env         schema.EnvContext
	queue       *queue
	disp        *dispatcher
	overlay     *overlay
	shadow      shadowScreen
	injector    *injector
	theme       overlayTheme
	maxHeight   int
	noticeDelay time.Duration
	rows        int
	cols        int
	streams     map[string]*streamReader
	backlog     []event
	out         bytes.Buffer
	view        *view
}

type sessionConfig struct {
	term        Terminal
	shell       Shell
	client      assistant.Client
	env         schema.EnvContext
	shadow      shadowScreen
	theme       overlayTheme
	rows        int
	cols        int
	maxHeight   int
	noticeDelay time.Duration
	autoExecute bool
	newID       func() string
}

func newSession(log pslog.Logger, cfg sessionConfig) *session {
	lang := i18n.Parse(cfg.env.Lang)
	return &session{
		log:         log,
		term:        cfg.term,
		shell:       cfg.shell,
		client:      cfg.client,
		env:         cfg.env,
		queue:       newQueue(),
		disp:        newDispatcher(log, lang, cfg.rows, cfg.cols, cfg.newID),
		overlay:     newOverlay(cfg.shadow, cfg.rows),
		shadow:      cfg.shadow,
		injector:    &injector{autoExecute: cfg.autoExecute},
		theme:       cfg.theme,
		maxHeight:   cfg.maxHeight,
		noticeDelay: cfg.noticeDelay,
		rows:        cfg.rows,
		cols:        cfg.cols,
		streams:     make(map[string]*streamReader),
	}
}

// run processes events until the shell exits, input closes or ctx ends. resize may be nil.
func (s *session) run(ctx context.Context, resize <-chan ttyctl.Size) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.readInput(ctx)
	go s.readShell(ctx)
	go s.watchExit(ctx)
	if resize != nil {
		go s.forwardResize(ctx, resize)
	}
	defer s.teardown()

	for {
		ev, ok := s.next(ctx)
		if !ok {
			s.log.Info("session interrupted", "err", ctx.Err())
			return nil
		}
		done, err := s.handle(ctx, ev)
		if done || err != nil {
			return err
		}
		if len(s.backlog) == 0 && len(s.queue.Events()) == 0 {
			s.paint()
		}
		s.flush()
	}
}

func (s *session) next(ctx context.Context) (event, bool) {
	if len(s.backlog) > 0 {
		ev := s.backlog[0]
		s.backlog = s.backlog[1:]
		return ev, true
	}
	select {
	case ev := <-s.queue.Events():
		return ev, true
	case <-ctx.Done():
		return event{}, false
	}
}

// handle dispatches ev and reports whether the session is over.
func (s *session) handle(ctx context.Context, ev event) (bool, error) {
	switch ev.kind {
	case evInput:
		s.drainShellOutput(ctx)
		s.log.Trace("terminal input", "bytes", len(ev.data), "mode", s.disp.Mode())
		s.apply(ctx, s.disp.Input(ev.data))
	case evShellOutput:
		s.injector.Observe(ev.data)
		s.apply(ctx, s.disp.ShellOutput(ev.data))
	case evStream:
		s.apply(ctx, s.disp.Stream(ev.exchange, ev.stream))
	case evStreamFinished:
		s.releaseStream(ev.exchange)
		s.apply(ctx, s.disp.StreamFinished(ev.exchange, ev.err))
	case evResize:
		s.apply(ctx, s.disp.Resize(ev.rows, ev.cols))
	case evNoticeExpired:
		s.apply(ctx, s.disp.NoticeExpired(ev.seq))
	case evInputClosed:
		s.log.Info("terminal input closed", "err", ev.err)
		return true, nil
	case evShellExit:
		s.drainShellOutput(ctx)
		if ev.err != nil && !errors.Is(ev.err, io.EOF) {
			return true, fmt.Errorf("%w: read shell output: %v", schema.ErrPTY, ev.err)
		}
		return true, nil
	}
	return false, nil
}

// drainShellOutput handles shell output that is already queued, so decisions about the screen
// are made against everything the shell has written so far. Other events keep their order.
func (s *session) drainShellOutput(ctx context.Context) {
	kept := s.backlog[:0]
	var output []event
	for _, ev := range s.backlog {
		if ev.kind == evShellOutput {
			output = append(output, ev)
			continue
		}
		kept = append(kept, ev)
	}
	s.backlog = kept
	for draining := true; draining; {
		select {
		case ev := <-s.queue.Events():
			if ev.kind == evShellOutput {
				output = append(output, ev)
			} else {
				s.backlog = append(s.backlog, ev)
			}
		default:
			draining = false
		}
	}
	for _, ev := range output {
		_, _ = s.handle(ctx, ev)
	}
}

func (s *session) apply(ctx context.Context, effects []effect) {
	for _, eff := range effects {
		if eff.kind == effRender {
			v := eff.view
			s.view = &v
			continue
		}
		s.paint()
		switch eff.kind {
		case effShellWrite:
			if _, err := s.shell.Write(eff.data); err != nil {
				s.log.Warn("shell write failed", "err", err, "bytes", len(eff.data))
			}
		case effTermWrite:
			_, _ = s.shadow.Write(eff.data)
			s.out.Write(eff.data)
		case effHide:
			s.out.Write(s.overlay.Hide())
		case effSubmit:
			s.startStream(ctx, eff.request)
		case effCancel:
			s.cancelStream(eff.exchange)
		case effInject:
			s.flush()
			s.inject(eff.exchange, eff.command)
		case effResize:
			s.resize(eff.rows, eff.cols)
		case effNotice:
			s.armNotice(ctx, eff.seq)
		}
	}
}

// paint lays out and draws the latest view, if any.
func (s *session) paint() {
	if s.view == nil {
		return
	}
	f := layout(*s.view, s.cols, s.limit(), s.theme)
	s.view = nil
	s.out.Write(s.overlay.Update(f))
	s.log.Trace("overlay painted", "lines", len(f.lines), "height", s.overlay.Height())
}

func (s *session) flush() {
	if s.out.Len() == 0 {
		return
	}
	if _, err := s.term.Write(s.out.Bytes()); err != nil {
		s.log.Debug("terminal write failed", "err", err)
	}
	s.out.Reset()
}

func (s *session) limit() int {
	return max(1, min(s.maxHeight, s.rows))
}

func (s *session) resize(rows, cols int) {
	if rows <= 0 || cols <= 0 {
		return
	}
	s.rows, s.cols = rows, cols
	if err := s.shell.Resize(rows, cols); err != nil {
		s.log.Warn("shell resize failed", "err", err)
	}
	s.shadow.Resize(rows, cols)
	s.out.Write(s.overlay.Resize(rows))
	s.log.Debug("terminal resized", "rows", rows, "cols", cols)
}

func (s *session) inject(id, command string) {
	data := s.injector.Encode(command)
	if len(data) == 0 {
		return
	}
	if _, err := s.shell.Write(data); err != nil {
		err = fmt.Errorf("%w: %v", schema.ErrInjection, err)
		s.log.Warn("command injection failed", "exchange", id, "err", err)
		return
	}
	s.log.Info("command injected", "exchange", id, "bytes", len(data), "bracketed", s.injector.pasteMode)
}

func (s *session) armNotice(ctx context.Context, seq uint64) {
	if s.noticeDelay <= 0 {
		return
	}
	time.AfterFunc(s.noticeDelay, func() {
		s.queue.Push(ctx, event{kind: evNoticeExpired, seq: seq})
	})
}

// startStream submits req and reads its stream on a goroutine that tags every event with the
// exchange id.
func (s *session) startStream(ctx context.Context, req schema.ChatRequest) {
	req.Env = s.env
	id := req.ID
	reqCtx, cancel := context.WithCancel(logx.ContextWithExchange(ctx, id))
	r := &streamReader{cancel: cancel, done: make(chan struct{})}
	s.streams[id] = r
	push := func(ev event) bool {
		ev.exchange = id
		return s.queue.Push(reqCtx, ev)
	}
	go func() {
		defer close(r.done)
		err := s.pump(reqCtx, req, push)
		push(event{kind: evStreamFinished, err: err})
	}()
}

// pump forwards the events of one request. Failures become Error events unless the request was
// cancelled.
func (s *session) pump(ctx context.Context, req schema.ChatRequest, push func(event) bool) error {
	stream, err := s.client.Submit(ctx, req)
	if err != nil {
		if ctx.Err() == nil {
			push(event{kind: evStream, stream: schema.ErrorEventFrom(err)})
		}
		return err
	}
	defer func() { _ = stream.Close() }()
	for {
		ev, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() == nil {
				push(event{kind: evStream, stream: schema.ErrorEventFrom(err)})
			}
			return err
		}
		if !push(event{kind: evStream, stream: ev}) {
			return ctx.Err()
		}
		if ev.Terminal() {
			return nil
		}
	}
}

// cancelStream cancels the request and waits until its reader has stopped, so nothing from it
// can be queued after this returns.
func (s *session) cancelStream(id string) {
	r, ok := s.streams[id]
	if !ok {
		return
	}
	r.cancel()
	<-r.done
	delete(s.streams, id)
}

func (s *session) releaseStream(id string) {
	if r, ok := s.streams[id]; ok {
		r.cancel()
		delete(s.streams, id)
	}
}

func (s *session) teardown() {
	for id := range s.streams {
		s.cancelStream(id)
	}
	s.apply(context.Background(), s.disp.Teardown())
	s.flush()
}

func (s *session) readInput(ctx context.Context) {
	for {
		b, err := s.term.ReadByte()
		if err != nil {
			s.queue.Push(ctx, event{kind: evInputClosed, err: err})
			return
		}
		chunk := []byte{b}
		for n := s.term.Buffered(); n > 0; n-- {
			next, err := s.term.ReadByte()
			if err != nil {
				break
			}
			chunk = append(chunk, next)
		}
		if !s.queue.Push(ctx, event{kind: evInput, data: chunk}) {
			return
		}
	}
}

func (s *session) readShell(ctx context.Context) {
	buf := make([]byte, 32*1024)
	for {
		n, err := s.shell.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			if !s.queue.Push(ctx, event{kind: evShellOutput, data: data}) {
				return
			}
		}
		if err != nil {
			s.queue.Push(ctx, event{kind: evShellExit, err: err})
			return
		}
	}
}

// watchExit ends the session when the child has exited even if something else still holds the
// pseudo-terminal open.
func (s *session) watchExit(ctx context.Context) {
	select {
	case <-s.shell.Done():
	case <-ctx.Done():
		return
	}
	timer := time.NewTimer(exitGrace)
	defer timer.Stop()
	select {
	case <-timer.C:
		s.queue.Push(ctx, event{kind: evShellExit})
	case <-ctx.Done():
	}
}

func (s *session) forwardResize(ctx context.Context, resize <-chan ttyctl.Size) {
	for {
		select {
		case size, ok := <-resize:
			if !ok {
				return
			}
			if !s.queue.Push(ctx, event{kind: evResize, rows: size.Rows, cols: size.Cols}) {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
