package proxy

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/x/ansi"

	"pkt.systems/pslog"
	"pkt.systems/shellm/internal/assistant"
	"pkt.systems/shellm/internal/i18n"
	"pkt.systems/shellm/internal/ttyctl"
	"pkt.systems/shellm/schema"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fakeTerminal struct {
	in     *io.PipeWriter
	reader *bufio.Reader
	out    lockedBuffer
}

func newFakeTerminal() *fakeTerminal {
	r, w := io.Pipe()
	return &fakeTerminal{in: w, reader: bufio.NewReader(r)}
}

func (t *fakeTerminal) ReadByte() (byte, error)     { return t.reader.ReadByte() }
func (t *fakeTerminal) Buffered() int               { return t.reader.Buffered() }
func (t *fakeTerminal) Write(p []byte) (int, error) { return t.out.Write(p) }

func (t *fakeTerminal) screen() string {
	return ansi.Strip(t.out.String())
}

type fakeShell struct {
	outR *io.PipeReader
	outW *io.PipeWriter
	done chan struct{}

	mu      sync.Mutex
	written bytes.Buffer
	sizes   []string
}

func newFakeShell() *fakeShell {
	r, w := io.Pipe()
	return &fakeShell{outR: r, outW: w, done: make(chan struct{})}
}

func (s *fakeShell) Read(p []byte) (int, error) { return s.outR.Read(p) }
func (s *fakeShell) Done() <-chan struct{}      { return s.done }

func (s *fakeShell) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written.Write(p)
}

func (s *fakeShell) Resize(rows, cols int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sizes = append(s.sizes, fmt.Sprintf("%dx%d", rows, cols))
	return nil
}

func (s *fakeShell) input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written.String()
}

type harness struct {
	t     *testing.T
	term  *fakeTerminal
	shell *fakeShell
	logs  *lockedBuffer
	sess  *session
	done  chan struct{}
	err   error
}

func startSession(t *testing.T, client assistant.Client, resize <-chan ttyctl.Size) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		term:  newFakeTerminal(),
		shell: newFakeShell(),
		logs:  &lockedBuffer{},
		done:  make(chan struct{}),
	}
	logger := pslog.NewWithOptions(h.logs, pslog.Options{Mode: pslog.ModeStructured, NoColor: true, MinLevel: pslog.TraceLevel})
	n := 0
	h.sess = newSession(logger, sessionConfig{
		term:      h.term,
		shell:     h.shell,
		client:    client,
		env:       schema.EnvContext{OS: "linux", Arch: "amd64", Shell: "/bin/bash", Lang: "en-US"},
		shadow:    newVTShadow(24, 80),
		theme:     themeForName("plain"),
		rows:      24,
		cols:      80,
		maxHeight: 12,
		newID: func() string {
			n++
			return fmt.Sprintf("x-%d", n)
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer close(h.done)
		h.err = h.sess.run(ctx, resize)
	}()
	t.Cleanup(func() {
		cancel()
		_ = h.term.in.Close()
		_ = h.shell.outW.Close()
		<-h.done
		_ = h.sess.shadow.Close()
	})
	return h
}

func (h *harness) typeKeys(s string) {
	h.t.Helper()
	if _, err := h.term.in.Write([]byte(s)); err != nil {
		h.t.Fatalf("write terminal input: %v", err)
	}
}

func (h *harness) shellPrints(s string) {
	h.t.Helper()
	if _, err := h.shell.outW.Write([]byte(s)); err != nil {
		h.t.Fatalf("write shell output: %v", err)
	}
}

func (h *harness) waitFor(what string, cond func() bool) {
	h.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			h.t.Fatalf("timed out waiting for %s\nscreen: %q\nshell input: %q\nlogs: %s",
				what, h.term.screen(), h.shell.input(), h.logs.String())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (h *harness) waitScreen(want string) {
	h.t.Helper()
	h.waitFor("screen to show "+want, func() bool { return strings.Contains(h.term.screen(), want) })
}

func (h *harness) waitShellInput(want string) {
	h.t.Helper()
	h.waitFor(fmt.Sprintf("shell input %q", want), func() bool { return h.shell.input() == want })
}

func (h *harness) exit() {
	h.t.Helper()
	_ = h.shell.outW.Close()
	select {
	case <-h.done:
		if h.err != nil {
			h.t.Fatalf("session returned error: %v", h.err)
		}
	case <-time.After(5 * time.Second):
		h.t.Fatalf("session did not end after shell exit")
	}
}

func TestSessionPassthrough(t *testing.T) {
	h := startSession(t, assistant.NewMock(assistant.MockConfig{}), nil)
	h.typeKeys("echo hi\r")
	h.waitShellInput("echo hi\r")
	h.shellPrints("echo hi\r\nhi\r\n$ ")
	h.waitScreen("$ ")
	h.exit()
}

func TestSessionListFilesInjectsOnce(t *testing.T) {
	h := startSession(t, assistant.NewMock(assistant.MockConfig{}), nil)
	h.typeKeys("\x0c")
	h.waitScreen(strings.TrimSpace(i18n.T(i18n.English, i18n.PromptUser)))
	h.typeKeys("list files\r")
	h.waitScreen("candidate: ls -la")
	if !strings.Contains(h.term.screen(), "List files") {
		t.Fatalf("expected answer on screen, got %q", h.term.screen())
	}
	if got := h.shell.input(); got != "" {
		t.Fatalf("expected nothing sent to the shell before acceptance, got %q", got)
	}
	h.typeKeys("\x0c")
	h.waitShellInput("ls -la")

	h.typeKeys("\x0c")
	h.typeKeys("\x03")
	h.typeKeys("x")
	h.waitShellInput("ls -lax")
	h.exit()
	if logs := h.logs.String(); !strings.Contains(logs, "command injected") {
		t.Fatalf("expected injection to be logged, got %s", logs)
	}
}

func TestSessionInjectsAsBracketedPaste(t *testing.T) {
	h := startSession(t, assistant.NewMock(assistant.MockConfig{}), nil)
	h.shellPrints("\x1b[?2004h$ ")
	h.waitFor("prompt", func() bool { return strings.Contains(h.term.out.String(), "\x1b[?2004h") })
	h.typeKeys("\x0cwhere am i\r")
	h.waitScreen("candidate: pwd")
	h.typeKeys("\x0c")
	h.waitShellInput(seqPasteStart + "pwd" + seqPasteEnd)
	h.exit()
}

func TestSessionCancelWhileStreaming(t *testing.T) {
	h := startSession(t, assistant.NewMock(assistant.MockConfig{TokenDelay: time.Hour}), nil)
	h.typeKeys("\x0cshow disk\r")
	h.waitScreen(strings.TrimSpace(i18n.T(i18n.English, i18n.Thinking)))
	h.typeKeys("\x03")
	h.typeKeys("x")
	h.waitShellInput("x")
	h.waitFor("cancel log", func() bool { return strings.Contains(h.logs.String(), "assistant request cancelled") })
	h.exit()
	if strings.Contains(h.term.screen(), "df -h") {
		t.Fatalf("expected no reply after cancel")
	}
}

func TestSessionErrorNoticeThenKeyDismisses(t *testing.T) {
	h := startSession(t, assistant.NewMock(assistant.MockConfig{Fail: schema.ErrorAuth}), nil)
	h.typeKeys("\x0clist files\r")
	h.waitScreen(i18n.T(i18n.English, i18n.ErrAuth))
	h.typeKeys("y")
	h.waitShellInput("y")
	h.exit()
}

func TestSessionShellOutputHeldUnderOverlay(t *testing.T) {
	h := startSession(t, assistant.NewMock(assistant.MockConfig{}), nil)
	h.typeKeys("\x0c")
	h.waitScreen(strings.TrimSpace(i18n.T(i18n.English, i18n.PromptUser)))
	h.shellPrints("background-job-done")
	h.typeKeys("z")
	h.waitScreen("you> z")
	if strings.Contains(h.term.screen(), "background-job-done") {
		t.Fatalf("expected output held while the overlay is up")
	}
	h.typeKeys("\x03")
	h.waitScreen("background-job-done")
	h.exit()
}

func TestSessionResizePropagates(t *testing.T) {
	resize := make(chan ttyctl.Size, 1)
	h := startSession(t, assistant.NewMock(assistant.MockConfig{}), resize)
	resize <- ttyctl.Size{Rows: 30, Cols: 100}
	h.waitFor("shell resize", func() bool {
		h.shell.mu.Lock()
		defer h.shell.mu.Unlock()
		return len(h.shell.sizes) == 1 && h.shell.sizes[0] == "30x100"
	})
	h.exit()
}

// lingeringStream yields its events and then blocks until the request context ends.
type lingeringStream struct {
	events []schema.StreamEvent
	closed bool
}

func (s *lingeringStream) Next(ctx context.Context) (schema.StreamEvent, error) {
	if len(s.events) > 0 {
		ev := s.events[0]
		s.events = s.events[1:]
		return ev, nil
	}
	<-ctx.Done()
	return schema.StreamEvent{}, ctx.Err()
}

func (s *lingeringStream) Close() error {
	s.closed = true
	return nil
}

type lingeringClient struct {
	stream *lingeringStream
}

func (c lingeringClient) Submit(context.Context, schema.ChatRequest) (assistant.Stream, error) {
	return c.stream, nil
}

func TestPumpStopsAfterFinalEvent(t *testing.T) {
	stream := &lingeringStream{events: []schema.StreamEvent{
		{Kind: schema.StreamToken, Text: "List"},
		{Kind: schema.StreamDone, Answer: "List files", Command: "ls -la"},
		{Kind: schema.StreamToken, Text: "late"},
	}}
	s := &session{client: lingeringClient{stream: stream}}
	var got []schema.StreamEvent
	push := func(ev event) bool {
		got = append(got, ev.stream)
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.pump(ctx, schema.ChatRequest{ID: "x-1", Question: "list files"}, push); err != nil {
		t.Fatalf("pump: %v", err)
	}
	if ctx.Err() != nil {
		t.Fatalf("expected pump to return before the request context ended")
	}
	if len(got) != 2 || got[1].Kind != schema.StreamDone {
		t.Fatalf("expected events through the final one, got %+v", got)
	}
	if !stream.closed {
		t.Fatalf("expected stream closed")
	}
}
