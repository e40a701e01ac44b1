package ttyctl

import (
	"errors"
	"os"
	"testing"

	"github.com/creack/pty"

	"pkt.systems/shellm/schema"
)

func openPair(t *testing.T) (*os.File, *os.File) {
	t.Helper()
	ptmx, tty, err := pty.Open()
	if err != nil {
		t.Skipf("pty unavailable: %v", err)
	}
	t.Cleanup(func() {
		_ = tty.Close()
		_ = ptmx.Close()
	})
	return ptmx, tty
}

func TestEnterRejectsNonTerminal(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer func() {
		_ = r.Close()
		_ = w.Close()
	}()
	_, err = New(r, w).Enter()
	if !errors.Is(err, schema.ErrRawMode) {
		t.Fatalf("expected ErrRawMode, got %v", err)
	}
}

func TestEnterRestoreIsIdempotent(t *testing.T) {
	_, tty := openPair(t)
	ctl := New(tty, tty)
	raw, err := ctl.Enter()
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	if err := raw.Restore(); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if err := raw.Restore(); err != nil {
		t.Fatalf("second restore: %v", err)
	}
	var nilRaw *RawMode
	if err := nilRaw.Restore(); err != nil {
		t.Fatalf("nil restore: %v", err)
	}
}

func TestReadByteInRawMode(t *testing.T) {
	ptmx, tty := openPair(t)
	ctl := New(tty, tty)
	raw, err := ctl.Enter()
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	defer func() { _ = raw.Restore() }()

	if _, err := ptmx.Write([]byte{0x0c, 'a'}); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := ctl.ReadByte()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if b != 0x0c {
		t.Fatalf("expected Ctrl+L byte unchanged, got %#x", b)
	}
	b, err = ctl.ReadByte()
	if err != nil || b != 'a' {
		t.Fatalf("expected 'a', got %q %v", b, err)
	}
}

func TestSize(t *testing.T) {
	ptmx, tty := openPair(t)
	if err := pty.Setsize(ptmx, &pty.Winsize{Rows: 30, Cols: 100}); err != nil {
		t.Fatalf("setsize: %v", err)
	}
	size, err := New(tty, tty).Size()
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if size.Rows != 30 || size.Cols != 100 {
		t.Fatalf("unexpected size %+v", size)
	}
}

func TestIsTerminal(t *testing.T) {
	_, tty := openPair(t)
	if !New(tty, tty).IsTerminal() {
		t.Fatalf("expected pty slave to be a terminal")
	}
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer func() {
		_ = r.Close()
		_ = w.Close()
	}()
	if New(tty, w).IsTerminal() {
		t.Fatalf("expected a pipe on stdout to fail the check")
	}
}
