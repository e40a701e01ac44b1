package proxy

import (
	"strings"
	"testing"
)

func TestVTShadowTracksShellOutput(t *testing.T) {
	s := newVTShadow(4, 20)
	defer func() { _ = s.Close() }()
	if _, err := s.Write([]byte("hello\r\nworld")); err != nil {
		t.Fatalf("write: %v", err)
	}
	lines := s.Lines()
	if len(lines) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], "hello") || !strings.HasPrefix(lines[1], "world") {
		t.Fatalf("unexpected rows %q", lines)
	}
	if row, col := s.Cursor(); row != 2 || col != 6 {
		t.Fatalf("expected cursor at 2,6, got %d,%d", row, col)
	}
}

func TestVTShadowCloseAfterQueryReplies(t *testing.T) {
	for i := 0; i < 50; i++ {
		s := newVTShadow(24, 80)
		if _, err := s.Write([]byte("hello\x1b[6n")); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("second close: %v", err)
		}
	}
}
