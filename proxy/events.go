package proxy

import (
	"context"

	"pkt.systems/shellm/schema"
)

type eventKind int

const (
	evInput eventKind = iota + 1
	evInputClosed
	evShellOutput
	evShellExit
	evStream
	evStreamFinished
	evResize
	evNoticeExpired
)

func (k eventKind) String() string {
	switch k {
	case evInput:
		return "input"
	case evInputClosed:
		return "input_closed"
	case evShellOutput:
		return "shell_output"
	case evShellExit:
		return "shell_exit"
	case evStream:
		return "stream"
	case evStreamFinished:
		return "stream_finished"
	case evResize:
		return "resize"
	case evNoticeExpired:
		return "notice_expired"
	default:
		return "unknown"
	}
}

// event is one item of the merged queue.
type event struct {
	kind     eventKind
	data     []byte
	err      error
	exchange string
	stream   schema.StreamEvent
	rows     int
	cols     int
	seq      uint64
}

const queueDepth = 256

// queue merges the event sources into one ordered stream with a single consumer. Producers block
// while it is full instead of dropping events.
type queue struct {
	ch chan event
}

func newQueue() *queue {
	return &queue{ch: make(chan event, queueDepth)}
}

// Push enqueues ev and reports false when ctx ended first.
func (q *queue) Push(ctx context.Context, ev event) bool {
	select {
	case q.ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Events is the consumer side.
func (q *queue) Events() <-chan event {
	return q.ch
}
