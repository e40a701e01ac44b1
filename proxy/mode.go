// Package proxy runs the shell behind a pseudo-terminal and layers the chat overlay on top of it.
package proxy

import "fmt"

// Mode is the input mode of a session. Exactly one mode is active at any time.
type Mode int

const (
	// Passthrough forwards input to the shell.
	Passthrough Mode = iota
	// ChatInput edits a question in the overlay.
	ChatInput
	// Streaming waits for the assistant reply.
	Streaming
	// ReviewCommand shows the candidate command and waits for accept or cancel.
	ReviewCommand
)

func (m Mode) String() string {
	switch m {
	case Passthrough:
		return "passthrough"
	case ChatInput:
		return "chat_input"
	case Streaming:
		return "streaming"
	case ReviewCommand:
		return "review_command"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}
