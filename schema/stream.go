package schema

import "fmt"

// StreamKind tags a StreamEvent.
type StreamKind int

const (
	// StreamToken carries a fragment of the answer text.
	StreamToken StreamKind = iota + 1
	// StreamReasoning carries a fragment of the model's reasoning.
	StreamReasoning
	// StreamDone carries the final command/answer pair.
	StreamDone
	// StreamError carries a request failure.
	StreamError
)

func (k StreamKind) String() string {
	switch k {
	case StreamToken:
		return "token"
	case StreamReasoning:
		return "reasoning"
	case StreamDone:
		return "done"
	case StreamError:
		return "error"
	default:
		return fmt.Sprintf("stream_kind(%d)", int(k))
	}
}

// StreamEvent is one element of an assistant reply stream.
type StreamEvent struct {
	Kind    StreamKind
	Text    string
	Command string
	Answer  string
	Error   ErrorKind
	Message string
}

// TokenEvent builds a StreamToken event.
func TokenEvent(text string) StreamEvent {
	return StreamEvent{Kind: StreamToken, Text: text}
}

// ReasoningEvent builds a StreamReasoning event.
func ReasoningEvent(text string) StreamEvent {
	return StreamEvent{Kind: StreamReasoning, Text: text}
}

// DoneEvent builds a StreamDone event.
func DoneEvent(command, answer string) StreamEvent {
	return StreamEvent{Kind: StreamDone, Command: command, Answer: answer}
}

// ErrorEvent builds a StreamError event.
func ErrorEvent(kind ErrorKind, message string) StreamEvent {
	return StreamEvent{Kind: StreamError, Error: kind, Message: message}
}

// ErrorEventFrom converts err into a StreamError event. Errors without a kind become network errors.
func ErrorEventFrom(err error) StreamEvent {
	kind, ok := AssistantErrorKind(err)
	if !ok {
		kind = ErrorNetwork
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return ErrorEvent(kind, msg)
}

// Terminal reports whether the event ends its stream.
func (e StreamEvent) Terminal() bool {
	return e.Kind == StreamDone || e.Kind == StreamError
}
