package assistant

import (
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"pkt.systems/shellm/internal/markdown"
	"pkt.systems/shellm/schema"
)

// Reply is a decoded assistant answer.
type Reply struct {
	Command string
	Answer  string
}

var answerKeys = []string{"answer", "note", "explanation", "message"}

// DecodeReply extracts the command/answer object from a complete reply. The object may be
// wrapped in a ```json fence and surrounded by prose.
func DecodeReply(text string) (Reply, error) {
	body := strings.TrimSpace(markdown.CodeBody(text, "json"))
	start := strings.IndexByte(body, '{')
	end := strings.LastIndexByte(body, '}')
	if start < 0 || end < start {
		return Reply{}, malformed("reply contains no JSON object")
	}
	obj := body[start : end+1]
	if !gjson.Valid(obj) {
		return Reply{}, malformed("reply JSON is invalid")
	}
	parsed := gjson.Parse(obj)
	if !parsed.IsObject() {
		return Reply{}, malformed("reply JSON is not an object")
	}
	reply := Reply{Command: strings.TrimSpace(parsed.Get("command").String())}
	for _, key := range answerKeys {
		if value := strings.TrimSpace(parsed.Get(key).String()); value != "" {
			reply.Answer = value
			break
		}
	}
	if reply.Command == "" && reply.Answer == "" {
		return Reply{}, malformed("reply has neither command nor answer")
	}
	return reply, nil
}

func malformed(msg string) error {
	return schema.NewAssistantError(schema.ErrorMalformedResponse, errors.New(msg))
}

// answerScanner turns a growing raw reply into answer-text deltas.
type answerScanner struct {
	emitted int
}

// Feed returns the answer text that became visible since the previous call.
func (s *answerScanner) Feed(raw string) string {
	partial := partialAnswer(raw)
	if len(partial) <= s.emitted {
		return ""
	}
	delta := partial[s.emitted:]
	s.emitted = len(partial)
	return delta
}

// partialAnswer decodes the value of the "answer" string in a possibly unfinished JSON reply.
// Decoding stops before an incomplete escape or rune so the result only ever grows.
func partialAnswer(text string) string {
	idx := strings.Index(text, `"answer"`)
	if idx < 0 {
		return ""
	}
	i := skipSpace(text, idx+len(`"answer"`))
	if i >= len(text) || text[i] != ':' {
		return ""
	}
	i = skipSpace(text, i+1)
	if i >= len(text) || text[i] != '"' {
		return ""
	}
	i++
	var b strings.Builder
	for i < len(text) {
		c := text[i]
		switch c {
		case '"':
			return b.String()
		case '\\':
			if i+1 >= len(text) {
				return b.String()
			}
			esc := text[i+1]
			if esc == 'u' {
				if i+6 > len(text) {
					return b.String()
				}
				if code, err := strconv.ParseUint(text[i+2:i+6], 16, 32); err == nil {
					b.WriteRune(rune(code))
				}
				i += 6
				continue
			}
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r', 'b', 'f':
			default:
				b.WriteByte(esc)
			}
			i += 2
		default:
			if c >= utf8.RuneSelf && !utf8.FullRuneInString(text[i:]) {
				return b.String()
			}
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

func skipSpace(text string, i int) int {
	for i < len(text) {
		switch text[i] {
		case ' ', '\t', '\r', '\n':
			i++
		default:
			return i
		}
	}
	return i
}
