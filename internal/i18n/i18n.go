// Package i18n holds the overlay's user-facing strings.
package i18n

import (
	"strings"

	"golang.org/x/text/language"
)

// Language selects a message catalogue.
type Language int

const (
	// English is the default catalogue.
	English Language = iota
	// Chinese is the Simplified Chinese catalogue.
	Chinese
)

// Parse maps a language tag or POSIX locale to a catalogue. Any Chinese tag selects Chinese;
// everything else, unparsable input included, is English.
func Parse(tag string) Language {
	tag = strings.TrimSpace(tag)
	if idx := strings.IndexAny(tag, ".@"); idx >= 0 {
		tag = tag[:idx]
	}
	t, err := language.Parse(tag)
	if err != nil {
		return English
	}
	if base, _ := t.Base(); base == chineseBase {
		return Chinese
	}
	return English
}

var chineseBase, _ = language.Chinese.Base()

func (l Language) String() string {
	if l == Chinese {
		return "zh"
	}
	return "en"
}

// Key identifies a message.
type Key int

const (
	Welcome Key = iota
	PromptUser
	PromptAssistant
	PromptCandidate
	Thinking
	HintToggleReasoning
	ReasoningStart
	ReasoningEnd
	Truncated
	ReviewHint
	NoCommand
	ErrNetwork
	ErrAuth
	ErrRateLimit
	ErrMalformed
)

var catalogue = map[Language]map[Key]string{
	English: {
		Welcome:             "[LLM chat] Type your question. Ctrl+L accepts the command. Ctrl+C exits. Ctrl+R toggles reasoning.",
		PromptUser:          "you> ",
		PromptAssistant:     "assistant> ",
		PromptCandidate:     "candidate: ",
		Thinking:            "[Thinking] ",
		HintToggleReasoning: "(Ctrl+R to expand/collapse reasoning)",
		ReasoningStart:      "--- Reasoning ---",
		ReasoningEnd:        "--- End ---",
		Truncated:           "(truncated to fit terminal height)",
		ReviewHint:          "Ctrl+L inserts the command, Ctrl+C discards it, keep typing to ask a follow-up.",
		NoCommand:           "(no command suggested)",
		ErrNetwork:          "[error] the assistant could not be reached",
		ErrAuth:             "[error] the assistant rejected the API key",
		ErrRateLimit:        "[error] rate limited by the assistant, try again later",
		ErrMalformed:        "[error] the assistant reply could not be understood",
	},
	Chinese: {
		Welcome:             "[LLM chat] 输入您的问题。Ctrl+L 接受命令，Ctrl+C 退出，Ctrl+R 展开/折叠思维链。",
		PromptUser:          "你> ",
		PromptAssistant:     "助手> ",
		PromptCandidate:     "候选命令: ",
		Thinking:            "[思考中] ",
		HintToggleReasoning: "(Ctrl+R 展开/折叠思维链)",
		ReasoningStart:      "--- 思维链 ---",
		ReasoningEnd:        "--- 结束 ---",
		Truncated:           "（内容过长，已按终端高度截断）",
		ReviewHint:          "Ctrl+L 插入命令，Ctrl+C 放弃，继续输入可追问。",
		NoCommand:           "（没有建议的命令）",
		ErrNetwork:          "[错误] 无法连接到助手",
		ErrAuth:             "[错误] API key 被拒绝",
		ErrRateLimit:        "[错误] 请求过于频繁，请稍后再试",
		ErrMalformed:        "[错误] 无法解析助手的回复",
	},
}

// T returns the message for key in lang, falling back to English.
func T(lang Language, key Key) string {
	if msgs, ok := catalogue[lang]; ok {
		if msg, ok := msgs[key]; ok {
			return msg
		}
	}
	return catalogue[English][key]
}
