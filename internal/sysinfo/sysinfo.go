// Package sysinfo detects the environment the assistant is told about and renders the system prompt.
package sysinfo

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/text/language"

	"pkt.systems/shellm/schema"
)

// DefaultPromptTemplate asks for a fenced JSON object with a command and a short answer.
const DefaultPromptTemplate = "You are a focused shell copilot on {os} ({arch}) running {shell}.\n" +
	"Please answer in {lang}.\n" +
	"Always respond with a markdown code block containing a JSON object:\n" +
	"```json\n" +
	"{\"command\": \"<shell command>\", \"answer\": \"brief human-readable note\"}\n" +
	"```\n" +
	"Prefer safe defaults; if unsure ask via answer."

// DefaultLang is used when neither a preference nor a locale is available.
const DefaultLang = "en-US"

// Collect builds the environment context for shellPath. preferredLang wins over the locale.
func Collect(shellPath, preferredLang string) schema.EnvContext {
	return schema.EnvContext{
		OS:    osName(runtime.GOOS),
		Arch:  archName(runtime.GOARCH),
		Shell: shellName(shellPath),
		Lang:  detectLang(preferredLang, os.LookupEnv),
	}
}

func osName(goos string) string {
	switch goos {
	case "linux":
		return "Linux"
	case "darwin":
		return "macOS"
	case "windows":
		return "Windows"
	default:
		return goos
	}
}

func archName(goarch string) string {
	switch goarch {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	case "386":
		return "x86"
	default:
		return goarch
	}
}

func shellName(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return "unknown"
	}
	return filepath.Base(path)
}

func detectLang(preferred string, lookup func(string) (string, bool)) string {
	if preferred = strings.TrimSpace(preferred); preferred != "" {
		return preferred
	}
	for _, key := range []string{"LC_ALL", "LANG"} {
		if value, ok := lookup(key); ok && value != "" {
			if tag := LocaleTag(value); tag != "" {
				return tag
			}
		}
	}
	return DefaultLang
}

// LocaleTag turns a POSIX locale such as "zh_CN.UTF-8" into the BCP 47 tag "zh-CN". "C", "POSIX"
// and locales that do not parse yield "".
func LocaleTag(locale string) string {
	locale = strings.TrimSpace(locale)
	if idx := strings.IndexAny(locale, ".@"); idx >= 0 {
		locale = locale[:idx]
	}
	switch locale {
	case "", "C", "POSIX":
		return ""
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return ""
	}
	return tag.String()
}

// RenderPrompt substitutes {name} placeholders in template. Unknown placeholders are left as-is.
func RenderPrompt(template string, vars map[string]string) string {
	if template == "" || len(vars) == 0 {
		return template
	}
	pairs := make([]string, 0, len(vars)*2)
	for key, value := range vars {
		pairs = append(pairs, "{"+key+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
