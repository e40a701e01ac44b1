package proxy

import (
	"strconv"

	"pkt.systems/shellm/schema"
)

type rgb struct {
	r int
	g int
	b int
}

type overlayTheme struct {
	Name          schema.ThemeName
	Plain         bool
	BorderFG      rgb
	MetaFG        rgb
	PromptFG      rgb
	AnswerFG      rgb
	ErrorFG       rgb
	ReasoningFG   rgb
	ReasoningBold rgb
	CodeFG        rgb
	CandidateFG   rgb
}

const (
	ansiReset  = "\x1b[0m"
	ansiBold   = "\x1b[1m"
	ansiDim    = "\x1b[2m"
	ansiItalic = "\x1b[3m"
)

var overlayThemes = map[schema.ThemeName]overlayTheme{
	"outrun": {
		Name:          "outrun",
		BorderFG:      rgb{r: 60, g: 79, b: 184},
		MetaFG:        rgb{r: 154, g: 163, b: 178},
		PromptFG:      rgb{r: 255, g: 255, b: 255},
		AnswerFG:      rgb{r: 240, g: 241, b: 255},
		ErrorFG:       rgb{r: 255, g: 107, b: 107},
		ReasoningFG:   rgb{r: 110, g: 136, b: 255},
		ReasoningBold: rgb{r: 255, g: 91, b: 189},
		CodeFG:        rgb{r: 112, g: 214, b: 255},
		CandidateFG:   rgb{r: 0, g: 229, b: 255},
	},
	"gruvbox": {
		Name:          "gruvbox",
		BorderFG:      rgb{r: 75, g: 110, b: 166},
		MetaFG:        rgb{r: 146, g: 131, b: 116},
		PromptFG:      rgb{r: 255, g: 255, b: 255},
		AnswerFG:      rgb{r: 235, g: 219, b: 178},
		ErrorFG:       rgb{r: 251, g: 73, b: 52},
		ReasoningFG:   rgb{r: 131, g: 165, b: 152},
		ReasoningBold: rgb{r: 214, g: 93, b: 14},
		CodeFG:        rgb{r: 250, g: 189, b: 47},
		CandidateFG:   rgb{r: 184, g: 187, b: 38},
	},
	"tokyo-midnight": {
		Name:          "tokyo-midnight",
		BorderFG:      rgb{r: 59, g: 79, b: 159},
		MetaFG:        rgb{r: 127, g: 133, b: 163},
		PromptFG:      rgb{r: 255, g: 255, b: 255},
		AnswerFG:      rgb{r: 192, g: 202, b: 245},
		ErrorFG:       rgb{r: 247, g: 118, b: 142},
		ReasoningFG:   rgb{r: 122, g: 162, b: 247},
		ReasoningBold: rgb{r: 187, g: 154, b: 247},
		CodeFG:        rgb{r: 158, g: 206, b: 106},
		CandidateFG:   rgb{r: 125, g: 207, b: 255},
	},
	"plain": {
		Name:  "plain",
		Plain: true,
	},
}

func themeForName(name schema.ThemeName) overlayTheme {
	if normalized, ok := schema.NormalizeThemeName(string(name)); ok {
		name = normalized
	}
	if theme, ok := overlayThemes[name]; ok {
		return theme
	}
	return overlayThemes[schema.DefaultTheme]
}

// fg returns the foreground escape for c, or nothing for the plain theme.
func (t overlayTheme) fg(c rgb) string {
	if t.Plain {
		return ""
	}
	return ansiFgRGB(c)
}

func ansiFgRGB(c rgb) string {
	return "\x1b[38;2;" + strconv.Itoa(c.r) + ";" + strconv.Itoa(c.g) + ";" + strconv.Itoa(c.b) + "m"
}
