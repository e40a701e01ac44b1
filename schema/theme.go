package schema

import "strings"

// ThemeName identifies an overlay color theme.
type ThemeName string

// DefaultTheme is the overlay theme used when none is configured.
const DefaultTheme ThemeName = "outrun"

var themeNames = []ThemeName{
	"outrun",
	"gruvbox",
	"tokyo-midnight",
	"plain",
}

// AvailableThemes returns the supported theme names.
func AvailableThemes() []ThemeName {
	out := make([]ThemeName, len(themeNames))
	copy(out, themeNames)
	return out
}

// NormalizeThemeName returns the canonical theme name for user input.
func NormalizeThemeName(name string) (ThemeName, bool) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	switch normalized {
	case "", "outrun", "outrun-electric":
		return "outrun", true
	case "gruvbox":
		return "gruvbox", true
	case "tokyo-midnight", "tokyo":
		return "tokyo-midnight", true
	case "plain", "mono", "none":
		return "plain", true
	default:
		return "", false
	}
}
