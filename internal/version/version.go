// Package version reports the build's version from linker flags or VCS build info.
package version

import (
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const defaultModule = "pkt.systems/shellm"

// buildVersion is set via -ldflags "-X pkt.systems/shellm/internal/version.buildVersion=...".
var buildVersion = ""

// Current returns the best available version string without a dirty suffix.
func Current() string {
	return resolve(debug.ReadBuildInfo)(false)
}

// CurrentWithDirty returns the best available version string, marking modified checkouts.
func CurrentWithDirty() string {
	return resolve(debug.ReadBuildInfo)(true)
}

// Module returns the main module path from build info when available.
func Module() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if path := strings.TrimSpace(info.Main.Path); path != "" {
			return path
		}
	}
	return defaultModule
}

// Banner is the one-line description printed by "shellm version".
func Banner() string {
	return Module() + " " + CurrentWithDirty() + " " + runtime.GOOS + "/" + runtime.GOARCH + " " + runtime.Version()
}

func resolve(read func() (*debug.BuildInfo, bool)) func(includeDirty bool) string {
	return func(includeDirty bool) string {
		if v := strings.TrimSpace(buildVersion); v != "" {
			return trimDirty(v, includeDirty)
		}
		info, ok := read()
		if !ok {
			return "v0.0.0-unknown"
		}
		if v := strings.TrimSpace(info.Main.Version); v != "" && v != "(devel)" {
			return trimDirty(v, includeDirty)
		}
		if v := pseudoFromBuildInfo(info, includeDirty); v != "" {
			return v
		}
		return "v0.0.0-unknown"
	}
}

func trimDirty(v string, includeDirty bool) string {
	if includeDirty {
		return v
	}
	return strings.TrimSuffix(v, "+dirty")
}

func pseudoFromBuildInfo(info *debug.BuildInfo, includeDirty bool) string {
	if info == nil {
		return ""
	}
	settings := make(map[string]string, len(info.Settings))
	for _, setting := range info.Settings {
		settings[setting.Key] = setting.Value
	}
	revision, vcsTime := settings["vcs.revision"], settings["vcs.time"]
	if revision == "" || vcsTime == "" {
		return ""
	}
	parsed, err := time.Parse(time.RFC3339, vcsTime)
	if err != nil {
		return ""
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	ver := "v0.0.0-" + parsed.UTC().Format("20060102150405") + "-" + revision
	if includeDirty && settings["vcs.modified"] == "true" {
		ver += "+dirty"
	}
	return ver
}
