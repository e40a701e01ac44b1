package version

import (
	"runtime/debug"
	"strings"
	"testing"
	"time"
)

func TestCurrentPrefersBuildVersion(t *testing.T) {
	old := buildVersion
	buildVersion = "v1.2.3+dirty"
	t.Cleanup(func() { buildVersion = old })

	if got := Current(); got != "v1.2.3" {
		t.Fatalf("expected build version, got %q", got)
	}
	if got := CurrentWithDirty(); got != "v1.2.3+dirty" {
		t.Fatalf("expected dirty build version, got %q", got)
	}
}

func TestResolveFallsBackToPseudoVersion(t *testing.T) {
	old := buildVersion
	buildVersion = ""
	t.Cleanup(func() { buildVersion = old })

	ts := time.Date(2025, time.January, 2, 3, 4, 5, 0, time.UTC)
	read := func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{
			Main: debug.Module{Version: "(devel)"},
			Settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "1234567890abcdef"},
				{Key: "vcs.time", Value: ts.Format(time.RFC3339)},
				{Key: "vcs.modified", Value: "true"},
			},
		}, true
	}
	if got := resolve(read)(true); got != "v0.0.0-20250102030405-1234567890ab+dirty" {
		t.Fatalf("unexpected version %q", got)
	}
	if got := resolve(read)(false); got != "v0.0.0-20250102030405-1234567890ab" {
		t.Fatalf("unexpected clean version %q", got)
	}
	missing := func() (*debug.BuildInfo, bool) { return nil, false }
	if got := resolve(missing)(false); got != "v0.0.0-unknown" {
		t.Fatalf("expected unknown version, got %q", got)
	}
}

func TestPseudoFromBuildInfoNil(t *testing.T) {
	if pseudoFromBuildInfo(nil, true) != "" {
		t.Fatalf("expected empty version for nil build info")
	}
}

func TestBannerMentionsModule(t *testing.T) {
	if !strings.Contains(Banner(), Module()) {
		t.Fatalf("banner %q missing module", Banner())
	}
}
