package revision

import (
	"runtime/debug"
	"testing"
)

func TestDescribe(t *testing.T) {
	if got := describe(nil, false); got != VersionString+"-00000000" {
		t.Fatalf("no build info: %q", got)
	}
	info := &debug.BuildInfo{Main: debug.Module{Version: "v1.2.3"}}
	if got := describe(info, true); got != "v1.2.3" {
		t.Fatalf("module version: %q", got)
	}
	info = &debug.BuildInfo{
		Main: debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef"},
			{Key: "vcs.modified", Value: "true"},
		},
	}
	if got := describe(info, true); got != VersionString+"-01234567-dirty" {
		t.Fatalf("vcs build: %q", got)
	}
}
