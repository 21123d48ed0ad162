// Package revision reports the version of the running binary.
package revision

import (
	"runtime/debug"
	"sync"
)

// VersionString is used when the binary carries no module version.
var VersionString = "v0.1"

func buildSetting(info *debug.BuildInfo, key string) string {
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func describe(info *debug.BuildInfo, ok bool) string {
	if !ok {
		return VersionString + "-00000000"
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		return v
	}
	commit := buildSetting(info, "vcs.revision")
	if len(commit) > 8 {
		commit = commit[:8]
	} else if commit == "" {
		commit = "00000000"
	}
	if buildSetting(info, "vcs.modified") == "true" {
		commit += "-dirty"
	}
	return VersionString + "-" + commit
}

// GetVersion is the module version, or VersionString followed by the VCS commit.
var GetVersion = sync.OnceValue(func() string {
	return describe(debug.ReadBuildInfo())
})
