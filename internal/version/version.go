// Package version reports the companion build version.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const defaultModule = "pkt.systems/companion"

// buildVersion is set via -ldflags "-X pkt.systems/companion/internal/version.buildVersion=...".
var buildVersion = ""

// readBuildInfo is replaced in tests.
var readBuildInfo = debug.ReadBuildInfo

// Info describes the running binary.
type Info struct {
	Version   string
	Module    string
	Revision  string
	GoVersion string
}

func (i Info) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", i.Module, i.Version)
	if i.Revision != "" {
		fmt.Fprintf(&b, " (%s)", i.Revision)
	}
	fmt.Fprintf(&b, " %s", i.GoVersion)
	return b.String()
}

// Current returns the best available version string (without dirty suffix).
func Current() string {
	return resolve(false)
}

// CurrentWithDirty returns the best available version string (including dirty suffix when available).
func CurrentWithDirty() string {
	return resolve(true)
}

// Module returns the module path from build info when available.
func Module() string {
	if info, ok := readBuildInfo(); ok {
		if path := strings.TrimSpace(info.Main.Path); path != "" {
			return path
		}
	}
	return defaultModule
}

// Describe collects version, module, VCS revision and Go version.
func Describe() Info {
	out := Info{
		Version:   CurrentWithDirty(),
		Module:    Module(),
		GoVersion: runtime.Version(),
	}
	if info, ok := readBuildInfo(); ok {
		if rev := setting(info, "vcs.revision"); len(rev) > 12 {
			out.Revision = rev[:12]
		} else {
			out.Revision = rev
		}
	}
	return out
}

func resolve(includeDirty bool) string {
	if strings.TrimSpace(buildVersion) != "" {
		return normalizeVersion(buildVersion, includeDirty)
	}
	if info, ok := readBuildInfo(); ok {
		if v := strings.TrimSpace(info.Main.Version); v != "" && v != "(devel)" {
			return normalizeVersion(v, includeDirty)
		}
		if v := pseudoFromBuildInfo(info, includeDirty); v != "" {
			return v
		}
	}
	return "v0.0.0-unknown"
}

func normalizeVersion(v string, includeDirty bool) string {
	value := strings.TrimSpace(v)
	if includeDirty {
		return value
	}
	return strings.TrimSuffix(value, "+dirty")
}

func setting(info *debug.BuildInfo, key string) string {
	if info == nil {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return ""
}

func pseudoFromBuildInfo(info *debug.BuildInfo, includeDirty bool) string {
	revision := setting(info, "vcs.revision")
	vcsTime := setting(info, "vcs.time")
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
	if includeDirty && setting(info, "vcs.modified") == "true" {
		ver += "+dirty"
	}
	return ver
}
