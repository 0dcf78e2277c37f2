package version

import (
	"runtime"
	"runtime/debug"
)

// Service names the server binary in logs and outgoing User-Agent headers.
const Service = "peakstream"

const unknown = "unknown"

// Set via -ldflags "-X github.com/pscheid92/peakstream/internal/platform/version.Version=...".
// Commit and BuildTime fall back to the VCS stamp in the binary.
var (
	Version   = "dev"
	Commit    = unknown
	BuildTime = unknown
)

// Info is served on /version and printed by `v4vctl version`.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
}

func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		applyVCS(&info, bi.Settings)
	}
	return info
}

// applyVCS fills what ldflags left unset from the toolchain's vcs.* settings.
func applyVCS(info *Info, settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == unknown {
				info.Commit = shortRevision(s.Value)
			}
		case "vcs.time":
			if info.BuildTime == unknown {
				info.BuildTime = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

// UserAgent identifies client, e.g. Service or "v4vctl", to upstream APIs.
func UserAgent(client string) string {
	return client + "/" + Version
}
