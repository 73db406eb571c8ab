// Package version holds build metadata stamped in by the linker.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Stamped with:
//
//	go build -ldflags "-X github.com/soyeahso/xmlbot/internal/version.Version=0.3.0
//	  -X github.com/soyeahso/xmlbot/internal/version.Commit=$(git rev-parse HEAD)
//	  -X github.com/soyeahso/xmlbot/internal/version.Date=$(date -u +%F)"
//
// Unstamped builds fall back to what the Go toolchain recorded, if anything.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

const Name = "xmlbot"

var readBuildInfo = debug.ReadBuildInfo

func init() {
	fillFromBuildInfo()
}

func fillFromBuildInfo() {
	info, ok := readBuildInfo()
	if !ok {
		return
	}
	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if Commit == "unknown" {
				Commit = s.Value
			}
		case "vcs.time":
			if Date == "unknown" && len(s.Value) >= 10 {
				Date = s.Value[:10]
			}
		}
	}
}

// Info is the line printed by `xmlbot version`.
func Info() string {
	return fmt.Sprintf("%s %s (commit %s, built %s, %s, %s/%s)",
		Name, Version, ShortCommit(), Date, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func ShortCommit() string {
	if len(Commit) > 7 {
		return Commit[:7]
	}
	return Commit
}

// UserAgent is sent with every provider request.
func UserAgent() string {
	return Name + "/" + Version
}
