// Package version reports the msgbridge build version.
package version

import (
	"fmt"
	"runtime/debug"
)

// Set at build time via -ldflags "-X msgbridge/internal/version.version=...".
var (
	version = "dev" //nolint:gochecknoglobals // ldflags requires package-level var
	commit  = ""    //nolint:gochecknoglobals // ldflags requires package-level var
)

// String returns the release version, falling back to the module version
// recorded by `go install` when no ldflags were given.
func String() string {
	if version != "dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return version
}

// Commit returns the VCS revision the binary was built from, or "".
func Commit() string {
	if commit != "" {
		return commit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return ""
}

// Long returns "<version> (<short commit>)" or just the version.
func Long() string {
	c := Commit()
	if len(c) > 12 {
		c = c[:12]
	}
	if c == "" {
		return String()
	}
	return fmt.Sprintf("%s (%s)", String(), c)
}
