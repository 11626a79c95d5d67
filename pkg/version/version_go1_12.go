//go:build go1.12
// +build go1.12

package version

import (
	"runtime/debug"
)

const path = "github.com/citygrid/stationstore"

// The version is extracted from build information embedded in the binary, from
// a go.mod file, so this version field is only available in Go modules projects.
// We determine the version dynamically instead of using -ldflags to inject the
// version because stationstore will be imported as a library, and we do not
// expect consumers to set stationstore's version for us.
func init() {
	if info, ok := debug.ReadBuildInfo(); ok && info != nil {
		if info.Main.Path == path {
			version = info.Main.Version
		} else {
			for _, mod := range info.Deps {
				if mod != nil {
					if mod.Path == path {
						version = mod.Version
					}
				}
			}
		}
	}
}
