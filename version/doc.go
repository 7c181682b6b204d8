// Package version reports the version of the svfs binary.
//
// Release builds inject Version, Commit and Date with
//
//	-ldflags "-X github.com/synfig/synfig-vfs/version.Version=v1.0.0 -X github.com/synfig/synfig-vfs/version.Commit=abc123 -X github.com/synfig/synfig-vfs/version.Date=2026-01-01T00:00:00Z"
//
// Without them the module version and the VCS stamp of the build info are
// used, and development builds report "development".
package version
