// Package version exposes the build version of tankd.
package version

// Version is the tankd release version. Overridden at build time with
// -ldflags "-X github.com/pi-tank/tankd/internal/version.Version=...".
var Version = "dev"
