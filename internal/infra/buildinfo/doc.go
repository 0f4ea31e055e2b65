// Package buildinfo reports the version of the running panel binaries.
//
// Release builds inject values with ldflags:
//
//	go build -ldflags "-X github.com/Talorix/panel/internal/infra/buildinfo.Version=v0.4.0"
//
// Development builds fall back to the VCS stamp embedded by the Go toolchain.
package buildinfo
