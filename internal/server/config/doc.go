// Package config defines the panel configuration.
//
//   - spec.go: PanelConfig struct definition
//   - default.go: default values
//   - verify.go: validation
//   - sanitize.go: secret masking for logs
//
// Values are loaded through internal/infra/confloader.
package config
