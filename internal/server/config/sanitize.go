package config

import "strings"

// Sanitize returns a copy of the config with secrets masked for logging.
func Sanitize(cfg *PanelConfig) *PanelConfig {
	sanitized := *cfg
	if sanitized.Session.Secret != "" {
		sanitized.Session.Secret = maskSecret(sanitized.Session.Secret)
	}
	if sanitized.Storage.SQLiteDSN != "" {
		sanitized.Storage.SQLiteDSN = maskDSN(sanitized.Storage.SQLiteDSN)
	}
	return &sanitized
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

// maskDSN hides DSN query parameters, which may carry an encryption key.
func maskDSN(dsn string) string {
	if i := strings.IndexByte(dsn, '?'); i >= 0 {
		return dsn[:i] + "?****"
	}
	return dsn
}
