package config

import "time"

// PanelConfig is the root configuration for talorix-panel.
type PanelConfig struct {
	Server    ServerSection    `koanf:"server"`
	Session   SessionSection   `koanf:"session"`
	Relay     RelaySection     `koanf:"relay"`
	Security  SecuritySection  `koanf:"security"`
	Storage   StorageSection   `koanf:"storage"`
	Log       LogSection       `koanf:"log"`
	Telemetry TelemetrySection `koanf:"telemetry"`
}

// ServerSection configures listeners.
type ServerSection struct {
	HTTP HTTPConfig `koanf:"http"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Address           string        `koanf:"address"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`

	// AllowedOrigins lists origins accepted on websocket upgrades and CORS
	// requests. Empty accepts same-host origins only.
	AllowedOrigins []string `koanf:"allowed_origins"`

	// AllowList restricts clients to these IPs or CIDRs. Empty allows all.
	AllowList []string `koanf:"allow_list"`

	// TrustProxy takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable only behind a reverse proxy.
	TrustProxy bool `koanf:"trust_proxy"`

	// TLSCertFile and TLSKeyFile switch the listener to HTTPS. The pair is
	// reloaded when either file changes.
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`
}

// TLSEnabled reports whether a certificate pair is configured.
func (c *HTTPConfig) TLSEnabled() bool {
	return c.TLSCertFile != "" || c.TLSKeyFile != ""
}

// SessionSection configures browser sessions.
type SessionSection struct {
	// Secret signs the session cookie.
	Secret     string        `koanf:"secret"`
	CookieName string        `koanf:"cookie_name"`
	TTL        time.Duration `koanf:"ttl"`
	Secure     bool          `koanf:"secure"`

	// LoginAttempts is the per-IP login allowance per minute.
	LoginAttempts int `koanf:"login_attempts"`
}

// RelaySection configures relay pairs and agent connections.
type RelaySection struct {
	// ConnectTimeout bounds the agent dial. Zero waits indefinitely.
	ConnectTimeout time.Duration `koanf:"connect_timeout"`

	// AckTimeout, when positive, waits for the agent's auth reply before
	// subscribing. Zero sends auth and subscribe back to back.
	AckTimeout time.Duration `koanf:"ack_timeout"`

	MaxMessageSize int64         `koanf:"max_message_size"`
	WriteWait      time.Duration `koanf:"write_wait"`
	PingPeriod     time.Duration `koanf:"ping_period"`
}

// SecuritySection configures request limits.
type SecuritySection struct {
	// APIKeyRateLimit is the allowed websocket opens per second per API
	// key. Zero disables the limit.
	APIKeyRateLimit float64 `koanf:"apikey_rate_limit"`
	APIKeyBurst     int     `koanf:"apikey_burst"`
}

// StorageSection selects the persistence backend.
type StorageSection struct {
	Backend    string        `koanf:"backend"`
	DataDir    string        `koanf:"data_dir"`
	SQLiteDSN  string        `koanf:"sqlite_dsn"`
	GCInterval time.Duration `koanf:"gc_interval"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetrySection configures metrics.
type TelemetrySection struct {
	MetricsEnabled bool `koanf:"metrics_enabled"`
}
