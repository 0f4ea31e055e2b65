package config

import "time"

// Default configuration values.
const (
	DefaultHTTPAddress       = "127.0.0.1:3000"
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultShutdownTimeout   = 15 * time.Second

	DefaultCookieName    = "sid"
	DefaultSessionTTL    = 7 * 24 * time.Hour
	DefaultLoginAttempts = 10

	DefaultMaxMessageSize = 1 << 20
	DefaultWriteWait      = 10 * time.Second
	DefaultPingPeriod     = 30 * time.Second

	DefaultAPIKeyBurst = 5

	DefaultStorageBackend = "badger"
	DefaultDataDir        = "/var/lib/talorix-panel"
	DefaultGCInterval     = 10 * time.Minute

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default panel configuration.
func Default() *PanelConfig {
	return &PanelConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Address:           DefaultHTTPAddress,
				ReadHeaderTimeout: DefaultReadHeaderTimeout,
				ShutdownTimeout:   DefaultShutdownTimeout,
			},
		},
		Session: SessionSection{
			CookieName:    DefaultCookieName,
			TTL:           DefaultSessionTTL,
			LoginAttempts: DefaultLoginAttempts,
		},
		Relay: RelaySection{
			MaxMessageSize: DefaultMaxMessageSize,
			WriteWait:      DefaultWriteWait,
			PingPeriod:     DefaultPingPeriod,
		},
		Security: SecuritySection{
			APIKeyBurst: DefaultAPIKeyBurst,
		},
		Storage: StorageSection{
			Backend:    DefaultStorageBackend,
			DataDir:    DefaultDataDir,
			GCInterval: DefaultGCInterval,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Telemetry: TelemetrySection{
			MetricsEnabled: true,
		},
	}
}
