package config

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"strings"

	"github.com/Talorix/panel/internal/telemetry/logger"
)

// MinSessionSecretLength is the shortest accepted cookie signing secret.
const MinSessionSecretLength = 32

// Verify validates the configuration. Every problem found is reported.
func Verify(cfg *PanelConfig) error {
	return errors.Join(
		verifyHTTP(&cfg.Server.HTTP),
		verifySession(&cfg.Session),
		verifyRelay(&cfg.Relay),
		verifySecurity(&cfg.Security),
		verifyStorage(&cfg.Storage),
		verifyLog(&cfg.Log),
	)
}

func verifyHTTP(cfg *HTTPConfig) error {
	var errs []error
	if _, _, err := net.SplitHostPort(cfg.Address); err != nil {
		errs = append(errs, fmt.Errorf("server.http.address: %w", err))
	}
	for _, entry := range cfg.AllowList {
		if _, err := ParseAllowEntry(entry); err != nil {
			errs = append(errs, fmt.Errorf("server.http.allow_list: %w", err))
		}
	}
	if cfg.TLSEnabled() {
		if cfg.TLSCertFile == "" || cfg.TLSKeyFile == "" {
			errs = append(errs, errors.New("server.http.tls_cert_file and tls_key_file must be set together"))
		}
		for _, f := range []string{cfg.TLSCertFile, cfg.TLSKeyFile} {
			if f == "" {
				continue
			}
			if _, err := os.Stat(f); err != nil {
				errs = append(errs, fmt.Errorf("server.http tls file: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}

func verifySession(cfg *SessionSection) error {
	var errs []error
	if len(cfg.Secret) < MinSessionSecretLength {
		errs = append(errs, fmt.Errorf("session.secret must be at least %d characters", MinSessionSecretLength))
	}
	if cfg.CookieName == "" {
		errs = append(errs, errors.New("session.cookie_name is required"))
	}
	if cfg.TTL < 0 {
		errs = append(errs, errors.New("session.ttl must not be negative"))
	}
	if cfg.LoginAttempts < 0 {
		errs = append(errs, errors.New("session.login_attempts must not be negative"))
	}
	return errors.Join(errs...)
}

func verifyRelay(cfg *RelaySection) error {
	var errs []error
	if cfg.ConnectTimeout < 0 || cfg.AckTimeout < 0 {
		errs = append(errs, errors.New("relay timeouts must not be negative"))
	}
	if cfg.MaxMessageSize < 0 {
		errs = append(errs, errors.New("relay.max_message_size must not be negative"))
	}
	if cfg.PingPeriod < 0 || cfg.WriteWait < 0 {
		errs = append(errs, errors.New("relay.ping_period and relay.write_wait must not be negative"))
	}
	return errors.Join(errs...)
}

func verifySecurity(cfg *SecuritySection) error {
	if cfg.APIKeyRateLimit < 0 {
		return errors.New("security.apikey_rate_limit must not be negative")
	}
	if cfg.APIKeyRateLimit > 0 && cfg.APIKeyBurst < 1 {
		return errors.New("security.apikey_burst must be at least 1 when rate limiting")
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	switch cfg.Backend {
	case "memory":
		return nil
	case "badger", "sqlite":
	default:
		return fmt.Errorf("storage.backend %q is not one of memory, badger, sqlite", cfg.Backend)
	}
	if cfg.Backend == "sqlite" && cfg.SQLiteDSN != "" {
		return nil
	}
	if cfg.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("cannot create data directory: %w", err)
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	var errs []error
	if !logger.ValidLevel(cfg.Level) {
		errs = append(errs, fmt.Errorf("log.level %q is invalid", cfg.Level))
	}
	if f := strings.ToLower(cfg.Format); f != "json" && f != "text" {
		errs = append(errs, fmt.Errorf("log.format %q is not json or text", cfg.Format))
	}
	return errors.Join(errs...)
}

// ParseAllowEntry parses an allow-list entry: a bare IP or a CIDR.
func ParseAllowEntry(entry string) (netip.Prefix, error) {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "/") {
		p, err := netip.ParsePrefix(entry)
		if err != nil {
			return netip.Prefix{}, err
		}
		return p.Masked(), nil
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}
