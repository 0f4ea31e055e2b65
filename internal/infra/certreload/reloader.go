// Package certreload serves the panel's TLS certificate and swaps it in
// place when the key pair on disk changes.
package certreload

import (
	"context"
	"crypto/tls"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Talorix/panel/internal/telemetry/logger"
)

// DefaultSettle is how long the reloader waits after the last file event
// before reading the pair again.
const DefaultSettle = 250 * time.Millisecond

// Reloader holds the current certificate for the HTTPS listener.
type Reloader struct {
	certFile string
	keyFile  string
	settle   time.Duration
	log      logger.Logger

	mu   sync.RWMutex
	cert *tls.Certificate
}

// Option configures a Reloader.
type Option func(*Reloader)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Reloader) { r.log = l }
}

// WithSettle sets the delay between a file event and the reload.
func WithSettle(d time.Duration) Option {
	return func(r *Reloader) { r.settle = d }
}

// New loads the key pair once. A pair that cannot be loaded is an error.
func New(certFile, keyFile string, opts ...Option) (*Reloader, error) {
	r := &Reloader{
		certFile: certFile,
		keyFile:  keyFile,
		settle:   DefaultSettle,
		log:      logger.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// GetCertificate returns the current certificate. It matches
// tls.Config.GetCertificate.
func (r *Reloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cert, nil
}

// TLSConfig returns a server config backed by the reloader.
func (r *Reloader) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: r.GetCertificate,
	}
}

// Reload reads the key pair from disk. On failure the previous
// certificate stays in service.
func (r *Reloader) Reload() error {
	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("certreload: load key pair: %w", err)
	}
	r.mu.Lock()
	r.cert = &cert
	r.mu.Unlock()
	return nil
}

// Run watches the directories holding the pair until ctx is done.
// Directories are watched rather than files so that editors and cert
// managers replacing the file by rename are still seen.
func (r *Reloader) Run(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("certreload: create watcher: %w", err)
	}
	defer w.Close()

	dirs := map[string]struct{}{
		filepath.Dir(r.certFile): {},
		filepath.Dir(r.keyFile):  {},
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("certreload: watch %s: %w", dir, err)
		}
	}

	names := map[string]struct{}{
		filepath.Clean(r.certFile): {},
		filepath.Clean(r.keyFile):  {},
	}

	timer := time.NewTimer(r.settle)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	r.log.Info("watching TLS certificate", "cert_file", r.certFile, "key_file", r.keyFile)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if _, ours := names[filepath.Clean(ev.Name)]; !ours {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(r.settle)
		case <-timer.C:
			if err := r.Reload(); err != nil {
				r.log.Error("TLS certificate reload failed, keeping previous", "error", err)
				continue
			}
			r.log.Info("TLS certificate reloaded", "cert_file", r.certFile)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.log.Warn("certificate watcher error", "error", err)
		}
	}
}
