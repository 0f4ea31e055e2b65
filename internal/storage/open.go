package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Talorix/panel/internal/core/service"
	"github.com/Talorix/panel/internal/storage/memory"
	"github.com/Talorix/panel/internal/storage/sqlstore"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// Config selects and configures a repository backend.
type Config struct {
	Backend    string
	DataDir    string
	SQLiteDSN  string
	GCInterval time.Duration
}

// SessionPurger is implemented by backends that need expired sessions
// removed explicitly. Badger expires them through key TTLs.
type SessionPurger interface {
	PurgeExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// Open builds the repository named by cfg.Backend. reg may be nil.
func Open(ctx context.Context, cfg Config, logger *slog.Logger, reg prometheus.Registerer) (service.Repository, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return memory.New(), nil

	case BackendBadger:
		bc := DefaultBadgerConfig(filepath.Join(cfg.DataDir, "badger"))
		bc.GCInterval = cfg.GCInterval
		engine, err := NewBadgerEngine(bc, logger)
		if err != nil {
			return nil, err
		}
		if reg != nil {
			engine.RegisterMetrics(reg)
		}
		return NewStore(engine), nil

	case BackendSQLite:
		dsn := cfg.SQLiteDSN
		if dsn == "" {
			dsn = "file:" + filepath.Join(cfg.DataDir, "panel.db")
		}
		return sqlstore.Open(ctx, dsn)

	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
	}
}

// RunSessionPurge deletes expired sessions from repo every interval until
// ctx is done. It returns at once when repo does not need purging.
func RunSessionPurge(ctx context.Context, repo service.Repository, interval time.Duration, logger *slog.Logger) {
	p, ok := repo.(SessionPurger)
	if !ok || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := p.PurgeExpiredSessions(ctx, now)
			if err != nil {
				logger.Warn("session purge failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("expired sessions purged", "count", n)
			}
		}
	}
}
