package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/Talorix/panel/internal/core/domain"
	"github.com/Talorix/panel/internal/core/service"
)

var _ service.Repository = (*Store)(nil)

// Store is the SQLite repository.
type Store struct {
	db *bun.DB
}

// Open connects to dsn and creates missing tables.
func Open(ctx context.Context, dsn string) (*Store, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open: %w", err)
	}

	// SQLite serializes writers; one connection also keeps ":memory:"
	// databases visible to every query.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	db := bun.NewDB(sqlDB, sqlitedialect.New())
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: pragma: %w", err)
	}
	for _, m := range models {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlstore: create table: %w", err)
		}
	}
	if _, err := db.NewCreateIndex().
		Model((*serverModel)(nil)).
		Index("servers_node_ip_idx").
		Column("node_ip").
		IfNotExists().
		Exec(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: create index: %w", err)
	}
	return &Store{db: db}, nil
}

func storageErr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if domain.IsDomainError(err, "") {
		return err
	}
	return domain.ErrStorage.WithDetails(op).WithCause(err)
}

// inTx runs fn in a transaction, mapping failures to domain errors.
func (s *Store) inTx(ctx context.Context, op string, fn func(ctx context.Context, tx bun.Tx) error) error {
	if err := s.db.RunInTx(ctx, nil, fn); err != nil {
		return storageErr(op, err)
	}
	return nil
}

func taken(ctx context.Context, q *bun.SelectQuery) error {
	found, err := q.Exists(ctx)
	if err != nil {
		return err
	}
	if found {
		return domain.ErrAlreadyExists
	}
	return nil
}

// GetUser retrieves a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	m := new(userModel)
	if err := s.db.NewSelect().Model(m).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, storageErr("get user", err)
	}
	return m.domain(), nil
}

// FindUserByEmail retrieves a user by email.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	m := new(userModel)
	if err := s.db.NewSelect().Model(m).Where("email = ?", email).Scan(ctx); err != nil {
		return nil, storageErr("find user", err)
	}
	return m.domain(), nil
}

// CreateUser stores a new user.
func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	return s.inTx(ctx, "create user", func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewSelect().Model((*userModel)(nil)).Where("id = ? OR email = ?", u.ID, u.Email)
		if err := taken(ctx, q); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(fromUser(u)).Exec(ctx)
		return err
	})
}

// UpdateUser replaces an existing user.
func (s *Store) UpdateUser(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	return s.inTx(ctx, "update user", func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewSelect().Model((*userModel)(nil)).Where("email = ? AND id != ?", u.Email, u.ID)
		if err := taken(ctx, q); err != nil {
			return err
		}
		res, err := tx.NewUpdate().Model(fromUser(u)).WherePK().Exec(ctx)
		if err != nil {
			return err
		}
		return oneRow(res)
	})
}

// ListUsers returns every user ordered by creation time.
func (s *Store) ListUsers(ctx context.Context) ([]*domain.User, error) {
	var rows []userModel
	if err := s.db.NewSelect().Model(&rows).Order("created_at ASC", "id ASC").Scan(ctx); err != nil {
		return nil, storageErr("list users", err)
	}
	users := make([]*domain.User, len(rows))
	for i := range rows {
		users[i] = rows[i].domain()
	}
	return users, nil
}

// GetServer retrieves a server by id.
func (s *Store) GetServer(ctx context.Context, id string) (*domain.Server, error) {
	m := new(serverModel)
	if err := s.db.NewSelect().Model(m).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, storageErr("get server", err)
	}
	return m.domain(), nil
}

// CreateServer stores a new server.
func (s *Store) CreateServer(ctx context.Context, srv *domain.Server) error {
	if err := srv.Validate(); err != nil {
		return err
	}
	m := &serverModel{
		ID:          srv.ID,
		Name:        srv.Name,
		OwnerUserID: srv.OwnerUserID,
		WorkloadID:  srv.WorkloadID,
		NodeIP:      srv.Node.IP,
		CreatedAt:   srv.CreatedAt,
	}
	return s.insert(ctx, "create server", m, (*serverModel)(nil), srv.ID)
}

// ListServers returns every server ordered by id.
func (s *Store) ListServers(ctx context.Context) ([]*domain.Server, error) {
	var rows []serverModel
	if err := s.db.NewSelect().Model(&rows).Order("id ASC").Scan(ctx); err != nil {
		return nil, storageErr("list servers", err)
	}
	out := make([]*domain.Server, len(rows))
	for i := range rows {
		out[i] = rows[i].domain()
	}
	return out, nil
}

// CreateNode stores a new node.
func (s *Store) CreateNode(ctx context.Context, n *domain.Node) error {
	if err := n.Validate(); err != nil {
		return err
	}
	m := &nodeModel{ID: n.ID, Name: n.Name, IP: n.IP, Port: n.Port, Key: n.Key, CreatedAt: n.CreatedAt}
	return s.insert(ctx, "create node", m, (*nodeModel)(nil), n.ID)
}

// ListNodes returns every node ordered by id.
func (s *Store) ListNodes(ctx context.Context) ([]*domain.Node, error) {
	var rows []nodeModel
	if err := s.db.NewSelect().Model(&rows).Order("id ASC").Scan(ctx); err != nil {
		return nil, storageErr("list nodes", err)
	}
	out := make([]*domain.Node, len(rows))
	for i := range rows {
		out[i] = rows[i].domain()
	}
	return out, nil
}

// GetSession retrieves a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	m := new(sessionModel)
	if err := s.db.NewSelect().Model(m).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, storageErr("get session", err)
	}
	return m.domain(), nil
}

// CreateSession stores a new session.
func (s *Store) CreateSession(ctx context.Context, sess *domain.Session) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	m := &sessionModel{
		ID:         sess.ID,
		UserID:     sess.UserID,
		IPAddress:  sess.IPAddress,
		UserAgent:  sess.UserAgent,
		CreatedAt:  sess.CreatedAt,
		ExpiresAt:  sess.ExpiresAt,
		LastActive: sess.LastActive,
	}
	return s.insert(ctx, "create session", m, (*sessionModel)(nil), sess.ID)
}

// DeleteSession removes a session.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.NewDelete().Model((*sessionModel)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return storageErr("delete session", err)
	}
	return oneRow(res)
}

// PurgeExpiredSessions deletes sessions whose expiry is before now and
// returns how many were removed.
func (s *Store) PurgeExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.NewDelete().
		Model((*sessionModel)(nil)).
		Where("expires_at > 0 AND expires_at < ?", now.UnixMilli()).
		Exec(ctx)
	if err != nil {
		return 0, storageErr("purge sessions", err)
	}
	return res.RowsAffected()
}

// FindAPIKeyByHash retrieves a key by the digest of its token.
func (s *Store) FindAPIKeyByHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	m := new(apiKeyModel)
	if err := s.db.NewSelect().Model(m).Where("token_hash = ?", hash).Scan(ctx); err != nil {
		return nil, storageErr("find apikey", err)
	}
	return m.domain(), nil
}

// CreateAPIKey stores a new key.
func (s *Store) CreateAPIKey(ctx context.Context, k *domain.APIKey) error {
	if err := k.Validate(); err != nil {
		return err
	}
	return s.inTx(ctx, "create apikey", func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewSelect().Model((*apiKeyModel)(nil)).Where("id = ? OR token_hash = ?", k.ID, k.TokenHash)
		if err := taken(ctx, q); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(fromAPIKey(k)).Exec(ctx)
		return err
	})
}

// UpdateAPIKey replaces a key. The token hash and owner are immutable.
func (s *Store) UpdateAPIKey(ctx context.Context, k *domain.APIKey) error {
	if err := k.Validate(); err != nil {
		return err
	}
	return s.inTx(ctx, "update apikey", func(ctx context.Context, tx bun.Tx) error {
		old := new(apiKeyModel)
		if err := tx.NewSelect().Model(old).Where("id = ?", k.ID).Scan(ctx); err != nil {
			return err
		}
		if old.TokenHash != k.TokenHash || old.UserID != k.UserID {
			return domain.ErrValidation.WithDetails("token_hash and user_id are immutable")
		}
		_, err := tx.NewUpdate().Model(fromAPIKey(k)).WherePK().Exec(ctx)
		return err
	})
}

// TouchAPIKey records a use of key id.
func (s *Store) TouchAPIKey(ctx context.Context, id string, at int64) error {
	res, err := s.db.NewUpdate().
		Model((*apiKeyModel)(nil)).
		Set("last_used = MAX(COALESCE(last_used, 0), ?)", at).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return storageErr("touch apikey", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListAPIKeys lists the keys of userID, or every key when userID is empty.
func (s *Store) ListAPIKeys(ctx context.Context, userID string) ([]*domain.APIKey, error) {
	var rows []apiKeyModel
	q := s.db.NewSelect().Model(&rows).Order("id ASC")
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, storageErr("list apikeys", err)
	}
	out := make([]*domain.APIKey, len(rows))
	for i := range rows {
		out[i] = rows[i].domain()
	}
	return out, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// insert writes m unless a row of model with the same id exists.
func (s *Store) insert(ctx context.Context, op string, m, model any, id string) error {
	return s.inTx(ctx, op, func(ctx context.Context, tx bun.Tx) error {
		if err := taken(ctx, tx.NewSelect().Model(model).Where("id = ?", id)); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(m).Exec(ctx)
		return err
	})
}

func oneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
