package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Talorix/panel/internal/core/domain"
	"github.com/Talorix/panel/internal/core/service"
)

// Key layout. Index keys map a lookup value to a record id.
const (
	prefixUser      = "user/"
	prefixUserEmail = "user-email/"
	prefixServer    = "server/"
	prefixNode      = "node/"
	prefixSession   = "session/"
	prefixAPIKey    = "apikey/"
	prefixKeyHash   = "apikey-hash/"
)

var _ service.Repository = (*Store)(nil)

// Store is a service.Repository that keeps JSON records in a KVEngine.
type Store struct {
	kv KVEngine
}

// NewStore wraps kv. Closing the store closes kv.
func NewStore(kv KVEngine) *Store {
	return &Store{kv: kv}
}

func key(prefix, id string) []byte {
	return []byte(prefix + id)
}

func storageErr(op string, err error) error {
	return domain.ErrStorage.WithDetails(op).WithCause(err)
}

func getJSON[T any](ctx context.Context, kv KVEngine, k []byte) (*T, error) {
	data, err := kv.Get(ctx, k)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, storageErr("get "+string(k), err)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, storageErr("decode "+string(k), err)
	}
	return &v, nil
}

func scanJSON[T any](ctx context.Context, kv KVEngine, prefix string) ([]*T, error) {
	var (
		out     []*T
		decoErr error
	)
	err := kv.Scan(ctx, []byte(prefix), func(k, value []byte) bool {
		var v T
		if err := json.Unmarshal(value, &v); err != nil {
			decoErr = fmt.Errorf("decode %s: %w", k, err)
			return false
		}
		out = append(out, &v)
		return true
	})
	if err == nil {
		err = decoErr
	}
	if err != nil {
		return nil, storageErr("scan "+prefix, err)
	}
	return out, nil
}

// exists reports whether k is present inside tx.
func exists(tx KVTxn, k []byte) (bool, error) {
	_, err := tx.Get(k)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrKeyNotFound):
		return false, nil
	default:
		return false, err
	}
}

func putJSON(tx KVTxn, k []byte, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return tx.Set(k, data, ttl)
}

// update runs fn and maps non-domain failures to ErrStorage.
func (s *Store) update(ctx context.Context, op string, fn func(tx KVTxn) error) error {
	err := s.kv.Update(ctx, fn)
	if err == nil || domain.IsDomainError(err, "") {
		return err
	}
	return storageErr(op, err)
}

// GetUser retrieves a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return getJSON[domain.User](ctx, s.kv, key(prefixUser, id))
}

// FindUserByEmail retrieves a user through the email index.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	id, err := s.kv.Get(ctx, key(prefixUserEmail, email))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, storageErr("get user email", err)
	}
	return s.GetUser(ctx, string(id))
}

// CreateUser stores a new user and its email index entry.
func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	return s.update(ctx, "create user", func(tx KVTxn) error {
		for _, k := range [][]byte{key(prefixUser, u.ID), key(prefixUserEmail, u.Email)} {
			found, err := exists(tx, k)
			if err != nil {
				return err
			}
			if found {
				return domain.ErrAlreadyExists
			}
		}
		if err := putJSON(tx, key(prefixUser, u.ID), u, 0); err != nil {
			return err
		}
		return tx.Set(key(prefixUserEmail, u.Email), []byte(u.ID), 0)
	})
}

// UpdateUser replaces a user, moving the email index entry when the email
// changes.
func (s *Store) UpdateUser(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	return s.update(ctx, "update user", func(tx KVTxn) error {
		data, err := tx.Get(key(prefixUser, u.ID))
		if errors.Is(err, ErrKeyNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		var old domain.User
		if err := json.Unmarshal(data, &old); err != nil {
			return err
		}
		if old.Email != u.Email {
			found, err := exists(tx, key(prefixUserEmail, u.Email))
			if err != nil {
				return err
			}
			if found {
				return domain.ErrAlreadyExists
			}
			if err := tx.Delete(key(prefixUserEmail, old.Email)); err != nil {
				return err
			}
			if err := tx.Set(key(prefixUserEmail, u.Email), []byte(u.ID), 0); err != nil {
				return err
			}
		}
		return putJSON(tx, key(prefixUser, u.ID), u, 0)
	})
}

// ListUsers returns every user ordered by creation time.
func (s *Store) ListUsers(ctx context.Context) ([]*domain.User, error) {
	users, err := scanJSON[domain.User](ctx, s.kv, prefixUser)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(users, func(i, j int) bool { return users[i].CreatedAt < users[j].CreatedAt })
	return users, nil
}

// GetServer retrieves a server by id.
func (s *Store) GetServer(ctx context.Context, id string) (*domain.Server, error) {
	return getJSON[domain.Server](ctx, s.kv, key(prefixServer, id))
}

// CreateServer stores a new server.
func (s *Store) CreateServer(ctx context.Context, srv *domain.Server) error {
	if err := srv.Validate(); err != nil {
		return err
	}
	return s.insert(ctx, "create server", key(prefixServer, srv.ID), srv, 0)
}

// ListServers returns every server ordered by id.
func (s *Store) ListServers(ctx context.Context) ([]*domain.Server, error) {
	return scanJSON[domain.Server](ctx, s.kv, prefixServer)
}

// CreateNode stores a new node.
func (s *Store) CreateNode(ctx context.Context, n *domain.Node) error {
	if err := n.Validate(); err != nil {
		return err
	}
	return s.insert(ctx, "create node", key(prefixNode, n.ID), n, 0)
}

// ListNodes returns every node ordered by id.
func (s *Store) ListNodes(ctx context.Context) ([]*domain.Node, error) {
	return scanJSON[domain.Node](ctx, s.kv, prefixNode)
}

// GetSession retrieves a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	return getJSON[domain.Session](ctx, s.kv, key(prefixSession, id))
}

// CreateSession stores a new session. Sessions with an expiry are written
// with a matching TTL so the engine drops them once they lapse.
func (s *Store) CreateSession(ctx context.Context, sess *domain.Session) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	var ttl time.Duration
	if sess.ExpiresAt > 0 {
		ttl = time.Until(time.UnixMilli(sess.ExpiresAt))
		if ttl <= 0 {
			ttl = time.Second
		}
	}
	return s.insert(ctx, "create session", key(prefixSession, sess.ID), sess, ttl)
}

// DeleteSession removes a session.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	return s.update(ctx, "delete session", func(tx KVTxn) error {
		found, err := exists(tx, key(prefixSession, id))
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrNotFound
		}
		return tx.Delete(key(prefixSession, id))
	})
}

// FindAPIKeyByHash retrieves a key through the token hash index.
func (s *Store) FindAPIKeyByHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	id, err := s.kv.Get(ctx, key(prefixKeyHash, hash))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, storageErr("get apikey hash", err)
	}
	return getJSON[domain.APIKey](ctx, s.kv, key(prefixAPIKey, string(id)))
}

// CreateAPIKey stores a new key and its hash index entry.
func (s *Store) CreateAPIKey(ctx context.Context, k *domain.APIKey) error {
	if err := k.Validate(); err != nil {
		return err
	}
	return s.update(ctx, "create apikey", func(tx KVTxn) error {
		for _, kk := range [][]byte{key(prefixAPIKey, k.ID), key(prefixKeyHash, k.TokenHash)} {
			found, err := exists(tx, kk)
			if err != nil {
				return err
			}
			if found {
				return domain.ErrAlreadyExists
			}
		}
		if err := putJSON(tx, key(prefixAPIKey, k.ID), k, 0); err != nil {
			return err
		}
		return tx.Set(key(prefixKeyHash, k.TokenHash), []byte(k.ID), 0)
	})
}

// UpdateAPIKey replaces a key. The token hash and owner are immutable.
func (s *Store) UpdateAPIKey(ctx context.Context, k *domain.APIKey) error {
	if err := k.Validate(); err != nil {
		return err
	}
	return s.update(ctx, "update apikey", func(tx KVTxn) error {
		data, err := tx.Get(key(prefixAPIKey, k.ID))
		if errors.Is(err, ErrKeyNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		var old domain.APIKey
		if err := json.Unmarshal(data, &old); err != nil {
			return err
		}
		if old.TokenHash != k.TokenHash || old.UserID != k.UserID {
			return domain.ErrValidation.WithDetails("token_hash and user_id are immutable")
		}
		return putJSON(tx, key(prefixAPIKey, k.ID), k, 0)
	})
}

// TouchAPIKey records a use of key id.
func (s *Store) TouchAPIKey(ctx context.Context, id string, at int64) error {
	return s.update(ctx, "touch apikey", func(tx KVTxn) error {
		data, err := tx.Get(key(prefixAPIKey, id))
		if errors.Is(err, ErrKeyNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		var k domain.APIKey
		if err := json.Unmarshal(data, &k); err != nil {
			return err
		}
		k.Touch(at)
		return putJSON(tx, key(prefixAPIKey, id), &k, 0)
	})
}

// ListAPIKeys lists the keys of userID, or every key when userID is empty.
func (s *Store) ListAPIKeys(ctx context.Context, userID string) ([]*domain.APIKey, error) {
	keys, err := scanJSON[domain.APIKey](ctx, s.kv, prefixAPIKey)
	if err != nil || userID == "" {
		return keys, err
	}
	mine := keys[:0]
	for _, k := range keys {
		if k.UserID == userID {
			mine = append(mine, k)
		}
	}
	return mine, nil
}

// Close closes the underlying engine.
func (s *Store) Close() error {
	return s.kv.Close()
}

func (s *Store) insert(ctx context.Context, op string, k []byte, v any, ttl time.Duration) error {
	return s.update(ctx, op, func(tx KVTxn) error {
		found, err := exists(tx, k)
		if err != nil {
			return err
		}
		if found {
			return domain.ErrAlreadyExists
		}
		return putJSON(tx, k, v, ttl)
	})
}
