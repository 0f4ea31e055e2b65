package memory

import (
	"context"
	"sort"

	"github.com/Talorix/panel/internal/core/domain"
)

// FindAPIKeyByHash retrieves a key by the digest of its token.
func (s *Store) FindAPIKeyByHash(_ context.Context, hash string) (*domain.APIKey, error) {
	id, ok := s.keyHashes.Get(hash)
	if !ok {
		return nil, domain.ErrNotFound
	}
	k, ok := s.keys.Get(id)
	if !ok {
		// Index points at a deleted key.
		s.keyHashes.Delete(hash)
		return nil, domain.ErrNotFound
	}
	return k.Clone(), nil
}

// CreateAPIKey stores a new key.
func (s *Store) CreateAPIKey(_ context.Context, k *domain.APIKey) error {
	if err := k.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.keys.Has(k.ID) || s.keyHashes.Has(k.TokenHash) {
		return domain.ErrAlreadyExists
	}
	s.keys.Set(k.ID, k.Clone())
	s.keyHashes.Set(k.TokenHash, k.ID)
	s.userKeys.Add(k.UserID, k.ID)
	return nil
}

// UpdateAPIKey replaces an existing key. The token hash and owner are
// immutable.
func (s *Store) UpdateAPIKey(_ context.Context, k *domain.APIKey) error {
	if err := k.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.keys.Get(k.ID)
	if !ok {
		return domain.ErrNotFound
	}
	if old.TokenHash != k.TokenHash || old.UserID != k.UserID {
		return domain.ErrValidation.WithDetails("token_hash and user_id are immutable")
	}
	s.keys.Set(k.ID, k.Clone())
	return nil
}

// TouchAPIKey records a use of key id.
func (s *Store) TouchAPIKey(_ context.Context, id string, at int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys.Get(id)
	if !ok {
		return domain.ErrNotFound
	}
	touched := k.Clone()
	touched.Touch(at)
	s.keys.Set(id, touched)
	return nil
}

// ListAPIKeys lists the keys of userID, or every key when userID is empty.
func (s *Store) ListAPIKeys(_ context.Context, userID string) ([]*domain.APIKey, error) {
	var keys []*domain.APIKey
	if userID == "" {
		s.keys.Range(func(_ string, k *domain.APIKey) bool {
			keys = append(keys, k.Clone())
			return true
		})
	} else {
		for _, id := range s.userKeys.Get(userID) {
			if k, ok := s.keys.Get(id); ok {
				keys = append(keys, k.Clone())
			}
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].ID < keys[j].ID })
	return keys, nil
}
