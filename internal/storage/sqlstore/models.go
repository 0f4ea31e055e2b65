package sqlstore

import (
	"github.com/uptrace/bun"

	"github.com/Talorix/panel/internal/core/domain"
)

type userModel struct {
	bun.BaseModel `bun:"table:users"`

	ID           string               `bun:"id,pk"`
	Email        string               `bun:"email,notnull,unique"`
	Username     string               `bun:"username"`
	PasswordHash string               `bun:"password_hash,notnull"`
	Servers      []domain.ServerGrant `bun:"servers,type:text"`
	CreatedAt    int64                `bun:"created_at"`
	Version      uint64               `bun:"version"`
}

func (m *userModel) domain() *domain.User {
	return &domain.User{
		ID:           m.ID,
		Email:        m.Email,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		Servers:      m.Servers,
		CreatedAt:    m.CreatedAt,
		Version:      m.Version,
	}
}

func fromUser(u *domain.User) *userModel {
	return &userModel{
		ID:           u.ID,
		Email:        u.Email,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Servers:      u.Servers,
		CreatedAt:    u.CreatedAt,
		Version:      u.Version,
	}
}

type serverModel struct {
	bun.BaseModel `bun:"table:servers"`

	ID          string `bun:"id,pk"`
	Name        string `bun:"name"`
	OwnerUserID string `bun:"owner_user_id,notnull"`
	WorkloadID  string `bun:"workload_id,notnull"`
	NodeIP      string `bun:"node_ip,notnull"`
	CreatedAt   int64  `bun:"created_at"`
}

func (m *serverModel) domain() *domain.Server {
	return &domain.Server{
		ID:          m.ID,
		Name:        m.Name,
		OwnerUserID: m.OwnerUserID,
		WorkloadID:  m.WorkloadID,
		Node:        domain.NodeRef{IP: m.NodeIP},
		CreatedAt:   m.CreatedAt,
	}
}

type nodeModel struct {
	bun.BaseModel `bun:"table:nodes"`

	ID        string `bun:"id,pk"`
	Name      string `bun:"name"`
	IP        string `bun:"ip,notnull"`
	Port      int    `bun:"port,notnull"`
	Key       string `bun:"key,notnull"`
	CreatedAt int64  `bun:"created_at"`
}

func (m *nodeModel) domain() *domain.Node {
	return &domain.Node{ID: m.ID, Name: m.Name, IP: m.IP, Port: m.Port, Key: m.Key, CreatedAt: m.CreatedAt}
}

type sessionModel struct {
	bun.BaseModel `bun:"table:sessions"`

	ID         string `bun:"id,pk"`
	UserID     string `bun:"user_id,notnull"`
	IPAddress  string `bun:"ip_address"`
	UserAgent  string `bun:"user_agent"`
	CreatedAt  int64  `bun:"created_at"`
	ExpiresAt  int64  `bun:"expires_at"`
	LastActive int64  `bun:"last_active"`
}

func (m *sessionModel) domain() *domain.Session {
	return &domain.Session{
		ID:         m.ID,
		UserID:     m.UserID,
		IPAddress:  m.IPAddress,
		UserAgent:  m.UserAgent,
		CreatedAt:  m.CreatedAt,
		ExpiresAt:  m.ExpiresAt,
		LastActive: m.LastActive,
	}
}

type apiKeyModel struct {
	bun.BaseModel `bun:"table:api_keys"`

	ID        string `bun:"id,pk"`
	Name      string `bun:"name"`
	UserID    string `bun:"user_id,notnull"`
	TokenHash string `bun:"token_hash,notnull,unique"`
	Visible   bool   `bun:"visible,notnull"`
	Status    string `bun:"status,notnull"`
	CreatedAt int64  `bun:"created_at"`
	LastUsed  int64  `bun:"last_used"`
}

func (m *apiKeyModel) domain() *domain.APIKey {
	return &domain.APIKey{
		ID:        m.ID,
		Name:      m.Name,
		UserID:    m.UserID,
		TokenHash: m.TokenHash,
		Visible:   m.Visible,
		Status:    domain.KeyStatus(m.Status),
		CreatedAt: m.CreatedAt,
		LastUsed:  m.LastUsed,
	}
}

func fromAPIKey(k *domain.APIKey) *apiKeyModel {
	return &apiKeyModel{
		ID:        k.ID,
		Name:      k.Name,
		UserID:    k.UserID,
		TokenHash: k.TokenHash,
		Visible:   k.Visible,
		Status:    string(k.Status),
		CreatedAt: k.CreatedAt,
		LastUsed:  k.LastUsed,
	}
}

var models = []any{
	(*userModel)(nil),
	(*serverModel)(nil),
	(*nodeModel)(nil),
	(*sessionModel)(nil),
	(*apiKeyModel)(nil),
}
