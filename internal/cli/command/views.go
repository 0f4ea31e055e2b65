package command

import (
	"time"

	"github.com/Talorix/panel/internal/core/domain"
)

type userView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Servers   []string  `json:"servers" table:"wide"`
	CreatedAt time.Time `json:"created_at"`
}

func newUserView(u *domain.User) userView {
	v := userView{ID: u.ID, Email: u.Email, Username: u.Username, CreatedAt: millis(u.CreatedAt)}
	for _, g := range u.Servers {
		v.Servers = append(v.Servers, g.ID)
	}
	return v
}

type nodeView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IP        string    `json:"ip"`
	Port      int       `json:"port"`
	CreatedAt time.Time `json:"created_at" table:"wide"`
}

func newNodeView(n *domain.Node) nodeView {
	return nodeView{ID: n.ID, Name: n.Name, IP: n.IP, Port: n.Port, CreatedAt: millis(n.CreatedAt)}
}

type serverView struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Owner      string    `json:"owner_user_id"`
	WorkloadID string    `json:"workload_id" table:"wide"`
	NodeIP     string    `json:"node_ip"`
	CreatedAt  time.Time `json:"created_at" table:"wide"`
}

func newServerView(s *domain.Server) serverView {
	return serverView{
		ID:         s.ID,
		Name:       s.Name,
		Owner:      s.OwnerUserID,
		WorkloadID: s.WorkloadID,
		NodeIP:     s.Node.IP,
		CreatedAt:  millis(s.CreatedAt),
	}
}

type apiKeyView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UserID    string    `json:"user_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used" table:"wide"`
}

func newAPIKeyView(k *domain.APIKey) apiKeyView {
	status := string(k.Status)
	if !k.Visible {
		status = "hidden"
	}
	return apiKeyView{
		ID:        k.ID,
		Name:      k.Name,
		UserID:    k.UserID,
		Status:    status,
		CreatedAt: millis(k.CreatedAt),
		LastUsed:  millis(k.LastUsed),
	}
}

func millis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
