package domain

import (
	"net"
	"strconv"
	"strings"
)

// NodeRef is the node assignment recorded on a server.
type NodeRef struct {
	IP string `json:"ip"`
}

// Server is a workload hosted on a node.
type Server struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	OwnerUserID string  `json:"owner_user_id"`
	WorkloadID  string  `json:"workload_id"`
	Node        NodeRef `json:"node"`
	CreatedAt   int64   `json:"created_at"`
}

// Validate checks required fields.
func (s *Server) Validate() error {
	var violations []string
	if s.ID == "" {
		violations = append(violations, "id is required")
	}
	if s.OwnerUserID == "" {
		violations = append(violations, "owner_user_id is required")
	}
	if s.WorkloadID == "" {
		violations = append(violations, "workload_id is required")
	}
	if s.Node.IP == "" {
		violations = append(violations, "node.ip is required")
	}
	if len(violations) > 0 {
		return ErrValidation.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// Clone returns a copy of the server.
func (s *Server) Clone() *Server {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Node is a remote agent process reachable over a websocket.
type Node struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IP        string `json:"ip"`
	Port      int    `json:"port"`
	Key       string `json:"key,omitempty"` // shared secret presented to the agent
	CreatedAt int64  `json:"created_at"`
}

// Address returns host:port of the agent socket.
func (n *Node) Address() string {
	return net.JoinHostPort(n.IP, strconv.Itoa(n.Port))
}

// AgentURL returns the agent websocket url. The agent protocol has no path.
func (n *Node) AgentURL() string {
	return "ws://" + n.Address()
}

// Validate checks required fields.
func (n *Node) Validate() error {
	var violations []string
	if n.ID == "" {
		violations = append(violations, "id is required")
	}
	if n.IP == "" {
		violations = append(violations, "ip is required")
	}
	if n.Port <= 0 || n.Port > 65535 {
		violations = append(violations, "port must be between 1 and 65535")
	}
	if n.Key == "" {
		violations = append(violations, "key is required")
	}
	if len(violations) > 0 {
		return ErrValidation.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// Clone returns a copy of the node.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	return &c
}

// Redacted returns a copy without the shared secret, for display.
func (n *Node) Redacted() *Node {
	c := n.Clone()
	if c != nil {
		c.Key = ""
	}
	return c
}
