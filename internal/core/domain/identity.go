package domain

// Identity is the caller identity resolved for one inbound connection.
type Identity interface {
	// Subject returns the id used in logs and authorization lookups.
	Subject() string
	identity()
}

// SessionIdentity is a browser caller authenticated by session cookie.
type SessionIdentity struct {
	UserID    string
	SessionID string
}

// Subject returns the user id.
func (i SessionIdentity) Subject() string { return i.UserID }
func (SessionIdentity) identity()         {}

// APIKeyIdentity is a programmatic caller authenticated by API key.
type APIKeyIdentity struct {
	KeyID  string
	UserID string
}

// Subject returns the key id.
func (i APIKeyIdentity) Subject() string { return i.KeyID }
func (APIKeyIdentity) identity()         {}

// Mode is the relay mode of an endpoint.
type Mode int

const (
	// ModeRaw forwards agent frames verbatim (console).
	ModeRaw Mode = iota
	// ModeFiltered forwards only the payload of stats events.
	ModeFiltered
)

// String returns the name of the stream the mode subscribes to.
func (m Mode) String() string {
	if m == ModeFiltered {
		return "stats"
	}
	return "console"
}

// SubscribeEvent returns the event name sent to the agent to subscribe.
func (m Mode) SubscribeEvent() string {
	if m == ModeFiltered {
		return "stats"
	}
	return "logs"
}
