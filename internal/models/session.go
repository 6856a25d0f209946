package models

// Role is the participant's role for the lifetime of a session.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleParticipant Role = "participant"
)

// Session is the client-held identity established by login. The server keeps
// no record of it; AdminKey is echoed back on privileged requests as the
// credential. AdminKey is present iff Role is admin.
type Session struct {
	Name     string `json:"name"`
	Role     Role   `json:"role"`
	AdminKey string `json:"admin_key,omitempty"`
}

// IsAdmin reports whether the session carries the admin role.
func (s Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}
