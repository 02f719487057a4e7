package domain

import "time"

// Client is an end user on the messaging platform. Clients are created
// on first inbound message and never deleted, only flagged blocked.
type Client struct {
	ID         int64     `json:"id"`
	PlatformID string    `json:"platform_id"`
	Name       string    `json:"name"`
	Blocked    bool      `json:"blocked"`
	CreatedAt  time.Time `json:"created_at"`
}

// Role controls which dashboard actions an operator may perform.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

// CanMutate reports whether the role may change dialogs, Q/A entries,
// or client flags. Viewers are read-only.
func (r Role) CanMutate() bool {
	return r == RoleAdmin || r == RoleOperator
}

// Operator is a dashboard user. Authentication happens outside the
// engine; the identity and role arrive already verified.
type Operator struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}
