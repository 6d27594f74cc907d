package auth

import "time"

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleReadOnly Role = "read_only"
)

// Operator is a human user of the remediation console. Read-only
// operators can inspect incidents; approving or executing playbooks
// needs the operator role or better.
type Operator struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// CanApprove reports whether this operator may approve remediation
// playbooks for execution.
func (o *Operator) CanApprove() bool {
	return o.Role == RoleAdmin || o.Role == RoleOperator
}
