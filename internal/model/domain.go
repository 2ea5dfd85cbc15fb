package model

import (
	"github.com/google/uuid"
)

type UserRole string

const (
	UserRoleAdmin    UserRole = "ADMIN"
	UserRoleOperator UserRole = "OPERATOR"
	UserRoleViewer   UserRole = "VIEWER"
)

type Principal struct {
	UserID uuid.UUID
	Role   UserRole
}

func (p Principal) IsAdmin() bool {
	return p.Role == UserRoleAdmin
}

// CanManageSources reports whether the principal may reset or remove
// per-source pipeline state.
func (p Principal) CanManageSources() bool {
	return p.Role == UserRoleAdmin || p.Role == UserRoleOperator
}
