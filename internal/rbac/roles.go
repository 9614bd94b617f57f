package rbac

import (
	"fmt"
	"strings"
)

// Role is an agent capability level. Roles are totally ordered; higher roles include lower ones.
type Role int

const (
	RoleNone Role = iota
	RoleRead
	RoleWrite
	RoleAdmin
)

// Role names. Keep these stable; they are stored in agent_api_keys.role.
const (
	RoleNameRead  = "agent:read"
	RoleNameWrite = "agent:write"
	RoleNameAdmin = "agent:admin"
)

func ParseRole(s string) (Role, error) {
	switch strings.TrimSpace(s) {
	case RoleNameRead:
		return RoleRead, nil
	case RoleNameWrite:
		return RoleWrite, nil
	case RoleNameAdmin:
		return RoleAdmin, nil
	default:
		return RoleNone, fmt.Errorf("rbac: unknown role %q", s)
	}
}

// Satisfies reports whether r grants at least required.
func (r Role) Satisfies(required Role) bool {
	return r != RoleNone && r >= required
}

func (r Role) String() string {
	switch r {
	case RoleRead:
		return RoleNameRead
	case RoleWrite:
		return RoleNameWrite
	case RoleAdmin:
		return RoleNameAdmin
	default:
		return "none"
	}
}
