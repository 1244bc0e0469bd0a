package domain

type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleManager  Role = "MANAGER"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleCustomer:
		return RoleCustomer, true
	case RoleManager:
		return RoleManager, true
	}
	return "", false
}

// Caller is the identity resolved by the boundary layer for a single request.
type Caller struct {
	UserID int64
	Roles  []Role
}

func (c Caller) Has(role Role) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (c Caller) IsManager() bool { return c.Has(RoleManager) }

// Owns reports whether the caller is the user identified by userID.
func (c Caller) Owns(userID int64) bool { return c.UserID == userID }
