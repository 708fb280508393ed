package domain

// Role is carried in admin bearer tokens.
type Role string

// Roles.
const (
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

var roleRank = map[Role]int{
	RoleOperator: 1,
	RoleAdmin:    2,
}

// HasPermission checks if the role is at least minRole.
func (r Role) HasPermission(minRole Role) bool {
	rank, ok := roleRank[r]
	if !ok {
		return false
	}
	return rank >= roleRank[minRole]
}

// IsValid checks if the role is known.
func (r Role) IsValid() bool {
	_, ok := roleRank[r]
	return ok
}
