package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts and
// double as notification channel suffixes (role:<name>).
const (
	RoleCitizen    = "citizen"
	RoleAuthority  = "authority"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

// CanVerify reports whether a role may move incidents out of PENDING.
func CanVerify(role string) bool {
	switch role {
	case RoleAuthority, RoleAdmin, RoleSuperAdmin:
		return true
	default:
		return false
	}
}
