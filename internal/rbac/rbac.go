package rbac

// Role constants
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleViewer = "viewer"
)

// Permission constants
const (
	PermViewDispatch = "view_dispatch"
	PermViewUsage    = "view_usage"
	PermSendPost     = "send_post"
	PermRequeuePost  = "requeue_post"
)

// RolePermissions defines what each role can do.
var RolePermissions = map[string][]string{
	RoleOwner: {
		PermViewDispatch, PermViewUsage, PermSendPost, PermRequeuePost,
	},
	RoleAdmin: {
		PermViewDispatch, PermViewUsage, PermSendPost, PermRequeuePost,
	},
	RoleMember: {
		PermViewDispatch, PermViewUsage, PermSendPost,
		// Member CANNOT: PermRequeuePost
	},
	RoleViewer: {
		PermViewDispatch, PermViewUsage,
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}
