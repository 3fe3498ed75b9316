package rbac

// Role names. Keep these stable; they are part of the token contract.
const (
	RoleAdmin      = "admin"
	RoleOperator   = "operator"
	RoleViewer     = "viewer"
	RoleCallRouter = "call_router" // service accounts on the call path
)

// Groups used by the route table.
var (
	// Readers may list and fetch configuration.
	Readers = []string{RoleAdmin, RoleOperator, RoleViewer}
	// Editors may change configuration.
	Editors = []string{RoleAdmin, RoleOperator}
	// Resolvers may ask for a route.
	Resolvers = []string{RoleAdmin, RoleOperator, RoleCallRouter}
)

func IsAdmin(role string) bool { return role == RoleAdmin }

// IsServiceRole reports roles that never act on the console; they are only
// admitted where listed explicitly.
func IsServiceRole(role string) bool { return role == RoleCallRouter }

func Known(role string) bool {
	switch role {
	case RoleAdmin, RoleOperator, RoleViewer, RoleCallRouter:
		return true
	}
	return false
}
