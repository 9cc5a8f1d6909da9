package rbac

const (
	RoleAuthor    = "author"
	RoleExamTaker = "examtaker"
	RoleAdmin     = "admin"
)

const (
	PermModuleWrite     = "module:write"
	PermModuleRead      = "module:read"
	PermModulePublish   = "module:publish"
	PermGroupManage     = "group:manage"
	PermAssignmentWrite = "assignment:write"
	PermSessionTake     = "session:take"
	PermSessionView     = "session:view"
	PermSessionViewAll  = "session:view-all"
	PermEventsRead      = "events:read"
)

// RolePermissions is the default policy.
var RolePermissions = map[string][]string{
	RoleExamTaker: {
		PermSessionTake,
		PermSessionView,
	},
	RoleAuthor: {
		"module:*",
		PermGroupManage,
		PermAssignmentWrite,
		PermSessionView,
		PermSessionViewAll,
		PermEventsRead,
	},
	RoleAdmin: {
		"*",
	},
}
