package rbac

// RolePermission grants one action on one resource to a role.
type RolePermission struct {
	Role     string `gorm:"column:role;type:varchar(50);primaryKey"`
	Resource string `gorm:"column:resource;type:varchar(50);primaryKey"`
	Action   string `gorm:"column:action;type:varchar(50);primaryKey"`
}

func (RolePermission) TableName() string {
	return "role_permissions"
}

// RoleParent makes Role inherit every permission of Parent.
type RoleParent struct {
	Role   string `gorm:"column:role;type:varchar(50);primaryKey"`
	Parent string `gorm:"column:parent;type:varchar(50);primaryKey"`
}

func (RoleParent) TableName() string {
	return "role_parents"
}

const (
	RoleEmployee = "employee"
	RoleAdmin    = "admin"

	ResourceAttendance = "attendance"

	ActionClock   = "clock"
	ActionRead    = "read"
	ActionReadAll = "read_all"
)

// DefaultPermissions seed an empty database.
var DefaultPermissions = []RolePermission{
	{Role: RoleEmployee, Resource: ResourceAttendance, Action: ActionClock},
	{Role: RoleEmployee, Resource: ResourceAttendance, Action: ActionRead},
	{Role: RoleAdmin, Resource: ResourceAttendance, Action: ActionReadAll},
}

var DefaultParents = []RoleParent{
	{Role: RoleAdmin, Parent: RoleEmployee},
}
