package store

import "upets/platform-service/internal/models"

// SystemRoles mirrors the seeded roles table.
var SystemRoles = []models.Role{
	{Name: models.RoleSuperAdmin, Level: models.LevelSuperAdmin, IsSystem: true, Description: "Platform operator"},
	{Name: models.RoleCompanyAdmin, Level: models.LevelCompanyAdmin, IsSystem: true, Description: "Administers one partner company"},
	{Name: models.RoleBranchAdmin, Level: models.LevelBranchAdmin, IsSystem: true, Description: "Administers one branch"},
	{Name: models.RoleCustomer, Level: models.LevelCustomer, IsSystem: true, Description: "Pet owner"},
}

// AdminLevel is the minimum role level that reaches the admin surface.
const AdminLevel = models.LevelBranchAdmin

// Permission resources and actions checked by the API.
const (
	ResourceQRCodes       = "qr_codes"
	ResourceCompanies     = "companies"
	ResourceBranches      = "branches"
	ResourceSubscriptions = "subscriptions"
	ResourceRoles         = "roles"
	ResourceAudit         = "audit"

	PermCreate     = "create"
	PermPrint      = "print"
	PermAssign     = "assign"
	PermActivate   = "activate"
	PermTransition = "transition"
	PermRead       = "read"
	PermUpdate     = "update"
	PermDelete     = "delete"
	PermManage     = "manage"
)

// SystemPermissions mirrors the seeded permissions table.
var SystemPermissions = []models.Permission{
	{Resource: ResourceQRCodes, Action: PermCreate},
	{Resource: ResourceQRCodes, Action: PermPrint},
	{Resource: ResourceQRCodes, Action: PermAssign},
	{Resource: ResourceQRCodes, Action: PermActivate},
	{Resource: ResourceQRCodes, Action: PermTransition},
	{Resource: ResourceQRCodes, Action: PermRead},
	{Resource: ResourceCompanies, Action: PermCreate},
	{Resource: ResourceCompanies, Action: PermUpdate},
	{Resource: ResourceCompanies, Action: PermDelete},
	{Resource: ResourceCompanies, Action: PermRead},
	{Resource: ResourceBranches, Action: PermCreate},
	{Resource: ResourceBranches, Action: PermUpdate},
	{Resource: ResourceBranches, Action: PermDelete},
	{Resource: ResourceBranches, Action: PermRead},
	{Resource: ResourceSubscriptions, Action: PermCreate},
	{Resource: ResourceSubscriptions, Action: PermUpdate},
	{Resource: ResourceSubscriptions, Action: PermRead},
	{Resource: ResourceRoles, Action: PermManage},
	{Resource: ResourceAudit, Action: PermRead},
}

// SystemGrants lists role permissions as resource:action keys. A nil entry
// for super_admin means every permission.
var SystemGrants = map[string][]string{
	models.RoleSuperAdmin: nil,
	models.RoleCompanyAdmin: {
		"qr_codes:print", "qr_codes:assign", "qr_codes:activate", "qr_codes:transition", "qr_codes:read",
		"companies:read", "companies:update",
		"branches:create", "branches:update", "branches:delete", "branches:read",
		"subscriptions:create", "subscriptions:update", "subscriptions:read",
		"audit:read",
	},
	models.RoleBranchAdmin: {
		"qr_codes:print", "qr_codes:activate", "qr_codes:transition", "qr_codes:read",
		"companies:read", "branches:read", "subscriptions:read",
	},
	models.RoleCustomer: {},
}

func PermissionKey(resource, action string) string {
	return resource + ":" + action
}
