package authz

const (
	RoleStaff   = 10
	RoleFinance = 20
	RoleManager = 40
	RoleAdmin   = 50
)

type Resource string

const (
	ResourceTasks     Resource = "tasks"
	ResourceProjects  Resource = "projects"
	ResourceClients   Resource = "clients"
	ResourceUsers     Resource = "users"
	ResourceInvoices  Resource = "invoices"
	ResourceDocuments Resource = "documents"
	ResourceReports   Resource = "reports"
	ResourceSettings  Resource = "settings"
)

type Action string

const (
	ActionCreate  Action = "create"
	ActionEdit    Action = "edit"
	ActionDelete  Action = "delete"
	ActionInvoice Action = "invoice"
)

func grant(list ...Action) map[Action]bool {
	out := make(map[Action]bool, len(list))
	for _, a := range list {
		out[a] = true
	}
	return out
}

// capabilities maps role -> resource -> actions the role may perform.
// Admin bypasses the table entirely; per-object ownership checks (staff
// may only touch own-assigned tasks/projects) stay at the call sites.
var capabilities = map[int]map[Resource]map[Action]bool{
	RoleManager: {
		ResourceTasks:     grant(ActionCreate, ActionEdit, ActionDelete),
		ResourceProjects:  grant(ActionCreate, ActionEdit, ActionDelete),
		ResourceClients:   grant(ActionCreate, ActionEdit, ActionDelete),
		ResourceUsers:     grant(ActionCreate, ActionEdit, ActionDelete),
		ResourceInvoices:  grant(ActionCreate, ActionEdit, ActionDelete, ActionInvoice),
		ResourceDocuments: grant(ActionCreate, ActionEdit, ActionDelete),
		ResourceReports:   grant(ActionCreate, ActionEdit),
		// settings stay admin-only
	},
	RoleFinance: {
		ResourceInvoices: grant(ActionCreate, ActionEdit, ActionInvoice),
		ResourceReports:  grant(ActionCreate, ActionEdit),
	},
	RoleStaff: {
		ResourceTasks: grant(ActionCreate, ActionEdit, ActionDelete),
		// project create/delete are manager actions; staff edit their
		// assigned projects only (enforced per-object in the service)
		ResourceProjects: grant(ActionEdit),
	},
}

// viewDenied marks the few resources a role cannot even read.
var viewDenied = map[int]map[Resource]bool{
	RoleStaff:   {ResourceSettings: true, ResourceReports: true},
	RoleFinance: {ResourceSettings: true},
	RoleManager: {ResourceSettings: true},
}

func CanView(roleID int, res Resource) bool {
	if roleID == RoleAdmin {
		return true
	}
	denied, ok := viewDenied[roleID]
	if !ok {
		return false
	}
	return !denied[res]
}

func CanMutate(roleID int, res Resource, action Action) bool {
	if roleID == RoleAdmin {
		return true
	}
	caps, ok := capabilities[roleID]
	if !ok {
		return false
	}
	return caps[res][action]
}

func IsElevated(roleID int) bool {
	return roleID == RoleManager || roleID == RoleAdmin
}
