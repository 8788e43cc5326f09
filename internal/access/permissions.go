package access

import "phiguard/pkg/domain"

// Permission catalogue. Names follow resource:action[:qualifier].
const (
	PermClientsRead         domain.Permission = "clients:read"
	PermClientsReadAssigned domain.Permission = "clients:read:assigned"
	PermClientsReadOwn      domain.Permission = "clients:read:own"
	PermClientsReadRelated  domain.Permission = "clients:read:related"
	PermClientsCreate       domain.Permission = "clients:create"
	PermClientsUpdate       domain.Permission = "clients:update"
	PermClientsDelete       domain.Permission = "clients:delete"

	PermCaregiversRead   domain.Permission = "caregivers:read"
	PermCaregiversCreate domain.Permission = "caregivers:create"
	PermCaregiversUpdate domain.Permission = "caregivers:update"
	PermCaregiversDelete domain.Permission = "caregivers:delete"

	PermSchedulesRead   domain.Permission = "schedules:read"
	PermSchedulesWrite  domain.Permission = "schedules:write"
	PermSchedulesOwn    domain.Permission = "schedules:read:own"
	PermCarePlansRead   domain.Permission = "care_plans:read"
	PermCarePlansWrite  domain.Permission = "care_plans:write"
	PermMedicationsRead domain.Permission = "medications:read"
	PermMedicationsLog  domain.Permission = "medications:administer"
	PermNotesRead       domain.Permission = "notes:read"
	PermNotesCreate     domain.Permission = "notes:create"

	PermPHIViewSSN       domain.Permission = "phi:view:ssn"
	PermPHIViewDiagnosis domain.Permission = "phi:view:diagnosis"
	PermPHIExport        domain.Permission = "phi:export"

	PermBillingRead  domain.Permission = "billing:read"
	PermBillingWrite domain.Permission = "billing:write"
	PermAuditRead    domain.Permission = "audit:read"
	PermUsersManage  domain.Permission = "users:manage"
	PermSettingsEdit domain.Permission = "settings:edit"
)

// Universe is every permission the system knows about.
var Universe = []domain.Permission{
	PermClientsRead, PermClientsReadAssigned, PermClientsReadOwn, PermClientsReadRelated,
	PermClientsCreate, PermClientsUpdate, PermClientsDelete,
	PermCaregiversRead, PermCaregiversCreate, PermCaregiversUpdate, PermCaregiversDelete,
	PermSchedulesRead, PermSchedulesWrite, PermSchedulesOwn,
	PermCarePlansRead, PermCarePlansWrite,
	PermMedicationsRead, PermMedicationsLog,
	PermNotesRead, PermNotesCreate,
	PermPHIViewSSN, PermPHIViewDiagnosis, PermPHIExport,
	PermBillingRead, PermBillingWrite,
	PermAuditRead, PermUsersManage, PermSettingsEdit,
}

func defaultGrants() map[domain.Role][]domain.Permission {
	return map[domain.Role][]domain.Permission{
		domain.RoleOfficeManager: {
			PermClientsRead, PermClientsCreate, PermClientsUpdate,
			PermCaregiversRead, PermCaregiversCreate, PermCaregiversUpdate,
			PermSchedulesRead, PermSchedulesWrite,
			PermCarePlansRead, PermCarePlansWrite,
			PermMedicationsRead, PermNotesRead,
			PermPHIViewDiagnosis, PermBillingRead, PermBillingWrite,
		},
		domain.RoleScheduler: {
			PermClientsRead, PermCaregiversRead,
			PermSchedulesRead, PermSchedulesWrite,
		},
		domain.RoleCaregiver: {
			PermClientsReadAssigned, PermSchedulesOwn,
			PermCarePlansRead, PermMedicationsRead, PermMedicationsLog,
			PermNotesRead, PermNotesCreate,
		},
		domain.RoleClient: {
			PermClientsReadOwn, PermSchedulesOwn, PermCarePlansRead, PermMedicationsRead,
		},
		domain.RoleFamilyMember: {
			PermClientsReadRelated, PermSchedulesOwn, PermCarePlansRead,
		},
	}
}
