package security

// Permission codenames, one per action and record type
const (
	PermViewPerson              = "view_person"
	PermAddPerson               = "add_person"
	PermChangePerson            = "change_person"
	PermViewRelationship        = "view_relationship"
	PermAddRelationship         = "add_relationship"
	PermChangeRelationship      = "change_relationship"
	PermDeleteRelationship      = "delete_relationship"
	PermViewTemperatureRecord   = "view_temperaturerecord"
	PermAddTemperatureRecord    = "add_temperaturerecord"
	PermChangeTemperatureRecord = "change_temperaturerecord"
	PermManageUsers             = "manage_users"
)

// PermissionInfo describes a permission for the admin pages
type PermissionInfo struct {
	Codename    string
	Description string
}

// AllPermissions lists every permission in display order
var AllPermissions = []PermissionInfo{
	{PermViewPerson, "Can view people"},
	{PermAddPerson, "Can add people"},
	{PermChangePerson, "Can change any person"},
	{PermViewRelationship, "Can view relationships"},
	{PermAddRelationship, "Can add relationships"},
	{PermChangeRelationship, "Can change relationships"},
	{PermDeleteRelationship, "Can delete relationships"},
	{PermViewTemperatureRecord, "Can view temperature records"},
	{PermAddTemperatureRecord, "Can add temperature records"},
	{PermChangeTemperatureRecord, "Can change temperature records"},
	{PermManageUsers, "Can manage users and relationship types"},
}

// DefaultPermissions are granted to every new account
var DefaultPermissions = []string{
	PermViewPerson,
	PermAddPerson,
	PermViewRelationship,
	PermAddRelationship,
	PermViewTemperatureRecord,
	PermAddTemperatureRecord,
}

// IsKnownPermission reports whether codename is one of AllPermissions
func IsKnownPermission(codename string) bool {
	for _, p := range AllPermissions {
		if p.Codename == codename {
			return true
		}
	}
	return false
}
