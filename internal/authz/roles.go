package authz

type Role string

const (
	RoleDirector  Role = "director"
	RoleManager   Role = "manager"
	RoleMainAdmin Role = "main_admin"
	RoleAdmin     Role = "admin"
)

var displayNames = map[Role]string{
	RoleDirector:  "Директор",
	RoleManager:   "Менеджер",
	RoleMainAdmin: "Главный администратор",
	RoleAdmin:     "Администратор",
}

func (r Role) Valid() bool {
	_, ok := displayNames[r]
	return ok
}

func (r Role) DisplayName() string {
	if name, ok := displayNames[r]; ok {
		return name
	}
	return string(r)
}

// IsPrivileged reports whether the role sees every task and may create
// tasks and companies.
func IsPrivileged(r Role) bool {
	return r == RoleDirector || r == RoleManager
}

func CanManageRoles(r Role) bool {
	return r == RoleDirector
}

func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.Valid()
}

func AllRoles() []Role {
	return []Role{RoleDirector, RoleManager, RoleMainAdmin, RoleAdmin}
}
