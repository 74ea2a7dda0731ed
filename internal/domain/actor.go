package domain

type Role string

const (
	RoleCustomer Role = "customer"
	RoleVerifier Role = "verifier"
	RoleAgent    Role = "agent"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system"
)

// Actor is the already-authenticated identity on whose behalf an operation runs.
type Actor struct {
	ID   int32 `json:"id"`
	Role Role  `json:"role"`
}

// SystemActor is used by scheduled jobs and collaborator callbacks.
var SystemActor = Actor{ID: 0, Role: RoleSystem}

func (a Actor) Is(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

func (a Actor) IsStaff() bool {
	return a.Is(RoleAdmin, RoleSystem)
}
