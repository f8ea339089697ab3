package model

// Roles carried in the access token.
const (
	RoleUser     = "USER"
	RoleTrainer  = "TRAINER"
	RoleGymOwner = "GYM_OWNER"
	RoleAdmin    = "ADMIN"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID string
	Role   string
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// Owns reports whether the actor may act on a resource owned by userID.
func (a Actor) Owns(userID string) bool { return a.IsAdmin() || (a.UserID != "" && a.UserID == userID) }
