package model

// Role is the part a participant plays inside a single session.  A user
// account may be entitled to several roles (rows in `user_roles`), but a
// membership binds exactly one of them to one session.
type Role string

const (
    RoleStageManager Role = "stage_manager"  // drives cue transitions, manages the session
    RoleOperator     Role = "operator"       // runs one department, reports readiness
    RoleDirector     Role = "director"       // read-only monitor
    RoleDirectorPlus Role = "director_plus"  // monitor that may switch its own role
    RoleAdmin        Role = "admin"          // global administration
)

// ParseRole validates a role string coming from a client or the database.
func ParseRole(s string) (Role, bool) {
    switch Role(s) {
    case RoleStageManager, RoleOperator, RoleDirector, RoleDirectorPlus, RoleAdmin:
        return Role(s), true
    }
    return "", false
}

// Elevated reports whether the role may switch into any other role
// without holding a separate entitlement for it.
func (r Role) Elevated() bool {
    return r == RoleDirectorPlus || r == RoleAdmin
}
