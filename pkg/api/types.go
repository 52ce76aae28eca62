package api

// Role is a named role assigned to a user.
type Role struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Permission is a named capability that roles grant.
type Permission struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// User represents an account as returned by the user and auth services.
// Roles and Permissions are populated on session fetches only; list
// endpoints may omit them.
type User struct {
	ID           string   `json:"id"`
	Username     string   `json:"username"`
	Email        string   `json:"email"`
	FirstName    string   `json:"firstName,omitempty"`
	LastName     string   `json:"lastName,omitempty"`
	Phone        string   `json:"phone,omitempty"`
	ProfileImage string   `json:"profileImage,omitempty"`
	IsActive     bool     `json:"isActive"`
	Roles        []Role   `json:"roles,omitempty"`
	Permissions  []string `json:"permissions,omitempty"`
}

// DisplayName returns a human-readable name for the user, preferring the
// real name over the login identifier.
func (u User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Username
	}
}

// RoleNames returns the names of the user's roles in declaration order.
func (u User) RoleNames() []string {
	if len(u.Roles) == 0 {
		return nil
	}
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

// MenuNode is one entry of the permission-gated navigation tree served by
// the menu service. Children are ordered; Permission is nil when the entry
// requires no capability.
type MenuNode struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Path       string     `json:"path"`
	Icon       string     `json:"icon"`
	Group      string     `json:"group,omitempty"`
	ParentID   *int64     `json:"parentId"`
	IsActive   bool       `json:"isActive"`
	SortOrder  int        `json:"sortOrder"`
	Permission *string    `json:"permission"`
	Children   []MenuNode `json:"children,omitempty"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	DeviceID   string `json:"deviceId"`
}

// AuthResponse is returned by POST /auth/login.
type AuthResponse struct {
	User        *User  `json:"user,omitempty"`
	AccessToken string `json:"accessToken"`
	CSRFToken   string `json:"csrfToken"`
}

// RefreshResponse is returned by POST /auth/refresh-token.
type RefreshResponse struct {
	AccessToken string `json:"accessToken"`
	CSRFToken   string `json:"csrfToken"`
	ExpiresIn   int64  `json:"expiresIn,omitempty"`
}

// SessionResponse is returned by GET /auth/me. Roles and Permissions may be
// given at the top level or embedded in the user; EffectiveRoles and
// EffectivePermissions resolve that.
type SessionResponse struct {
	User        User       `json:"user"`
	Roles       []string   `json:"roles,omitempty"`
	Permissions []string   `json:"permissions,omitempty"`
	Menus       []MenuNode `json:"menuTree,omitempty"`
}

// EffectiveRoles returns the top-level role list, falling back to the names
// of the roles embedded in the user object.
func (s SessionResponse) EffectiveRoles() []string {
	if len(s.Roles) > 0 {
		return s.Roles
	}
	return s.User.RoleNames()
}

// EffectivePermissions returns the top-level permission list, falling back
// to the permissions embedded in the user object.
func (s SessionResponse) EffectivePermissions() []string {
	if len(s.Permissions) > 0 {
		return s.Permissions
	}
	return s.User.Permissions
}
