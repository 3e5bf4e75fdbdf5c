package labkit

import "time"

// Default permission names.
const (
	PermRead    = "read"
	PermWrite   = "write"
	PermDelete  = "delete"
	PermScale   = "scale"
	PermEncode  = "encode"
	PermSplit   = "split"
	PermProcess = "process"
)

// Default role names.
const (
	RoleAdmin         = "admin"
	RoleDataScientist = "data_scientist"
	RoleDataAnalyst   = "data_analyst"
	RoleViewer        = "viewer"
)

// DefaultPermissions lists the permissions registered when the Builder is
// not given any. Order fixes their bit positions.
func DefaultPermissions() []string {
	return []string{PermRead, PermWrite, PermDelete, PermScale, PermEncode, PermSplit, PermProcess}
}

// DefaultRoles returns the standard role table.
func DefaultRoles() map[string][]string {
	return map[string][]string{
		RoleAdmin:         {PermRead, PermWrite, PermDelete, PermScale, PermEncode, PermSplit, PermProcess},
		RoleDataScientist: {PermRead, PermWrite, PermScale, PermEncode, PermSplit, PermProcess},
		RoleDataAnalyst:   {PermRead, PermScale, PermEncode, PermProcess},
		RoleViewer:        {PermRead},
	}
}

// SessionInfo is the caller-facing view of a session.
type SessionInfo struct {
	Token       string
	UserID      string
	Role        string
	Permissions []string
	CreatedAt   time.Time
	// ExpiresAt is zero for sessions without a deadline.
	ExpiresAt time.Time
}

// Has reports whether the session grants perm.
func (s *SessionInfo) Has(perm string) bool {
	if s == nil {
		return false
	}
	for _, p := range s.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}
