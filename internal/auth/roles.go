package auth

import (
	"fmt"
	"slices"
	"strings"
)

// Role is a named role code. Only the constants below are valid.
type Role int

const (
	RoleEditor Role = 1984
	RoleUser   Role = 2001
	RoleAdmin  Role = 5150
)

// DefaultRole is assigned to every newly registered user.
const DefaultRole = RoleUser

var roleNames = map[Role]string{
	RoleEditor: "Editor",
	RoleUser:   "User",
	RoleAdmin:  "Admin",
}

// ParseRole converts a wire-level integer code into a Role.
func ParseRole(code int) (Role, error) {
	r := Role(code)
	if _, ok := roleNames[r]; !ok {
		return 0, fmt.Errorf("%w: unknown role code %d", ErrValidation, code)
	}
	return r, nil
}

// ParseRoleName resolves a role by its case-insensitive name.
func ParseRoleName(name string) (Role, error) {
	name = strings.TrimSpace(name)
	for r, n := range roleNames {
		if strings.EqualFold(n, name) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown role %q", ErrValidation, name)
}

func (r Role) String() string {
	if n, ok := roleNames[r]; ok {
		return n
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// Roles is a deduplicated, ascending set of roles.
type Roles []Role

// NewRoles normalizes the given roles into a set.
func NewRoles(roles ...Role) Roles {
	if len(roles) == 0 {
		return nil
	}
	out := make(Roles, 0, len(roles))
	for _, r := range roles {
		if !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	slices.Sort(out)
	return out
}

// RolesFromCodes parses integer codes, failing on any unknown code.
func RolesFromCodes(codes []int) (Roles, error) {
	roles := make([]Role, 0, len(codes))
	for _, c := range codes {
		r, err := ParseRole(c)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return NewRoles(roles...), nil
}

// Codes returns the integer codes used for token and storage serialization.
func (rs Roles) Codes() []int {
	out := make([]int, 0, len(rs))
	for _, r := range rs {
		out = append(out, int(r))
	}
	return out
}

func (rs Roles) Contains(r Role) bool {
	return slices.Contains(rs, r)
}

// Intersects reports whether any role is shared with other.
func (rs Roles) Intersects(other Roles) bool {
	for _, r := range rs {
		if other.Contains(r) {
			return true
		}
	}
	return false
}

func (rs Roles) Strings() []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.String())
	}
	return out
}
