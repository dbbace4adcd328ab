package domain

import "time"

type UserID string
type RoleID string
type ChannelID string
type GuildID string

// Member is the guild member as last fetched from the platform.
type Member struct {
	ID       UserID
	Username string
	Roles    []RoleID
	JoinedAt time.Time
}

// HasRole reports whether the member currently holds the role.
func (m *Member) HasRole(id RoleID) bool {
	for _, r := range m.Roles {
		if r == id {
			return true
		}
	}
	return false
}

// MarkerRoles are the status-flag roles excluded from freeze and snapshot
// logic, plus the implicit everyone role.
type MarkerRoles struct {
	Verified   RoleID
	Unverified RoleID
	Everyone   RoleID
}

// ActiveRoles returns the member's roles minus the marker roles. These are
// the roles the freeze machinery snapshots and removes.
func (m *Member) ActiveRoles(markers MarkerRoles) RoleSet {
	active := NewRoleSet()
	for _, r := range m.Roles {
		if r == markers.Verified || r == markers.Unverified || r == markers.Everyone {
			continue
		}
		active.Add(r)
	}
	return active
}
