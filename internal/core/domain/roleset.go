package domain

import "sort"

// RoleSet is an unordered set of role identifiers.
type RoleSet map[RoleID]struct{}

func NewRoleSet(roles ...RoleID) RoleSet {
	s := make(RoleSet, len(roles))
	for _, r := range roles {
		s[r] = struct{}{}
	}
	return s
}

func (s RoleSet) Add(r RoleID) {
	s[r] = struct{}{}
}

func (s RoleSet) Contains(r RoleID) bool {
	_, ok := s[r]
	return ok
}

func (s RoleSet) Len() int {
	return len(s)
}

// Union returns a new set containing members of both sets.
func (s RoleSet) Union(other RoleSet) RoleSet {
	out := make(RoleSet, len(s)+len(other))
	for r := range s {
		out[r] = struct{}{}
	}
	for r := range other {
		out[r] = struct{}{}
	}
	return out
}

// Equal reports whether both sets hold exactly the same roles.
func (s RoleSet) Equal(other RoleSet) bool {
	if len(s) != len(other) {
		return false
	}
	for r := range s {
		if _, ok := other[r]; !ok {
			return false
		}
	}
	return true
}

// Sorted returns the roles as a deterministic slice, for batching and
// stable persistence.
func (s RoleSet) Sorted() []RoleID {
	out := make([]RoleID, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
