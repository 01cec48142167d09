package repository

import "github.com/yourorg/towdesk/internal/domain"

// Role sets are stored as TEXT[] columns and travel through pq.Array,
// which wants plain string slices.

func rolesToStrings(roles []domain.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

func stringsToRoles(names []string) []domain.Role {
	out := make([]domain.Role, len(names))
	for i, n := range names {
		out[i] = domain.Role(n)
	}
	return out
}
