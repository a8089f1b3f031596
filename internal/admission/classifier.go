// Package admission contains the pure decision functions behind event
// admission: priority classification, waitlist ranking, and swap-target
// selection. Nothing here does I/O; callers feed in data read from a single
// transaction snapshot.
package admission

import "github.com/memberhub/admission/internal/model"

// StrikeLimit is the disciplinary strike count at which the veto applies.
const StrikeLimit = 3

// GroupSet is the set of group identifiers a user belongs to.
type GroupSet map[string]struct{}

// NewGroupSet builds a GroupSet from a slice of group identifiers.
func NewGroupSet(groupIDs []string) GroupSet {
	s := make(GroupSet, len(groupIDs))
	for _, id := range groupIDs {
		s[id] = struct{}{}
	}
	return s
}

// HasAll reports whether the set contains every one of the given groups.
func (g GroupSet) HasAll(groupIDs []string) bool {
	for _, id := range groupIDs {
		if _, ok := g[id]; !ok {
			return false
		}
	}
	return true
}

// IsPrioritized decides whether a user is prioritized for an event.
//
// The strike veto comes first: when enforced, a user with StrikeLimit or
// more strikes is never prioritized, whatever their group memberships.
// Otherwise the user is prioritized iff they match at least one pool, where
// matching means belonging to every group in the pool. A pool with no groups
// matches nobody.
func IsPrioritized(groups GroupSet, pools []model.PriorityPool, strikes int, enforceStrikes bool) bool {
	if enforceStrikes && strikes >= StrikeLimit {
		return false
	}
	for _, pool := range pools {
		if len(pool.GroupIDs) == 0 {
			continue
		}
		if groups.HasAll(pool.GroupIDs) {
			return true
		}
	}
	return false
}
