package admission

import (
	"sort"

	"github.com/memberhub/admission/internal/model"
)

// FindSwapTarget selects the registration to displace when a prioritized
// user arrives at a full event. Candidates are the currently registered
// rows, scanned most-recent-arrival first; the first non-prioritized
// occupant is returned. Evicting the newest non-prioritized occupant keeps
// disruption minimal: a long-standing registrant is never displaced while a
// later arrival could be instead.
//
// Returns nil when every occupant is prioritized; the arriving user is then
// waitlisted rather than force-evicting a peer.
func FindSwapTarget(registered []model.Registration, prioritized map[string]bool) *model.Registration {
	candidates := make([]model.Registration, 0, len(registered))
	for _, reg := range registered {
		if reg.Status == model.StatusRegistered {
			candidates = append(candidates, reg)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})

	for i := range candidates {
		if !prioritized[candidates[i].UserID] {
			target := candidates[i]
			return &target
		}
	}
	return nil
}
