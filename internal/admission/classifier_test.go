package admission

import (
	"testing"

	"github.com/memberhub/admission/internal/model"
	"github.com/stretchr/testify/assert"
)

func pools(groupSets ...[]string) []model.PriorityPool {
	var ps []model.PriorityPool
	for _, gs := range groupSets {
		ps = append(ps, model.PriorityPool{GroupIDs: gs})
	}
	return ps
}

func TestIsPrioritized(t *testing.T) {
	tests := []struct {
		name           string
		groups         []string
		pools          []model.PriorityPool
		strikes        int
		enforceStrikes bool
		want           bool
	}{
		{
			name:   "no pools means nobody is prioritized",
			groups: []string{"committee"},
			pools:  nil,
			want:   false,
		},
		{
			name:   "single pool full match",
			groups: []string{"committee", "seniors"},
			pools:  pools([]string{"committee"}),
			want:   true,
		},
		{
			name:   "pool requires all groups not any",
			groups: []string{"committee"},
			pools:  pools([]string{"committee", "seniors"}),
			want:   false,
		},
		{
			name:   "second pool matches when first does not",
			groups: []string{"seniors"},
			pools:  pools([]string{"committee"}, []string{"seniors"}),
			want:   true,
		},
		{
			name:   "empty pool never matches anyone",
			groups: nil,
			pools:  pools([]string{}),
			want:   false,
		},
		{
			name:           "strike veto beats pool match",
			groups:         []string{"committee"},
			pools:          pools([]string{"committee"}),
			strikes:        3,
			enforceStrikes: true,
			want:           false,
		},
		{
			name:           "strikes below limit do not veto",
			groups:         []string{"committee"},
			pools:          pools([]string{"committee"}),
			strikes:        2,
			enforceStrikes: true,
			want:           true,
		},
		{
			name:           "strikes ignored when not enforced",
			groups:         []string{"committee"},
			pools:          pools([]string{"committee"}),
			strikes:        5,
			enforceStrikes: false,
			want:           true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsPrioritized(NewGroupSet(tt.groups), tt.pools, tt.strikes, tt.enforceStrikes)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGroupSetHasAll(t *testing.T) {
	g := NewGroupSet([]string{"a", "b"})
	assert.True(t, g.HasAll(nil))
	assert.True(t, g.HasAll([]string{"a"}))
	assert.True(t, g.HasAll([]string{"a", "b"}))
	assert.False(t, g.HasAll([]string{"a", "c"}))
}
