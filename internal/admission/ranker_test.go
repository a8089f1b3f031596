package admission

import (
	"testing"
	"time"

	"github.com/memberhub/admission/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rankEpoch = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

func waitlistedAt(userID string, minute int) model.Registration {
	return model.Registration{
		ID:        "reg-" + userID,
		UserID:    userID,
		Status:    model.StatusWaitlisted,
		CreatedAt: rankEpoch.Add(time.Duration(minute) * time.Minute),
	}
}

func positions(ranked []model.Registration) map[string]int {
	out := make(map[string]int, len(ranked))
	for _, r := range ranked {
		out[r.UserID] = *r.WaitlistPosition
	}
	return out
}

func TestRankPrioritizedBeforeOthers(t *testing.T) {
	regs := []model.Registration{
		waitlistedAt("alice", 0),
		waitlistedAt("bob", 1),
		waitlistedAt("carol", 2),
	}
	ranked := Rank(regs, map[string]bool{"carol": true})

	require.Len(t, ranked, 3)
	assert.Equal(t, map[string]int{"carol": 1, "alice": 2, "bob": 3}, positions(ranked))
}

func TestRankFIFOWithinClass(t *testing.T) {
	regs := []model.Registration{
		waitlistedAt("late-prio", 30),
		waitlistedAt("early", 1),
		waitlistedAt("early-prio", 5),
		waitlistedAt("late", 40),
	}
	ranked := Rank(regs, map[string]bool{"early-prio": true, "late-prio": true})

	assert.Equal(t, map[string]int{
		"early-prio": 1,
		"late-prio":  2,
		"early":      3,
		"late":       4,
	}, positions(ranked))
}

func TestRankPositionsAreDense(t *testing.T) {
	regs := []model.Registration{
		waitlistedAt("u1", 3),
		waitlistedAt("u2", 1),
		waitlistedAt("u3", 2),
		waitlistedAt("u4", 4),
		waitlistedAt("u5", 0),
	}
	ranked := Rank(regs, map[string]bool{"u3": true})

	seen := make(map[int]bool)
	for i, r := range ranked {
		require.NotNil(t, r.WaitlistPosition)
		assert.Equal(t, i+1, *r.WaitlistPosition)
		assert.False(t, seen[*r.WaitlistPosition], "duplicate position %d", *r.WaitlistPosition)
		seen[*r.WaitlistPosition] = true
	}
	assert.Len(t, seen, len(regs))
}

func TestRankDoesNotMutateInput(t *testing.T) {
	regs := []model.Registration{waitlistedAt("alice", 0)}
	_ = Rank(regs, nil)
	assert.Nil(t, regs[0].WaitlistPosition)
}

func TestRankEmpty(t *testing.T) {
	assert.Empty(t, Rank(nil, nil))
}

func TestPositionOf(t *testing.T) {
	regs := []model.Registration{
		waitlistedAt("alice", 0),
		waitlistedAt("bob", 1),
	}
	prio := map[string]bool{"bob": true}

	pos, err := PositionOf("bob", regs, prio)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	pos, err = PositionOf("alice", regs, prio)
	require.NoError(t, err)
	assert.Equal(t, 2, pos)
}

func TestPositionOfMissingUserIsContractViolation(t *testing.T) {
	regs := []model.Registration{waitlistedAt("alice", 0)}
	_, err := PositionOf("mallory", regs, nil)
	assert.ErrorIs(t, err, ErrNotWaitlisted)
}
