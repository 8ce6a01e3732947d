package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMembershipJoinAndMembers(t *testing.T) {
	membership := NewMembership()

	membership.Join(7, 1)
	membership.Join(7, 2)

	assert.ElementsMatch(t, []int64{1, 2}, membership.Members(7))
	assert.False(t, membership.IsEmpty(7))
}

func TestMembershipJoinIsIdempotent(t *testing.T) {
	membership := NewMembership()

	membership.Join(7, 1)
	membership.Join(7, 1)
	membership.Join(7, 1)

	assert.Equal(t, []int64{1}, membership.Members(7))
}

func TestMembershipMembersOfUnknownSession(t *testing.T) {
	membership := NewMembership()

	assert.Empty(t, membership.Members(99))
	assert.True(t, membership.IsEmpty(99))
}

func TestMembershipLeaveReportsRemovalAndEmptiness(t *testing.T) {
	membership := NewMembership()
	membership.Join(7, 1)
	membership.Join(7, 2)

	removed, empty := membership.Leave(7, 1)
	assert.True(t, removed)
	assert.False(t, empty)

	removed, empty = membership.Leave(7, 2)
	assert.True(t, removed)
	assert.True(t, empty)

	assert.True(t, membership.IsEmpty(7))
}

func TestMembershipLeaveIsExactlyOncePerPair(t *testing.T) {
	membership := NewMembership()
	membership.Join(7, 1)

	removed, empty := membership.Leave(7, 1)
	require.True(t, removed)
	require.True(t, empty)

	// A second leave of the same pair must be a silent no-op.
	removed, empty = membership.Leave(7, 1)
	assert.False(t, removed)
	assert.False(t, empty)
}

func TestMembershipLeaveUnknownSessionOrParticipant(t *testing.T) {
	membership := NewMembership()
	membership.Join(7, 1)

	removed, _ := membership.Leave(99, 1)
	assert.False(t, removed)

	removed, _ = membership.Leave(7, 99)
	assert.False(t, removed)

	// Original member is untouched.
	assert.Equal(t, []int64{1}, membership.Members(7))
}

func TestMembershipEmptyingTransitionFiresOnceWithThreeMembers(t *testing.T) {
	membership := NewMembership()
	membership.Join(7, 1)
	membership.Join(7, 2)
	membership.Join(7, 3)

	emptyCount := 0
	for _, participantID := range []int64{2, 1, 3} {
		removed, empty := membership.Leave(7, participantID)
		require.True(t, removed)
		if empty {
			emptyCount++
		}
	}

	assert.Equal(t, 1, emptyCount)
}

func TestMembershipParticipantInMultipleSessions(t *testing.T) {
	membership := NewMembership()
	membership.Join(7, 1)
	membership.Join(8, 1)

	removed, empty := membership.Leave(7, 1)
	assert.True(t, removed)
	assert.True(t, empty)

	// Membership in the other session is independent.
	assert.Equal(t, []int64{1}, membership.Members(8))
}

func TestMembershipStats(t *testing.T) {
	membership := NewMembership()
	membership.Join(7, 1)
	membership.Join(7, 2)
	membership.Join(8, 3)

	stats := membership.Stats()
	assert.Equal(t, 2, stats["sessions_with_members"])
	assert.Equal(t, 3, stats["joined_participants"])
}
