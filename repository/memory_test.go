package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	seatsnatch "github.com/snatchapp/Seat-Snatch-Go"
)

func seedMemory(t *testing.T) *Memory {
	t.Helper()
	ctx := context.Background()
	repo := NewMemory()

	require.NoError(t, repo.UpsertCourse(ctx, seatsnatch.Course{ID: "009325", DisplayName: "MUS105", HasReservedSeats: true}))
	require.NoError(t, repo.UpsertSection(ctx, seatsnatch.Section{ClassID: "41233", CourseID: "009325", Name: "S01", Enrollment: 12, Capacity: 30}))
	require.NoError(t, repo.CreateUser(ctx, "alice"))
	require.NoError(t, repo.CreateUser(ctx, "bob"))
	return repo
}

func TestMemorySubscriptions(t *testing.T) {
	ctx := context.Background()

	t.Run("add is idempotent", func(t *testing.T) {
		repo := seedMemory(t)

		require.NoError(t, repo.AddSubscription(ctx, "alice", "41233"))
		require.NoError(t, repo.AddSubscription(ctx, "alice", "41233"))

		queue, err := repo.Waitlist(ctx, "41233")
		require.NoError(t, err)
		assert.Equal(t, []string{"alice"}, queue)
	})

	t.Run("queue holds commit order", func(t *testing.T) {
		repo := seedMemory(t)

		require.NoError(t, repo.AddSubscription(ctx, "bob", "41233"))
		require.NoError(t, repo.AddSubscription(ctx, "alice", "41233"))

		queue, err := repo.Waitlist(ctx, "41233")
		require.NoError(t, err)
		assert.Equal(t, []string{"bob", "alice"}, queue)
	})

	t.Run("drain deletes the queue and resets the reserved marker", func(t *testing.T) {
		repo := seedMemory(t)

		require.NoError(t, repo.AddSubscription(ctx, "alice", "41233"))
		require.NoError(t, repo.SetPrevEnrollment(ctx, "41233", 12))
		require.NoError(t, repo.RemoveSubscription(ctx, "alice", "41233"))

		waited, err := repo.WaitedSections(ctx)
		require.NoError(t, err)
		assert.Empty(t, waited)

		section, err := repo.GetSection(ctx, "41233")
		require.NoError(t, err)
		assert.Equal(t, 0, section.PrevEnrollment)
	})

	t.Run("partial removal keeps the queue", func(t *testing.T) {
		repo := seedMemory(t)

		require.NoError(t, repo.AddSubscription(ctx, "alice", "41233"))
		require.NoError(t, repo.AddSubscription(ctx, "bob", "41233"))
		require.NoError(t, repo.SetPrevEnrollment(ctx, "41233", 12))
		require.NoError(t, repo.RemoveSubscription(ctx, "alice", "41233"))

		queue, err := repo.Waitlist(ctx, "41233")
		require.NoError(t, err)
		assert.Equal(t, []string{"bob"}, queue)

		// marker survives while subscribers remain
		section, err := repo.GetSection(ctx, "41233")
		require.NoError(t, err)
		assert.Equal(t, 12, section.PrevEnrollment)
	})
}

func TestMemoryUpsertSection(t *testing.T) {
	ctx := context.Background()
	repo := seedMemory(t)

	require.NoError(t, repo.SetPrevEnrollment(ctx, "41233", 12))
	require.NoError(t, repo.SetCurrentSection(ctx, "alice", "009325", "41233"))

	// a catalog refresh must not clobber waitlist bookkeeping
	require.NoError(t, repo.UpsertSection(ctx, seatsnatch.Section{ClassID: "41233", CourseID: "009325", Name: "S01", Enrollment: 14, Capacity: 30}))

	section, err := repo.GetSection(ctx, "41233")
	require.NoError(t, err)
	assert.Equal(t, 14, section.Enrollment)
	assert.Equal(t, 12, section.PrevEnrollment)
	assert.Contains(t, section.SwapOut, "alice")
}

func TestMemoryActivity(t *testing.T) {
	ctx := context.Background()
	repo := seedMemory(t)

	require.NoError(t, repo.AppendActivity(ctx, "alice", seatsnatch.WaitlistLog, "first"))
	require.NoError(t, repo.AppendActivity(ctx, "alice", seatsnatch.WaitlistLog, "second"))
	require.NoError(t, repo.AppendActivity(ctx, "alice", seatsnatch.TradeLog, "other log"))

	entries, err := repo.Activity(ctx, "alice", seatsnatch.WaitlistLog)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// newest first, kinds kept apart
	assert.Contains(t, entries[0], "second")
	assert.Contains(t, entries[1], "first")
}

func TestMemoryUsers(t *testing.T) {
	ctx := context.Background()
	repo := seedMemory(t)

	t.Run("create is idempotent", func(t *testing.T) {
		require.NoError(t, repo.UpdateUserContact(ctx, "alice", "alice@example.edu", ""))
		require.NoError(t, repo.CreateUser(ctx, "alice"))

		user, err := repo.GetUser(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "alice@example.edu", user.Email)
	})

	t.Run("reads return copies", func(t *testing.T) {
		user, err := repo.GetUser(ctx, "alice")
		require.NoError(t, err)
		user.Waitlists = append(user.Waitlists, "41233")

		fresh, err := repo.GetUser(ctx, "alice")
		require.NoError(t, err)
		assert.Empty(t, fresh.Waitlists)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := repo.GetUser(ctx, "mallory")
		assert.ErrorIs(t, err, seatsnatch.ErrNotFound)
	})
}
