package notify_test

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	seatsnatch "github.com/snatchapp/Seat-Snatch-Go"
	"github.com/snatchapp/Seat-Snatch-Go/notify"
	"github.com/snatchapp/Seat-Snatch-Go/repository"
)

// fakeChannel records delivered notices; netids listed in failFor report
// delivery failure.
type fakeChannel struct {
	mu      sync.Mutex
	name    string
	notices []seatsnatch.Notice
	failFor map[string]bool
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Send(ctx context.Context, notice seatsnatch.Notice) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failFor[notice.User.NetID] {
		return false
	}
	f.notices = append(f.notices, notice)
	return true
}

func (f *fakeChannel) delivered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	netids := make([]string, 0, len(f.notices))
	for _, notice := range f.notices {
		netids = append(netids, notice.User.NetID)
	}
	return netids
}

func seed(t *testing.T) *repository.Memory {
	t.Helper()
	ctx := context.Background()
	repo := repository.NewMemory()

	require.NoError(t, repo.UpsertCourse(ctx, seatsnatch.Course{ID: "002051", DisplayName: "COS333", Title: "Advanced Programming Techniques"}))
	require.NoError(t, repo.UpsertSection(ctx, seatsnatch.Section{ClassID: "40268", CourseID: "002051", Name: "L01", Enrollment: 18, Capacity: 20}))

	require.NoError(t, repo.CreateUser(ctx, "alice"))
	require.NoError(t, repo.UpdateUserContact(ctx, "alice", "alice@example.edu", ""))
	require.NoError(t, repo.CreateUser(ctx, "bob"))
	require.NoError(t, repo.UpdateUserContact(ctx, "bob", "bob@example.edu", ""))
	require.NoError(t, repo.SetAutoResub(ctx, "bob", true))
	return repo
}

func TestNotify(t *testing.T) {
	ctx := context.Background()

	t.Run("every subscriber is notified", func(t *testing.T) {
		repo := seed(t)
		require.NoError(t, repo.AddSubscription(ctx, "alice", "40268"))
		require.NoError(t, repo.AddSubscription(ctx, "bob", "40268"))

		channel := &fakeChannel{name: "fake"}
		dispatcher := notify.NewDispatcher(repo, seatsnatch.NewMetrics(), zerolog.Nop(), channel)

		require.NoError(t, dispatcher.Notify(ctx, "40268", 2))
		assert.Equal(t, []string{"alice", "bob"}, channel.delivered())
	})

	t.Run("delivery removes subscribers without auto-resubscribe", func(t *testing.T) {
		repo := seed(t)
		require.NoError(t, repo.AddSubscription(ctx, "alice", "40268"))
		require.NoError(t, repo.AddSubscription(ctx, "bob", "40268"))

		channel := &fakeChannel{name: "fake"}
		dispatcher := notify.NewDispatcher(repo, seatsnatch.NewMetrics(), zerolog.Nop(), channel)

		require.NoError(t, dispatcher.Notify(ctx, "40268", 2))

		queue, err := repo.Waitlist(ctx, "40268")
		require.NoError(t, err)
		assert.Equal(t, []string{"bob"}, queue)

		alice, err := repo.GetUser(ctx, "alice")
		require.NoError(t, err)
		assert.False(t, alice.Subscribed("40268"))
	})

	t.Run("notices carry the resubscribe flag", func(t *testing.T) {
		repo := seed(t)
		require.NoError(t, repo.AddSubscription(ctx, "alice", "40268"))
		require.NoError(t, repo.AddSubscription(ctx, "bob", "40268"))

		channel := &fakeChannel{name: "fake"}
		dispatcher := notify.NewDispatcher(repo, seatsnatch.NewMetrics(), zerolog.Nop(), channel)

		require.NoError(t, dispatcher.Notify(ctx, "40268", 2))

		require.Len(t, channel.notices, 2)
		assert.False(t, channel.notices[0].Resubbed)
		assert.True(t, channel.notices[1].Resubbed)
		assert.Equal(t, 2, channel.notices[0].Slots)
	})

	t.Run("one failed delivery does not block the rest", func(t *testing.T) {
		repo := seed(t)
		require.NoError(t, repo.AddSubscription(ctx, "alice", "40268"))
		require.NoError(t, repo.AddSubscription(ctx, "bob", "40268"))

		metrics := seatsnatch.NewMetrics()
		channel := &fakeChannel{name: "fake", failFor: map[string]bool{"alice": true}}
		dispatcher := notify.NewDispatcher(repo, metrics, zerolog.Nop(), channel)

		err := dispatcher.Notify(ctx, "40268", 2)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 of 2 notifications failed")

		assert.Equal(t, []string{"bob"}, channel.delivered())
		assert.Equal(t, int64(1), metrics.SendFailures.Load())

		// removal is coupled with the attempt, not its outcome
		alice, err := repo.GetUser(ctx, "alice")
		require.NoError(t, err)
		assert.False(t, alice.Subscribed("40268"))
	})

	t.Run("an empty waitlist is a no-op", func(t *testing.T) {
		repo := seed(t)
		channel := &fakeChannel{name: "fake"}
		dispatcher := notify.NewDispatcher(repo, seatsnatch.NewMetrics(), zerolog.Nop(), channel)

		require.NoError(t, dispatcher.Notify(ctx, "40268", 2))
		assert.Empty(t, channel.delivered())
	})

	t.Run("activity is recorded per subscriber", func(t *testing.T) {
		repo := seed(t)
		require.NoError(t, repo.AddSubscription(ctx, "alice", "40268"))

		channel := &fakeChannel{name: "fake"}
		dispatcher := notify.NewDispatcher(repo, seatsnatch.NewMetrics(), zerolog.Nop(), channel)

		require.NoError(t, dispatcher.Notify(ctx, "40268", 2))

		entries, err := repo.Activity(ctx, "alice", seatsnatch.WaitlistLog)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Contains(t, entries[0], "2 spots available in COS333 L01")
	})
}
