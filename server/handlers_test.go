package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	seatsnatch "github.com/snatchapp/Seat-Snatch-Go"
	"github.com/snatchapp/Seat-Snatch-Go/monitor"
	"github.com/snatchapp/Seat-Snatch-Go/notify"
	"github.com/snatchapp/Seat-Snatch-Go/repository"
	"github.com/snatchapp/Seat-Snatch-Go/trade"
	"github.com/snatchapp/Seat-Snatch-Go/waitlist"
)

type staticSource map[string]seatsnatch.Counts

func (s staticSource) SectionCounts(ctx context.Context, classid string) (seatsnatch.Counts, error) {
	counts, ok := s[classid]
	if !ok {
		return seatsnatch.Counts{}, seatsnatch.ErrUpstreamUnavailable
	}
	return counts, nil
}

func (s staticSource) CourseCounts(ctx context.Context, courseid string) (map[string]seatsnatch.Counts, error) {
	return s, nil
}

func newTestServer(t *testing.T, repo *repository.Memory, source staticSource) Server {
	t.Helper()

	metrics := seatsnatch.NewMetrics()
	dispatcher := notify.NewDispatcher(repo, metrics, zerolog.Nop())
	mon := monitor.New(repo, source, dispatcher, time.Minute, metrics, zerolog.Nop())
	wl := waitlist.NewService(repo, 8, zerolog.Nop())
	matcher := trade.NewMatcher(repo, zerolog.Nop())

	return NewServer(":0", repo, wl, matcher, mon, NewRemoteUserAuth(), metrics, zerolog.Nop())
}

func seed(t *testing.T) *repository.Memory {
	t.Helper()
	ctx := context.Background()
	repo := repository.NewMemory()

	require.NoError(t, repo.UpsertCourse(ctx, seatsnatch.Course{ID: "002051", DisplayName: "COS333", Title: "Advanced Programming Techniques"}))
	require.NoError(t, repo.UpsertSection(ctx, seatsnatch.Section{ClassID: "40268", CourseID: "002051", Name: "L01", Enrollment: 20, Capacity: 20}))
	require.NoError(t, repo.UpsertSection(ctx, seatsnatch.Section{ClassID: "40269", CourseID: "002051", Name: "L02", Enrollment: 20, Capacity: 20}))
	return repo
}

func doRequest(h httprouter.Handle, method, target, netid, body string, params ...httprouter.Param) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if netid != "" {
		req.Header.Set("X-Remote-User", netid)
	}
	rec := httptest.NewRecorder()
	h(rec, req, httprouter.Params(params))
	return rec
}

func result(t *testing.T, rec *httptest.ResponseRecorder) resultResponse {
	t.Helper()
	var res resultResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func TestPing(t *testing.T) {
	s := newTestServer(t, seed(t), staticSource{})
	rec := doRequest(s.pingHandler(), "GET", "/ping", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
}

func TestSubscribeHandler(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		repo := seed(t)
		s := newTestServer(t, repo, staticSource{"40268": {Enrollment: 20, Capacity: 20}})

		rec := doRequest(s.subscribeHandler(), "PUT", "/waitlist/40268", "Alice", "",
			httprouter.Param{Key: "classid", Value: "40268"})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, result(t, rec).IsSuccess)

		// the identity is normalized and the user created on first sight
		queue, err := repo.Waitlist(context.Background(), "40268")
		require.NoError(t, err)
		assert.Equal(t, []string{"alice"}, queue)
	})

	t.Run("an open section is a failed result, not an error status", func(t *testing.T) {
		repo := seed(t)
		s := newTestServer(t, repo, staticSource{"40268": {Enrollment: 15, Capacity: 20}})

		rec := doRequest(s.subscribeHandler(), "PUT", "/waitlist/40268", "alice", "",
			httprouter.Param{Key: "classid", Value: "40268"})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, result(t, rec).IsSuccess)
	})

	t.Run("missing identity", func(t *testing.T) {
		s := newTestServer(t, seed(t), staticSource{})

		rec := doRequest(s.subscribeHandler(), "PUT", "/waitlist/40268", "", "",
			httprouter.Param{Key: "classid", Value: "40268"})

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown section", func(t *testing.T) {
		s := newTestServer(t, seed(t), staticSource{})

		rec := doRequest(s.subscribeHandler(), "PUT", "/waitlist/99999", "alice", "",
			httprouter.Param{Key: "classid", Value: "99999"})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, result(t, rec).IsSuccess)
	})
}

func TestUnsubscribeHandler(t *testing.T) {
	repo := seed(t)
	s := newTestServer(t, repo, staticSource{"40268": {Enrollment: 20, Capacity: 20}})

	rec := doRequest(s.subscribeHandler(), "PUT", "/waitlist/40268", "alice", "",
		httprouter.Param{Key: "classid", Value: "40268"})
	require.True(t, result(t, rec).IsSuccess)

	rec = doRequest(s.unsubscribeHandler(), "DELETE", "/waitlist/40268", "alice", "",
		httprouter.Param{Key: "classid", Value: "40268"})
	assert.True(t, result(t, rec).IsSuccess)

	rec = doRequest(s.unsubscribeHandler(), "DELETE", "/waitlist/40268", "alice", "",
		httprouter.Param{Key: "classid", Value: "40268"})
	assert.False(t, result(t, rec).IsSuccess)
}

func TestMatchesHandler(t *testing.T) {
	ctx := context.Background()
	repo := seed(t)
	s := newTestServer(t, repo, staticSource{})

	require.NoError(t, repo.CreateUser(ctx, "alice"))
	require.NoError(t, repo.CreateUser(ctx, "bob"))
	require.NoError(t, repo.UpdateUserContact(ctx, "bob", "bob@example.edu", ""))
	require.NoError(t, repo.SetCurrentSection(ctx, "alice", "002051", "40268"))
	require.NoError(t, repo.AddSubscription(ctx, "alice", "40269"))
	require.NoError(t, repo.SetCurrentSection(ctx, "bob", "002051", "40269"))
	require.NoError(t, repo.AddSubscription(ctx, "bob", "40268"))

	rec := doRequest(s.matchesHandler(), "GET", "/matches/002051", "alice", "",
		httprouter.Param{Key: "courseid", Value: "002051"})
	assert.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		Data [][]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, [][]string{{"bob", "L02", "bob@example.edu"}}, res.Data)

	// without a current section the dashboard shows an empty table
	rec = doRequest(s.matchesHandler(), "GET", "/matches/002051", "carol", "",
		httprouter.Param{Key: "courseid", Value: "002051"})
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Empty(t, res.Data)
}

func TestUserContactHandler(t *testing.T) {
	repo := seed(t)
	s := newTestServer(t, repo, staticSource{})

	rec := doRequest(s.userContactHandler(), "PUT", "/user/contact", "alice",
		`{"email":"alice@example.edu","phone":"+15550100"}`)
	assert.True(t, result(t, rec).IsSuccess)

	user, err := repo.GetUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.edu", user.Email)
	assert.Equal(t, "+15550100", user.Phone)

	rec = doRequest(s.userContactHandler(), "PUT", "/user/contact", "alice", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAutoResubHandler(t *testing.T) {
	repo := seed(t)
	s := newTestServer(t, repo, staticSource{})

	rec := doRequest(s.autoResubHandler(), "PUT", "/user/autoresub", "alice", `{"enabled":true}`)
	assert.True(t, result(t, rec).IsSuccess)

	user, err := repo.GetUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, user.AutoResub)
}

func TestActivityHandler(t *testing.T) {
	ctx := context.Background()
	repo := seed(t)
	s := newTestServer(t, repo, staticSource{})

	require.NoError(t, repo.CreateUser(ctx, "alice"))
	require.NoError(t, repo.AppendActivity(ctx, "alice", seatsnatch.WaitlistLog, "Subscribed to COS333 L01"))

	rec := doRequest(s.activityHandler(), "GET", "/user/activity/waitlist", "alice", "",
		httprouter.Param{Key: "kind", Value: "waitlist"})
	assert.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		Data []string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Data, 1)
	assert.Contains(t, res.Data[0], "Subscribed to COS333 L01")

	rec = doRequest(s.activityHandler(), "GET", "/user/activity/bogus", "alice", "",
		httprouter.Param{Key: "kind", Value: "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerHandler(t *testing.T) {
	ctx := context.Background()
	repo := seed(t)
	s := newTestServer(t, repo, staticSource{"40268": {Enrollment: 18, Capacity: 20}})

	require.NoError(t, repo.CreateUser(ctx, "alice"))
	require.NoError(t, repo.AddSubscription(ctx, "alice", "40268"))

	rec := doRequest(s.triggerHandler(), "GET", "/trigger", "", "")
	assert.True(t, result(t, rec).IsSuccess)

	// the sweep refreshed the stored counts
	section, err := repo.GetSection(ctx, "40268")
	require.NoError(t, err)
	assert.Equal(t, 18, section.Enrollment)
}

func TestStatusHandler(t *testing.T) {
	ctx := context.Background()
	repo := seed(t)
	s := newTestServer(t, repo, staticSource{})

	require.NoError(t, repo.SetTerm(ctx, "1244", "Spring 2026"))

	rec := doRequest(s.statusHandler(), "GET", "/status", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		Term     map[string]string `json:"term"`
		Counters map[string]int64  `json:"counters"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "1244", res.Term["code"])
	assert.Contains(t, res.Counters, "sections_polled")
}
