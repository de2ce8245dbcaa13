package registrar_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	seatsnatch "github.com/snatchapp/Seat-Snatch-Go"
	"github.com/snatchapp/Seat-Snatch-Go/config"
	"github.com/snatchapp/Seat-Snatch-Go/registrar"
)

func newClient(baseURL string) registrar.Client {
	return registrar.NewClient(config.Registrar{BaseURL: baseURL, Token: "secret", Timeout: time.Second})
}

func TestSectionCounts(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/classes/40268", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Write([]byte(`{"class_number":"40268","section":"L01","enrollment":18,"capacity":20}`))
	}))
	defer ts.Close()

	counts, err := newClient(ts.URL).SectionCounts(context.Background(), "40268")
	require.NoError(t, err)
	assert.Equal(t, seatsnatch.Counts{Enrollment: 18, Capacity: 20}, counts)
}

func TestCourseCounts(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/courses/002051/classes", r.URL.Path)
		w.Write([]byte(`{"classes":[
			{"class_number":"40268","enrollment":18,"capacity":20},
			{"class_number":"40269","enrollment":5,"capacity":20}
		]}`))
	}))
	defer ts.Close()

	counts, err := newClient(ts.URL).CourseCounts(context.Background(), "002051")
	require.NoError(t, err)
	assert.Equal(t, map[string]seatsnatch.Counts{
		"40268": {Enrollment: 18, Capacity: 20},
		"40269": {Enrollment: 5, Capacity: 20},
	}, counts)
}

func TestCurrentTerm(t *testing.T) {
	t.Run("picks the term marked current", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"terms":[
				{"code":"1242","name":"Fall 2025","current":false},
				{"code":"1244","name":"Spring 2026","current":true}
			]}`))
		}))
		defer ts.Close()

		code, name, err := newClient(ts.URL).CurrentTerm(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "1244", code)
		assert.Equal(t, "Spring 2026", name)
	})

	t.Run("no current term is an upstream fault", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"terms":[]}`))
		}))
		defer ts.Close()

		_, _, err := newClient(ts.URL).CurrentTerm(context.Background())
		assert.ErrorIs(t, err, seatsnatch.ErrUpstreamUnavailable)
	})
}

func TestErrorMapping(t *testing.T) {
	t.Run("non-200 status", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer ts.Close()

		_, err := newClient(ts.URL).SectionCounts(context.Background(), "40268")
		assert.ErrorIs(t, err, seatsnatch.ErrUpstreamUnavailable)
	})

	t.Run("malformed body", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>maintenance</html>"))
		}))
		defer ts.Close()

		_, err := newClient(ts.URL).SectionCounts(context.Background(), "40268")
		assert.ErrorIs(t, err, seatsnatch.ErrUpstreamUnavailable)
	})

	t.Run("unreachable host", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		ts.Close()

		_, err := newClient(ts.URL).SectionCounts(context.Background(), "40268")
		assert.ErrorIs(t, err, seatsnatch.ErrUpstreamUnavailable)
	})
}
