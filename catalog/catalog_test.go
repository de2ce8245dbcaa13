package catalog_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snatchapp/Seat-Snatch-Go/catalog"
	"github.com/snatchapp/Seat-Snatch-Go/config"
	"github.com/snatchapp/Seat-Snatch-Go/registrar"
	"github.com/snatchapp/Seat-Snatch-Go/repository"
)

func fakeRegistrar(t *testing.T) *httptest.Server {
	t.Helper()
	router := httprouter.New()

	router.GET("/terms", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Write([]byte(`{"terms":[{"code":"1244","name":"Spring 2026","current":true}]}`))
	})
	router.GET("/terms/:term/subjects", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Write([]byte(`{"subjects":["COS"]}`))
	})
	router.GET("/terms/:term/subjects/:subject/courses", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Write([]byte(`{"courses":[{
			"course_id":"002051",
			"subject":"COS",
			"catalog_number":"333",
			"title":"Advanced Programming Techniques",
			"seat_reservations":"N",
			"crosslistings":[{"subject":"ECE","catalog_number":"333"}],
			"classes":[
				{"class_number":"40268","section":"L01","type_name":"Lecture","enrollment":18,"capacity":20},
				{"class_number":"40298","section":"L99","type_name":"Lecture","enrollment":0,"capacity":999},
				{"class_number":"40299","section":"P01","type_name":"Precept","enrollment":0,"capacity":0}
			]}]}`))
	})

	return httptest.NewServer(router)
}

func TestRefresh(t *testing.T) {
	ts := fakeRegistrar(t)
	defer ts.Close()

	ctx := context.Background()
	repo := repository.NewMemory()
	client := registrar.NewClient(config.Registrar{BaseURL: ts.URL, Timeout: time.Second})
	loader := catalog.NewLoader(repo, client, zerolog.Nop())

	require.NoError(t, loader.Refresh(ctx))

	code, name, err := repo.Term(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1244", code)
	assert.Equal(t, "Spring 2026", name)

	course, err := repo.GetCourse(ctx, "002051")
	require.NoError(t, err)
	assert.Equal(t, "COS333/ECE333", course.DisplayName)
	assert.False(t, course.HasReservedSeats)

	section, err := repo.GetSection(ctx, "40268")
	require.NoError(t, err)
	assert.Equal(t, "L01", section.Name)
	assert.Equal(t, 18, section.Enrollment)

	// placeholder and zero-capacity sections are skipped
	sections, err := repo.SectionsInCourse(ctx, "002051")
	require.NoError(t, err)
	assert.Len(t, sections, 1)
}

func TestRefreshPreservesWaitlistState(t *testing.T) {
	ts := fakeRegistrar(t)
	defer ts.Close()

	ctx := context.Background()
	repo := repository.NewMemory()
	client := registrar.NewClient(config.Registrar{BaseURL: ts.URL, Timeout: time.Second})
	loader := catalog.NewLoader(repo, client, zerolog.Nop())

	require.NoError(t, loader.Refresh(ctx))
	require.NoError(t, repo.CreateUser(ctx, "alice"))
	require.NoError(t, repo.AddSubscription(ctx, "alice", "40268"))
	require.NoError(t, repo.SetPrevEnrollment(ctx, "40268", 18))

	require.NoError(t, loader.Refresh(ctx))

	queue, err := repo.Waitlist(ctx, "40268")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, queue)

	section, err := repo.GetSection(ctx, "40268")
	require.NoError(t, err)
	assert.Equal(t, 18, section.PrevEnrollment)
}
