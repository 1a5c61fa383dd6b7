package metadata

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"release_alert_bot/internal/domain/alert"
	dommeta "release_alert_bot/internal/domain/metadata"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newTestClient(t *testing.T, handler http.Handler) *TMDBClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewTMDBClient(server.URL, "test-key", 2*time.Second, testLogger())
}

func TestSearchMapsMoviesAndSeries(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search/multi", r.URL.Path)
		require.Equal(t, "test-key", r.URL.Query().Get("api_key"))
		require.Equal(t, "example", r.URL.Query().Get("query"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"results": [
			{"id": 42, "media_type": "movie", "title": "Example Movie", "release_date": "2025-12-01"},
			{"id": 7, "media_type": "tv", "name": "Example Show", "first_air_date": "2019-04-14"},
			{"id": 99, "media_type": "person", "name": "Example Person"}
		]}`)
	}))

	candidates, err := client.Search(context.Background(), "example")
	require.NoError(t, err)
	require.Len(t, candidates, 2, "person results must be dropped")

	assert.Equal(t, "movie-42", candidates[0].TitleID)
	assert.Equal(t, alert.KindMovie, candidates[0].Kind)
	assert.Equal(t, "Example Movie", candidates[0].Name)
	assert.Equal(t, 2025, candidates[0].Year)

	assert.Equal(t, "tv-7", candidates[1].TitleID)
	assert.Equal(t, alert.KindSeries, candidates[1].Kind)
	assert.Equal(t, "Example Show", candidates[1].Name)
	assert.Equal(t, 2019, candidates[1].Year)
}

func TestSearchKeepsSharedSourceIDsDistinct(t *testing.T) {
	// Movies and series are numbered independently at the source, so two
	// results may carry the same id. They must not collapse into one title.
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"results": [
			{"id": 603, "media_type": "movie", "title": "The Matrix", "release_date": "1999-03-30"},
			{"id": 603, "media_type": "tv", "name": "Unrelated Show", "first_air_date": "2011-06-01"}
		]}`)
	}))

	candidates, err := client.Search(context.Background(), "matrix")
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "movie-603", candidates[0].TitleID)
	assert.Equal(t, "tv-603", candidates[1].TitleID)
	assert.NotEqual(t, candidates[0].TitleID, candidates[1].TitleID)
}

func TestLookupDateMovie(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/movie/42", r.URL.Path)
		io.WriteString(w, `{"release_date": "2025-12-01"}`)
	}))

	info, err := client.LookupDate(context.Background(), "movie-42", alert.KindMovie)
	require.NoError(t, err)
	assert.True(t, info.Exists)
	require.NotNil(t, info.Date)
	assert.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), *info.Date)
}

func TestLookupDateSeriesNextEpisode(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tv/7", r.URL.Path)
		io.WriteString(w, `{"next_episode_to_air": {"air_date": "2025-09-14"}}`)
	}))

	info, err := client.LookupDate(context.Background(), "tv-7", alert.KindSeries)
	require.NoError(t, err)
	assert.True(t, info.Exists)
	require.NotNil(t, info.Date)
	assert.Equal(t, time.Date(2025, 9, 14, 0, 0, 0, 0, time.UTC), *info.Date)
}

func TestLookupDateSeriesNothingScheduled(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"next_episode_to_air": null}`)
	}))

	info, err := client.LookupDate(context.Background(), "tv-7", alert.KindSeries)
	require.NoError(t, err)
	assert.True(t, info.Exists)
	assert.Nil(t, info.Date)
}

func TestLookupDateMovieWithoutDate(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"release_date": ""}`)
	}))

	info, err := client.LookupDate(context.Background(), "movie-42", alert.KindMovie)
	require.NoError(t, err)
	assert.True(t, info.Exists)
	assert.Nil(t, info.Date)
}

func TestLookupDateRemovedTitle(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"status_code": 34, "status_message": "The resource you requested could not be found."}`)
	}))

	info, err := client.LookupDate(context.Background(), "movie-42", alert.KindMovie)
	require.NoError(t, err, "removal is a terminal signal, not an error")
	assert.False(t, info.Exists)
	assert.Nil(t, info.Date)
}

func TestLookupDateServerErrorIsGatewayUnavailable(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := client.LookupDate(context.Background(), "movie-42", alert.KindMovie)
	assert.ErrorIs(t, err, dommeta.ErrGatewayUnavailable)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int64
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	for i := 0; i < 8; i++ {
		_, err := client.LookupDate(context.Background(), "movie-42", alert.KindMovie)
		assert.ErrorIs(t, err, dommeta.ErrGatewayUnavailable)
	}

	// After five consecutive failures the breaker is open and later calls
	// fail fast without reaching the server.
	assert.Equal(t, int64(5), hits.Load())
}

func TestLookupRebuildsMovieCandidate(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/movie/42", r.URL.Path)
		io.WriteString(w, `{"title": "Example Movie", "release_date": "2025-12-01"}`)
	}))

	cand, err := client.Lookup(context.Background(), "movie-42", alert.KindMovie)
	require.NoError(t, err)
	assert.Equal(t, "movie-42", cand.TitleID)
	assert.Equal(t, alert.KindMovie, cand.Kind)
	assert.Equal(t, "Example Movie", cand.Name)
	assert.Equal(t, 2025, cand.Year)
}

func TestLookupRebuildsSeriesCandidate(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tv/7", r.URL.Path)
		io.WriteString(w, `{"name": "Example Show", "first_air_date": "2019-04-14"}`)
	}))

	cand, err := client.Lookup(context.Background(), "tv-7", alert.KindSeries)
	require.NoError(t, err)
	assert.Equal(t, "tv-7", cand.TitleID)
	assert.Equal(t, alert.KindSeries, cand.Kind)
	assert.Equal(t, "Example Show", cand.Name)
	assert.Equal(t, 2019, cand.Year)
}

func TestLookupRemovedTitle(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.Lookup(context.Background(), "movie-42", alert.KindMovie)
	assert.ErrorIs(t, err, dommeta.ErrTitleNotFound)
}
