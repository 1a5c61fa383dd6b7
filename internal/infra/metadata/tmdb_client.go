package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"release_alert_bot/internal/domain/alert"
	dommeta "release_alert_bot/internal/domain/metadata"

	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
)

const dateLayout = "2006-01-02"

// apiReply carries the raw response through the circuit breaker so a 404
// (a definitive "title removed" answer) is not counted as a failure.
type apiReply struct {
	status int
	body   []byte
}

// TMDBClient implements the metadata Gateway against a TMDB-compatible HTTP
// API. All calls honor the caller's context; a circuit breaker makes a dead
// source fail fast for the remainder of a sweep instead of burning the full
// timeout on every alert.
type TMDBClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	breaker    *gobreaker.CircuitBreaker[apiReply]
	logger     *logrus.Entry
}

func NewTMDBClient(baseURL, apiKey string, timeout time.Duration, logger *logrus.Entry) *TMDBClient {
	c := &TMDBClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		logger:     logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker[apiReply](gobreaker.Settings{
		Name:    "tmdb",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).
				Warn("Metadata gateway circuit breaker state changed")
		},
	})
	return c
}

var _ dommeta.Gateway = (*TMDBClient)(nil)

type searchResponse struct {
	Results []struct {
		ID           int64  `json:"id"`
		MediaType    string `json:"media_type"`
		Title        string `json:"title"`
		Name         string `json:"name"`
		ReleaseDate  string `json:"release_date"`
		FirstAirDate string `json:"first_air_date"`
	} `json:"results"`
}

type movieResponse struct {
	Title       string `json:"title"`
	ReleaseDate string `json:"release_date"`
}

type seriesResponse struct {
	Name             string `json:"name"`
	FirstAirDate     string `json:"first_air_date"`
	NextEpisodeToAir *struct {
		AirDate string `json:"air_date"`
	} `json:"next_episode_to_air"`
}

// Search returns candidates in the source's own relevance order; no re-ranking.
func (c *TMDBClient) Search(ctx context.Context, query string) ([]dommeta.Candidate, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("include_adult", "false")

	reply, err := c.get(ctx, "/search/multi", params)
	if err != nil {
		return nil, err
	}
	if reply.status != http.StatusOK {
		return nil, fmt.Errorf("%w: search returned status %d", dommeta.ErrGatewayUnavailable, reply.status)
	}

	var parsed searchResponse
	if err := json.Unmarshal(reply.body, &parsed); err != nil {
		return nil, fmt.Errorf("error decoding search response: %w", err)
	}

	candidates := make([]dommeta.Candidate, 0, len(parsed.Results))
	for _, res := range parsed.Results {
		var cand dommeta.Candidate
		switch res.MediaType {
		case "movie":
			cand.Kind = alert.KindMovie
			cand.Name = res.Title
			cand.Year = yearOf(res.ReleaseDate)
		case "tv":
			cand.Kind = alert.KindSeries
			cand.Name = res.Name
			cand.Year = yearOf(res.FirstAirDate)
		default:
			continue // people and other media kinds are not trackable
		}
		// The source numbers movies and series independently, so the raw id
		// alone is ambiguous across kinds.
		cand.TitleID = dommeta.QualifyTitleID(cand.Kind, strconv.FormatInt(res.ID, 10))
		candidates = append(candidates, cand)
	}
	return candidates, nil
}

// LookupDate fetches the movie release date or the next-unaired-episode air
// date. A 404 means the source no longer lists the title.
func (c *TMDBClient) LookupDate(ctx context.Context, titleID string, kind alert.TitleKind) (dommeta.DateInfo, error) {
	reply, err := c.get(ctx, detailPath(titleID, kind), nil)
	if err != nil {
		return dommeta.DateInfo{}, err
	}
	switch reply.status {
	case http.StatusOK:
		// fall through to decoding
	case http.StatusNotFound:
		return dommeta.DateInfo{Exists: false}, nil
	default:
		return dommeta.DateInfo{}, fmt.Errorf("%w: lookup returned status %d", dommeta.ErrGatewayUnavailable, reply.status)
	}

	var raw string
	if kind == alert.KindSeries {
		var parsed seriesResponse
		if err := json.Unmarshal(reply.body, &parsed); err != nil {
			return dommeta.DateInfo{}, fmt.Errorf("error decoding series response: %w", err)
		}
		if parsed.NextEpisodeToAir != nil {
			raw = parsed.NextEpisodeToAir.AirDate
		}
	} else {
		var parsed movieResponse
		if err := json.Unmarshal(reply.body, &parsed); err != nil {
			return dommeta.DateInfo{}, fmt.Errorf("error decoding movie response: %w", err)
		}
		raw = parsed.ReleaseDate
	}

	info := dommeta.DateInfo{Exists: true}
	if raw == "" {
		return info, nil // listed, but nothing scheduled
	}
	date, err := time.Parse(dateLayout, raw)
	if err != nil {
		c.logger.WithFields(logrus.Fields{"title_id": titleID, "raw_date": raw}).
			Warn("Metadata source returned unparseable date")
		return info, nil
	}
	info.Date = &date
	return info, nil
}

// Lookup rebuilds a candidate from the title's detail page, used when the
// originally offered search result is no longer at hand.
func (c *TMDBClient) Lookup(ctx context.Context, titleID string, kind alert.TitleKind) (dommeta.Candidate, error) {
	reply, err := c.get(ctx, detailPath(titleID, kind), nil)
	if err != nil {
		return dommeta.Candidate{}, err
	}
	switch reply.status {
	case http.StatusOK:
		// fall through to decoding
	case http.StatusNotFound:
		return dommeta.Candidate{}, dommeta.ErrTitleNotFound
	default:
		return dommeta.Candidate{}, fmt.Errorf("%w: lookup returned status %d", dommeta.ErrGatewayUnavailable, reply.status)
	}

	cand := dommeta.Candidate{TitleID: titleID, Kind: kind}
	if kind == alert.KindSeries {
		var parsed seriesResponse
		if err := json.Unmarshal(reply.body, &parsed); err != nil {
			return dommeta.Candidate{}, fmt.Errorf("error decoding series response: %w", err)
		}
		cand.Name = parsed.Name
		cand.Year = yearOf(parsed.FirstAirDate)
	} else {
		var parsed movieResponse
		if err := json.Unmarshal(reply.body, &parsed); err != nil {
			return dommeta.Candidate{}, fmt.Errorf("error decoding movie response: %w", err)
		}
		cand.Name = parsed.Title
		cand.Year = yearOf(parsed.ReleaseDate)
	}
	return cand, nil
}

// detailPath maps a qualified title id onto the source's own URL space.
func detailPath(titleID string, kind alert.TitleKind) string {
	sourceID := url.PathEscape(dommeta.SourceTitleID(titleID))
	if kind == alert.KindSeries {
		return "/tv/" + sourceID
	}
	return "/movie/" + sourceID
}

func (c *TMDBClient) get(ctx context.Context, path string, params url.Values) (apiReply, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.apiKey)
	reqURL := c.baseURL + path + "?" + params.Encode()

	reply, err := c.breaker.Execute(func() (apiReply, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return apiReply{}, fmt.Errorf("error building gateway request: %w", err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return apiReply{}, fmt.Errorf("%w: %v", dommeta.ErrGatewayUnavailable, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return apiReply{}, fmt.Errorf("%w: reading response: %v", dommeta.ErrGatewayUnavailable, err)
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return apiReply{}, fmt.Errorf("%w: status %d", dommeta.ErrGatewayUnavailable, resp.StatusCode)
		}
		return apiReply{status: resp.StatusCode, body: body}, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return apiReply{}, fmt.Errorf("%w: circuit breaker open", dommeta.ErrGatewayUnavailable)
		}
		return apiReply{}, err
	}
	return reply, nil
}

func yearOf(date string) int {
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return 0
	}
	return t.Year()
}
