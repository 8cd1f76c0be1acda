package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reliefgrid/reliefgrid/internal/config"
	"github.com/reliefgrid/reliefgrid/internal/models"
)

const twitterSearchURL = "https://api.twitter.com/2/tweets/search/recent"

var (
	criticalWords = []string{"trapped", "dying", "urgent", "critical", "sos", "life threatening"}
	highWords     = []string{"help needed", "rescue", "emergency", "injured", "flood", "earthquake"}
)

type tweetPlace struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Geo      struct {
		BBox []float64 `json:"bbox"`
	} `json:"geo"`
}

type tweet struct {
	ID            string         `json:"id"`
	Text          string         `json:"text"`
	AuthorID      string         `json:"author_id"`
	CreatedAt     string         `json:"created_at"`
	PublicMetrics map[string]int `json:"public_metrics"`
	Geo           struct {
		PlaceID     string `json:"place_id"`
		Coordinates struct {
			Coordinates []float64 `json:"coordinates"` // [lon, lat]
		} `json:"coordinates"`
	} `json:"geo"`
}

type twitterResponse struct {
	Data     []tweet `json:"data"`
	Includes struct {
		Places []tweetPlace `json:"places"`
	} `json:"includes"`
	Meta struct {
		NewestID string `json:"newest_id"`
	} `json:"meta"`
}

// SocialAdapter polls the Twitter/X recent-search API for SOS keywords.
// It needs a paid bearer token; without one it generates mock signals.
type SocialAdapter struct {
	client      *http.Client
	bearerToken string
	keywords    []string
	maxResults  int
	interval    time.Duration
	mock        *MockGenerator

	mu      sync.Mutex
	sinceID string
}

func NewSocialAdapter(cfg config.IngestionConfig, mock *MockGenerator) *SocialAdapter {
	maxResults := cfg.MaxEventsPerPoll
	if maxResults > 100 {
		maxResults = 100
	}
	return &SocialAdapter{
		client:      &http.Client{Timeout: 20 * time.Second},
		bearerToken: cfg.SocialBearerToken,
		keywords:    cfg.SocialKeywords,
		maxResults:  maxResults,
		interval:    cfg.SocialPollInterval,
		mock:        mock,
	}
}

func (a *SocialAdapter) Name() string { return SourceSocial }

func (a *SocialAdapter) Descriptor() models.Source {
	return models.Source{
		SourceName:   SourceSocial,
		SourceType:   "api",
		BaseURL:      "https://api.twitter.com/2",
		IsActive:     true,
		PollInterval: a.interval,
	}
}

func (a *SocialAdapter) Interval() time.Duration { return a.interval }

func (a *SocialAdapter) Poll(ctx context.Context) (Batch, error) {
	if a.bearerToken == "" {
		slog.Info("no TWITTER_BEARER_TOKEN, using mock social SOS data")
		return Batch{Events: a.mock.SocialSignals()}, nil
	}

	tweets, places, err := a.searchRecent(ctx)
	if err != nil {
		slog.Warn("twitter api failed, falling back to mock data", "error", err)
		return Batch{Events: a.mock.SocialSignals()}, nil
	}
	return Batch{Events: a.toEvents(tweets, places)}, nil
}

func (a *SocialAdapter) searchRecent(ctx context.Context) ([]tweet, map[string]tweetPlace, error) {
	quoted := make([]string, len(a.keywords))
	for i, kw := range a.keywords {
		quoted[i] = strconv.Quote(kw)
	}
	query := strings.Join(quoted, " OR ") + " -is:retweet lang:en"

	q := url.Values{}
	q.Set("query", query)
	q.Set("max_results", strconv.Itoa(a.maxResults))
	q.Set("tweet.fields", "created_at,geo,text,author_id,public_metrics")
	q.Set("expansions", "geo.place_id")
	q.Set("place.fields", "full_name,geo,country")
	a.mu.Lock()
	if a.sinceID != "" {
		q.Set("since_id", a.sinceID)
	}
	a.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, twitterSearchURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.bearerToken)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		slog.Warn("twitter rate limit hit, will retry next cycle")
		return nil, nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	var data twitterResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, nil, fmt.Errorf("error decoding resp.Body: %w", err)
	}

	if data.Meta.NewestID != "" {
		a.mu.Lock()
		a.sinceID = data.Meta.NewestID
		a.mu.Unlock()
	}

	places := make(map[string]tweetPlace, len(data.Includes.Places))
	for _, p := range data.Includes.Places {
		places[p.ID] = p
	}
	return data.Data, places, nil
}

func (a *SocialAdapter) toEvents(tweets []tweet, places map[string]tweetPlace) []models.IngestedEvent {
	now := time.Now().UTC()

	events := make([]models.IngestedEvent, 0, len(tweets))
	for _, tw := range tweets {
		lat, lon, locationName := extractTweetLocation(tw, places)

		title := "Social SOS: " + tw.Text
		if len(tw.Text) > 80 {
			title = "Social SOS: " + tw.Text[:80] + "..."
		}

		metrics := make(map[string]any, len(tw.PublicMetrics))
		for k, v := range tw.PublicMetrics {
			metrics[k] = v
		}

		events = append(events, models.IngestedEvent{
			ID:           uuid.NewString(),
			ExternalID:   "twitter-" + tw.ID,
			EventType:    models.EventSocialSOS,
			Title:        title,
			Description:  tw.Text,
			Severity:     socialTextSeverity(tw.Text),
			Latitude:     lat,
			Longitude:    lon,
			LocationName: locationName,
			RawPayload: map[string]any{
				"tweet_id":       tw.ID,
				"author_id":      tw.AuthorID,
				"created_at":     tw.CreatedAt,
				"text":           tw.Text,
				"public_metrics": metrics,
			},
			IngestedAt: now,
		})
	}
	return events
}

// extractTweetLocation pulls exact coordinates when tagged, otherwise
// the tagged place's bounding-box center.
func extractTweetLocation(tw tweet, places map[string]tweetPlace) (*float64, *float64, string) {
	if coords := tw.Geo.Coordinates.Coordinates; len(coords) == 2 {
		lat, lon := coords[1], coords[0]
		return &lat, &lon, ""
	}
	if place, ok := places[tw.Geo.PlaceID]; ok {
		if bbox := place.Geo.BBox; len(bbox) == 4 {
			lat := (bbox[1] + bbox[3]) / 2
			lon := (bbox[0] + bbox[2]) / 2
			return &lat, &lon, place.FullName
		}
	}
	return nil, nil, ""
}

// socialTextSeverity scores a post by keyword density.
func socialTextSeverity(text string) models.Severity {
	lower := strings.ToLower(text)
	critical, high := 0, 0
	for _, w := range criticalWords {
		if strings.Contains(lower, w) {
			critical++
		}
	}
	for _, w := range highWords {
		if strings.Contains(lower, w) {
			high++
		}
	}
	switch {
	case critical >= 2:
		return models.SeverityCritical
	case critical >= 1 || high >= 2:
		return models.SeverityHigh
	case high >= 1:
		return models.SeverityMedium
	}
	return models.SeverityLow
}
