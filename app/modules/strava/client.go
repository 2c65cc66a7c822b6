package strava

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	routedomain "github.com/km-mtb/kmtb-bot/app/modules/route/domain"
	verificationdomain "github.com/km-mtb/kmtb-bot/app/modules/verification/domain"
)

const listPageSize = 30

// Client talks to the Strava API. Safe for concurrent use; every request
// waits on the shared rate limiter first.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a Client. requestsPerMinute bounds the whole
// application's call rate against the shared Strava quota.
func NewClient(httpClient *http.Client, requestsPerMinute int, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if requestsPerMinute <= 0 {
		requestsPerMinute = 100
	}
	return &Client{
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), requestsPerMinute/10+1),
		baseURL:    DefaultBaseURL,
		logger:     logger,
	}
}

// WithBaseURL overrides the API root. Used by tests.
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = base
	return c
}

// ListRidesAfter returns all Ride activities that started strictly after the
// given instant, oldest first, walking the paginated listing until a short
// page is returned.
func (c *Client) ListRidesAfter(ctx context.Context, accessToken string, after time.Time) ([]Activity, error) {
	var rides []Activity

	for page := 1; ; page++ {
		q := url.Values{
			"after":    {strconv.FormatInt(after.Unix(), 10)},
			"page":     {strconv.Itoa(page)},
			"per_page": {strconv.Itoa(listPageSize)},
		}

		var batch []Activity
		if err := c.getJSON(ctx, accessToken, "/athlete/activities?"+q.Encode(), &batch); err != nil {
			return nil, err
		}

		for _, a := range batch {
			if a.Type == rideType {
				rides = append(rides, a)
			}
		}

		if len(batch) < listPageSize {
			break
		}
	}

	return rides, nil
}

// ActivityStreams downloads the GPS trace for one activity.
func (c *Client) ActivityStreams(ctx context.Context, accessToken string, activityID int64) (routedomain.Polyline, error) {
	path := fmt.Sprintf("/activities/%d/streams?keys=latlng&key_by_type=true", activityID)

	var streams streamSet
	if err := c.getJSON(ctx, accessToken, path, &streams); err != nil {
		return nil, err
	}
	return streams.polyline(), nil
}

func (c *Client) getJSON(ctx context.Context, accessToken, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return verificationdomain.Classify(verificationdomain.KindTransientAPI, "rate limiter wait", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return verificationdomain.Classify(verificationdomain.KindData, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return verificationdomain.Classify(verificationdomain.KindTransientAPI, "strava request", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode, path); err != nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return verificationdomain.Classify(verificationdomain.KindData, "decode "+path, err)
	}
	return nil
}

// classifyStatus maps an HTTP status to the engine's error taxonomy.
// 429 carries the rate-limit sentinel so a pass can apply its global backoff.
func classifyStatus(status int, path string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return verificationdomain.Classify(verificationdomain.KindTransientAPI, path,
			fmt.Errorf("status 429: %w", verificationdomain.ErrRateLimited))
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return verificationdomain.Classify(verificationdomain.KindAuth, path,
			fmt.Errorf("status %d", status))
	case status == http.StatusNotFound:
		return verificationdomain.Classify(verificationdomain.KindData, path,
			fmt.Errorf("status %d", status))
	case status >= 500:
		return verificationdomain.Classify(verificationdomain.KindTransientAPI, path,
			fmt.Errorf("status %d", status))
	default:
		return verificationdomain.Classify(verificationdomain.KindData, path,
			fmt.Errorf("unexpected status %d", status))
	}
}
