package diseasesh

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

	"github.com/cenkalti/backoff/v4"
	"github.com/couchcryptid/outbreak-dashboard/internal/config"
	"github.com/couchcryptid/outbreak-dashboard/internal/domain"
	"github.com/couchcryptid/outbreak-dashboard/internal/observability"
	"golang.org/x/time/rate"
)

// Query labels used in errors, logs, and metrics.
const (
	QuerySummary    = domain.QuerySummary
	QueryCountries  = domain.QueryCountries
	QueryHistorical = domain.QueryHistorical
)

// Client implements domain.DataSource using the disease.sh v3 COVID-19 API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	newBackOff func() backoff.BackOff
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an upstream client from the UPSTREAM_* settings.
func NewClient(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL: cfg.UpstreamBaseURL,
		httpClient: &http.Client{
			Timeout: cfg.UpstreamTimeout,
		},
		limiter:    rate.NewLimiter(rate.Limit(cfg.UpstreamRateLimit), 1),
		maxRetries: cfg.UpstreamMaxRetries,
		metrics:    metrics,
		logger:     logger,
	}
}

// StatusError is a non-200 upstream response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("disease.sh API error: status %d: %s", e.Code, e.Body)
}

// Summary fetches the worldwide snapshot or a single country's snapshot.
func (c *Client) Summary(ctx context.Context, region string) (domain.Summary, error) {
	u := c.baseURL + "/all"
	if region != domain.RegionWorldwide {
		u = fmt.Sprintf("%s/countries/%s?%s", c.baseURL, url.PathEscape(region),
			url.Values{"strict": {"true"}}.Encode())
	}

	var resp snapshot
	if err := c.getJSON(ctx, QuerySummary, u, &resp); err != nil {
		return domain.Summary{}, err
	}

	return domain.Summary{
		Region:      region,
		Metrics:     resp.metrics(),
		Coordinates: resp.coordinates(),
		Updated:     resp.updated(),
	}, nil
}

// Countries fetches every country's snapshot in upstream order.
func (c *Client) Countries(ctx context.Context) ([]domain.CountryRecord, error) {
	var resp []snapshot
	if err := c.getJSON(ctx, QueryCountries, c.baseURL+"/countries", &resp); err != nil {
		return nil, err
	}

	records := make([]domain.CountryRecord, 0, len(resp))
	for _, s := range resp {
		r := domain.CountryRecord{
			Name:        s.Country,
			Metrics:     s.metrics(),
			Coordinates: s.coordinates(),
		}
		if s.CountryInfo != nil {
			r.RegionCode = s.CountryInfo.ISO2
		}
		records = append(records, r)
	}
	return records, nil
}

// Historical fetches the cumulative worldwide timeline for the trailing lastDays days.
func (c *Client) Historical(ctx context.Context, lastDays int) (domain.Timeline, error) {
	params := url.Values{"lastdays": {strconv.Itoa(lastDays)}}
	u := c.baseURL + "/historical/all?" + params.Encode()

	var tl domain.Timeline
	if err := c.getJSON(ctx, QueryHistorical, u, &tl); err != nil {
		return domain.Timeline{}, err
	}
	return tl, nil
}

// getJSON performs a throttled GET with retries and decodes the body into out.
// Client errors (4xx) and undecodable bodies are not retried.
func (c *Client) getJSON(ctx context.Context, query, fullURL string, out any) error {
	start := time.Now()

	op := func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		return c.doRequest(ctx, fullURL, out)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(c.backOff(), uint64(c.maxRetries)), ctx)
	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		c.metrics.UpstreamRetries.WithLabelValues(query).Inc()
		c.logger.Warn("upstream request failed, retrying",
			"query", query,
			"wait", wait,
			"error", err,
		)
	})

	c.metrics.UpstreamDuration.WithLabelValues(query).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.UpstreamRequests.WithLabelValues(query, "error").Inc()
		return fmt.Errorf("%s request: %w", query, err)
	}
	c.metrics.UpstreamRequests.WithLabelValues(query, "success").Inc()
	return nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := &StatusError{Code: resp.StatusCode, Body: string(body)}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return backoff.Permanent(statusErr)
		}
		return statusErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (c *Client) backOff() backoff.BackOff {
	if c.newBackOff != nil {
		return c.newBackOff()
	}
	// Start at 200ms, cap at 2s; the per-request timeout bounds the total.
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}

// disease.sh API response types.

type snapshot struct {
	Updated        int64        `json:"updated"` // unix millis
	Country        string       `json:"country"`
	CountryInfo    *countryInfo `json:"countryInfo"`
	Cases          *int64       `json:"cases"`
	TodayCases     *int64       `json:"todayCases"`
	Recovered      *int64       `json:"recovered"`
	TodayRecovered *int64       `json:"todayRecovered"`
	Deaths         *int64       `json:"deaths"`
	TodayDeaths    *int64       `json:"todayDeaths"`
}

type countryInfo struct {
	ISO2 string   `json:"iso2"`
	ISO3 string   `json:"iso3"`
	Lat  *float64 `json:"lat"`
	Long *float64 `json:"long"`
	Flag string   `json:"flag"`
}

func (s snapshot) metrics() domain.Metrics {
	return domain.Metrics{
		Cases:          s.Cases,
		TodayCases:     s.TodayCases,
		Recovered:      s.Recovered,
		TodayRecovered: s.TodayRecovered,
		Deaths:         s.Deaths,
		TodayDeaths:    s.TodayDeaths,
	}
}

// coordinates returns nil unless both lat and long are present.
func (s snapshot) coordinates() *domain.Coordinates {
	if s.CountryInfo == nil || s.CountryInfo.Lat == nil || s.CountryInfo.Long == nil {
		return nil
	}
	return &domain.Coordinates{Lat: *s.CountryInfo.Lat, Lng: *s.CountryInfo.Long}
}

func (s snapshot) updated() time.Time {
	if s.Updated <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.Updated).UTC()
}
