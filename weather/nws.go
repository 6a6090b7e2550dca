// Package weather is a National Weather Service client exposed as agent and MCP tools.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/KamdynS/bedrock-agents/cache"
)

// DefaultBaseURL is the public NWS API.
const DefaultBaseURL = "https://api.weather.gov"

// ErrOutsideCoverage is returned for coordinates the NWS does not forecast (outside the US).
var ErrOutsideCoverage = errors.New("location not covered by the National Weather Service")

// Alert is one active weather alert.
type Alert struct {
	Event       string `json:"event"`
	AreaDesc    string `json:"areaDesc"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Instruction string `json:"instruction"`
}

// Period is one forecast period ("Tonight", "Tuesday").
type Period struct {
	Name             string `json:"name"`
	Temperature      int    `json:"temperature"`
	TemperatureUnit  string `json:"temperatureUnit"`
	WindSpeed        string `json:"windSpeed"`
	WindDirection    string `json:"windDirection"`
	ShortForecast    string `json:"shortForecast"`
	DetailedForecast string `json:"detailedForecast"`
}

// Client calls the NWS API. Forecasts are cached by grid point when Cache is set.
type Client struct {
	BaseURL   string
	UserAgent string
	HTTP      *http.Client
	Cache     *cache.Cache
	CacheTTL  time.Duration
}

// NewClient returns a client for baseURL. NWS requires an identifying User-Agent.
func NewClient(baseURL, userAgent string, c *cache.Cache, ttl time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		UserAgent: userAgent,
		HTTP:      &http.Client{Timeout: 30 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		Cache:     c,
		CacheTTL:  ttl,
	}
}

// Alerts returns active alerts for a two-letter US state code.
func (c *Client) Alerts(ctx context.Context, state string) ([]Alert, error) {
	state = strings.ToUpper(strings.TrimSpace(state))
	if !validState(state) {
		return nil, fmt.Errorf("invalid state code %q", state)
	}
	var body struct {
		Features []struct {
			Properties Alert `json:"properties"`
		} `json:"features"`
	}
	if err := c.get(ctx, c.BaseURL+"/alerts/active?area="+url.QueryEscape(state), &body); err != nil {
		return nil, fmt.Errorf("alerts for %s: %w", state, err)
	}
	alerts := make([]Alert, 0, len(body.Features))
	for _, f := range body.Features {
		alerts = append(alerts, f.Properties)
	}
	return alerts, nil
}

// Forecast returns the forecast periods for a point.
func (c *Client) Forecast(ctx context.Context, lat, lon float64) ([]Period, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("coordinates out of range: %f,%f", lat, lon)
	}
	key := fmt.Sprintf("forecast:%.4f,%.4f", lat, lon)
	if c.Cache != nil {
		if periods, ok := cache.GetJSON[[]Period](c.Cache, key); ok {
			return periods, nil
		}
	}

	var point struct {
		Properties struct {
			Forecast string `json:"forecast"`
		} `json:"properties"`
	}
	if err := c.get(ctx, fmt.Sprintf("%s/points/%.4f,%.4f", c.BaseURL, lat, lon), &point); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, ErrOutsideCoverage
		}
		return nil, fmt.Errorf("points: %w", err)
	}
	if point.Properties.Forecast == "" {
		return nil, ErrOutsideCoverage
	}

	var fc struct {
		Properties struct {
			Periods []Period `json:"periods"`
		} `json:"properties"`
	}
	if err := c.get(ctx, point.Properties.Forecast, &fc); err != nil {
		return nil, fmt.Errorf("forecast: %w", err)
	}
	if c.Cache != nil && len(fc.Properties.Periods) > 0 {
		cache.SetJSON(c.Cache, key, fc.Properties.Periods, c.CacheTTL)
	}
	return fc.Properties.Periods, nil
}

// StatusError is a non-2xx NWS response.
type StatusError struct {
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string { return fmt.Sprintf("nws: %d %s", e.StatusCode, e.Detail) }

func (c *Client) get(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/geo+json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var problem struct {
			Detail string `json:"detail"`
		}
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		detail := strings.TrimSpace(string(b))
		if json.Unmarshal(b, &problem) == nil && problem.Detail != "" {
			detail = problem.Detail
		}
		return &StatusError{StatusCode: resp.StatusCode, Detail: detail}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func validState(s string) bool {
	if len(s) != 2 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
