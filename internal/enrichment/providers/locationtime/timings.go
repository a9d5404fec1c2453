package locationtime

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	apperrors "query-enrichment/internal/common/errors"
	httpclient "query-enrichment/internal/common/http"
	"query-enrichment/internal/enrichment/providers"
)

const (
	SourceCalculated = "calculated"
	SourceTimingsAPI = "timings-api"
)

// TimingsClient reads daily schedules from an Aladhan-compatible API:
//
//	GET {endpoint}/timings/{dd-mm-yyyy}?latitude=..&longitude=..&method=..
type TimingsClient struct {
	endpoint string
	fetcher  httpclient.Fetcher
	timeout  time.Duration
}

func NewTimingsClient(endpoint string, f httpclient.Fetcher, timeout time.Duration) *TimingsClient {
	return &TimingsClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		fetcher:  f,
		timeout:  timeout,
	}
}

// DayURL is the request URL for the calendar date of date.
func (c *TimingsClient) DayURL(date time.Time, lat, lng float64, m Method) string {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lng, 'f', 4, 64))
	q.Set("method", strconv.Itoa(m.APIID))
	return fmt.Sprintf("%s/timings/%s?%s", c.endpoint, date.Format("02-01-2006"), q.Encode())
}

// Day fetches the schedule for the calendar date of day in loc.
func (c *TimingsClient) Day(ctx context.Context, day time.Time, lat, lng float64, loc *time.Location, m Method) (Schedule, error) {
	local := day.In(loc)
	u := c.DayURL(local, lat, lng, m)

	resp, err := providers.Get(ctx, c.fetcher, providers.NameLocationTime, u, httpclient.FetchOptions{
		Headers: map[string]string{"Accept": "application/json"},
		Timeout: c.timeout,
	})
	if err != nil {
		return Schedule{}, err
	}
	return parseTimings(resp.Body, local, loc)
}

func parseTimings(body []byte, day time.Time, loc *time.Location) (Schedule, error) {
	if !gjson.ValidBytes(body) {
		return Schedule{}, apperrors.NewProviderParseError(providers.NameLocationTime, fmt.Errorf("invalid JSON"))
	}
	timings := gjson.GetBytes(body, "data.timings")
	if !timings.IsObject() {
		return Schedule{}, apperrors.NewProviderParseError(providers.NameLocationTime, fmt.Errorf("data.timings missing"))
	}

	y, mo, d := day.Date()
	sched := Schedule{
		Date:   time.Date(y, mo, d, 0, 0, 0, 0, loc),
		Events: make(map[string]time.Time, len(EventOrder)),
		Source: SourceTimingsAPI,
	}

	var prev time.Time
	for _, name := range EventOrder {
		raw := timings.Get(name).String()
		h, m, err := parseClock(raw)
		if err != nil {
			return Schedule{}, apperrors.NewProviderParseError(providers.NameLocationTime,
				fmt.Errorf("%s: %w", name, err))
		}
		t := time.Date(y, mo, d, h, m, 0, 0, loc)
		// Isha can fall after midnight in summer at high latitudes.
		if !prev.IsZero() && t.Before(prev) {
			t = t.Add(24 * time.Hour)
		}
		sched.Events[name] = t
		prev = t
	}
	return sched, nil
}

// parseClock reads "HH:MM", ignoring a trailing zone label such as
// "04:52 (EET)".
func parseClock(raw string) (int, int, error) {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexByte(raw, ' '); i > 0 {
		raw = raw[:i]
	}
	parts := strings.Split(raw, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("bad clock value %q", raw)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("bad hour in %q", raw)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("bad minute in %q", raw)
	}
	return h, m, nil
}
