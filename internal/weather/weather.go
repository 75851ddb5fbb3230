// Package weather fetches daily and hourly forecasts for the trip's two
// locations from Open-Meteo. Forecasts are session data; they are never
// written into the trip document.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkordes/tripmate/internal/domain"
)

// DefaultURL is the Open-Meteo forecast endpoint.
const DefaultURL = "https://api.open-meteo.com/v1/forecast"

const forecastDays = 5

// Location is a forecast point.
type Location struct {
	Area     domain.Area
	Lat, Lon float64
	Timezone string
}

// Locations are the trip's forecast points.
var Locations = []Location{
	{Area: domain.AreaSamui, Lat: 9.512, Lon: 100.013, Timezone: "Asia/Bangkok"},
	{Area: domain.AreaDoha, Lat: 25.285, Lon: 51.531, Timezone: "Asia/Qatar"},
}

// Hour is one hourly sample. Probabilities are 0..1; nil means the
// provider did not report the value.
type Hour struct {
	Time       string   `json:"time"`
	TempC      *float64 `json:"tempC,omitempty"`
	PrecipProb *float64 `json:"precipProb,omitempty"`
	PrecipMM   *float64 `json:"precipMm,omitempty"`
}

// Day is one daily summary with its hours.
type Day struct {
	Date       string   `json:"date"`
	MinC       int      `json:"min"`
	MaxC       int      `json:"max"`
	Code       int      `json:"code"`
	PrecipProb *float64 `json:"precipProb,omitempty"`
	PrecipMM   *float64 `json:"precipMm,omitempty"`
	Hours      []Hour   `json:"hours"`
}

// Snapshot is the forecast for every location.
type Snapshot struct {
	Days      map[domain.Area][]Day `json:"days"`
	FetchedAt time.Time             `json:"fetchedAt"`
}

// Today returns area's forecast for date (YYYY-MM-DD), or its first day
// when date is outside the forecast window.
func (s Snapshot) Today(area domain.Area, date string) (Day, bool) {
	days := s.Days[area]
	if len(days) == 0 {
		return Day{}, false
	}
	for _, d := range days {
		if d.Date == date {
			return d, true
		}
	}
	return days[0], true
}

// Client queries Open-Meteo.
type Client struct {
	url  string
	http *http.Client
	now  func() time.Time
}

// NewClient returns a Client. Empty baseURL uses DefaultURL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{url: baseURL, http: httpClient, now: time.Now}
}

type forecastResponse struct {
	Daily struct {
		Time        []string   `json:"time"`
		TempMin     []float64  `json:"temperature_2m_min"`
		TempMax     []float64  `json:"temperature_2m_max"`
		WeatherCode []int      `json:"weathercode"`
		PrecipProb  []*float64 `json:"precipitation_probability_max"`
		PrecipSum   []*float64 `json:"precipitation_sum"`
	} `json:"daily"`
	Hourly struct {
		Time       []string   `json:"time"`
		PrecipProb []*float64 `json:"precipitation_probability"`
		Precip     []*float64 `json:"precipitation"`
		Temp       []*float64 `json:"temperature_2m"`
	} `json:"hourly"`
}

// Forecast returns the daily forecast, with hours grouped into each day.
func (c *Client) Forecast(ctx context.Context, loc Location) ([]Day, error) {
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(loc.Lat, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(loc.Lon, 'f', -1, 64))
	params.Set("timezone", loc.Timezone)
	params.Set("forecast_days", strconv.Itoa(forecastDays))
	params.Set("daily", "temperature_2m_min,temperature_2m_max,weathercode,precipitation_probability_max,precipitation_sum")
	params.Set("hourly", "precipitation_probability,precipitation,temperature_2m")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("weather.Client.Forecast: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather.Client.Forecast: %w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather.Client.Forecast: %w: status %d", domain.ErrUpstream, resp.StatusCode)
	}

	var body forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("weather.Client.Forecast: %w: decode: %v", domain.ErrUpstream, err)
	}
	return buildDays(body), nil
}

func buildDays(r forecastResponse) []Day {
	days := make([]Day, len(r.Daily.Time))
	index := make(map[string]int, len(days))
	for i, date := range r.Daily.Time {
		days[i] = Day{
			Date:       date,
			MinC:       roundAt(r.Daily.TempMin, i),
			MaxC:       roundAt(r.Daily.TempMax, i),
			Code:       at(r.Daily.WeatherCode, i),
			PrecipProb: percent(ptrAt(r.Daily.PrecipProb, i)),
			PrecipMM:   ptrAt(r.Daily.PrecipSum, i),
			Hours:      []Hour{},
		}
		index[date] = i
	}

	h := r.Hourly
	for i, t := range h.Time {
		if len(t) < 10 {
			continue
		}
		// Times are already local to the requested timezone.
		d, ok := index[t[:10]]
		if !ok {
			continue
		}
		days[d].Hours = append(days[d].Hours, Hour{
			Time:       t,
			TempC:      ptrAt(h.Temp, i),
			PrecipProb: percent(ptrAt(h.PrecipProb, i)),
			PrecipMM:   ptrAt(h.Precip, i),
		})
	}
	return days
}

// All fetches every location. A failed location is left out of the
// snapshot; the error reports every failure.
func (c *Client) All(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{Days: make(map[domain.Area][]Day, len(Locations)), FetchedAt: c.now().UTC()}
	var errs []error
	for _, loc := range Locations {
		days, err := c.Forecast(ctx, loc)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", loc.Area, err))
			continue
		}
		snap.Days[loc.Area] = days
	}
	return snap, errors.Join(errs...)
}

func at[T any](s []T, i int) T {
	var zero T
	if i < len(s) {
		return s[i]
	}
	return zero
}

func ptrAt(s []*float64, i int) *float64 {
	return at(s, i)
}

func roundAt(s []float64, i int) int {
	return int(math.Round(at(s, i)))
}

// percent converts a 0..100 probability to 0..1, clamped.
func percent(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := math.Max(0, math.Min(1, *p/100))
	return &v
}

// Describe names a WMO weather code.
func Describe(code int) string {
	switch {
	case code == 0:
		return "Clear"
	case code == 1:
		return "Mainly clear"
	case code == 2:
		return "Partly cloudy"
	case code == 3:
		return "Overcast"
	case code == 45 || code == 48:
		return "Fog"
	case code >= 51 && code <= 57:
		return "Drizzle"
	case code >= 61 && code <= 67:
		return "Rain"
	case code >= 71 && code <= 77:
		return "Snow"
	case code >= 80 && code <= 82:
		return "Showers"
	case code >= 95 && code <= 99:
		return "Thunderstorm"
	}
	return "Unknown"
}
