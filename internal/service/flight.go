package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/pkordes/tripmate/internal/domain"
)

var flightNumberPattern = regexp.MustCompile(`^[A-Z]{2}\d{2,4}$`)

// Default upstream endpoints for the flight lookup.
const (
	AviationstackURL = "http://api.aviationstack.com/v1/flights"
	AeroDataBoxURL   = "https://aerodatabox.p.rapidapi.com"
	aeroDataBoxHost  = "aerodatabox.p.rapidapi.com"
)

// FlightStatus is the normalised flight lookup result. Unknown values are null.
type FlightStatus struct {
	Flight    FlightInfo      `json:"flight"`
	Departure FlightEndpoint  `json:"departure"`
	Arrival   FlightEndpoint  `json:"arrival"`
	Live      json.RawMessage `json:"live"`
}

type FlightInfo struct {
	IATA    *string `json:"iata"`
	ICAO    *string `json:"icao"`
	Number  *string `json:"number,omitempty"`
	Airline *string `json:"airline"`
	Status  *string `json:"status"`
}

type FlightEndpoint struct {
	Airport   *string `json:"airport"`
	IATA      *string `json:"iata"`
	Terminal  *string `json:"terminal"`
	Gate      *string `json:"gate"`
	Baggage   *string `json:"baggage,omitempty"`
	Scheduled *string `json:"scheduled"`
	Estimated *string `json:"estimated"`
	Actual    *string `json:"actual"`
}

// FlightConfig holds upstream credentials. Either key may be empty.
type FlightConfig struct {
	AviationstackKey string
	RapidAPIKey      string
	AviationstackURL string
	AeroDataBoxURL   string
}

// FlightService looks up live flight status, preferring Aviationstack and
// falling back to AeroDataBox when Aviationstack is unavailable for the plan.
type FlightService struct {
	cfg    FlightConfig
	client *http.Client
	now    func() time.Time
}

func NewFlightService(cfg FlightConfig, client *http.Client) *FlightService {
	if cfg.AviationstackURL == "" {
		cfg.AviationstackURL = AviationstackURL
	}
	if cfg.AeroDataBoxURL == "" {
		cfg.AeroDataBoxURL = AeroDataBoxURL
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &FlightService{cfg: cfg, client: client, now: time.Now}
}

// NormaliseFlightNumber strips whitespace and upper-cases raw, then checks it
// looks like an IATA flight number such as "QR24".
func NormaliseFlightNumber(raw string) (string, error) {
	num := strings.ToUpper(strings.Join(strings.Fields(raw), ""))
	if !flightNumberPattern.MatchString(num) {
		return "", fmt.Errorf("%w: invalid flight number, use like QR24", domain.ErrValidation)
	}
	return num, nil
}

// Lookup returns the status of flight num on date ("2006-01-02", optional).
//
// Errors: domain.ErrValidation for a malformed number or date,
// domain.ErrPlanRestricted when Aviationstack refuses the plan and there is no
// fallback key, domain.ErrNotFound when no provider has data and
// domain.ErrUpstream for any provider failure.
func (s *FlightService) Lookup(ctx context.Context, rawNum, date string) (FlightStatus, error) {
	num, err := NormaliseFlightNumber(rawNum)
	if err != nil {
		return FlightStatus{}, err
	}
	date = strings.TrimSpace(date)
	if date != "" {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			return FlightStatus{}, fmt.Errorf("%w: date must be YYYY-MM-DD", domain.ErrValidation)
		}
	}

	if s.cfg.AviationstackKey != "" {
		st, err := s.aviationstack(ctx, num, date)
		switch {
		case err == nil:
			return st, nil
		case errors.Is(err, domain.ErrPlanRestricted), errors.Is(err, domain.ErrNotFound):
			// Try the fallback.
		default:
			return FlightStatus{}, err
		}
		if s.cfg.RapidAPIKey == "" {
			return FlightStatus{}, fmt.Errorf("service.FlightService.Lookup: %w", err)
		}
	}

	if s.cfg.RapidAPIKey == "" {
		return FlightStatus{}, fmt.Errorf("service.FlightService.Lookup: %w: no flight provider allows this lookup", domain.ErrPlanRestricted)
	}
	if date == "" {
		date = s.now().UTC().Format("2006-01-02")
	}
	return s.aeroDataBox(ctx, num, date)
}

type aviationstackResponse struct {
	Data []struct {
		Flight struct {
			IATA   string `json:"iata"`
			ICAO   string `json:"icao"`
			Number string `json:"number"`
		} `json:"flight"`
		Airline struct {
			Name string `json:"name"`
		} `json:"airline"`
		FlightStatus string                `json:"flight_status"`
		Departure    aviationstackEndpoint `json:"departure"`
		Arrival      aviationstackEndpoint `json:"arrival"`
		Live         json.RawMessage       `json:"live"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type aviationstackEndpoint struct {
	Airport   string `json:"airport"`
	IATA      string `json:"iata"`
	Terminal  string `json:"terminal"`
	Gate      string `json:"gate"`
	Baggage   string `json:"baggage"`
	Scheduled string `json:"scheduled"`
	Estimated string `json:"estimated"`
	Actual    string `json:"actual"`
}

func (e aviationstackEndpoint) normalise() FlightEndpoint {
	return FlightEndpoint{
		Airport: opt(e.Airport), IATA: opt(e.IATA), Terminal: opt(e.Terminal), Gate: opt(e.Gate),
		Baggage: opt(e.Baggage), Scheduled: opt(e.Scheduled), Estimated: opt(e.Estimated), Actual: opt(e.Actual),
	}
}

func (s *FlightService) aviationstack(ctx context.Context, num, date string) (FlightStatus, error) {
	q := url.Values{}
	q.Set("access_key", s.cfg.AviationstackKey)
	q.Set("flight_iata", num)
	if date != "" {
		q.Set("flight_date", date)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.AviationstackURL+"?"+q.Encode(), nil)
	if err != nil {
		return FlightStatus{}, fmt.Errorf("service.FlightService.aviationstack: %w", err)
	}

	status, raw, err := s.do(req)
	if err != nil {
		return FlightStatus{}, fmt.Errorf("service.FlightService.aviationstack: %w", err)
	}
	var body aviationstackResponse
	decodeErr := json.Unmarshal(raw, &body)

	if body.Error != nil && strings.Contains(body.Error.Code, "function_access_restricted") {
		return FlightStatus{}, fmt.Errorf("aviationstack: %w", domain.ErrPlanRestricted)
	}
	if status/100 != 2 || decodeErr != nil || body.Error != nil {
		return FlightStatus{}, fmt.Errorf("service.FlightService.aviationstack: %w: status %d: %s", domain.ErrUpstream, status, truncate(raw))
	}
	if len(body.Data) == 0 {
		return FlightStatus{}, fmt.Errorf("aviationstack: %w", domain.ErrNotFound)
	}

	f := body.Data[0]
	out := FlightStatus{
		Flight: FlightInfo{
			IATA:    opt(firstNonEmpty(f.Flight.IATA, num)),
			ICAO:    opt(f.Flight.ICAO),
			Number:  opt(f.Flight.Number),
			Airline: opt(f.Airline.Name),
			Status:  opt(f.FlightStatus),
		},
		Departure: f.Departure.normalise(),
		Arrival:   f.Arrival.normalise(),
		Live:      f.Live,
	}
	if len(out.Live) == 0 {
		out.Live = json.RawMessage("null")
	}
	return out, nil
}

type adbFlight struct {
	Number  string `json:"number"`
	Status  string `json:"status"`
	Airline struct {
		Name string `json:"name"`
	} `json:"airline"`
	Departure adbEndpoint `json:"departure"`
	Arrival   adbEndpoint `json:"arrival"`
}

type adbEndpoint struct {
	Airport struct {
		Name string `json:"name"`
		IATA string `json:"iata"`
	} `json:"airport"`
	Terminal           string `json:"terminal"`
	Gate               string `json:"gate"`
	BaggageBelt        string `json:"baggageBelt"`
	ScheduledTimeUTC   string `json:"scheduledTimeUtc"`
	ScheduledTimeLocal string `json:"scheduledTimeLocal"`
	EstimatedTimeUTC   string `json:"estimatedTimeUtc"`
	EstimatedTimeLocal string `json:"estimatedTimeLocal"`
	ActualTimeUTC      string `json:"actualTimeUtc"`
	ActualTimeLocal    string `json:"actualTimeLocal"`
}

func (e adbEndpoint) normalise() FlightEndpoint {
	return FlightEndpoint{
		Airport:   opt(e.Airport.Name),
		IATA:      opt(e.Airport.IATA),
		Terminal:  opt(e.Terminal),
		Gate:      opt(e.Gate),
		Baggage:   opt(e.BaggageBelt),
		Scheduled: opt(firstNonEmpty(e.ScheduledTimeUTC, e.ScheduledTimeLocal)),
		Estimated: opt(firstNonEmpty(e.EstimatedTimeUTC, e.EstimatedTimeLocal)),
		Actual:    opt(firstNonEmpty(e.ActualTimeUTC, e.ActualTimeLocal)),
	}
}

func (s *FlightService) aeroDataBox(ctx context.Context, num, date string) (FlightStatus, error) {
	u := fmt.Sprintf("%s/flights/number/%s/%s", s.cfg.AeroDataBoxURL, url.PathEscape(num), date)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return FlightStatus{}, fmt.Errorf("service.FlightService.aeroDataBox: %w", err)
	}
	req.Header.Set("X-RapidAPI-Key", s.cfg.RapidAPIKey)
	req.Header.Set("X-RapidAPI-Host", aeroDataBoxHost)

	status, raw, err := s.do(req)
	if err != nil {
		return FlightStatus{}, fmt.Errorf("service.FlightService.aeroDataBox: %w", err)
	}
	if status == http.StatusNoContent || status == http.StatusNotFound {
		return FlightStatus{}, fmt.Errorf("service.FlightService.aeroDataBox: %w: flight not found for that date", domain.ErrNotFound)
	}
	if status/100 != 2 {
		return FlightStatus{}, fmt.Errorf("service.FlightService.aeroDataBox: %w: status %d: %s", domain.ErrUpstream, status, truncate(raw))
	}

	// The API answers with either a bare array or {"flights": [...]}.
	var items []adbFlight
	if err := json.Unmarshal(raw, &items); err != nil {
		var wrapped struct {
			Flights []adbFlight `json:"flights"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return FlightStatus{}, fmt.Errorf("service.FlightService.aeroDataBox: %w: undecodable body", domain.ErrUpstream)
		}
		items = wrapped.Flights
	}
	if len(items) == 0 {
		return FlightStatus{}, fmt.Errorf("service.FlightService.aeroDataBox: %w: flight not found for that date", domain.ErrNotFound)
	}

	f := items[0]
	return FlightStatus{
		Flight: FlightInfo{
			IATA:    opt(firstNonEmpty(f.Number, num)),
			ICAO:    opt(f.Number),
			Airline: opt(f.Airline.Name),
			Status:  opt(f.Status),
		},
		Departure: f.Departure.normalise(),
		Arrival:   f.Arrival.normalise(),
		Live:      json.RawMessage("null"),
	}, nil
}

func (s *FlightService) do(req *http.Request) (int, []byte, error) {
	return doRequest(s.client, req)
}

// doRequest sends req and returns the status and body. Transport failures are ErrUpstream.
func doRequest(client *http.Client, req *http.Request) (int, []byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: read body: %v", domain.ErrUpstream, err)
	}
	return resp.StatusCode, raw, nil
}

func opt(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(b []byte) string {
	const limit = 200
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
