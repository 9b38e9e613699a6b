// Package weather fetches the daily forecast shown next to the agenda.
package weather

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker"

	"inkday/internal/apperr"
	appLog "inkday/internal/log"
	"inkday/internal/model"
)

const defaultBaseURL = "https://api.open-meteo.com/v1/forecast"

var (
	errServerError = errors.New("server error")
	errUnexpected  = errors.New("unexpected status code")
	errCircuitOpen = errors.New("circuit breaker open")
	errNoDailyData = errors.New("no daily data for requested day")
)

// OpenMeteo reads today's high, low and weather code from the Open-Meteo
// daily endpoint. Each call is a single attempt; the circuit breaker only
// stops hammering an upstream that keeps failing.
type OpenMeteo struct {
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
	now     func() time.Time
}

// Option customizes an OpenMeteo client.
type Option func(*OpenMeteo)

// WithBaseURL points the client at another endpoint.
func WithBaseURL(u string) Option {
	return func(o *OpenMeteo) {
		if u != "" {
			o.baseURL = u
		}
	}
}

// WithClock overrides the time source used for AsOf.
func WithClock(now func() time.Time) Option {
	return func(o *OpenMeteo) { o.now = now }
}

func NewOpenMeteo(timeout time.Duration, opts ...Option) *OpenMeteo {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openmeteo",
		MaxRequests: 1,
		Interval:    10 * time.Minute,
		Timeout:     15 * time.Minute,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
	})
	o := &OpenMeteo{
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: timeout},
		circuit: cb,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type dailyPayload struct {
	DailyUnits struct {
		TempMax string `json:"temperature_2m_max"`
	} `json:"daily_units"`
	Daily struct {
		Time           []string   `json:"time"`
		TempMax        []*float64 `json:"temperature_2m_max"`
		TempMin        []*float64 `json:"temperature_2m_min"`
		WeatherCode    []*int     `json:"weather_code"`
		WeatherCodeOld []*int     `json:"weathercode"`
	} `json:"daily"`
}

// Forecast returns the summary for day at the given coordinate, or nil when
// the request fails or the response is unusable.
func (o *OpenMeteo) Forecast(ctx context.Context, lat, lon float64, day model.Day) *model.ForecastSummary {
	fc, err := o.fetch(ctx, lat, lon, day)
	if err != nil {
		appLog.Error("forecast fetch failed", err, "date", day.String())
		return nil
	}
	appLog.Info("forecast fetch success", "date", day.String(), "high_c", fc.HighC, "low_c", fc.LowC, "condition", fc.Condition)
	return fc
}

func (o *OpenMeteo) fetch(ctx context.Context, lat, lon float64, day model.Day) (*model.ForecastSummary, error) {
	const op = "weather.openmeteo"

	values := url.Values{}
	values.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	values.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	values.Set("daily", "temperature_2m_max,temperature_2m_min,weather_code")
	values.Set("timezone", day.Location().String())
	values.Set("start_date", day.String())
	values.Set("end_date", day.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"?"+values.Encode(), nil)
	if err != nil {
		return nil, apperr.Fetch(op, "openmeteo", err)
	}

	result, err := o.circuit.Execute(func() (interface{}, error) {
		resp, err := o.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return nil, errServerError
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
		}
		return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %v", errCircuitOpen, err)
		}
		return nil, apperr.Fetch(op, "openmeteo", err)
	}

	body, ok := result.([]byte)
	if !ok {
		return nil, apperr.Fetch(op, "openmeteo", errors.New("unexpected result type from circuit breaker"))
	}

	var payload dailyPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperr.Fetch(op, "openmeteo", err)
	}
	fc, err := summarize(payload, day.String())
	if err != nil {
		return nil, apperr.Fetch(op, "openmeteo", err)
	}
	fc.AsOf = o.now()
	return fc, nil
}

func summarize(p dailyPayload, date string) (*model.ForecastSummary, error) {
	idx := -1
	for i, d := range p.Daily.Time {
		if d == date {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, errNoDailyData
	}

	codes := p.Daily.WeatherCode
	if len(codes) == 0 {
		codes = p.Daily.WeatherCodeOld
	}
	if idx >= len(p.Daily.TempMax) || idx >= len(p.Daily.TempMin) || idx >= len(codes) {
		return nil, errNoDailyData
	}
	hi, lo, code := p.Daily.TempMax[idx], p.Daily.TempMin[idx], codes[idx]
	if hi == nil || lo == nil || code == nil {
		return nil, errNoDailyData
	}

	high, low := *hi, *lo
	if strings.Contains(strings.ToUpper(p.DailyUnits.TempMax), "F") {
		high, low = FahrenheitToCelsius(high), FahrenheitToCelsius(low)
	}

	cond, icon := mapCondition(*code)
	return &model.ForecastSummary{
		HighC:     high,
		LowC:      low,
		Condition: cond,
		IconID:    icon,
	}, nil
}

// mapCondition turns a WMO weather code into a label and an icon id.
func mapCondition(code int) (string, string) {
	switch {
	case code == 0:
		return "Clear", "clear"
	case code == 1 || code == 2:
		return "Partly cloudy", "partly-cloudy"
	case code == 3:
		return "Cloudy", "cloudy"
	case code == 45 || code == 48:
		return "Fog", "fog"
	case code >= 51 && code <= 57:
		return "Drizzle", "rain"
	case (code >= 61 && code <= 67) || (code >= 80 && code <= 82):
		return "Rain", "rain"
	case (code >= 71 && code <= 77) || code == 85 || code == 86:
		return "Snow", "snow"
	case code >= 95:
		return "Thunderstorm", "storm"
	default:
		return "Unknown", "unknown"
	}
}

func FahrenheitToCelsius(f float64) float64 { return (f - 32) * 5 / 9 }

func CelsiusToFahrenheit(c float64) float64 { return c*9/5 + 32 }
