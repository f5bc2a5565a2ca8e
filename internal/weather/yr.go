// Package weather fetches forecasts from the met.no locationforecast API
// and caches them per location.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.met.no/weatherapi/locationforecast/2.0/compact"

// forecastResponse mirrors the subset of the locationforecast compact
// payload we read.
type forecastResponse struct {
	Properties struct {
		Timeseries []struct {
			Time time.Time `json:"time"`
			Data struct {
				Instant struct {
					Details struct {
						AirTemperature float64 `json:"air_temperature"`
					} `json:"details"`
				} `json:"instant"`
				Next1Hours *forecastPeriod `json:"next_1_hours"`
				Next6Hours *forecastPeriod `json:"next_6_hours"`
			} `json:"data"`
		} `json:"timeseries"`
	} `json:"properties"`
}

type forecastPeriod struct {
	Summary struct {
		SymbolCode string `json:"symbol_code"`
	} `json:"summary"`
	Details struct {
		PrecipitationAmount float64 `json:"precipitation_amount"`
	} `json:"details"`
}

// Forecast is the current conditions extracted from the first timeseries entry.
type Forecast struct {
	Temperature         float64
	SymbolCode          string
	PrecipitationAmount float64
}

// YRClient talks to the met.no locationforecast API. met.no requires an
// identifying User-Agent on every request.
type YRClient struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// NewYRClient creates a met.no forecast client.
func NewYRClient(userAgent string) *YRClient {
	return &YRClient{
		baseURL:   defaultBaseURL,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// NewYRClientWithBaseURL creates a client against a custom endpoint, for tests.
func NewYRClientWithBaseURL(baseURL, userAgent string) *YRClient {
	c := NewYRClient(userAgent)
	c.baseURL = baseURL
	return c
}

// Fetch returns the current forecast for the given coordinates.
// The symbol code comes from the next_1_hours period, falling back to
// next_6_hours when the timeseries has no hourly data.
func (c *YRClient) Fetch(ctx context.Context, lat, lon float64) (Forecast, error) {
	url := fmt.Sprintf("%s?lat=%.4f&lon=%.4f", c.baseURL, lat, lon)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Forecast{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Forecast{}, fmt.Errorf("fetching forecast: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return Forecast{}, fmt.Errorf("forecast request failed with status %d", resp.StatusCode)
	}

	var body forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Forecast{}, fmt.Errorf("decoding forecast: %w", err)
	}

	series := body.Properties.Timeseries
	if len(series) == 0 {
		return Forecast{}, fmt.Errorf("forecast response has no timeseries")
	}

	entry := series[0]
	fc := Forecast{
		Temperature: entry.Data.Instant.Details.AirTemperature,
	}

	period := entry.Data.Next1Hours
	if period == nil {
		period = entry.Data.Next6Hours
	}
	if period != nil {
		fc.SymbolCode = period.Summary.SymbolCode
		fc.PrecipitationAmount = period.Details.PrecipitationAmount
	}

	return fc, nil
}
