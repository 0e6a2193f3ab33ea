package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/i474232898/location-data-aggregation/internal/location"
	"github.com/i474232898/location-data-aggregation/internal/logging"
)

// elevationSentinel is what GSI reports for points without elevation data.
const elevationSentinel = "-----"

// GSIElevationProvider implements location.ElevationProvider on top of the
// Geospatial Information Authority of Japan elevation API.
type GSIElevationProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	log     logging.Logger
}

// NewGSIElevationProvider creates an elevation provider. An empty baseURL
// selects DefaultGSIBaseURL.
func NewGSIElevationProvider(client *http.Client, baseURL string, log logging.Logger) *GSIElevationProvider {
	return &GSIElevationProvider{
		name:    "gsi",
		baseURL: orDefault(baseURL, DefaultGSIBaseURL),
		httpCfg: HTTPClientConfig{Client: client},
		circuit: newCircuitBreaker("gsi"),
		log:     logging.OrNoop(log),
	}
}

// WithUserAgent sets the User-Agent header sent upstream.
func (p *GSIElevationProvider) WithUserAgent(ua string) *GSIElevationProvider {
	p.httpCfg.UserAgent = ua
	return p
}

// Name returns the provider label used in logs and metrics.
func (p *GSIElevationProvider) Name() string {
	return p.name
}

// Fetch returns the ground elevation at pos, or Ok(nil) where GSI has no data.
func (p *GSIElevationProvider) Fetch(ctx context.Context, pos location.Position) location.Outcome[*location.ElevationReading] {
	meters, err := p.lookup(ctx, pos)
	if err != nil {
		logFailure(ctx, p.log, p.name, err)
		return location.Failed[*location.ElevationReading](ElevationFailedMessage)
	}
	if meters == nil {
		return location.Ok[*location.ElevationReading](nil)
	}
	return location.Ok(&location.ElevationReading{Meters: *meters})
}

func (p *GSIElevationProvider) lookup(ctx context.Context, pos location.Position) (*float64, error) {
	values := url.Values{}
	values.Set("lon", formatCoord(pos.Longitude))
	values.Set("lat", formatCoord(pos.Latitude))
	values.Set("outtype", "JSON")

	u, err := buildURL(p.baseURL, "general/dem/scripts/getelevation.php", values)
	if err != nil {
		return nil, err
	}

	resp, err := doRequest(ctx, p.httpCfg, p.circuit, u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Elevation json.RawMessage `json:"elevation"`
		Hsrc      string          `json:"hsrc"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode elevation response: %w", err)
	}

	return ParseElevation(payload.Elevation)
}

// ParseElevation interprets the raw elevation field, which is either a
// number or a string. The "-----" sentinel and a missing or null field mean
// no data and yield nil without error. Any other non-numeric string is an
// error.
func ParseElevation(raw json.RawMessage) (*float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return &num, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("elevation is neither number nor string: %s", raw)
	}

	s = strings.TrimSpace(s)
	if s == elevationSentinel {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("parse elevation %q: %w", s, err)
	}
	return &v, nil
}
