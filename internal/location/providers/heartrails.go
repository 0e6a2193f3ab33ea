package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sony/gobreaker"

	"github.com/i474232898/location-data-aggregation/internal/location"
	"github.com/i474232898/location-data-aggregation/internal/logging"
)

// HeartRailsAddressProvider implements location.AddressProvider with the
// HeartRails Geo API (searchByGeoLocation).
type HeartRailsAddressProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	log     logging.Logger
}

// NewHeartRailsAddressProvider creates an address provider. An empty baseURL
// selects DefaultHeartRailsGeoBaseURL.
func NewHeartRailsAddressProvider(client *http.Client, baseURL string, log logging.Logger) *HeartRailsAddressProvider {
	return &HeartRailsAddressProvider{
		name:    "heartrails-geo",
		baseURL: orDefault(baseURL, DefaultHeartRailsGeoBaseURL),
		httpCfg: HTTPClientConfig{Client: client},
		circuit: newCircuitBreaker("heartrails-geo"),
		log:     logging.OrNoop(log),
	}
}

// WithUserAgent sets the User-Agent header sent upstream.
func (p *HeartRailsAddressProvider) WithUserAgent(ua string) *HeartRailsAddressProvider {
	p.httpCfg.UserAgent = ua
	return p
}

// Name returns the provider label used in logs and metrics.
func (p *HeartRailsAddressProvider) Name() string {
	return p.name
}

// Fetch returns the first address HeartRails reports for pos. An error
// response or an empty location list is Ok(nil).
func (p *HeartRailsAddressProvider) Fetch(ctx context.Context, pos location.Position) location.Outcome[*location.AddressInfo] {
	values := url.Values{}
	values.Set("method", "searchByGeoLocation")
	values.Set("x", formatCoord(pos.Longitude))
	values.Set("y", formatCoord(pos.Latitude))

	var payload struct {
		Response struct {
			Location []struct {
				Prefecture string `json:"prefecture"`
				City       string `json:"city"`
				Town       string `json:"town"`
			} `json:"location"`
			Error string `json:"error"`
		} `json:"response"`
	}
	if err := getJSON(ctx, p.httpCfg, p.circuit, p.baseURL, values, &payload); err != nil {
		logFailure(ctx, p.log, p.name, err)
		return location.Failed[*location.AddressInfo](AddressFailedMessage)
	}

	if len(payload.Response.Location) == 0 {
		if payload.Response.Error != "" {
			p.log.Debug(ctx, "no address for position", logging.String("reason", payload.Response.Error))
		}
		return location.Ok[*location.AddressInfo](nil)
	}

	first := payload.Response.Location[0]
	return location.Ok(&location.AddressInfo{
		FullAddress: JoinAddress(first.Prefecture, first.City, first.Town),
	})
}

// JoinAddress concatenates prefecture, city and town without separators.
func JoinAddress(prefecture, city, town string) string {
	return prefecture + city + town
}

// HeartRailsStationProvider implements location.StationProvider with the
// HeartRails Express API (getStations).
type HeartRailsStationProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	log     logging.Logger
}

// NewHeartRailsStationProvider creates a station provider. An empty baseURL
// selects DefaultHeartRailsExpressBaseURL.
func NewHeartRailsStationProvider(client *http.Client, baseURL string, log logging.Logger) *HeartRailsStationProvider {
	return &HeartRailsStationProvider{
		name:    "heartrails-express",
		baseURL: orDefault(baseURL, DefaultHeartRailsExpressBaseURL),
		httpCfg: HTTPClientConfig{Client: client},
		circuit: newCircuitBreaker("heartrails-express"),
		log:     logging.OrNoop(log),
	}
}

// WithUserAgent sets the User-Agent header sent upstream.
func (p *HeartRailsStationProvider) WithUserAgent(ua string) *HeartRailsStationProvider {
	p.httpCfg.UserAgent = ua
	return p
}

// Name returns the provider label used in logs and metrics.
func (p *HeartRailsStationProvider) Name() string {
	return p.name
}

// Fetch returns the nearest station only.
func (p *HeartRailsStationProvider) Fetch(ctx context.Context, pos location.Position) location.Outcome[*location.StationInfo] {
	stations, err := p.lookup(ctx, pos)
	if err != nil {
		logFailure(ctx, p.log, p.name, err)
		return location.Failed[*location.StationInfo](StationFailedMessage)
	}
	if len(stations) == 0 {
		return location.Ok[*location.StationInfo](nil)
	}
	first := stations[0]
	return location.Ok(&first)
}

// FetchNearest returns up to limit stations in the order the API ranks them.
// A limit of zero or less falls back to location.DefaultStationLimit.
func (p *HeartRailsStationProvider) FetchNearest(ctx context.Context, pos location.Position, limit int) location.Outcome[[]location.StationInfo] {
	if limit <= 0 {
		limit = location.DefaultStationLimit
	}
	stations, err := p.lookup(ctx, pos)
	if err != nil {
		logFailure(ctx, p.log, p.name, err)
		return location.Failed[[]location.StationInfo](StationFailedMessage)
	}
	if len(stations) > limit {
		stations = stations[:limit]
	}
	return location.Ok(stations)
}

func (p *HeartRailsStationProvider) lookup(ctx context.Context, pos location.Position) ([]location.StationInfo, error) {
	values := url.Values{}
	values.Set("method", "getStations")
	values.Set("x", formatCoord(pos.Longitude))
	values.Set("y", formatCoord(pos.Latitude))

	var payload struct {
		Response struct {
			Station []struct {
				Name     string  `json:"name"`
				Distance string  `json:"distance"`
				Line     string  `json:"line"`
				X        float64 `json:"x"`
				Y        float64 `json:"y"`
			} `json:"station"`
			Error string `json:"error"`
		} `json:"response"`
	}
	if err := getJSON(ctx, p.httpCfg, p.circuit, p.baseURL, values, &payload); err != nil {
		return nil, err
	}

	stations := make([]location.StationInfo, 0, len(payload.Response.Station))
	for _, s := range payload.Response.Station {
		stations = append(stations, location.StationInfo{
			Name:          s.Name,
			DistanceLabel: s.Distance,
			Line:          s.Line,
			Latitude:      s.Y,
			Longitude:     s.X,
		})
	}
	return stations, nil
}

func getJSON(ctx context.Context, cfg HTTPClientConfig, cb *gobreaker.CircuitBreaker, baseURL string, values url.Values, out any) error {
	u, err := buildURL(baseURL, "api/json", values)
	if err != nil {
		return err
	}

	resp, err := doRequest(ctx, cfg, cb, u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
