package providers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/kelvins/geocoder"
	"github.com/sony/gobreaker"

	"github.com/i474232898/location-data-aggregation/internal/location"
	"github.com/i474232898/location-data-aggregation/internal/logging"
)

// ReverseGeocodeFunc resolves coordinates to candidate addresses.
type ReverseGeocodeFunc func(geocoder.Location) ([]geocoder.Address, error)

// geocoder keeps its API key in a package variable.
var apiKeyMu sync.Mutex

// geocoder reports a ZERO_RESULTS reply as an error with this text.
const noResultsMessage = "No results found"

var errNoAPIKey = errors.New("google geocoding api key not configured")

// GoogleAddressProvider implements location.AddressProvider with the Google
// Geocoding API through github.com/kelvins/geocoder.
type GoogleAddressProvider struct {
	name    string
	apiKey  string
	timeout time.Duration
	reverse ReverseGeocodeFunc
	circuit *gobreaker.CircuitBreaker
	log     logging.Logger
}

// NewGoogleAddressProvider creates a provider that gives up on a lookup after
// timeout. A timeout of zero or less leaves only the caller's context.
func NewGoogleAddressProvider(apiKey string, timeout time.Duration, log logging.Logger) *GoogleAddressProvider {
	p := &GoogleAddressProvider{
		name:    "google-geocoding",
		apiKey:  apiKey,
		timeout: timeout,
		circuit: newCircuitBreaker("google-geocoding"),
		log:     logging.OrNoop(log),
	}
	p.reverse = p.geocodingReverse
	return p
}

// WithReverseFunc replaces the upstream lookup. Used by tests.
func (p *GoogleAddressProvider) WithReverseFunc(fn ReverseGeocodeFunc) *GoogleAddressProvider {
	p.reverse = fn
	return p
}

// Name returns the provider label used in logs and metrics.
func (p *GoogleAddressProvider) Name() string {
	return p.name
}

// Fetch reverse-geocodes pos. A ZERO_RESULTS reply is Ok(nil).
func (p *GoogleAddressProvider) Fetch(ctx context.Context, pos location.Position) location.Outcome[*location.AddressInfo] {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	result, err := p.circuit.Execute(func() (interface{}, error) {
		return p.lookup(ctx, pos)
	})
	if err != nil {
		logFailure(ctx, p.log, p.name, err)
		return location.Failed[*location.AddressInfo](AddressFailedMessage)
	}

	addrs, _ := result.([]geocoder.Address)
	if len(addrs) == 0 {
		return location.Ok[*location.AddressInfo](nil)
	}

	a := addrs[0]
	return location.Ok(&location.AddressInfo{
		FullAddress: JoinAddress(a.State, a.City, a.District),
	})
}

// lookup runs the geocoder call, which takes no context, against ctx.
func (p *GoogleAddressProvider) lookup(ctx context.Context, pos location.Position) ([]geocoder.Address, error) {
	type result struct {
		addrs []geocoder.Address
		err   error
	}

	ch := make(chan result, 1)
	go func() {
		addrs, err := p.reverse(geocoder.Location{Latitude: pos.Latitude, Longitude: pos.Longitude})
		ch <- result{addrs: addrs, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.err != nil && len(res.addrs) == 0 && strings.Contains(res.err.Error(), noResultsMessage) {
			return nil, nil
		}
		return res.addrs, res.err
	}
}

func (p *GoogleAddressProvider) geocodingReverse(loc geocoder.Location) ([]geocoder.Address, error) {
	if p.apiKey == "" {
		return nil, errNoAPIKey
	}
	apiKeyMu.Lock()
	if geocoder.ApiKey != p.apiKey {
		geocoder.ApiKey = p.apiKey
	}
	apiKeyMu.Unlock()
	return geocoder.GeocodingReverse(loc)
}
