package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kelvins/geocoder"
)

func TestGoogleAddressProviderFetch(t *testing.T) {
	var got geocoder.Location
	p := NewGoogleAddressProvider("key", 0, nil).WithReverseFunc(func(loc geocoder.Location) ([]geocoder.Address, error) {
		got = loc
		return []geocoder.Address{{State: "東京都", City: "千代田区", District: "丸の内"}}, nil
	})

	addr, ok := p.Fetch(context.Background(), tokyo).Value()
	if !ok || addr == nil {
		t.Fatal("expected address")
	}
	if addr.FullAddress != "東京都千代田区丸の内" {
		t.Fatalf("unexpected address %q", addr.FullAddress)
	}
	if got.Latitude != tokyo.Latitude || got.Longitude != tokyo.Longitude {
		t.Fatalf("unexpected lookup location %+v", got)
	}
}

func TestGoogleAddressProviderNoResults(t *testing.T) {
	p := NewGoogleAddressProvider("key", 0, nil).WithReverseFunc(func(geocoder.Location) ([]geocoder.Address, error) {
		return nil, nil
	})

	out := p.Fetch(context.Background(), tokyo)
	addr, ok := out.Value()
	if !ok || addr != nil {
		t.Fatalf("expected Ok(nil), got %+v", out)
	}
}

func TestGoogleAddressProviderNoResultsError(t *testing.T) {
	p := NewGoogleAddressProvider("key", 0, nil).WithReverseFunc(func(geocoder.Location) ([]geocoder.Address, error) {
		return nil, errors.New("No results found.")
	})

	out := p.Fetch(context.Background(), tokyo)
	addr, ok := out.Value()
	if !ok || addr != nil {
		t.Fatalf("expected Ok(nil), got %+v", out)
	}
}

func TestGoogleAddressProviderFailure(t *testing.T) {
	p := NewGoogleAddressProvider("key", 0, nil).WithReverseFunc(func(geocoder.Location) ([]geocoder.Address, error) {
		return nil, errors.New("REQUEST_DENIED")
	})

	out := p.Fetch(context.Background(), tokyo)
	if !out.IsFailed() || out.Message() != AddressFailedMessage {
		t.Fatalf("expected address failure, got %+v", out)
	}
}

func TestGoogleAddressProviderMissingKey(t *testing.T) {
	out := NewGoogleAddressProvider("", 0, nil).Fetch(context.Background(), tokyo)
	if !out.IsFailed() {
		t.Fatalf("expected failure without api key")
	}
}

func TestGoogleAddressProviderCancelled(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	p := NewGoogleAddressProvider("key", 0, nil).WithReverseFunc(func(geocoder.Location) ([]geocoder.Address, error) {
		<-block
		return nil, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if out := p.Fetch(ctx, tokyo); !out.IsFailed() {
		t.Fatalf("expected failure on cancelled context")
	}
}

// useGeocoderServer points the geocoder client at srv for the duration of the
// test.
func useGeocoderServer(t *testing.T, srv *httptest.Server) {
	t.Helper()
	prev := geocoder.ApiUrl
	geocoder.ApiUrl = srv.URL + "/maps/api/geocode/json?"
	t.Cleanup(func() { geocoder.ApiUrl = prev })
}

func TestGoogleAddressProviderZeroResultsIsAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[],"status":"ZERO_RESULTS"}`))
	}))
	defer srv.Close()
	useGeocoderServer(t, srv)

	out := NewGoogleAddressProvider("key", time.Second, nil).Fetch(context.Background(), tokyo)
	addr, ok := out.Value()
	if !ok {
		t.Fatalf("expected success, got failure %q", out.Message())
	}
	if addr != nil {
		t.Fatalf("expected no address, got %+v", addr)
	}
}

func TestGoogleAddressProviderTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)
	useGeocoderServer(t, srv)

	p := NewGoogleAddressProvider("key", 100*time.Millisecond, nil)

	done := make(chan bool, 1)
	go func() {
		done <- p.Fetch(context.Background(), tokyo).IsFailed()
	}()

	select {
	case failed := <-done:
		if !failed {
			t.Fatal("expected a hung lookup to fail")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("fetch did not honour the timeout")
	}
}

func TestGoogleAddressProviderCircuitOpens(t *testing.T) {
	var calls int
	p := NewGoogleAddressProvider("key", 0, nil).WithReverseFunc(func(geocoder.Location) ([]geocoder.Address, error) {
		calls++
		return nil, errors.New("OVER_QUERY_LIMIT")
	})

	for i := 0; i < 10; i++ {
		if out := p.Fetch(context.Background(), tokyo); !out.IsFailed() {
			t.Fatalf("call %d: expected failure", i)
		}
	}
	if calls != 6 {
		t.Fatalf("expected 6 upstream calls before the circuit opened, got %d", calls)
	}
}
