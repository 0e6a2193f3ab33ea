package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/i474232898/location-data-aggregation/internal/location"
)

func TestHeartRailsAddressProviderFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/api/json" || q.Get("method") != "searchByGeoLocation" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		if q.Get("x") != "139.7671" || q.Get("y") != "35.6812" {
			t.Errorf("unexpected coordinates x=%s y=%s", q.Get("x"), q.Get("y"))
		}
		_, _ = w.Write([]byte(`{"response":{"location":[
			{"city":"千代田区","city_kana":"ちよだく","town":"丸の内一丁目","prefecture":"東京都","x":"139.766","y":"35.681","postal":"1000005"},
			{"city":"中央区","town":"八重洲一丁目","prefecture":"東京都"}
		]}}`))
	}))
	defer srv.Close()

	out := NewHeartRailsAddressProvider(srv.Client(), srv.URL+"/", nil).Fetch(context.Background(), tokyo)
	addr, ok := out.Value()
	if !ok || addr == nil {
		t.Fatalf("expected address, got %+v", out)
	}
	if addr.FullAddress != "東京都千代田区丸の内一丁目" {
		t.Fatalf("unexpected address %q", addr.FullAddress)
	}
}

func TestHeartRailsAddressProviderMissingFieldsAreEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":{"location":[{"prefecture":"北海道","city":"札幌市"}]}}`))
	}))
	defer srv.Close()

	out := NewHeartRailsAddressProvider(srv.Client(), srv.URL+"/", nil).Fetch(context.Background(), tokyo)
	addr, _ := out.Value()
	if addr == nil || addr.FullAddress != "北海道札幌市" {
		t.Fatalf("unexpected address %+v", addr)
	}
}

func TestHeartRailsAddressProviderNoRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":{"error":"Cities of the specified location are not found."}}`))
	}))
	defer srv.Close()

	out := NewHeartRailsAddressProvider(srv.Client(), srv.URL+"/", nil).Fetch(context.Background(), tokyo)
	addr, ok := out.Value()
	if !ok {
		t.Fatalf("expected success, got failure %q", out.Message())
	}
	if addr != nil {
		t.Fatalf("expected no address, got %+v", addr)
	}
}

func TestHeartRailsAddressProviderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	out := NewHeartRailsAddressProvider(srv.Client(), srv.URL+"/", nil).Fetch(context.Background(), tokyo)
	if !out.IsFailed() || out.Message() != AddressFailedMessage {
		t.Fatalf("expected address failure, got %+v", out)
	}
}

func stationServer(t *testing.T, count int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("method") != "getStations" {
			t.Errorf("unexpected method %q", r.URL.Query().Get("method"))
		}
		entries := make([]string, 0, count)
		for i := 0; i < count; i++ {
			entries = append(entries, fmt.Sprintf(
				`{"name":"駅%d","prefecture":"東京都","line":"線%d","x":139.76%d,"y":35.68%d,"postal":"1000005","distance":"%dm","prev":null,"next":null}`,
				i, i, i, i, (i+1)*100))
		}
		_, _ = w.Write([]byte(`{"response":{"station":[` + strings.Join(entries, ",") + `]}}`))
	}))
}

func TestHeartRailsStationProviderFetchNearestTruncates(t *testing.T) {
	srv := stationServer(t, 8)
	defer srv.Close()

	p := NewHeartRailsStationProvider(srv.Client(), srv.URL+"/", nil)
	out := p.FetchNearest(context.Background(), tokyo, 3)
	stations, ok := out.Value()
	if !ok {
		t.Fatalf("unexpected failure %q", out.Message())
	}
	if len(stations) != 3 {
		t.Fatalf("expected 3 stations, got %d", len(stations))
	}
	for i, s := range stations {
		if s.Name != fmt.Sprintf("駅%d", i) {
			t.Fatalf("station %d out of source order: %q", i, s.Name)
		}
	}
	if stations[0].DistanceLabel != "100m" || stations[0].Line != "線0" {
		t.Fatalf("unexpected first station %+v", stations[0])
	}
	if stations[1].Latitude != 35.681 || stations[1].Longitude != 139.761 {
		t.Fatalf("unexpected coordinates %+v", stations[1])
	}
}

func TestHeartRailsStationProviderDefaultLimit(t *testing.T) {
	srv := stationServer(t, 9)
	defer srv.Close()

	p := NewHeartRailsStationProvider(srv.Client(), srv.URL+"/", nil)
	for _, limit := range []int{0, -1} {
		stations, _ := p.FetchNearest(context.Background(), tokyo, limit).Value()
		if len(stations) != location.DefaultStationLimit {
			t.Fatalf("limit %d: expected %d stations, got %d", limit, location.DefaultStationLimit, len(stations))
		}
	}
}

func TestHeartRailsStationProviderFetchNearestEmpty(t *testing.T) {
	srv := stationServer(t, 0)
	defer srv.Close()

	out := NewHeartRailsStationProvider(srv.Client(), srv.URL+"/", nil).FetchNearest(context.Background(), tokyo, 5)
	stations, ok := out.Value()
	if !ok {
		t.Fatalf("unexpected failure %q", out.Message())
	}
	if stations == nil || len(stations) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", stations)
	}
}

func TestHeartRailsStationProviderFetchReturnsNearest(t *testing.T) {
	srv := stationServer(t, 4)
	defer srv.Close()

	p := NewHeartRailsStationProvider(srv.Client(), srv.URL+"/", nil)
	station, ok := p.Fetch(context.Background(), tokyo).Value()
	if !ok || station == nil {
		t.Fatal("expected nearest station")
	}
	if station.Name != "駅0" {
		t.Fatalf("expected first station, got %q", station.Name)
	}

	empty := stationServer(t, 0)
	defer empty.Close()
	none, ok := NewHeartRailsStationProvider(empty.Client(), empty.URL+"/", nil).Fetch(context.Background(), tokyo).Value()
	if !ok || none != nil {
		t.Fatalf("expected Ok(nil), got %+v", none)
	}
}

func TestHeartRailsStationProviderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	p := NewHeartRailsStationProvider(srv.Client(), srv.URL+"/", nil)
	if out := p.FetchNearest(context.Background(), tokyo, 5); !out.IsFailed() || out.Message() != StationFailedMessage {
		t.Fatalf("expected station failure, got %+v", out)
	}
	if out := p.Fetch(context.Background(), tokyo); !out.IsFailed() || out.Message() != StationFailedMessage {
		t.Fatalf("expected station failure, got %+v", out)
	}
}

func TestCircuitOpensAfterRepeatedFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewHeartRailsStationProvider(srv.Client(), srv.URL+"/", nil)
	for i := 0; i < 10; i++ {
		if out := p.FetchNearest(context.Background(), tokyo, 5); !out.IsFailed() {
			t.Fatalf("call %d: expected failure", i)
		}
	}
	// gobreaker trips after more than five consecutive failures.
	if hits.Load() != 6 {
		t.Fatalf("expected 6 upstream hits before the circuit opened, got %d", hits.Load())
	}
}

func TestHeartRailsProvidersSendUserAgent(t *testing.T) {
	agents := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents <- r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`{"response":{}}`))
	}))
	defer srv.Close()

	NewHeartRailsAddressProvider(srv.Client(), srv.URL+"/", nil).WithUserAgent("ua-geo").Fetch(context.Background(), tokyo)
	NewHeartRailsStationProvider(srv.Client(), srv.URL+"/", nil).WithUserAgent("ua-express").FetchNearest(context.Background(), tokyo, 5)

	if ua := <-agents; ua != "ua-geo" {
		t.Fatalf("unexpected address user agent %q", ua)
	}
	if ua := <-agents; ua != "ua-express" {
		t.Fatalf("unexpected station user agent %q", ua)
	}
}
