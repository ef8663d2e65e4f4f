package httpprobe_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/craxelfn/fleetpilot/internal/domain"
	"github.com/craxelfn/fleetpilot/internal/infrastructure/httpprobe"
)

func proberFor(t *testing.T, url string) domain.HealthProber {
	t.Helper()
	p := &httpprobe.Provider{}
	prober, err := p.ProberFor(domain.MemberInfo{
		ID:         "m1",
		Name:       "web-1",
		Properties: map[string]string{"healthURL": url},
	})
	if err != nil {
		t.Fatalf("ProberFor: %v", err)
	}
	return prober
}

func TestProbe_Healthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","uptime":124}`))
	}))
	defer srv.Close()

	res, err := proberFor(t, srv.URL).Probe(context.Background())
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !res.Healthy() {
		t.Errorf("Healthy() = false for %d %s", res.StatusCode, res.Body)
	}
}

func TestProbe_UnhealthyStatusField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"starting"}`))
	}))
	defer srv.Close()

	res, err := proberFor(t, srv.URL).Probe(context.Background())
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if res.Healthy() {
		t.Error("Healthy() = true for a non-healthy status field")
	}
}

func TestProbe_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":"healthy"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	res, err := proberFor(t, srv.URL).Probe(context.Background())
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if res.Healthy() {
		t.Error("Healthy() = true for http 503")
	}
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", res.StatusCode)
	}
}

func TestProbe_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := proberFor(t, srv.URL).Probe(context.Background())
	if err == nil {
		t.Fatal("expected transport error against a closed server")
	}
}

func TestProviderRequiresHealthURL(t *testing.T) {
	p := &httpprobe.Provider{}
	_, err := p.ProberFor(domain.MemberInfo{ID: "m1", Name: "web-1"})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("ProberFor: got %v, want ErrInvalidArgument", err)
	}
}
