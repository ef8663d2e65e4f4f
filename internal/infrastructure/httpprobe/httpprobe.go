// Package httpprobe implements [domain.HealthProber] over HTTP GET against
// the member's registered health endpoint.
package httpprobe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/craxelfn/fleetpilot/internal/domain"
)

// DefaultPropertyKey is the member property holding the health URL.
const DefaultPropertyKey = "healthURL"

// maxBodySize bounds how much of a health response is read.
const maxBodySize = 64 << 10

// Provider implements [domain.ProberProvider]. The health URL is read from
// each member's properties.
type Provider struct {
	// Client is the HTTP client; nil means a client with a 5s timeout.
	Client *http.Client
	// PropertyKey overrides [DefaultPropertyKey].
	PropertyKey string
}

func (p *Provider) ProberFor(member domain.MemberInfo) (domain.HealthProber, error) {
	key := p.PropertyKey
	if key == "" {
		key = DefaultPropertyKey
	}
	url, ok := member.Properties[key]
	if !ok || url == "" {
		return nil, fmt.Errorf("%w: member %q has no %q property", domain.ErrInvalidArgument, member.ID, key)
	}
	return &Prober{Client: p.client(), URL: url}, nil
}

func (p *Provider) client() *http.Client {
	if p.Client != nil {
		return p.Client
	}
	return &http.Client{Timeout: 5 * time.Second}
}

// Prober probes a single health URL.
type Prober struct {
	Client *http.Client
	URL    string
}

func (p *Prober) Probe(ctx context.Context) (domain.ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return domain.ProbeResult{}, fmt.Errorf("build probe request: %w", err)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return domain.ProbeResult{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return domain.ProbeResult{}, fmt.Errorf("read probe response: %w", err)
	}
	return domain.ProbeResult{StatusCode: resp.StatusCode, Body: body}, nil
}
