package domain

import (
	"context"
	"encoding/json"
	"net/http"
)

// MemberDriver controls the service process on one fleet member. The member
// identity is fixed at construction (see [DriverProvider]); drivers never
// read ambient fleet state.
type MemberDriver interface {
	// Stop halts the currently running version. Destructive; failures are
	// surfaced for operator investigation, never retried automatically.
	Stop(ctx context.Context) error

	// Install materializes the target version on the member: artifact
	// placement, dependency install, process-manager unit definition.
	Install(ctx context.Context, version string) error

	// Start launches the installed version.
	Start(ctx context.Context) error

	// IsLive reports whether the service process is running. An error is
	// treated as "not live yet" by the liveness poll.
	IsLive(ctx context.Context) (bool, error)

	// Diagnostics returns a best-effort snapshot of the member's state
	// (last status, recent log tail) for failure reasons.
	Diagnostics(ctx context.Context) string
}

// DriverProvider constructs the driver for a given fleet member.
type DriverProvider interface {
	DriverFor(member MemberInfo) (MemberDriver, error)
}

// ProbeResult is one health probe response.
type ProbeResult struct {
	StatusCode int
	Body       []byte
}

// Healthy reports whether the probe indicates readiness: HTTP 200 and a
// JSON body whose status field equals "healthy".
func (r ProbeResult) Healthy() bool {
	if r.StatusCode != http.StatusOK {
		return false
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(r.Body, &body); err != nil {
		return false
	}
	return body.Status == "healthy"
}

// HealthProber queries the readiness of the service on one fleet member.
// A transport failure counts as a failed validation attempt, not a fatal
// error.
type HealthProber interface {
	Probe(ctx context.Context) (ProbeResult, error)
}

// ProberProvider constructs the health prober for a given fleet member.
type ProberProvider interface {
	ProberFor(member MemberInfo) (HealthProber, error)
}

// FleetScaler applies a desired fleet size. The external fleet manager owns
// the actual infrastructure change.
type FleetScaler interface {
	SetDesiredCount(ctx context.Context, n int) error
}

// MetricSource samples the named load signals. A call may fail as a whole;
// individual signals may also be absent from the result.
type MetricSource interface {
	Sample(ctx context.Context, signals []string) (map[string]float64, error)
}
