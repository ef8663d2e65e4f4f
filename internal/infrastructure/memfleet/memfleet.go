// Package memfleet simulates a fleet in process. It backs local demo mode
// and engine tests with a driver and prober that track per-member process
// state without touching real infrastructure.
package memfleet

import (
	"context"
	"fmt"
	"sync"

	"github.com/craxelfn/fleetpilot/internal/domain"
)

// Fleet is an in-memory [domain.DriverProvider] and [domain.ProberProvider].
// The zero value is ready to use.
type Fleet struct {
	// StartPolls is the number of liveness polls a member stays not-live
	// after Start, simulating process boot time.
	StartPolls int
	// FailInstall makes Install fail for the given version.
	FailInstall string
	// Unhealthy makes the given version report an unhealthy status forever.
	Unhealthy string

	mu      sync.Mutex
	members map[domain.MemberID]*memberState
}

type memberState struct {
	running   bool
	version   string
	livePolls int
}

func (f *Fleet) state(id domain.MemberID) *memberState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members == nil {
		f.members = make(map[domain.MemberID]*memberState)
	}
	st, ok := f.members[id]
	if !ok {
		st = &memberState{}
		f.members[id] = st
	}
	return st
}

// Version reports the version currently installed on a member.
func (f *Fleet) Version(id domain.MemberID) string {
	st := f.state(id)
	f.mu.Lock()
	defer f.mu.Unlock()
	return st.version
}

// Running reports whether a member's process is up.
func (f *Fleet) Running(id domain.MemberID) bool {
	st := f.state(id)
	f.mu.Lock()
	defer f.mu.Unlock()
	return st.running
}

func (f *Fleet) DriverFor(member domain.MemberInfo) (domain.MemberDriver, error) {
	return &driver{fleet: f, id: member.ID}, nil
}

func (f *Fleet) ProberFor(member domain.MemberInfo) (domain.HealthProber, error) {
	return &prober{fleet: f, id: member.ID}, nil
}

type driver struct {
	fleet *Fleet
	id    domain.MemberID
}

func (d *driver) Stop(context.Context) error {
	st := d.fleet.state(d.id)
	d.fleet.mu.Lock()
	defer d.fleet.mu.Unlock()
	st.running = false
	return nil
}

func (d *driver) Install(_ context.Context, version string) error {
	st := d.fleet.state(d.id)
	d.fleet.mu.Lock()
	defer d.fleet.mu.Unlock()
	if d.fleet.FailInstall != "" && version == d.fleet.FailInstall {
		return fmt.Errorf("install %s: artifact not found", version)
	}
	st.version = version
	return nil
}

func (d *driver) Start(context.Context) error {
	st := d.fleet.state(d.id)
	d.fleet.mu.Lock()
	defer d.fleet.mu.Unlock()
	st.running = true
	st.livePolls = 0
	return nil
}

func (d *driver) IsLive(context.Context) (bool, error) {
	st := d.fleet.state(d.id)
	d.fleet.mu.Lock()
	defer d.fleet.mu.Unlock()
	if !st.running {
		return false, nil
	}
	st.livePolls++
	return st.livePolls > d.fleet.StartPolls, nil
}

func (d *driver) Diagnostics(context.Context) string {
	st := d.fleet.state(d.id)
	d.fleet.mu.Lock()
	defer d.fleet.mu.Unlock()
	if !st.running {
		return fmt.Sprintf("member %s: process stopped, installed version %q", d.id, st.version)
	}
	return fmt.Sprintf("member %s: process booting, installed version %q", d.id, st.version)
}

type prober struct {
	fleet *Fleet
	id    domain.MemberID
}

func (p *prober) Probe(context.Context) (domain.ProbeResult, error) {
	st := p.fleet.state(p.id)
	p.fleet.mu.Lock()
	defer p.fleet.mu.Unlock()
	if !st.running {
		return domain.ProbeResult{}, fmt.Errorf("member %s: connection refused", p.id)
	}
	if p.fleet.Unhealthy != "" && st.version == p.fleet.Unhealthy {
		return domain.ProbeResult{StatusCode: 200, Body: []byte(`{"status":"degraded"}`)}, nil
	}
	return domain.ProbeResult{StatusCode: 200, Body: []byte(`{"status":"healthy"}`)}, nil
}
