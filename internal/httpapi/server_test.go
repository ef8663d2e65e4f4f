package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/craxelfn/fleetpilot/internal/application"
	"github.com/craxelfn/fleetpilot/internal/domain"
	"github.com/craxelfn/fleetpilot/internal/httpapi"
	"github.com/craxelfn/fleetpilot/internal/infrastructure/memfleet"
	"github.com/craxelfn/fleetpilot/internal/infrastructure/sqlite"
	"github.com/craxelfn/fleetpilot/internal/infrastructure/syncworkflow"
)

func newTestServer(t *testing.T, fleet *memfleet.Fleet) (http.Handler, *sqlite.DecisionRepo) {
	t.Helper()
	db := sqlite.OpenTestDB(t)

	memberRepo := &sqlite.MemberRepo{DB: db}
	releaseRepo := &sqlite.ReleaseRepo{DB: db}
	decisionRepo := &sqlite.DecisionRepo{DB: db}

	wf := &domain.ReleaseWorkflow{
		Releases:         releaseRepo,
		Members:          memberRepo,
		Drivers:          fleet,
		Probers:          fleet,
		Events:           domain.NopSink{},
		MaxStartWait:     time.Second,
		LivenessInterval: time.Millisecond,
		RetryDelay:       time.Millisecond,
	}
	runner, err := (&syncworkflow.Engine{}).ReleaseRunner(wf)
	if err != nil {
		t.Fatalf("ReleaseRunner: %v", err)
	}

	releaseSvc := &application.ReleaseService{
		Releases: releaseRepo,
		Members:  memberRepo,
		Runner:   runner,
	}

	srv := &httpapi.Server{
		Members:  &application.MemberService{Members: memberRepo, Releases: releaseRepo},
		Releases: releaseSvc,
		Rollouts: &application.RolloutService{
			Members:    memberRepo,
			Releases:   releaseSvc,
			Strategies: domain.DefaultStrategyFactory{},
		},
		Decisions: decisionRepo,
	}
	return srv.Router(), decisionRepo
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t, &memfleet.Fleet{})
	rec := do(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := decode(t, rec)["status"]; got != "healthy" {
		t.Errorf("status field = %v, want healthy", got)
	}
}

func TestMemberLifecycle(t *testing.T) {
	h, _ := newTestServer(t, &memfleet.Fleet{})

	rec := do(t, h, http.MethodPost, "/api/members",
		`{"id":"m1","name":"web-1","labels":{"tier":"web"}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d: %s", rec.Code, rec.Body)
	}

	// Duplicate registration conflicts.
	rec = do(t, h, http.MethodPost, "/api/members", `{"id":"m1","name":"web-1"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want 409", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/members/m1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/members", "")
	members := decode(t, rec)["members"].([]any)
	if len(members) != 1 {
		t.Errorf("members = %d, want 1", len(members))
	}

	rec = do(t, h, http.MethodDelete, "/api/members/m1", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/api/members/m1", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestDeployRelease(t *testing.T) {
	h, _ := newTestServer(t, &memfleet.Fleet{})

	do(t, h, http.MethodPost, "/api/members", `{"id":"m1","name":"web-1"}`)

	rec := do(t, h, http.MethodPost, "/api/releases", `{"memberId":"m1","targetVersion":"v2"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("deploy status = %d: %s", rec.Code, rec.Body)
	}
	release := decode(t, rec)["release"].(map[string]any)
	if release["phase"] != "succeeded" {
		t.Errorf("phase = %v, want succeeded", release["phase"])
	}

	id := release["id"].(string)
	rec = do(t, h, http.MethodGet, "/api/releases/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get release status = %d", rec.Code)
	}
}

func TestDeployRelease_FailureStillReturnsRecord(t *testing.T) {
	h, _ := newTestServer(t, &memfleet.Fleet{Unhealthy: "v2"})

	do(t, h, http.MethodPost, "/api/members", `{"id":"m1","name":"web-1"}`)

	rec := do(t, h, http.MethodPost, "/api/releases", `{"memberId":"m1","targetVersion":"v2"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("deploy status = %d: %s", rec.Code, rec.Body)
	}
	out := decode(t, rec)
	release := out["release"].(map[string]any)
	if release["phase"] != "rolledback" {
		t.Errorf("phase = %v, want rolledback", release["phase"])
	}
	if out["error"] == nil {
		t.Error("failure classification missing from response")
	}
}

func TestDeployRelease_UnknownMember(t *testing.T) {
	h, _ := newTestServer(t, &memfleet.Fleet{})
	rec := do(t, h, http.MethodPost, "/api/releases", `{"memberId":"ghost","targetVersion":"v2"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCancelRelease_Terminal(t *testing.T) {
	h, _ := newTestServer(t, &memfleet.Fleet{})

	do(t, h, http.MethodPost, "/api/members", `{"id":"m1","name":"web-1"}`)
	rec := do(t, h, http.MethodPost, "/api/releases", `{"memberId":"m1","targetVersion":"v2"}`)
	id := decode(t, rec)["release"].(map[string]any)["id"].(string)

	rec = do(t, h, http.MethodPost, "/api/releases/"+id+"/cancel", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("cancel of terminal release status = %d, want 409", rec.Code)
	}
}

func TestStartRollout(t *testing.T) {
	h, _ := newTestServer(t, &memfleet.Fleet{})

	do(t, h, http.MethodPost, "/api/members", `{"id":"m1","name":"web-1"}`)
	do(t, h, http.MethodPost, "/api/members", `{"id":"m2","name":"web-2"}`)

	rec := do(t, h, http.MethodPost, "/api/rollouts",
		`{"targetVersion":"v2","placementStrategy":{"Type":"all"}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("rollout status = %d: %s", rec.Code, rec.Body)
	}
	releases := decode(t, rec)["releases"].([]any)
	if len(releases) != 2 {
		t.Fatalf("releases = %d, want 2", len(releases))
	}
}

func TestCapacityDecisions(t *testing.T) {
	h, decisions := newTestServer(t, &memfleet.Fleet{})

	rec := do(t, h, http.MethodGet, "/api/capacity/latest", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("latest with no history status = %d, want 404", rec.Code)
	}

	d := domain.CapacityDecision{
		ObservedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Signals:      map[string]float64{"cpu": 0.825},
		DesiredCount: 3,
		Reason:       "scale-out 2 to 3",
	}
	if err := decisions.Append(context.Background(), d); err != nil {
		t.Fatal(err)
	}

	rec = do(t, h, http.MethodGet, "/api/capacity/latest", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("latest status = %d", rec.Code)
	}
	if got := decode(t, rec)["desiredCount"]; got != float64(3) {
		t.Errorf("desiredCount = %v, want 3", got)
	}

	rec = do(t, h, http.MethodGet, "/api/capacity/decisions?limit=10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("decisions status = %d", rec.Code)
	}
	if got := decode(t, rec)["decisions"].([]any); len(got) != 1 {
		t.Errorf("decisions = %d, want 1", len(got))
	}
}
