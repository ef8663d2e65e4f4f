package dbosworkflows_test

import (
	"context"
	"testing"
	"time"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/craxelfn/fleetpilot/internal/application"
	"github.com/craxelfn/fleetpilot/internal/domain"
	"github.com/craxelfn/fleetpilot/internal/infrastructure/dbosworkflows"
	"github.com/craxelfn/fleetpilot/internal/infrastructure/memfleet"
	"github.com/craxelfn/fleetpilot/internal/infrastructure/sqlite"
)

func startPostgres(t *testing.T) string {
	t.Helper()

	// Ryuk (the reaper) requires a Docker bridge network that does not
	// exist on Podman. We handle cleanup via t.Cleanup instead.
	t.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("fleetpilot_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get postgres connection string: %v", err)
	}
	return connStr
}

func TestRelease_DBOS(t *testing.T) {
	connStr := startPostgres(t)

	ctx := context.Background()

	dbosCtx, err := dbos.NewContext(ctx, dbos.Config{
		AppName:     "fleetpilot-dbos-test",
		DatabaseURL: connStr,
	})
	if err != nil {
		t.Fatalf("NewDBOSContext: %v", err)
	}

	db := sqlite.OpenTestDB(t)
	memberRepo := &sqlite.MemberRepo{DB: db}
	releaseRepo := &sqlite.ReleaseRepo{DB: db}

	fleet := &memfleet.Fleet{}

	wf := &domain.ReleaseWorkflow{
		Releases:         releaseRepo,
		Members:          memberRepo,
		Drivers:          fleet,
		Probers:          fleet,
		Events:           domain.NopSink{},
		MaxStartWait:     5 * time.Second,
		LivenessInterval: 10 * time.Millisecond,
		RetryDelay:       10 * time.Millisecond,
	}

	engine := &dbosworkflows.Engine{DBOSCtx: dbosCtx}
	runner, err := engine.ReleaseRunner(wf)
	if err != nil {
		t.Fatalf("ReleaseRunner: %v", err)
	}

	if err := dbos.Launch(dbosCtx); err != nil {
		t.Fatalf("dbos.Launch: %v", err)
	}
	t.Cleanup(func() { dbos.Shutdown(dbosCtx, 5*time.Second) })

	releaseSvc := &application.ReleaseService{
		Releases: releaseRepo,
		Members:  memberRepo,
		Runner:   runner,
	}
	memberSvc := &application.MemberService{Members: memberRepo, Releases: releaseRepo}

	if err := memberSvc.Register(ctx, domain.MemberInfo{ID: "m1", Name: "web-1"}); err != nil {
		t.Fatalf("register member: %v", err)
	}

	rel, err := releaseSvc.Deploy(ctx, application.DeployInput{MemberID: "m1", TargetVersion: "v2"})
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}

	if rel.Phase != domain.PhaseSucceeded {
		t.Errorf("Phase = %q, want %q", rel.Phase, domain.PhaseSucceeded)
	}
	if fleet.Version("m1") != "v2" {
		t.Errorf("installed version = %q, want v2", fleet.Version("m1"))
	}
}
