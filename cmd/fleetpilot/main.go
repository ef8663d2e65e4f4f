// Command fleetpilot runs the release and capacity controller: an HTTP API
// over the release workflow plus an optional capacity control loop against
// an Auto Scaling group.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	wfsqlite "github.com/cschleiden/go-workflows/backend/sqlite"
	wfclient "github.com/cschleiden/go-workflows/client"
	"github.com/cschleiden/go-workflows/worker"
	"github.com/dbos-inc/dbos-transact-golang/dbos"
	"github.com/sirupsen/logrus"

	"github.com/craxelfn/fleetpilot/internal/application"
	"github.com/craxelfn/fleetpilot/internal/config"
	"github.com/craxelfn/fleetpilot/internal/domain"
	"github.com/craxelfn/fleetpilot/internal/httpapi"
	"github.com/craxelfn/fleetpilot/internal/infrastructure/awsfleet"
	"github.com/craxelfn/fleetpilot/internal/infrastructure/dbosworkflows"
	"github.com/craxelfn/fleetpilot/internal/infrastructure/execdriver"
	"github.com/craxelfn/fleetpilot/internal/infrastructure/goworkflows"
	"github.com/craxelfn/fleetpilot/internal/infrastructure/httpprobe"
	"github.com/craxelfn/fleetpilot/internal/infrastructure/kafkaevents"
	"github.com/craxelfn/fleetpilot/internal/infrastructure/logevents"
	"github.com/craxelfn/fleetpilot/internal/infrastructure/memfleet"
	"github.com/craxelfn/fleetpilot/internal/infrastructure/sqlite"
	"github.com/craxelfn/fleetpilot/internal/infrastructure/syncworkflow"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := run(log); err != nil {
		log.WithError(err).Fatal("fleetpilot exited")
	}
}

func run(log *logrus.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	memberRepo := &sqlite.MemberRepo{DB: db}
	releaseRepo := &sqlite.ReleaseRepo{DB: db}
	decisionRepo := &sqlite.DecisionRepo{DB: db}

	events := domain.MultiSink{&logevents.Sink{Log: log}}
	if len(cfg.KafkaBrokers) > 0 {
		kafka := kafkaevents.NewSink(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		defer kafka.Close()
		events = append(events, kafka)
		log.WithField("topic", cfg.KafkaTopic).Info("publishing events to kafka")
	}

	drivers, probers := buildProviders(cfg, log)

	wf := &domain.ReleaseWorkflow{
		Releases:              releaseRepo,
		Members:               memberRepo,
		Drivers:               drivers,
		Probers:               probers,
		Events:                events,
		MaxStartWait:          cfg.MaxStartWait,
		LivenessInterval:      cfg.LivenessInterval,
		MaxValidationAttempts: cfg.MaxValidationAttempts,
		RetryDelay:            cfg.RetryDelay,
	}

	runner, engineCleanup, err := buildRunner(ctx, cfg, wf, log)
	if err != nil {
		return err
	}
	defer engineCleanup()

	releaseSvc := &application.ReleaseService{
		Releases: releaseRepo,
		Members:  memberRepo,
		Runner:   runner,
	}

	server := &httpapi.Server{
		Members:  &application.MemberService{Members: memberRepo, Releases: releaseRepo},
		Releases: releaseSvc,
		Rollouts: &application.RolloutService{
			Members:    memberRepo,
			Releases:   releaseSvc,
			Strategies: domain.DefaultStrategyFactory{},
		},
		Decisions: decisionRepo,
	}

	if cfg.CapacityEnabled() {
		controller, err := buildCapacityController(ctx, cfg, decisionRepo, events, log)
		if err != nil {
			return err
		}
		go func() {
			if err := controller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("capacity loop stopped")
			}
		}()
		log.WithField("group", cfg.Capacity.ASGName).Info("capacity loop started")
	}

	httpSrv := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Addr).Info("fleetpilot listening")
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		// Cancel the root context so the engine cleanup does not wait on
		// a worker that is never going to stop.
		stop()
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// buildProviders selects the member driver and prober backends. The "mem"
// driver simulates the fleet in process for local runs and demos.
func buildProviders(cfg config.Config, log *logrus.Logger) (domain.DriverProvider, domain.ProberProvider) {
	if cfg.Driver == "exec" {
		provider := &execdriver.Provider{
			Commands: execdriver.Commands{
				Stop:        cfg.DriverCommands.Stop,
				Install:     cfg.DriverCommands.Install,
				Start:       cfg.DriverCommands.Start,
				IsLive:      cfg.DriverCommands.IsLive,
				Diagnostics: cfg.DriverCommands.Diagnostics,
			},
			Log: log,
		}
		return provider, &httpprobe.Provider{}
	}
	fleet := &memfleet.Fleet{}
	return fleet, fleet
}

// buildRunner constructs the configured workflow engine and returns the
// release runner plus a cleanup function for the engine's resources.
func buildRunner(ctx context.Context, cfg config.Config, wf *domain.ReleaseWorkflow, log *logrus.Logger) (domain.ReleaseRunner, func(), error) {
	switch cfg.Engine {
	case "sync":
		runner, err := (&syncworkflow.Engine{}).ReleaseRunner(wf)
		return runner, func() {}, err

	case "goworkflows":
		backend := wfsqlite.NewSqliteBackend(cfg.WorkflowDBPath)
		w := worker.New(backend, nil)

		engine := &goworkflows.Engine{Worker: w, Client: wfclient.New(backend)}
		runner, err := engine.ReleaseRunner(wf)
		if err != nil {
			return nil, nil, err
		}
		if err := w.Start(ctx); err != nil {
			return nil, nil, err
		}
		log.WithField("path", cfg.WorkflowDBPath).Info("goworkflows engine started")
		return runner, func() { _ = w.WaitForCompletion() }, nil

	case "dbos":
		dbosCtx, err := dbos.NewContext(ctx, dbos.Config{
			AppName:     cfg.DBOSAppName,
			DatabaseURL: cfg.DBOSDatabaseURL,
		})
		if err != nil {
			return nil, nil, err
		}
		runner, err := (&dbosworkflows.Engine{DBOSCtx: dbosCtx}).ReleaseRunner(wf)
		if err != nil {
			return nil, nil, err
		}
		if err := dbos.Launch(dbosCtx); err != nil {
			return nil, nil, err
		}
		log.Info("dbos engine started")
		return runner, func() { dbos.Shutdown(dbosCtx, 10*time.Second) }, nil
	}
	panic("unreachable: config validated the engine")
}

// buildCapacityController wires the capacity policy and control loop
// against the configured Auto Scaling group and CloudWatch signals.
func buildCapacityController(ctx context.Context, cfg config.Config, decisions domain.DecisionRepository, events domain.EventSink, log *logrus.Logger) (*application.CapacityController, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Capacity.AWSRegion))
	if err != nil {
		return nil, err
	}

	signals := make(map[string]domain.SignalPolicy, len(cfg.Capacity.Signals))
	queries := make(map[string]awsfleet.SignalQuery, len(cfg.Capacity.Signals))
	for name, sig := range cfg.Capacity.Signals {
		signals[name] = domain.SignalPolicy{
			TargetRatio: sig.TargetRatio,
			Weight:      sig.Weight,
			Normalize:   normalizeFor(sig),
		}
		queries[name] = awsfleet.SignalQuery{
			Namespace:  sig.Namespace,
			MetricName: sig.MetricName,
			Dimensions: sig.Dimensions,
			Stat:       sig.Stat,
		}
	}

	return &application.CapacityController{
		Policy: domain.CapacityPolicy{
			Signals:          signals,
			MinCount:         cfg.Capacity.MinCount,
			MaxCount:         cfg.Capacity.MaxCount,
			ScaleOutCooldown: cfg.Capacity.ScaleOutCooldown,
			ScaleInCooldown:  cfg.Capacity.ScaleInCooldown,
		},
		Metrics: &awsfleet.MetricSource{
			Client:  cloudwatch.NewFromConfig(awsCfg),
			Queries: queries,
		},
		Scaler: &awsfleet.Scaler{
			Client:    autoscaling.NewFromConfig(awsCfg),
			GroupName: cfg.Capacity.ASGName,
		},
		Decisions:     decisions,
		Events:        events,
		Log:           log,
		TickPeriod:    cfg.Capacity.TickPeriod,
		SampleTimeout: cfg.Capacity.SampleTimeout,
	}, nil
}

func normalizeFor(sig config.SignalConfig) domain.Normalize {
	switch sig.Normalize {
	case "percent":
		return domain.PercentNormalize
	case "capacity":
		return domain.CapacityNormalize(sig.Capacity)
	default:
		return domain.RatioNormalize
	}
}
