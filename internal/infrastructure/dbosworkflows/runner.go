// Package dbosworkflows implements [domain.WorkflowEngine] using
// the DBOS Transact Go SDK.
package dbosworkflows

import (
	"context"
	"fmt"

	"github.com/dbos-inc/dbos-transact-golang/dbos"

	"github.com/craxelfn/fleetpilot/internal/domain"
)

// activityInvoker calls RunAsStep with the correct concrete output type.
// Created at construction time when concrete types are known.
type activityInvoker func(ctx dbos.Context, in any) (any, error)

// Engine implements [domain.WorkflowEngine] backed by DBOS.
//
// The caller must call [dbos.Launch] after creating runners and before
// invoking them.
type Engine struct {
	DBOSCtx dbos.Context
}

func (e *Engine) ReleaseRunner(wf *domain.ReleaseWorkflow) (domain.ReleaseRunner, error) {
	invokers := make(map[string]activityInvoker)

	registerActivity(invokers, wf.Transition())
	registerActivity(invokers, wf.StopMember())
	registerActivity(invokers, wf.InstallVersion())
	registerActivity(invokers, wf.StartMember())
	registerActivity(invokers, wf.AwaitLiveness())
	registerActivity(invokers, wf.Validate())

	wfFunc := func(ctx dbos.Context, releaseID domain.ReleaseID) (domain.ReleaseOutcome, error) {
		runner := &durableRunner{ctx: ctx, invokers: invokers}
		return wf.Run(runner, releaseID)
	}

	dbos.RegisterWorkflow(e.DBOSCtx, wfFunc, dbos.WithWorkflowName(wf.Name()))

	return &releaseRunner{
		dbosCtx: e.DBOSCtx,
		wfFunc:  wfFunc,
	}, nil
}

// registerActivity creates a typed invoker that calls [dbos.RunAsStep]
// with the concrete output type O, ensuring correct JSON deserialization
// during workflow replay.
func registerActivity[I, O any](invokers map[string]activityInvoker, activity domain.Activity[I, O]) {
	invokers[activity.Name()] = func(ctx dbos.Context, in any) (any, error) {
		return dbos.RunAsStep(ctx, func(stepCtx context.Context) (O, error) {
			return activity.Run(stepCtx, in.(I))
		}, dbos.WithStepName(activity.Name()))
	}
}

type durableRunner struct {
	ctx      dbos.Context
	invokers map[string]activityInvoker
}

func (r *durableRunner) ID() string {
	id, _ := dbos.GetWorkflowID(r.ctx)
	return id
}

func (r *durableRunner) Context() context.Context {
	return r.ctx
}

func (r *durableRunner) Run(activity domain.Activity[any, any], in any) (any, error) {
	invoke, ok := r.invokers[activity.Name()]
	if !ok {
		return nil, fmt.Errorf("activity %q not registered", activity.Name())
	}
	return invoke(r.ctx, in)
}

type releaseRunner struct {
	dbosCtx dbos.Context
	wfFunc  dbos.Workflow[domain.ReleaseID, domain.ReleaseOutcome]
}

func (r *releaseRunner) Run(ctx context.Context, releaseID domain.ReleaseID) (domain.WorkflowHandle[domain.ReleaseOutcome], error) {
	handle, err := dbos.RunWorkflow(r.dbosCtx, r.wfFunc, releaseID)
	if err != nil {
		return nil, fmt.Errorf("run DBOS workflow: %w", err)
	}
	return &workflowHandle{handle: handle}, nil
}

type workflowHandle struct {
	handle dbos.WorkflowHandle[domain.ReleaseOutcome]
}

func (h *workflowHandle) WorkflowID() string {
	return h.handle.GetWorkflowID()
}

func (h *workflowHandle) AwaitResult(_ context.Context) (domain.ReleaseOutcome, error) {
	return h.handle.GetResult()
}
