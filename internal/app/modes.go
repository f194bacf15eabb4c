package app

import (
	"context"
	"fmt"

	"deployctl/internal/orchestrator"
	"deployctl/internal/reporting"
)

// Plan resolves what a run for req would apply, without touching a cluster.
// A plan whose templates are missing is returned together with the error.
func (a *Application) Plan(req orchestrator.DeploymentRequest) (*orchestrator.Plan, error) {
	plan, err := orchestrator.BuildPlan(a.DeployctlConfig(), a.services.Store, req)
	if err != nil {
		return nil, err
	}
	if err := a.services.Store.Check(plan.RequiredTemplates()); err != nil {
		return plan, err
	}
	return plan, nil
}

// Deploy runs one deployment. Progress goes to the console reporter plus any
// extra reporters. A report is returned whenever the run was started.
func (a *Application) Deploy(ctx context.Context, req orchestrator.DeploymentRequest, extra ...reporting.ProgressReporter) (*orchestrator.DeploymentReport, error) {
	cluster, err := a.services.Cluster()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cluster: %w", err)
	}

	reporters := reporting.MultiReporter{reporting.NewConsoleReporter()}
	reporters = append(reporters, extra...)

	orch := orchestrator.New(a.DeployctlConfig(), a.services.Store, cluster, reporters)
	return orch.Deploy(ctx, req)
}
