package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"deployctl/internal/config"
	"deployctl/internal/kube"
	"deployctl/internal/manifest"
	"deployctl/internal/reporting"
	"deployctl/pkg/logging"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	// DiagnosticsTailLines is how many log lines are captured per failed service.
	DiagnosticsTailLines int64 = 50

	defaultServiceTimeout        = 300 * time.Second
	defaultAllDeploymentsTimeout = 600 * time.Second
	diagnosticsTimeout           = 30 * time.Second
)

// Orchestrator runs deployments. One Orchestrator may serve several runs,
// but concurrent runs against the same namespace are not coordinated.
type Orchestrator struct {
	cfg      config.DeployctlConfig
	store    *manifest.Store
	client   kube.ClusterClient
	reporter reporting.ProgressReporter
	health   ServiceHealthChecker
	now      func() time.Time

	serviceTimeout        time.Duration
	allDeploymentsTimeout time.Duration
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithHealthChecker replaces the HTTP health checker.
func WithHealthChecker(h ServiceHealthChecker) Option {
	return func(o *Orchestrator) { o.health = h }
}

// WithClock replaces time.Now for report timestamps and durations.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator. A nil reporter discards progress updates.
func New(cfg config.DeployctlConfig, store *manifest.Store, client kube.ClusterClient, reporter reporting.ProgressReporter, opts ...Option) *Orchestrator {
	if reporter == nil {
		reporter = reporting.NopReporter{}
	}
	o := &Orchestrator{
		cfg:                   cfg,
		store:                 store,
		client:                client,
		reporter:              reporter,
		now:                   time.Now,
		serviceTimeout:        cfg.Timeouts.ServiceAvailable,
		allDeploymentsTimeout: cfg.Timeouts.AllDeployments,
	}
	if o.serviceTimeout <= 0 {
		o.serviceTimeout = defaultServiceTimeout
	}
	if o.allDeploymentsTimeout <= 0 {
		o.allDeploymentsTimeout = defaultAllDeploymentsTimeout
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.health == nil {
		o.health = NewHTTPHealthChecker(cfg.Timeouts.HealthCheck)
	}
	return o
}

// Deploy executes one run for req. The report is always returned, also
// when the run fails; the error is then an *OrchestratorError.
func (o *Orchestrator) Deploy(ctx context.Context, req DeploymentRequest) (*DeploymentReport, error) {
	report := &DeploymentReport{
		RunID:     uuid.NewString(),
		Request:   req,
		StartedAt: o.now(),
	}
	logging.Info("Orchestrator", "Starting deployment %s: environment=%s namespace=%s tag=%s",
		report.RunID, req.Environment, req.Namespace, req.ImageTag)

	err := o.run(ctx, req, report)
	if err != nil {
		var oe *OrchestratorError
		if errors.As(err, &oe) && oe.Kind != KindConfiguration && oe.Kind != KindNamespace {
			// Leave the operator a picture of the namespace as it was when the run stopped.
			o.collect(ctx, report)
		}
		report.FatalError = err.Error()
	}
	report.FinishedAt = o.now()

	if err != nil {
		logging.Error("Orchestrator", err, "Deployment %s failed after %s", report.RunID, report.Duration().Round(time.Millisecond))
		return report, err
	}
	logging.Info("Orchestrator", "Deployment %s finished in %s", report.RunID, report.Duration().Round(time.Millisecond))
	return report, nil
}

func (o *Orchestrator) run(ctx context.Context, req DeploymentRequest, report *DeploymentReport) error {
	plan, err := BuildPlan(o.cfg, o.store, req)
	if err != nil {
		return o.fail(report, &OrchestratorError{Kind: KindConfiguration, Step: reporting.StepValidate, Err: err})
	}
	if err := o.store.Check(plan.RequiredTemplates()); err != nil {
		return o.fail(report, &OrchestratorError{Kind: KindConfiguration, Step: reporting.StepValidate, Err: err})
	}
	o.emit(report, reporting.StepUpdate{
		Step:  reporting.StepValidate,
		State: reporting.StateSucceeded,
		Message: fmt.Sprintf("Plan resolved: %d services, %d supporting groups, %d post steps",
			len(plan.Services), len(plan.Supporting), len(plan.PostSteps)),
	})
	logging.Warn("Orchestrator", "Application services are applied before their databases and message broker; services must tolerate missing backends at startup")

	o.preflight(ctx, report)

	start := o.now()
	if err := o.client.CreateNamespaceIfAbsent(ctx, req.Namespace); err != nil {
		return o.fail(report, &OrchestratorError{Kind: KindNamespace, Step: reporting.StepNamespace, Resource: req.Namespace, Err: err})
	}
	o.emit(report, reporting.StepUpdate{
		Step:     reporting.StepNamespace,
		Subject:  req.Namespace,
		State:    reporting.StateSucceeded,
		Message:  "Namespace is present",
		Duration: o.now().Sub(start),
	})

	subst := plan.Substitution()
	for _, svc := range plan.Services {
		if err := o.deployService(ctx, req.Namespace, svc, subst, report); err != nil {
			return err
		}
	}

	for _, group := range plan.Supporting {
		if err := o.applyGroup(ctx, req.Namespace, group, subst, report); err != nil {
			return err
		}
	}

	if err := o.runPostSteps(ctx, req.Namespace, plan.PostSteps, subst, report); err != nil {
		return err
	}

	start = o.now()
	if err := o.client.WaitForAllDeploymentsAvailable(ctx, req.Namespace, o.allDeploymentsTimeout); err != nil {
		return o.fail(report, &OrchestratorError{Kind: waitErrorKind(err), Step: reporting.StepWaitAll, Resource: req.Namespace, Err: err})
	}
	o.emit(report, reporting.StepUpdate{
		Step:     reporting.StepWaitAll,
		Subject:  req.Namespace,
		State:    reporting.StateSucceeded,
		Message:  "All deployments are available",
		Duration: o.now().Sub(start),
	})

	o.runHealthChecks(ctx, req.Namespace, report)
	o.collect(ctx, report)
	return nil
}

// preflight records cluster details. It never fails the run.
func (o *Orchestrator) preflight(ctx context.Context, report *DeploymentReport) {
	info, err := o.client.ClusterInfo(ctx)
	if info.ServerVersion != "" {
		report.Cluster = &info
	}
	if err != nil {
		o.emit(report, reporting.StepUpdate{
			Step:    reporting.StepPreflight,
			State:   reporting.StateWarning,
			Message: fmt.Sprintf("Cluster details unavailable: %v", err),
		})
		return
	}
	o.emit(report, reporting.StepUpdate{
		Step:  reporting.StepPreflight,
		State: reporting.StateSucceeded,
		Message: fmt.Sprintf("Cluster %s (%s), %d/%d nodes ready",
			info.ServerVersion, info.Provider, info.ReadyNodes, info.TotalNodes),
	})
}

// deployService applies one core service and waits for its deployment.
func (o *Orchestrator) deployService(ctx context.Context, namespace string, svc ServiceStep, subst manifest.Substitution, report *DeploymentReport) error {
	name := svc.Definition.Name
	start := o.now()
	outcome := DeploymentOutcome{ServiceName: name, Image: svc.Image, Template: svc.Template.Path}
	record := func() {
		outcome.Duration = o.now().Sub(start)
		report.Outcomes = append(report.Outcomes, outcome)
	}

	o.emit(report, reporting.StepUpdate{Step: reporting.StepServices, Subject: name, State: reporting.StateStarted,
		Message: fmt.Sprintf("Applying %s with image %s", svc.Template.Path, svc.Image)})

	rendered, err := o.store.Render(svc.Template, subst)
	if err != nil {
		outcome.Error = err.Error()
		record()
		return o.fail(report, &OrchestratorError{Kind: KindClusterApply, Step: reporting.StepServices, Resource: name, Err: err})
	}
	if rendered.ImagesReplaced == 0 {
		o.warn(report, reporting.StepServices, name, fmt.Sprintf("%s: no container image matched %s; manifest applied unchanged", svc.Template.Path, svc.Definition.ImageName()))
	}

	if err := o.client.ApplyManifest(ctx, namespace, rendered.Text); err != nil {
		outcome.Error = err.Error()
		outcome.Diagnostics = o.diagnose(ctx, svc.Definition, namespace)
		record()
		return o.fail(report, &OrchestratorError{Kind: KindClusterApply, Step: reporting.StepServices, Resource: name, Err: err, Diagnostics: outcome.Diagnostics})
	}
	outcome.Applied = true

	if err := o.client.WaitForDeploymentAvailable(ctx, name, namespace, o.serviceTimeout); err != nil {
		outcome.Error = err.Error()
		outcome.Diagnostics = o.diagnose(ctx, svc.Definition, namespace)
		record()
		return o.fail(report, &OrchestratorError{Kind: waitErrorKind(err), Step: reporting.StepServices, Resource: name, Err: err, Diagnostics: outcome.Diagnostics})
	}
	outcome.BecameAvailable = true
	record()

	o.emit(report, reporting.StepUpdate{
		Step:     reporting.StepServices,
		Subject:  name,
		State:    reporting.StateSucceeded,
		Message:  "Deployment is available",
		Duration: outcome.Duration,
	})
	return nil
}

// diagnose collects the deployment description and recent pod logs. The
// caller's context may already be cancelled, so a detached one is used.
func (o *Orchestrator) diagnose(ctx context.Context, svc config.ServiceDefinition, namespace string) *Diagnostics {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), diagnosticsTimeout)
	defer cancel()

	diag := &Diagnostics{}
	description, err := o.client.DescribeDeployment(dctx, svc.Name, namespace)
	if err != nil {
		diag.Description = fmt.Sprintf("<description unavailable: %v>", err)
	} else {
		diag.Description = description
	}
	logs, err := o.client.GetPodLogs(dctx, svc.LabelSelector(), namespace, DiagnosticsTailLines)
	if err != nil {
		diag.Logs = fmt.Sprintf("<logs unavailable: %v>", err)
	} else {
		diag.Logs = logs
	}
	return diag
}

// applyGroup applies a group of supporting resources. Members of a group are
// applied concurrently and the first failure cancels the others.
func (o *Orchestrator) applyGroup(ctx context.Context, namespace string, group ResourceGroup, subst manifest.Substitution, report *DeploymentReport) error {
	if len(group.Resources) == 1 {
		res := group.Resources[0]
		outcome, err := o.applyResource(ctx, reporting.StepSupporting, namespace, res.Definition.Name, res.Template, subst, report)
		report.Resources = append(report.Resources, outcome)
		if err != nil {
			return o.fail(report, &OrchestratorError{Kind: KindClusterApply, Step: reporting.StepSupporting, Resource: res.Definition.Name, Err: err})
		}
		return nil
	}

	outcomes := make([]ResourceOutcome, len(group.Resources))
	g, gctx := errgroup.WithContext(ctx)
	for i, res := range group.Resources {
		g.Go(func() error {
			outcome, err := o.applyResource(gctx, reporting.StepSupporting, namespace, res.Definition.Name, res.Template, subst, report)
			outcomes[i] = outcome
			if err != nil {
				return &OrchestratorError{Kind: KindClusterApply, Step: reporting.StepSupporting, Resource: res.Definition.Name, Err: err}
			}
			return nil
		})
	}
	err := g.Wait()
	report.Resources = append(report.Resources, outcomes...)
	if err != nil {
		var oe *OrchestratorError
		if !errors.As(err, &oe) {
			oe = &OrchestratorError{Kind: KindClusterApply, Step: reporting.StepSupporting, Resource: group.Name, Err: err}
		}
		return o.fail(report, oe)
	}
	return nil
}

// applyResource renders and applies one supporting manifest. The report is
// updated by the caller so concurrent group members never write to it.
func (o *Orchestrator) applyResource(ctx context.Context, step reporting.Step, namespace, name string, t manifest.Template, subst manifest.Substitution, report *DeploymentReport) (ResourceOutcome, error) {
	start := o.now()
	outcome := ResourceOutcome{Step: step, Name: name, Template: t.Path}
	o.emit(report, reporting.StepUpdate{Step: step, Subject: name, State: reporting.StateStarted, Message: "Applying " + t.Path})

	rendered, err := o.store.Render(t, subst)
	if err == nil {
		err = o.client.ApplyManifest(ctx, namespace, rendered.Text)
	}
	outcome.Duration = o.now().Sub(start)
	if err != nil {
		outcome.Error = err.Error()
		return outcome, err
	}
	outcome.Applied = true
	o.emit(report, reporting.StepUpdate{Step: step, Subject: name, State: reporting.StateSucceeded, Message: "Applied " + t.Path, Duration: outcome.Duration})
	return outcome, nil
}

// runPostSteps applies the environment specific manifests. Steps gated on a
// CRD are skipped with a warning when the CRD is absent.
func (o *Orchestrator) runPostSteps(ctx context.Context, namespace string, steps []PostStepPlan, subst manifest.Substitution, report *DeploymentReport) error {
	for _, ps := range steps {
		name := ps.Step.Name
		if crd := ps.Step.RequiresCRD; crd != "" {
			installed, err := o.client.ProbeCRDInstalled(ctx, crd)
			if err != nil || !installed {
				reason := fmt.Sprintf("CRD %s is not installed", crd)
				if err != nil {
					reason = fmt.Sprintf("CRD %s could not be probed: %v", crd, err)
				}
				o.warn(report, reporting.StepPostSteps, name, fmt.Sprintf("Skipping %s: %s", ps.Template.Path, reason))
				report.Resources = append(report.Resources, ResourceOutcome{
					Step:     reporting.StepPostSteps,
					Name:     name,
					Template: ps.Template.Path,
					Skipped:  true,
				})
				continue
			}
			if err := o.store.Check([]manifest.Template{ps.Template}); err != nil {
				return o.fail(report, &OrchestratorError{Kind: KindConfiguration, Step: reporting.StepPostSteps, Resource: name, Err: err})
			}
		}

		outcome, err := o.applyResource(ctx, reporting.StepPostSteps, namespace, name, ps.Template, subst, report)
		report.Resources = append(report.Resources, outcome)
		if err != nil {
			return o.fail(report, &OrchestratorError{Kind: KindClusterApply, Step: reporting.StepPostSteps, Resource: name, Err: err})
		}
	}
	return nil
}

// runHealthChecks probes every Service of the namespace. Failures only end
// up in the report.
func (o *Orchestrator) runHealthChecks(ctx context.Context, namespace string, report *DeploymentReport) {
	services, err := o.client.ListServices(ctx, namespace)
	if err != nil {
		o.warn(report, reporting.StepHealthChecks, "", fmt.Sprintf("Health checks skipped: %v", err))
		return
	}

	for _, svc := range services {
		result := o.health.CheckHealth(ctx, svc)
		report.HealthChecks = append(report.HealthChecks, result)

		update := reporting.StepUpdate{Step: reporting.StepHealthChecks, Subject: svc.Name}
		switch result.Status {
		case HealthOK:
			update.State = reporting.StateSucceeded
			update.Message = fmt.Sprintf("%s returned %d", result.URL, result.StatusCode)
		case HealthNoExternalEndpoint:
			update.State = reporting.StateSucceeded
			update.Message = "No external endpoint"
		default:
			update.State = reporting.StateWarning
			update.Message = "Health check failed: " + result.Error
		}
		o.emit(report, update)
	}
}

// collect snapshots pods and services into the report.
func (o *Orchestrator) collect(ctx context.Context, report *DeploymentReport) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), diagnosticsTimeout)
	defer cancel()

	namespace := report.Request.Namespace
	pods, err := o.client.ListPods(cctx, namespace)
	if err != nil {
		o.warn(report, reporting.StepCollect, "", fmt.Sprintf("Could not list pods: %v", err))
	} else {
		report.Pods = pods
	}
	services, err := o.client.ListServices(cctx, namespace)
	if err != nil {
		o.warn(report, reporting.StepCollect, "", fmt.Sprintf("Could not list services: %v", err))
	} else {
		report.Services = services
	}
}

func (o *Orchestrator) emit(report *DeploymentReport, update reporting.StepUpdate) {
	update.RunID = report.RunID
	if update.Timestamp.IsZero() {
		update.Timestamp = o.now()
	}
	o.reporter.Report(update)
}

// warn records a non-fatal problem in the report and the narrative.
func (o *Orchestrator) warn(report *DeploymentReport, step reporting.Step, subject, message string) {
	report.Warnings = append(report.Warnings, message)
	o.emit(report, reporting.StepUpdate{Step: step, Subject: subject, State: reporting.StateWarning, Message: message})
}

// fail reports a fatal error and returns it.
func (o *Orchestrator) fail(report *DeploymentReport, oe *OrchestratorError) error {
	update := reporting.StepUpdate{
		Step:        oe.Step,
		Subject:     oe.Resource,
		State:       reporting.StateFailed,
		Message:     fmt.Sprintf("%s error", oe.Kind),
		ErrorDetail: oe.Err,
	}
	if oe.Diagnostics != nil {
		update.Details = "Description:\n" + oe.Diagnostics.Description + "\nLogs:\n" + oe.Diagnostics.Logs
	}
	o.emit(report, update)
	return oe
}

func waitErrorKind(err error) ErrorKind {
	if errors.Is(err, kube.ErrTimeout) {
		return KindAvailabilityTimeout
	}
	return KindClusterApply
}
