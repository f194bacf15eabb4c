// Package orchestrator runs deployments of the shop application into a
// Kubernetes namespace.
//
// A run is driven by a Plan, resolved from one row of the environment table
// in the configuration. Deploy walks the plan strictly in order and stops at
// the first fatal error:
//
//  1. Validate the request and check every template exists in the store
//  2. Create the namespace if it is absent
//  3. Apply each core service and wait for its deployment to become available
//  4. Apply the supporting resources (databases, broker, config, secrets)
//  5. Apply the environment's post steps, skipping CRD gated ones when the
//     CRD is missing
//  6. Wait for every deployment of the namespace
//  7. Health check every Service that has an external address
//  8. Snapshot pods and services into the report
//
// The databases form one group: they are applied concurrently with
// errgroup and the first failure cancels the rest. Everything else is
// sequential.
//
// # Errors
//
// Fatal errors are returned as *OrchestratorError with one of the kinds
// configuration, namespace, cluster-apply or availability-timeout. When a
// core service fails, its deployment description and the last 50 log lines
// of its pods are captured into the outcome and the error. Health check
// failures and skipped monitoring never fail a run; they are recorded in the
// DeploymentReport only.
//
// # Usage Example
//
//	orch := orchestrator.New(cfg, manifest.NewStore("k8s"), client, reporting.NewConsoleReporter())
//	report, err := orch.Deploy(ctx, orchestrator.NewDeploymentRequest("production", "", "v1.2.3"))
//	if err != nil {
//	    var oe *orchestrator.OrchestratorError
//	    if errors.As(err, &oe) && oe.Diagnostics != nil {
//	        fmt.Println(oe.Diagnostics.Logs)
//	    }
//	}
//	_ = report
package orchestrator
