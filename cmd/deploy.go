package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"deployctl/internal/color"
	"deployctl/internal/config"
	"deployctl/internal/metrics"
	"deployctl/internal/orchestrator"
	"deployctl/internal/reporting/render"
	"deployctl/pkg/logging"

	"github.com/spf13/cobra"
)

var (
	deployOutput      string
	deployMetricsFile string
)

func newDeployCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy [environment] [namespace] [image-tag]",
		Short: "Deploy the application stack to a namespace",
		Long: `Deploys the application stack to a Kubernetes namespace.

Steps, in order:
  1. Validate the request and that every manifest template exists.
  2. Create the namespace if it does not exist.
  3. Apply each core service with its image rewritten to the requested
     tag and wait for the deployment to become available. The first
     service that does not become available aborts the run with its
     description and recent logs.
  4. Apply the databases (concurrently), the message broker, the
     configuration and the secrets.
  5. Apply the environment's post steps (autoscaling, monitoring).
  6. Wait for every deployment in the namespace and check the external
     endpoint of every Service in the namespace.

Arguments:
  [environment]: staging (default) or production, as configured.
  [namespace]:   Target namespace; defaults to the environment name.
  [image-tag]:   Tag of the four service images; defaults to "latest".

Interrupting the command (Ctrl+C) stops the run at the next step boundary
and still prints the report.`,
		Args: cobra.MaximumNArgs(3),
		RunE: runDeploy,
	}

	cmd.Flags().StringVarP(&deployOutput, "output", "o", string(render.FormatText), "Report format: text, json or yaml")
	cmd.Flags().StringVar(&deployMetricsFile, "metrics-file", "", "Write run metrics in Prometheus textfile format to this path")
	return cmd
}

// requestFromArgs applies the positional defaults of deploy and plan.
func requestFromArgs(args []string) orchestrator.DeploymentRequest {
	environment, namespace, tag := config.EnvironmentStaging, "", ""
	if len(args) > 0 {
		environment = args[0]
	}
	if len(args) > 1 {
		namespace = args[1]
	}
	if len(args) > 2 {
		tag = args[2]
	}
	return orchestrator.NewDeploymentRequest(environment, namespace, tag)
}

func runDeploy(cmd *cobra.Command, args []string) error {
	format, err := render.ParseFormat(deployOutput)
	if err != nil {
		return err
	}

	application, err := newApplication()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	color.Setup(out)

	report, deployErr := application.Deploy(ctx, requestFromArgs(args))
	if report == nil {
		return deployErr
	}

	if err := render.Write(out, report, format); err != nil {
		logging.Error("Deploy", err, "Failed to write report")
	}
	if deployMetricsFile != "" {
		if err := metrics.WriteReport(deployMetricsFile, report); err != nil {
			logging.Error("Deploy", err, "Failed to write metrics to %s", deployMetricsFile)
		} else {
			logging.Debug("Deploy", "Wrote metrics to %s", deployMetricsFile)
		}
	}

	if deployErr != nil {
		return fmt.Errorf("deployment %s failed: %w", report.RunID, deployErr)
	}
	return nil
}
