package cmd

import (
	"errors"
	"fmt"

	"deployctl/internal/color"
	"deployctl/internal/manifest"
	"deployctl/internal/reporting/render"

	"github.com/spf13/cobra"
)

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan [environment] [namespace] [image-tag]",
		Short: "Show what deploy would apply, without contacting the cluster",
		Long: `Resolves the environment, the manifest templates and the image
references of a deployment and prints them in execution order. Missing
templates are flagged and make the command fail. No cluster connection
is made.`,
		Args: cobra.MaximumNArgs(3),
		RunE: runPlan,
	}
}

func runPlan(cmd *cobra.Command, args []string) error {
	application, err := newApplication()
	if err != nil {
		return err
	}

	plan, planErr := application.Plan(requestFromArgs(args))
	if plan == nil {
		return planErr
	}

	var missing []manifest.Template
	if errors.Is(planErr, manifest.ErrMissingTemplates) {
		missing = application.Services().Store.Missing(plan.RequiredTemplates())
	}

	out := cmd.OutOrStdout()
	color.Setup(out)
	fmt.Fprint(out, render.PlanText(plan, missing))
	return planErr
}
