package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"deployctl/internal/config"
	"deployctl/internal/manifest"
)

// ServiceStep is one core service of a plan.
type ServiceStep struct {
	Definition config.ServiceDefinition
	Template   manifest.Template
	Image      string // Fully qualified reference the template is rewritten to
}

// ResourceStep is one supporting resource of a plan.
type ResourceStep struct {
	Definition config.ResourceDefinition
	Template   manifest.Template
}

// ResourceGroup is a run of supporting resources applied together. A group
// with more than one member has no ordering among its members.
type ResourceGroup struct {
	Name      string
	Resources []ResourceStep
}

// PostStepPlan is one environment specific post step.
type PostStepPlan struct {
	Step     config.PostStep
	Template manifest.Template
}

// Plan is the fully resolved, ordered work of one run.
type Plan struct {
	Request     DeploymentRequest
	Environment config.EnvironmentDefinition
	Services    []ServiceStep
	Supporting  []ResourceGroup
	PostSteps   []PostStepPlan
}

// BuildPlan resolves the environment table row for req into an ordered plan.
// It does not touch the file system or the cluster.
func BuildPlan(cfg config.DeployctlConfig, store *manifest.Store, req DeploymentRequest) (*Plan, error) {
	if req.Namespace == "" {
		return nil, fmt.Errorf("namespace must not be empty")
	}
	env, ok := cfg.Environment(req.Environment)
	if !ok {
		names := cfg.EnvironmentNames()
		sort.Strings(names)
		return nil, fmt.Errorf("unknown environment %q (known: %s)", req.Environment, strings.Join(names, ", "))
	}

	plan := &Plan{Request: req, Environment: env}

	for _, svc := range cfg.Services {
		registry := cfg.Registries.Host(svc.Registry)
		if registry == "" {
			return nil, fmt.Errorf("service %s: no registry configured for role %q", svc.Name, svc.Registry)
		}
		plan.Services = append(plan.Services, ServiceStep{
			Definition: svc,
			Template:   store.Resolve(svc.Name, env.ManifestDir, svc.TemplateName(), env.StagingVariant),
			Image:      manifest.ImageReference(registry, svc.ImageName(), req.ImageTag),
		})
	}

	for _, res := range cfg.Supporting {
		step := ResourceStep{
			Definition: res,
			Template:   store.Resolve(res.Name, env.ManifestDir, res.Template, env.StagingVariant),
		}
		last := len(plan.Supporting) - 1
		if res.Group != "" && last >= 0 && plan.Supporting[last].Name == res.Group {
			plan.Supporting[last].Resources = append(plan.Supporting[last].Resources, step)
			continue
		}
		name := res.Group
		if name == "" {
			name = res.Name
		}
		plan.Supporting = append(plan.Supporting, ResourceGroup{Name: name, Resources: []ResourceStep{step}})
	}

	for _, ps := range env.PostSteps {
		plan.PostSteps = append(plan.PostSteps, PostStepPlan{
			Step:     ps,
			Template: store.Resolve(ps.Name, env.ManifestDir, ps.Template, env.StagingVariant),
		})
	}
	return plan, nil
}

// Templates lists every template the plan may apply, in plan order.
func (p *Plan) Templates() []manifest.Template {
	return p.templates(true)
}

// RequiredTemplates is Templates without the post steps gated on a CRD;
// those are only read once the probe succeeds.
func (p *Plan) RequiredTemplates() []manifest.Template {
	return p.templates(false)
}

func (p *Plan) templates(includeGated bool) []manifest.Template {
	var out []manifest.Template
	for _, s := range p.Services {
		out = append(out, s.Template)
	}
	for _, g := range p.Supporting {
		for _, r := range g.Resources {
			out = append(out, r.Template)
		}
	}
	for _, ps := range p.PostSteps {
		if ps.Step.RequiresCRD != "" && !includeGated {
			continue
		}
		out = append(out, ps.Template)
	}
	return out
}

// Substitution returns the rewrite applied to every template of the plan.
// Every core service image is included so that manifests referencing a
// sibling image are rewritten consistently.
func (p *Plan) Substitution() manifest.Substitution {
	images := make(map[string]string, len(p.Services))
	for _, s := range p.Services {
		images[s.Definition.ImageName()] = s.Image
	}
	return manifest.Substitution{
		Images:           images,
		Namespace:        p.Request.Namespace,
		RewriteNamespace: !p.Environment.StagingVariant,
	}
}
