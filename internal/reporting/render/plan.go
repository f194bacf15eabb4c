package render

import (
	"fmt"
	"strings"

	"deployctl/internal/color"
	"deployctl/internal/manifest"
	"deployctl/internal/orchestrator"
)

// PlanText renders the ordered work of a plan. Templates listed in missing
// are flagged.
func PlanText(plan *orchestrator.Plan, missing []manifest.Template) string {
	absent := make(map[string]bool, len(missing))
	for _, t := range missing {
		absent[t.Path] = true
	}
	templateCell := func(t manifest.Template) cell {
		if absent[t.Path] {
			return styled(t.Path+" (missing)", color.ErrorStyle)
		}
		return plain(t.Path)
	}

	var b strings.Builder
	req := plan.Request
	b.WriteString(color.TitleStyle.Render("Deployment plan") + "\n")
	fmt.Fprintf(&b, "  environment: %s  namespace: %s  tag: %s\n", req.Environment, req.Namespace, req.ImageTag)
	if plan.Environment.StagingVariant {
		b.WriteString("  templates declare their namespace inline; namespaces are not rewritten\n")
	}

	b.WriteString("\n" + color.HeaderStyle.Render("Services") + "\n")
	t := newTable("#", "SERVICE", "TEMPLATE", "IMAGE")
	for i, svc := range plan.Services {
		t.add(plain(fmt.Sprint(i+1)), plain(svc.Definition.Name), templateCell(svc.Template), plain(svc.Image))
	}
	b.WriteString(t.render(color.HeaderStyle))

	if len(plan.Supporting) > 0 {
		b.WriteString("\n" + color.HeaderStyle.Render("Supporting resources") + "\n")
		t := newTable("#", "GROUP", "NAME", "TEMPLATE")
		for i, group := range plan.Supporting {
			for _, res := range group.Resources {
				groupName := "-"
				if len(group.Resources) > 1 {
					groupName = group.Name + " (concurrent)"
				}
				t.add(plain(fmt.Sprint(i+1)), plain(groupName), plain(res.Definition.Name), templateCell(res.Template))
			}
		}
		b.WriteString(t.render(color.HeaderStyle))
	}

	if len(plan.PostSteps) > 0 {
		b.WriteString("\n" + color.HeaderStyle.Render("Post steps") + "\n")
		t := newTable("NAME", "TEMPLATE", "REQUIRES")
		for _, ps := range plan.PostSteps {
			t.add(plain(ps.Step.Name), templateCell(ps.Template), plain(dash(ps.Step.RequiresCRD)))
		}
		b.WriteString(t.render(color.HeaderStyle))
	}
	return b.String()
}
