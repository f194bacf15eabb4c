package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"deployctl/internal/color"
	"deployctl/internal/orchestrator"

	"gopkg.in/yaml.v3"
)

// Format selects how a DeploymentReport is written.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates an --output value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (use text, json or yaml)", s)
	}
}

// Write renders report to w in the given format.
func Write(w io.Writer, report *orchestrator.DeploymentReport, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	case FormatText, "":
		_, err := io.WriteString(w, Text(report))
		return err
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// Text renders the human-readable summary of a run.
func Text(report *orchestrator.DeploymentReport) string {
	var b strings.Builder

	b.WriteString(color.TitleStyle.Render("Deployment "+report.RunID) + "\n")
	req := report.Request
	fmt.Fprintf(&b, "  environment: %s  namespace: %s  tag: %s\n", req.Environment, req.Namespace, req.ImageTag)
	if c := report.Cluster; c != nil {
		fmt.Fprintf(&b, "  cluster:     %s (%s), %d/%d nodes ready\n", c.ServerVersion, c.Provider, c.ReadyNodes, c.TotalNodes)
	}
	fmt.Fprintf(&b, "  duration:    %s\n", formatDuration(report.Duration()))
	if report.Succeeded() {
		b.WriteString("  result:      " + color.SuccessStyle.Render("SUCCEEDED") + "\n")
	} else {
		b.WriteString("  result:      " + color.ErrorStyle.Render("FAILED") + "\n")
	}

	if len(report.Outcomes) > 0 {
		b.WriteString("\n" + color.HeaderStyle.Render("Services") + "\n")
		t := newTable("SERVICE", "IMAGE", "APPLIED", "AVAILABLE", "DURATION")
		for _, o := range report.Outcomes {
			t.add(plain(o.ServiceName), plain(o.Image), yesNo(o.Applied), yesNo(o.BecameAvailable),
				styled(formatDuration(o.Duration), color.MutedStyle))
		}
		b.WriteString(t.render(color.HeaderStyle))
	}

	if len(report.Resources) > 0 {
		b.WriteString("\n" + color.HeaderStyle.Render("Resources") + "\n")
		t := newTable("STEP", "NAME", "TEMPLATE", "RESULT")
		for _, r := range report.Resources {
			var result cell
			switch {
			case r.Skipped:
				result = styled("skipped", color.WarningStyle)
			case r.Applied:
				result = styled("applied", color.SuccessStyle)
			default:
				result = styled("failed: "+r.Error, color.ErrorStyle)
			}
			t.add(plain(string(r.Step)), plain(r.Name), plain(r.Template), result)
		}
		b.WriteString(t.render(color.HeaderStyle))
	}

	if len(report.HealthChecks) > 0 {
		b.WriteString("\n" + color.HeaderStyle.Render("Health checks") + "\n")
		t := newTable("SERVICE", "STATUS", "URL", "DETAIL")
		for _, hc := range report.HealthChecks {
			status := styled(string(hc.Status), color.SuccessStyle)
			switch hc.Status {
			case orchestrator.HealthFailed:
				status = styled(string(hc.Status), color.WarningStyle)
			case orchestrator.HealthNoExternalEndpoint:
				status = styled(string(hc.Status), color.MutedStyle)
			}
			detail := hc.Error
			if detail == "" && hc.StatusCode != 0 {
				detail = strconv.Itoa(hc.StatusCode)
			}
			t.add(plain(hc.Service), status, plain(dash(hc.URL)), plain(detail))
		}
		b.WriteString(t.render(color.HeaderStyle))
	}

	if len(report.Pods) > 0 {
		b.WriteString("\n" + color.HeaderStyle.Render("Pods") + "\n")
		t := newTable("NAME", "PHASE", "READY", "RESTARTS", "NODE")
		for _, p := range report.Pods {
			t.add(plain(p.Name), plain(p.Phase), plain(p.Ready), plain(strconv.Itoa(int(p.Restarts))), plain(dash(p.Node)))
		}
		b.WriteString(t.render(color.HeaderStyle))
	}

	if len(report.Services) > 0 {
		b.WriteString("\n" + color.HeaderStyle.Render("Kubernetes services") + "\n")
		t := newTable("NAME", "TYPE", "CLUSTER-IP", "EXTERNAL", "PORTS")
		for _, s := range report.Services {
			ports := make([]string, 0, len(s.Ports))
			for _, p := range s.Ports {
				ports = append(ports, strconv.Itoa(int(p)))
			}
			t.add(plain(s.Name), plain(s.Type), plain(dash(s.ClusterIP)), plain(dash(s.ExternalAddress)), plain(dash(strings.Join(ports, ","))))
		}
		b.WriteString(t.render(color.HeaderStyle))
	}

	if len(report.Warnings) > 0 {
		b.WriteString("\n" + color.HeaderStyle.Render("Warnings") + "\n")
		for _, w := range report.Warnings {
			b.WriteString(color.WarningStyle.Render("! "+w) + "\n")
		}
	}

	if !report.Succeeded() {
		b.WriteString("\n" + color.ErrorStyle.Render("Error") + "\n")
		b.WriteString(report.FatalError + "\n")
		for _, o := range report.Outcomes {
			if o.Diagnostics == nil {
				continue
			}
			b.WriteString("\n" + color.HeaderStyle.Render("Diagnostics for "+o.ServiceName) + "\n")
			b.WriteString(color.BoxStyle.Render(strings.TrimRight(o.Diagnostics.Description, "\n")) + "\n")
			b.WriteString(color.MutedStyle.Render("Last log lines:") + "\n")
			b.WriteString(indent(o.Diagnostics.Logs, "  "))
		}
	}
	return b.String()
}

func yesNo(v bool) cell {
	if v {
		return styled("yes", color.SuccessStyle)
	}
	return styled("no", color.ErrorStyle)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}

func indent(text, prefix string) string {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n") + "\n"
}
