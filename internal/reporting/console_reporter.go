package reporting

import (
	"strings"
	"time"

	"deployctl/pkg/logging"
)

// ConsoleReporter is an implementation of ProgressReporter that writes the
// progress narrative through the pkg/logging package.
type ConsoleReporter struct{}

// NewConsoleReporter creates a new ConsoleReporter
func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{}
}

// Report logs a StepUpdate at a level derived from its state.
func (c *ConsoleReporter) Report(update StepUpdate) {
	if update.Timestamp.IsZero() {
		update.Timestamp = time.Now()
	}

	subsystem := string(update.Step)
	if update.Subject != "" {
		subsystem = string(update.Step) + "-" + update.Subject
	}

	logMessage := update.Message
	if logMessage == "" {
		logMessage = "State: " + string(update.State)
	}
	if update.Duration > 0 {
		logMessage += " (" + update.Duration.Round(time.Millisecond).String() + ")"
	}

	switch {
	case update.ErrorDetail != nil || update.State == StateFailed:
		logging.Error(subsystem, update.ErrorDetail, "%s", logMessage)
	case update.State == StateWarning || update.State == StateSkipped:
		logging.Warn(subsystem, "%s", logMessage)
	case update.State == StateStarted:
		logging.Debug(subsystem, "%s", logMessage)
	default:
		logging.Info(subsystem, "%s", logMessage)
	}

	if details := strings.TrimSpace(update.Details); details != "" {
		for _, line := range strings.Split(details, "\n") {
			logging.Info(subsystem, "  %s", line)
		}
	}
}
