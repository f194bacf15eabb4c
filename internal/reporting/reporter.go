package reporting

import (
	"fmt"
	"sync"
	"time"
)

// Step names one phase of a deployment run.
type Step string

const (
	StepValidate     Step = "Validate"
	StepPreflight    Step = "Preflight"
	StepNamespace    Step = "Namespace"
	StepServices     Step = "Services"
	StepSupporting   Step = "Supporting"
	StepPostSteps    Step = "PostSteps"
	StepWaitAll      Step = "WaitAll"
	StepHealthChecks Step = "HealthChecks"
	StepCollect      Step = "Collect"
)

// String makes Step satisfy the fmt.Stringer interface.
func (s Step) String() string {
	return string(s)
}

// StepState is the state a step (or one subject of a step) moved into.
type StepState string

const (
	StateStarted   StepState = "Started"
	StateSucceeded StepState = "Succeeded"
	StateFailed    StepState = "Failed"
	StateSkipped   StepState = "Skipped"
	StateWarning   StepState = "Warning"
)

// StepUpdate is one line of the progress narrative of a run.
type StepUpdate struct {
	Timestamp time.Time
	RunID     string

	Step Step
	// Subject is the service, resource or URL the update is about; empty for
	// updates about the step as a whole.
	Subject string
	State   StepState
	Message string
	// Details holds multi-line diagnostics such as a deployment description.
	Details string

	Duration    time.Duration
	ErrorDetail error
}

// String provides a simple string representation for debugging the update itself.
func (u StepUpdate) String() string {
	return fmt.Sprintf("Update(TS: %s, Step: %s, Subject: %s, State: %s, Msg: '%s', Err: %v)",
		u.Timestamp.Format(time.RFC3339), u.Step, u.Subject, u.State, u.Message, u.ErrorDetail)
}

// ProgressReporter receives the progress narrative of a run.
type ProgressReporter interface {
	// Report processes an update. Implementations must be goroutine-safe;
	// supporting resources of one group report concurrently.
	Report(update StepUpdate)
}

// NopReporter discards every update.
type NopReporter struct{}

func (NopReporter) Report(StepUpdate) {}

// MultiReporter fans every update out to several reporters, in order.
type MultiReporter []ProgressReporter

func (m MultiReporter) Report(update StepUpdate) {
	for _, r := range m {
		if r != nil {
			r.Report(update)
		}
	}
}

// Recorder keeps every update in memory.
type Recorder struct {
	mu      sync.Mutex
	updates []StepUpdate
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Report(update StepUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, update)
}

// Updates returns a copy of the recorded updates.
func (r *Recorder) Updates() []StepUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StepUpdate, len(r.updates))
	copy(out, r.updates)
	return out
}

// Subjects returns the subjects of the updates of step in the given state,
// in the order they were reported.
func (r *Recorder) Subjects(step Step, state StepState) []string {
	var out []string
	for _, u := range r.Updates() {
		if u.Step == step && u.State == state && u.Subject != "" {
			out = append(out, u.Subject)
		}
	}
	return out
}
