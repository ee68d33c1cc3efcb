package lifecycle

import (
	"fmt"
	"strings"
	"sync"
)

// ExitReason classifies the overall outcome of a run. The numeric value
// is the process exit code, so calling automation can branch on why a
// run failed.
type ExitReason int

const (
	// ExitSuccess means every step completed.
	ExitSuccess ExitReason = 0
	// ExitProvisionFailure means infrastructure apply or destroy failed.
	ExitProvisionFailure ExitReason = 1
	// ExitValidationFailure means descriptors could not be resolved or
	// validated.
	ExitValidationFailure ExitReason = 2
	// ExitCleanupFailure means one or more cleanup steps failed;
	// resources may remain and require manual reconciliation.
	ExitCleanupFailure ExitReason = 3
)

func (e ExitReason) String() string {
	switch e {
	case ExitSuccess:
		return "success"
	case ExitProvisionFailure:
		return "provision-failure"
	case ExitValidationFailure:
		return "validation-failure"
	case ExitCleanupFailure:
		return "cleanup-failure"
	default:
		return fmt.Sprintf("exit-reason(%d)", int(e))
	}
}

// severity ranks reasons so the final exit reflects the worst failure
// observed, not merely the last one.
func (e ExitReason) severity() int {
	switch e {
	case ExitProvisionFailure:
		return 3
	case ExitValidationFailure:
		return 2
	case ExitCleanupFailure:
		return 1
	default:
		return 0
	}
}

// StepOutcome records the result of a single lifecycle step.
type StepOutcome struct {
	Name        string
	Succeeded   bool
	ErrorDetail string
}

// RunResult accumulates per-step outcomes across a lifecycle run. It is
// the only state shared between parallel unit groups, so all mutation is
// mutex-guarded.
type RunResult struct {
	mu           sync.Mutex
	steps        []StepOutcome
	failureCount int
	reason       ExitReason
}

// NewRunResult creates an empty accumulator.
func NewRunResult() *RunResult {
	return &RunResult{}
}

// Record appends a step outcome. It never raises: a failed cleanup step
// is captured here so that sibling steps still get their turn.
func (r *RunResult) Record(step string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err == nil {
		r.steps = append(r.steps, StepOutcome{Name: step, Succeeded: true})
		return
	}

	r.steps = append(r.steps, StepOutcome{Name: step, Succeeded: false, ErrorDetail: err.Error()})
	r.failureCount++
	r.escalateLocked(ExitCleanupFailure)
}

// Escalate raises the run's exit classification. Lower-severity reasons
// never overwrite higher ones.
func (r *RunResult) Escalate(reason ExitReason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.escalateLocked(reason)
}

func (r *RunResult) escalateLocked(reason ExitReason) {
	if reason.severity() > r.reason.severity() {
		r.reason = reason
	}
}

// ExitReason returns the worst-ranked classification observed so far.
func (r *RunResult) ExitReason() ExitReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reason
}

// ExitCode returns the process exit code for this run.
func (r *RunResult) ExitCode() int {
	return int(r.ExitReason())
}

// FailureCount returns the number of failed steps recorded.
func (r *RunResult) FailureCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failureCount
}

// Steps returns a copy of the recorded outcomes in order.
func (r *RunResult) Steps() []StepOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StepOutcome, len(r.steps))
	copy(out, r.steps)
	return out
}

// Failures returns only the failed outcomes.
func (r *RunResult) Failures() []StepOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []StepOutcome
	for _, s := range r.steps {
		if !s.Succeeded {
			out = append(out, s)
		}
	}
	return out
}

// Report renders every recorded failure with enough context to act on.
func (r *RunResult) Report() string {
	failures := r.Failures()
	if len(failures) == 0 {
		return "run completed: all steps succeeded"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "run completed with %d failed steps (%s):\n", len(failures), r.ExitReason())
	for _, f := range failures {
		fmt.Fprintf(&b, "  - %s: %s\n", f.Name, f.ErrorDetail)
	}
	return strings.TrimRight(b.String(), "\n")
}
