package scenario

import (
	"time"
)

// Report is the outcome of one scenario run
type Report struct {
	RunID        string        `json:"run_id" yaml:"run_id"`
	Scenario     string        `json:"scenario" yaml:"scenario"`
	StartedAt    time.Time     `json:"started_at" yaml:"started_at"`
	Duration     time.Duration `json:"duration_ns" yaml:"duration"`
	Passed       bool          `json:"passed" yaml:"passed"`
	Observations []Observation `json:"observations,omitempty" yaml:"observations,omitempty"`
	Checks       []Check       `json:"checks" yaml:"checks"`
	Error        string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// Result is the label used for metrics
func (r Report) Result() string {
	switch {
	case r.Error != "":
		return "error"
	case !r.Passed:
		return "failed"
	default:
		return "passed"
	}
}

// FailedChecks lists the checks that did not pass
func (r Report) FailedChecks() []string {
	return failedLabels(r.Checks)
}

// AllPassed reports whether every report passed
func AllPassed(reports []Report) bool {
	for _, r := range reports {
		if !r.Passed {
			return false
		}
	}
	return true
}
