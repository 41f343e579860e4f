package scenario

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"sync"
)

// Check is one asserted reply
type Check struct {
	Label     string  `json:"label" yaml:"label"`
	Got       any     `json:"got" yaml:"got"`
	Want      any     `json:"want" yaml:"want"`
	Tolerance float64 `json:"tolerance,omitempty" yaml:"tolerance,omitempty"`
	Passed    bool    `json:"passed" yaml:"passed"`
}

// Observation is a reply that is reported but not asserted
type Observation struct {
	Label string `json:"label" yaml:"label"`
	Value any    `json:"value" yaml:"value"`
}

// Recorder collects what a scenario saw. It is safe for concurrent use.
type Recorder struct {
	mu           sync.Mutex
	observations []Observation
	checks       []Check
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// Observe records a reply without judging it
func (r *Recorder) Observe(label string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observations = append(r.observations, Observation{Label: label, Value: value})
}

// Expect records whether got equals want
func (r *Recorder) Expect(label string, got, want any) bool {
	return r.add(Check{Label: label, Got: got, Want: want, Passed: reflect.DeepEqual(got, want)})
}

// ExpectSet compares two string collections ignoring order
func (r *Recorder) ExpectSet(label string, got, want []string) bool {
	return r.add(Check{Label: label, Got: got, Want: want, Passed: sameMembers(got, want)})
}

// Within records whether got is within a relative tolerance of want
func (r *Recorder) Within(label string, got, want, tolerance float64) bool {
	passed := math.Abs(got-want) <= math.Abs(want)*tolerance
	return r.add(Check{Label: label, Got: got, Want: want, Tolerance: tolerance, Passed: passed})
}

func (r *Recorder) True(label string, got bool) bool {
	return r.Expect(label, got, true)
}

func (r *Recorder) False(label string, got bool) bool {
	return r.Expect(label, got, false)
}

// Failed reports whether any check failed
func (r *Recorder) Failed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.checks {
		if !c.Passed {
			return true
		}
	}
	return false
}

func (r *Recorder) Checks() []Check {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Check(nil), r.checks...)
}

func (r *Recorder) Observations() []Observation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Observation(nil), r.observations...)
}

func (r *Recorder) add(c Check) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks = append(r.checks, c)
	return c.Passed
}

func sameMembers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	return reflect.DeepEqual(x, y)
}

// failedLabels lists the labels of failed checks, for logs and errors
func failedLabels(checks []Check) []string {
	var out []string
	for _, c := range checks {
		if !c.Passed {
			out = append(out, fmt.Sprintf("%s (got %v, want %v)", c.Label, c.Got, c.Want))
		}
	}
	return out
}
