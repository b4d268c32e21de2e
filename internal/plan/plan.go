// Package plan defines the decomposition produced by the planner and the
// validator that gates it before any step is persisted or executed.
package plan

import "fmt"

// Step is one planned unit of work. Dependencies reference other step ids in
// the same plan.
type Step struct {
	ID                string   `json:"id"`
	Description       string   `json:"description"`
	Dependencies      []string `json:"dependencies,omitempty"`
	EstimatedDuration string   `json:"estimated_duration,omitempty"`
}

// Plan is the decoded generator output. Models emit the step list under
// either a "tasks" or a "steps" key; both are accepted, with "tasks" taking
// precedence when both appear.
type Plan struct {
	Tasks []Step `json:"tasks"`
	Steps []Step `json:"steps"`
}

// Entries returns the effective step list.
func (p *Plan) Entries() []Step {
	if len(p.Tasks) > 0 {
		return p.Tasks
	}
	return p.Steps
}

// InvalidPlanError is the single failure mode of validation. Reason is a
// human-readable description of the first defect found.
type InvalidPlanError struct {
	Reason string
}

func (e *InvalidPlanError) Error() string {
	return fmt.Sprintf("invalid plan: %s", e.Reason)
}
