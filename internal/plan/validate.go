package plan

import (
	"fmt"
	"strings"

	"github.com/gammazero/toposort"
)

// Validate checks a plan's structure and dependency graph. It returns the
// steps in a valid execution order, or an InvalidPlanError describing the
// first defect: an empty plan, a step without id or description, a duplicate
// id, a reference to a non-existent step, or a dependency cycle. Validation
// is deterministic and touches nothing outside the plan.
func Validate(p *Plan) ([]Step, error) {
	entries := p.Entries()
	if len(entries) == 0 {
		return nil, &InvalidPlanError{Reason: "plan contains no steps"}
	}

	byID := make(map[string]Step, len(entries))
	for i, step := range entries {
		if step.ID == "" {
			return nil, &InvalidPlanError{Reason: fmt.Sprintf("step %d has no id", i)}
		}
		if step.Description == "" {
			return nil, &InvalidPlanError{Reason: fmt.Sprintf("step %q has no description", step.ID)}
		}
		if _, dup := byID[step.ID]; dup {
			return nil, &InvalidPlanError{Reason: fmt.Sprintf("duplicate step id %q", step.ID)}
		}
		byID[step.ID] = step
	}

	// Verify all references before sorting so a dangling dependency reports
	// as a missing step rather than a sort anomaly.
	for _, step := range entries {
		for _, dep := range step.Dependencies {
			if _, ok := byID[dep]; !ok {
				return nil, &InvalidPlanError{
					Reason: fmt.Sprintf("step %q depends on non-existent task %q", step.ID, dep),
				}
			}
		}
	}

	// Steps with no dependencies get an edge from nil so the sort still
	// includes them.
	var edges []toposort.Edge
	for _, step := range entries {
		if len(step.Dependencies) == 0 {
			edges = append(edges, toposort.Edge{nil, step.ID})
			continue
		}
		for _, dep := range step.Dependencies {
			edges = append(edges, toposort.Edge{dep, step.ID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, &InvalidPlanError{Reason: fmt.Sprintf("circular dependencies: %v", err)}
	}

	order := make([]Step, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, id := range sorted {
		if id == nil {
			continue
		}
		sid := id.(string)
		order = append(order, byID[sid])
		seen[sid] = true
	}

	// A cycle inside a disconnected component drops its members from the
	// sorted output instead of erroring. Catch that here.
	if len(order) != len(entries) {
		var lost []string
		for _, step := range entries {
			if !seen[step.ID] {
				lost = append(lost, step.ID)
			}
		}
		return nil, &InvalidPlanError{
			Reason: fmt.Sprintf("circular dependencies: steps %s unreachable in topological order", strings.Join(lost, ", ")),
		}
	}

	return order, nil
}
