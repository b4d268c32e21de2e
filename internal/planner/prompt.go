package planner

import (
	"fmt"
	"strings"
)

const planInstructions = `You are a task planner. Decompose the goal into a small ordered list of concrete steps.

Respond with JSON only, in this exact shape:
{
  "tasks": [
    {
      "id": "1",
      "description": "what to do",
      "dependencies": [],
      "estimated_duration": "5m"
    }
  ]
}

Rules:
- Each step must have a unique id and a non-empty description.
- dependencies lists the ids of steps that must finish first.
- Dependencies must never form a cycle.
- Keep the plan as short as the goal allows.
- Do not include any text outside the JSON object.`

// buildPrompt assembles the planning prompt for one request.
func buildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString(planInstructions)
	b.WriteString("\n\nGoal: ")
	b.WriteString(req.Goal)
	if req.Domain != "" {
		fmt.Fprintf(&b, "\nDomain: %s", req.Domain)
	}
	if len(req.Constraints) > 0 {
		b.WriteString("\nConstraints:")
		for _, c := range req.Constraints {
			fmt.Fprintf(&b, "\n- %s", c)
		}
	}
	return b.String()
}
