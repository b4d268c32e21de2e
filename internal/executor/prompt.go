package executor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aristath/ecf/internal/tool"
)

const selectionInstructions = `You are a tool selector. Given a step and the available tools, choose the single best tool and its parameters.

Respond with JSON only, in this exact shape:
{
  "tool": "tool_name",
  "params": {},
  "rationale": "one sentence"
}

Rules:
- Choose exactly one tool from the list below.
- params must satisfy the tool's parameter schema.
- If no tool fits the step, respond with {"tool": "none", "params": {}, "rationale": "why"}.
- Do not include any text outside the JSON object.`

// buildSelectionPrompt renders the selection prompt with the registry's
// definitions inlined as JSON.
func buildSelectionPrompt(defs []tool.Definition, description, stepContext string) string {
	var b strings.Builder
	b.WriteString(selectionInstructions)
	b.WriteString("\n\nAvailable tools:\n")
	for _, def := range defs {
		encoded, err := json.Marshal(def)
		if err != nil {
			continue
		}
		b.Write(encoded)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "\nStep: %s", description)
	if stepContext != "" {
		fmt.Fprintf(&b, "\nContext:\n%s", stepContext)
	}
	return b.String()
}
