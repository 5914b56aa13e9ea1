package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BuildSystemPrompt appends the tool catalogue and the call syntax to base.
// With no tools, base is returned unchanged.
func BuildSystemPrompt(base, prefix string, tools []ToolDescription) string {
	if len(tools) == 0 {
		return base
	}

	var sb strings.Builder
	sb.WriteString(base)
	sb.WriteString("\n\nAVAILABLE TOOLS:\n")
	sb.WriteString("To call a tool, respond with exactly:\n")
	fmt.Fprintf(&sb, "%s tool_name\n```json\n{\"arg1\": value1, \"arg2\": value2}\n```\n", prefix)
	sb.WriteString("You may call several tools in one reply, one block per call. ")
	sb.WriteString("Do not add anything else to a reply that calls tools.\n\n")
	sb.WriteString("TOOLS:\n")
	for _, t := range tools {
		fmt.Fprintf(&sb, "- %s: %s\n", t.Name, t.Description)
		params, err := json.MarshalIndent(t.Parameters, "  ", "  ")
		if err != nil {
			params = []byte("{}")
		}
		fmt.Fprintf(&sb, "  Parameters: %s\n", params)
	}
	return sb.String()
}
