package agent

import (
	"fmt"
	"strings"

	"github.com/semtexzv/termineer-sub001/grammar"
	"github.com/semtexzv/termineer-sub001/mcp"
	"github.com/semtexzv/termineer-sub001/tools"
)

// BuildSystemPrompt assembles the system prompt: the caller's base text,
// the invocation convention for the active grammar, and the catalog of
// built-in plus MCP tools.
func BuildSystemPrompt(base string, g grammar.Grammar, exec *tools.Executor, registry *mcp.Registry) string {
	var sb strings.Builder
	if base != "" {
		sb.WriteString(base)
		sb.WriteString("\n\n")
	}

	sb.WriteString("You can invoke tools. ")
	sb.WriteString("A tool call is written as shown below; the first line after the tool name is free-form arguments, subsequent lines are the body:\n\n")
	sb.WriteString(g.FormatToolCall("shell", "ls -la"))
	sb.WriteString("\n\nEmit at most one tool call, then stop and wait for its result. ")
	sb.WriteString("When the task is complete, invoke the `done` tool with a short summary as its body. ")
	sb.WriteString("To pause for the user's next message, invoke `wait`.\n\n")

	sb.WriteString("Available tools:\n")
	for _, name := range exec.Registry().Names() {
		t, _ := exec.Registry().Get(name)
		suffix := ""
		if exec.ReadOnly() && !tools.AllowedReadOnly(name) {
			suffix = " (unavailable in read-only mode)"
		}
		fmt.Fprintf(&sb, "- %s: %s%s\n", name, t.Description, suffix)
	}
	if registry != nil {
		for _, desc := range registry.Tools() {
			d := desc.Description
			if d == "" {
				d = "external tool"
			}
			fmt.Fprintf(&sb, "- %s: %s (arguments as a JSON object in the body)\n", desc.Name, d)
		}
	}
	return strings.TrimSpace(sb.String())
}
