package dispatcher

import (
	"strings"

	"mcphub/internal/registry"
)

// basePrompt instructs the model to reason and act in explicit steps. Simple
// questions are answered directly without tools.
const basePrompt = `You are an intelligent assistant, using available tools to solve problems. Follow these steps:

1. THINKING: Analyze the problem, determine which tools and methods to use
2. ACTION: Choose an appropriate tool and use it
3. OBSERVATION: Analyze the results returned by the tool
4. Repeat steps 1-3 until you can provide a complete answer
5. ANSWER: Synthesize all information to provide the final answer

If the question is simple and doesn't require tools, answer directly. If tools are needed, follow the steps above.`

// systemPrompt builds the system prompt for one query, appending the
// catalog so the model sees which tools exist even before the tool
// definitions are attached to the request.
func systemPrompt(catalog []registry.AggregatedTool) string {
	if len(catalog) == 0 {
		return basePrompt
	}

	var b strings.Builder
	b.WriteString(basePrompt)
	b.WriteString("\n\nAvailable tools:\n")
	for _, entry := range catalog {
		b.WriteString("- ")
		b.WriteString(entry.QualifiedName)
		if entry.Tool.Description != "" {
			b.WriteString(": ")
			b.WriteString(entry.Tool.Description)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
