package oracle

import (
	"fmt"
	"strings"

	"scenario-server/internal/interfaces"
)

// RenderSystemPrompt строит системный промт выбора пути для одного шага сценария.
func RenderSystemPrompt(req interfaces.SelectionRequest) string {
	var b strings.Builder

	b.WriteString("You are a path selector for a branching scenario graph. ")
	b.WriteString("Your job is to choose the next node based on how well the user's response matches each option's condition.\n\n")

	b.WriteString("## Scenario\n")
	fmt.Fprintf(&b, "- **Graph:** %s\n", req.GraphTitle)
	fmt.Fprintf(&b, "- **Context:** %s\n\n", req.GraphPrompt)

	b.WriteString("## Current node\n")
	fmt.Fprintf(&b, "- **ID:** %s\n", req.CurrentNodeID)
	fmt.Fprintf(&b, "- **Title:** %s\n", req.CurrentNodeTitle)
	fmt.Fprintf(&b, "- **Script (what was just said in the scenario):** %q\n\n", req.CurrentNodeScript)

	b.WriteString("## Available branches (pick exactly one)\n")
	for i, opt := range req.Options {
		fmt.Fprintf(&b, "  %d. Condition: %q → next node: %s\n", i+1, opt.Condition, opt.NodeID)
	}
	if req.FallbackNodeID != "" {
		fmt.Fprintf(&b, "- **Fallback:** If no condition fits well, use node: %s\n", req.FallbackNodeID)
	}
	b.WriteString("\n")

	b.WriteString("## Conversation so far\n")
	if len(req.History) == 0 {
		b.WriteString("(none yet)\n")
	} else {
		b.WriteString(strings.Join(req.History, "\n"))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if req.EmotionContext != "" {
		b.WriteString("## Detected emotion\n")
		b.WriteString(req.EmotionContext)
		b.WriteString("\n\n")
	}

	b.WriteString("## Your task\n")
	b.WriteString("1. Interpret the user's latest response in the context of this scenario and the script that was just said.\n")
	b.WriteString("2. Match it to the **single best** option by semantic fit.\n")
	b.WriteString(`3. Reply with a JSON object {"nodeId": "<id>"} where <id> is one of the branch node ids above. No explanation, no extra text.`)
	b.WriteString("\n")
	return b.String()
}

const graphSystemPrompt = `You generate branching scenario graphs for interactive video stories. Given a user's story idea (prompt), output a single JSON object that matches the required schema.

Rules:
- id: use a short kebab slug (e.g. "coffee-date"). It will be overwritten by the app.
- title: a short, clear title for the scenario.
- prompt: copy the user's story prompt exactly; it will be overwritten by the app.
- startNodeId: must be the id of the first node the user will see (e.g. the first node in the nodes array).
- nodes: array of scenario nodes. Each node has:
  - id: unique string (e.g. "node-01", "welcome", "bad-ending").
  - title: short label for this step.
  - script: what the character says or what happens in this segment; can include dialogue in quotes.
  - options: array of { condition: string, nodeId: string }. condition describes when this branch is chosen (e.g. "User agrees politely"); nodeId is the id of the next node.
  - fallbackNodeId (optional): next node id when no option matches well.
  - toast (optional): { message, type } where type is positive, negative or neutral.
- Ensure every nodeId in options and fallbackNodeId refers to an existing node id in the graph.
- Create a coherent branching story: at least one start node, several branches, and some end nodes (nodes with no options).
- Keep the graph small enough to be manageable: roughly 5-15 nodes.`

func renderGraphUserPrompt(prompt string) string {
	return "Generate a branching scenario graph for this story idea:\n\n" + strings.TrimSpace(prompt)
}
