package workflow

import (
	"fmt"
	"strings"

	"github.com/devjn1998/projetoEvolutionApiChatWoot/errors"
)

// The system prompt of an agent node lives at one of two parameter locations
// depending on the node variant: parameters.options.systemMessage for agents
// configured with an options block, or parameters.text for the older shape.

// PromptOf reads the prompt text from a single node, preferring the
// options.systemMessage slot. A parameters.text value containing an embedded
// engine expression ("{{") is not a prompt and is skipped on read.
func PromptOf(n Node) (string, bool) {
	if n.Parameters == nil {
		return "", false
	}
	if options, ok := n.Parameters["options"].(map[string]any); ok {
		if msg, ok := options["systemMessage"].(string); ok && msg != "" {
			return msg, true
		}
	}
	if text, ok := n.Parameters["text"].(string); ok && text != "" && !strings.Contains(text, "{{") {
		return text, true
	}
	return "", false
}

// ExtractPrompt locates the agent node carrying the system prompt and returns
// its text. When several agent nodes exist, a node whose name contains
// nameHint (case-insensitive) is preferred; otherwise the first agent node
// wins. Returns ErrStructuralNotFound when no agent node carries a prompt.
func ExtractPrompt(w *Workflow, nameHint string) (string, error) {
	agents := w.NodesOfKind(KindAgent)
	if len(agents) == 0 {
		return "", errors.WrapInvalid(errors.ErrStructuralNotFound,
			"workflow", "ExtractPrompt", "locate agent node")
	}

	target := agents[0]
	if nameHint != "" {
		for _, node := range agents {
			if strings.Contains(strings.ToLower(node.Name), strings.ToLower(nameHint)) {
				target = node
				break
			}
		}
	}

	if prompt, ok := PromptOf(*target); ok {
		return prompt, nil
	}
	return "", errors.WrapInvalid(
		fmt.Errorf("agent node %q carries no prompt: %w", target.Name, errors.ErrStructuralNotFound),
		"workflow", "ExtractPrompt", "read prompt")
}

// setAgentPrompt writes newPrompt into whichever slot the node's existing
// parameter shape supports.
func setAgentPrompt(n *Node, newPrompt string) {
	if n.Parameters == nil {
		n.Parameters = make(map[string]any)
	}
	if options, ok := n.Parameters["options"].(map[string]any); ok {
		options["systemMessage"] = newPrompt
		return
	}
	n.Parameters["text"] = newPrompt
}

// UpdatePrompt writes newPrompt into the document's agent node(s) in place.
//
// With broad=false the patch targets one agent node: the first whose name
// contains nameHint case-insensitively, or the first agent node when the hint
// is empty or matches nothing. With broad=true every agent node and every
// language-model node is patched, covering model variants that read the
// prompt from their own systemMessage parameter.
//
// The update must fail loudly: when zero compatible nodes exist the document
// is left untouched and ErrStructuralNotFound is returned.
func UpdatePrompt(w *Workflow, newPrompt, nameHint string, broad bool) error {
	if broad {
		updated := 0
		for i := range w.Nodes {
			node := &w.Nodes[i]
			switch ClassifyNode(*node) {
			case KindAgent:
				setAgentPrompt(node, newPrompt)
				updated++
			case KindLanguageModel:
				if node.Parameters == nil {
					node.Parameters = make(map[string]any)
				}
				if options, ok := node.Parameters["options"].(map[string]any); ok {
					options["systemMessage"] = newPrompt
				}
				node.Parameters["systemMessage"] = newPrompt
				updated++
			}
		}
		if updated == 0 {
			return errors.WrapInvalid(
				fmt.Errorf("broad prompt update: %w", errors.ErrStructuralNotFound),
				"workflow", "UpdatePrompt", "locate compatible node")
		}
		return nil
	}

	agents := w.NodesOfKind(KindAgent)
	if len(agents) == 0 {
		return errors.WrapInvalid(
			fmt.Errorf("prompt update for hint %q: %w", nameHint, errors.ErrStructuralNotFound),
			"workflow", "UpdatePrompt", "locate agent node")
	}

	target := agents[0]
	if nameHint != "" {
		for _, node := range agents {
			if strings.Contains(strings.ToLower(node.Name), strings.ToLower(nameHint)) {
				target = node
				break
			}
		}
	}
	setAgentPrompt(target, newPrompt)
	return nil
}
