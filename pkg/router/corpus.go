package router

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/hmle/talkdocs/internal/models"
	"github.com/hmle/talkdocs/internal/types"
	"github.com/hmle/talkdocs/pkg/index"
)

const defaultMaxIterations = 10

var (
	answerRe = regexp.MustCompile(`(?is)^\s*answer:\s*(.*)$`)
	toolRe   = regexp.MustCompile(`(?i)^\s*tool:\s*(\S+)\s*$`)
	inputRe  = regexp.MustCompile(`(?i)^\s*input:\s*(.*)$`)
)

type CorpusRouterConfig struct {
	Completer     types.Completer
	MaxIterations int
}

// CorpusRouter wraps every active document's query interface as a
// selectable tool and drives the bounded agentic loop over them.
type CorpusRouter struct {
	config CorpusRouterConfig
	tools  []Tool
}

// NewCorpusRouter builds the corpus-level tool set: one tool per
// document, described by its display name and summary.
func NewCorpusRouter(config CorpusRouterConfig, documents []models.Document, sets map[string]*index.DocumentIndexSet) (*CorpusRouter, error) {
	if config.Completer == nil {
		return nil, fmt.Errorf("corpus router requires a completer")
	}
	if config.MaxIterations == 0 {
		config.MaxIterations = defaultMaxIterations
	}

	tools := make([]Tool, 0, len(documents))
	for i, document := range documents {
		set, ok := sets[document.ID]
		if !ok {
			return nil, fmt.Errorf("%w: no index set for document %s", types.ErrConsistency, document.ID)
		}

		dr := NewDocumentRouter(document, set, config.Completer)
		tools = append(tools, Tool{
			Name: fmt.Sprintf("document_%d", i),
			Description: fmt.Sprintf("Contains information about the document named %s. Summary: %s",
				document.DisplayName, document.Summary),
			Call: dr.Query,
		})
	}

	return &CorpusRouter{config: config, tools: tools}, nil
}

func (cr *CorpusRouter) Tools() []Tool {
	return cr.tools
}

// Answer runs the agentic loop: on each iteration the model either
// consults one tool and observes its result, or produces the final
// answer. The iteration bound is a cooperative cancellation point;
// hitting it returns the best partial answer, not an error.
func (cr *CorpusRouter) Answer(ctx context.Context, question string, history []models.ChatMessage) (*models.ToolResult, error) {
	var descriptions strings.Builder
	for _, tool := range cr.tools {
		fmt.Fprintf(&descriptions, "- %s: %s\n", tool.Name, tool.Description)
	}

	messages := []models.ChatMessage{
		{Role: models.RoleSystem, Content: fmt.Sprintf(agentPromptTemplate, descriptions.String())},
	}
	messages = append(messages, history...)
	messages = append(messages, models.ChatMessage{Role: models.RoleUser, Content: question})

	var lastResult *models.ToolResult

	for i := 0; i < cr.config.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		output, err := cr.config.Completer.Complete(ctx, messages)
		if err != nil {
			return nil, err
		}

		if m := answerRe.FindStringSubmatch(output); m != nil {
			result := &models.ToolResult{Text: strings.TrimSpace(m[1])}
			if lastResult != nil {
				result.Sources = lastResult.Sources
			}
			return result, nil
		}

		tool, input, ok := cr.parseToolCall(output)
		if !ok {
			// Unparsable selection fails closed: take the output as a
			// direct answer instead of raising.
			result := &models.ToolResult{Text: strings.TrimSpace(output)}
			if lastResult != nil {
				result.Sources = lastResult.Sources
			}
			return result, nil
		}

		observation, err := tool.Call(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("tool %s failed: %w", tool.Name, err)
		}
		lastResult = observation

		messages = append(messages,
			models.ChatMessage{Role: models.RoleAssistant, Content: output},
			models.ChatMessage{Role: models.RoleUser,
				Content: fmt.Sprintf("Observation from %s: %s", tool.Name, observation.Text)},
		)
	}

	// Iteration bound reached: return what retrieval produced so far.
	if lastResult != nil {
		return lastResult, nil
	}
	return &models.ToolResult{Text: "I could not find an answer in the uploaded documents."}, nil
}

// parseToolCall extracts a "Tool:"/"Input:" pair naming a known tool.
func (cr *CorpusRouter) parseToolCall(output string) (*Tool, string, bool) {
	var name, input string
	for _, line := range strings.Split(output, "\n") {
		if m := toolRe.FindStringSubmatch(line); m != nil && name == "" {
			name = m[1]
		} else if m := inputRe.FindStringSubmatch(line); m != nil && input == "" {
			input = strings.TrimSpace(m[1])
		}
	}
	if name == "" || input == "" {
		return nil, "", false
	}

	for i := range cr.tools {
		if strings.EqualFold(cr.tools[i].Name, name) {
			return &cr.tools[i], input, true
		}
	}
	return nil, "", false
}
