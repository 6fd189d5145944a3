package router

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hmle/talkdocs/internal/models"
	"github.com/hmle/talkdocs/internal/types"
	"github.com/hmle/talkdocs/pkg/index"
)

var numberRe = regexp.MustCompile(`\d+`)

// DocumentRouter exposes one document's index pair as a single query
// interface. Each query runs a single-choice selection pass over the
// two strategies, executes the chosen index and synthesizes an answer
// from the retrieved segments.
type DocumentRouter struct {
	document  models.Document
	set       *index.DocumentIndexSet
	completer types.Completer
}

func NewDocumentRouter(document models.Document, set *index.DocumentIndexSet, completer types.Completer) *DocumentRouter {
	return &DocumentRouter{
		document:  document,
		set:       set,
		completer: completer,
	}
}

// Query routes the question to one of the document's indices and
// returns a synthesized answer with source attributions.
func (dr *DocumentRouter) Query(ctx context.Context, question string) (*models.ToolResult, error) {
	chosen, err := dr.selectIndex(ctx, question)
	if err != nil {
		if !errors.Is(err, types.ErrSelectionParse) {
			return nil, err
		}
		// Selection failed closed: default to the detail strategy, the
		// corpus loop already decided this document is relevant.
		chosen = dr.set.Semantic
	}

	segments, err := chosen.Retrieve(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve from %s: %w", chosen.ID, err)
	}

	return dr.synthesize(ctx, question, segments)
}

// selectIndex asks the completion gateway to pick exactly one of the
// two strategies. Output that does not name a valid choice is
// ErrSelectionParse.
func (dr *DocumentRouter) selectIndex(ctx context.Context, question string) (*index.Index, error) {
	choices := []*index.Index{dr.set.Semantic, dr.set.Summary}

	var list strings.Builder
	for i, choice := range choices {
		fmt.Fprintf(&list, "(%d) %s\n", i+1, choice.Description())
	}

	prompt := fmt.Sprintf(selectorPromptTemplate, len(choices), list.String(), question)
	output, err := dr.completer.Complete(ctx, []models.ChatMessage{
		{Role: models.RoleSystem, Content: "You are a helpful assistant."},
		{Role: models.RoleUser, Content: prompt},
	})
	if err != nil {
		return nil, err
	}

	match := numberRe.FindString(output)
	if match == "" {
		return nil, fmt.Errorf("%w: no choice in selector output %q", types.ErrSelectionParse, output)
	}
	n, err := strconv.Atoi(match)
	if err != nil || n < 1 || n > len(choices) {
		return nil, fmt.Errorf("%w: choice %q out of range", types.ErrSelectionParse, match)
	}

	return choices[n-1], nil
}

func (dr *DocumentRouter) synthesize(ctx context.Context, question string, segments []models.Segment) (*models.ToolResult, error) {
	if len(segments) == 0 {
		return &models.ToolResult{Text: "No relevant content was found in this document."}, nil
	}

	var contextBuilder strings.Builder
	sources := make([]models.Source, 0, len(segments))
	for _, segment := range segments {
		fmt.Fprintf(&contextBuilder, "%s\n\n", segment.Content)
		sources = append(sources, models.Source{
			DocumentID: segment.DocumentID,
			SegmentID:  segment.ID,
			Position:   segment.Position,
		})
	}

	answer, err := dr.completer.Complete(ctx, []models.ChatMessage{
		{Role: models.RoleSystem, Content: synthesisSystemPrompt},
		{Role: models.RoleUser, Content: fmt.Sprintf("Context:\n%sQuestion: %s", contextBuilder.String(), question)},
	})
	if err != nil {
		return nil, err
	}

	return &models.ToolResult{Text: answer, Sources: sources}, nil
}
