package router

import (
	"context"

	"github.com/hmle/talkdocs/internal/models"
)

// Tool is a named, described query strategy the language model can
// select. It is stateless beyond the index reference its Call closes
// over.
type Tool struct {
	Name        string
	Description string
	Call        func(ctx context.Context, query string) (*models.ToolResult, error)
}
