package collab

import (
	"context"

	"coedit/internal/models"
)

// Consumer-driven interfaces: the hub declares exactly what it needs from the
// external stores. The repository package satisfies them without knowing.

// DocumentStore is the document persistence the engine consumes. GetByID
// feeds the join-time access check; the Update methods sit behind the
// debouncer.
type DocumentStore interface {
	GetByID(ctx context.Context, id string) (*models.Document, error)
	UpdateContent(ctx context.Context, id string, content string) error
	UpdateTitle(ctx context.Context, id string, title string) error
}

// CommentStore is the comment persistence the coordinator consumes. The
// store, not the coordinator, enforces the suggestion terminal-state guard.
type CommentStore interface {
	Create(ctx context.Context, comment *models.Comment) (*models.Comment, error)
	GetByID(ctx context.Context, id string) (*models.Comment, error)
	SetResolved(ctx context.Context, id string, resolved bool, actorID string) (*models.Comment, error)
	ResolveSuggestion(ctx context.Context, id string, status models.CommentStatus, actorID string) (*models.Comment, error)
	Delete(ctx context.Context, id string) error
}
