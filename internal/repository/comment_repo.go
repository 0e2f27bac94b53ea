package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coedit/internal/models"

	"gorm.io/gorm"
)

// CommentRepositoryImpl handles comment and suggestion storage using GORM.
// It owns the suggestion state machine's terminal-state guard: resolution is
// a conditional update against status = pending, so a retried accept/reject
// fails here rather than in the coordinator.
type CommentRepositoryImpl struct {
	db *gorm.DB
}

// NewCommentRepository creates a new comment repository.
func NewCommentRepository(db *gorm.DB) *CommentRepositoryImpl {
	return &CommentRepositoryImpl{db: db}
}

// Create inserts a comment, suggestion, or reply. Status defaults by kind:
// suggestions start pending, everything else open.
func (r *CommentRepositoryImpl) Create(ctx context.Context, comment *models.Comment) (*models.Comment, error) {
	if comment.Status == "" {
		if comment.Kind == models.KindSuggestion {
			comment.Status = models.StatusPending
		} else {
			comment.Status = models.StatusOpen
		}
	}

	if err := r.db.WithContext(ctx).Create(comment).Error; err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}

	return comment, nil
}

// GetByID retrieves a comment. Soft-deleted comments are excluded.
func (r *CommentRepositoryImpl) GetByID(ctx context.Context, id string) (*models.Comment, error) {
	var comment models.Comment

	err := r.db.WithContext(ctx).First(&comment, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("comment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get comment: %w", err)
	}

	return &comment, nil
}

// ListByDocument returns all live comments for a document, oldest first so
// replies follow their parents.
func (r *CommentRepositoryImpl) ListByDocument(ctx context.Context, documentID string) ([]*models.Comment, error) {
	var comments []*models.Comment

	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at ASC").
		Find(&comments).Error

	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}

	return comments, nil
}

// SetResolved toggles the resolved flag on a plain comment, stamping or
// clearing resolved_by/resolved_at.
func (r *CommentRepositoryImpl) SetResolved(ctx context.Context, id string, resolved bool, actorID string) (*models.Comment, error) {
	comment, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{"resolved": resolved}
	if resolved {
		now := time.Now()
		updates["resolved_by"] = actorID
		updates["resolved_at"] = now
	} else {
		updates["resolved_by"] = nil
		updates["resolved_at"] = nil
	}

	if err := r.db.WithContext(ctx).Model(comment).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to resolve comment: %w", err)
	}

	return r.GetByID(ctx, id)
}

// ResolveSuggestion moves a pending suggestion to accepted or rejected. The
// status = pending condition makes the transition race-free: a second
// resolution finds zero rows and gets ErrNotPending, leaving the terminal
// state untouched.
func (r *CommentRepositoryImpl) ResolveSuggestion(ctx context.Context, id string, status models.CommentStatus, actorID string) (*models.Comment, error) {
	if status != models.StatusAccepted && status != models.StatusRejected {
		return nil, fmt.Errorf("invalid suggestion resolution %q", status)
	}

	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.Comment{}).
		Where("id = ? AND kind = ? AND status = ?", id, models.KindSuggestion, models.StatusPending).
		Updates(map[string]interface{}{
			"status":      status,
			"resolved_by": actorID,
			"resolved_at": now,
		})

	if result.Error != nil {
		return nil, fmt.Errorf("failed to resolve suggestion: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Either missing or already terminal; distinguish for the caller.
		if _, err := r.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("suggestion %s: %w", id, ErrNotPending)
	}

	return r.GetByID(ctx, id)
}

// Delete performs a soft delete on a comment. Deleted comments are immutable.
func (r *CommentRepositoryImpl) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&models.Comment{}, "id = ?", id)

	if result.Error != nil {
		return fmt.Errorf("failed to delete comment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("comment %s: %w", id, ErrNotFound)
	}

	return nil
}
