package repository

import (
	"context"
	"errors"
	"fmt"

	"coedit/internal/models"

	"gorm.io/gorm"
)

// DocumentRepositoryImpl handles all database operations for documents using
// GORM. Consumers declare the interface they need ("accept interfaces, return
// structs").
type DocumentRepositoryImpl struct {
	db *gorm.DB
}

// NewDocumentRepository creates a new document repository.
func NewDocumentRepository(db *gorm.DB) *DocumentRepositoryImpl {
	return &DocumentRepositoryImpl{db: db}
}

// Create inserts a new document owned by ownerID.
func (r *DocumentRepositoryImpl) Create(ctx context.Context, ownerID string, doc *models.DocumentCreate) (*models.Document, error) {
	document := &models.Document{
		OwnerID:       ownerID,
		Title:         doc.Title,
		Content:       doc.Content,
		IsPublic:      doc.IsPublic,
		Collaborators: []string{},
	}

	if err := r.db.WithContext(ctx).Create(document).Error; err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	return document, nil
}

// GetByID retrieves a document. Soft-deleted documents are excluded.
func (r *DocumentRepositoryImpl) GetByID(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document

	err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	return &doc, nil
}

// ListForUser returns documents the user owns, collaborates on, or that are
// public, newest first.
func (r *DocumentRepositoryImpl) ListForUser(ctx context.Context, userID string, limit, offset int) ([]*models.Document, error) {
	var documents []*models.Document

	err := r.db.WithContext(ctx).
		Where("owner_id = ? OR is_public = true OR collaborators @> ?", userID, fmt.Sprintf(`["%s"]`, userID)).
		Order("updated_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&documents).Error

	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	return documents, nil
}

// Update modifies an existing document's metadata fields.
func (r *DocumentRepositoryImpl) Update(ctx context.Context, id string, update *models.DocumentUpdate) (*models.Document, error) {
	doc, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if update.Title != nil {
		updates["title"] = *update.Title
	}
	if update.Content != nil {
		updates["content"] = *update.Content
	}
	if update.IsPublic != nil {
		updates["is_public"] = *update.IsPublic
	}

	if len(updates) == 0 {
		return doc, nil
	}

	if err := r.db.WithContext(ctx).Model(doc).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update document: %w", err)
	}

	return doc, nil
}

// UpdateContent persists the latest content blob. Called from the debounced
// persistence path, off the broadcast critical path.
func (r *DocumentRepositoryImpl) UpdateContent(ctx context.Context, id string, content string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Document{}).
		Where("id = ?", id).
		Update("content", content)

	if result.Error != nil {
		return fmt.Errorf("failed to update content: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}

	return nil
}

// UpdateTitle persists the latest title. Same debounced path as UpdateContent.
func (r *DocumentRepositoryImpl) UpdateTitle(ctx context.Context, id string, title string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Document{}).
		Where("id = ?", id).
		Update("title", title)

	if result.Error != nil {
		return fmt.Errorf("failed to update title: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}

	return nil
}

// AddCollaborator grants a user edit access. Adding an existing collaborator
// is a no-op.
func (r *DocumentRepositoryImpl) AddCollaborator(ctx context.Context, id string, userID string) (*models.Document, error) {
	doc, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	for _, c := range doc.Collaborators {
		if c == userID {
			return doc, nil
		}
	}

	doc.Collaborators = append(doc.Collaborators, userID)
	if err := r.db.WithContext(ctx).Model(doc).Update("collaborators", doc.Collaborators).Error; err != nil {
		return nil, fmt.Errorf("failed to add collaborator: %w", err)
	}

	return doc, nil
}

// Delete performs a soft delete on the document.
func (r *DocumentRepositoryImpl) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&models.Document{}, "id = ?", id)

	if result.Error != nil {
		return fmt.Errorf("failed to delete document: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}

	return nil
}
