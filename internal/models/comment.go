package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CommentKind string

const (
	KindComment    CommentKind = "comment"
	KindSuggestion CommentKind = "suggestion"
	KindReply      CommentKind = "reply"
)

type CommentStatus string

const (
	// Plain comments stay open; resolution is the orthogonal Resolved flag.
	StatusOpen CommentStatus = "open"

	// Suggestions move pending -> accepted|rejected, terminal either way.
	StatusPending  CommentStatus = "pending"
	StatusAccepted CommentStatus = "accepted"
	StatusRejected CommentStatus = "rejected"
)

// SelectedRange anchors a comment to a span of the document.
type SelectedRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Comment is a comment, suggestion, or reply attached to a document.
type Comment struct {
	ID         string        `json:"id" gorm:"type:uuid;primaryKey"`
	DocumentID string        `json:"document_id" gorm:"type:uuid;not null;index"`
	AuthorID   string        `json:"author_id" gorm:"type:text;not null"`
	AuthorName string        `json:"author_name" gorm:"type:text;not null"`
	Body       string        `json:"body" gorm:"type:text;not null"`
	Kind       CommentKind   `json:"kind" gorm:"type:varchar(20);not null;default:'comment'"`
	Status     CommentStatus `json:"status" gorm:"type:varchar(20);not null;default:'open'"`

	SelectedRange SelectedRange `json:"selected_range" gorm:"type:jsonb;serializer:json"`
	SuggestedText string        `json:"suggested_text,omitempty" gorm:"type:text"`
	ParentID      *string       `json:"parent_id,omitempty" gorm:"type:uuid;index"`

	Resolved   bool       `json:"resolved" gorm:"not null;default:false"`
	ResolvedBy *string    `json:"resolved_by,omitempty" gorm:"type:text"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`

	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// Terminal reports whether the comment's status permits no further transition.
func (c *Comment) Terminal() bool {
	return c.Status == StatusAccepted || c.Status == StatusRejected
}
