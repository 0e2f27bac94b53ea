package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Document is a shared rich-text document. Content is stored as the editor's
// serialized payload and is never interpreted server-side.
type Document struct {
	ID            string         `json:"id" gorm:"type:uuid;primaryKey"`
	OwnerID       string         `json:"owner_id" gorm:"type:text;not null;index"`
	Title         string         `json:"title" gorm:"type:text;not null"`
	Content       string         `json:"content" gorm:"type:text;not null;default:''"`
	Collaborators []string       `json:"collaborators" gorm:"type:jsonb;serializer:json"`
	IsPublic      bool           `json:"is_public" gorm:"not null;default:false"`
	CreatedAt     time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt     gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

// HasAccess reports whether userID may open the document for editing: the
// owner, any collaborator, or anyone if the document is public.
func (d *Document) HasAccess(userID string) bool {
	if d.IsPublic || d.OwnerID == userID {
		return true
	}
	for _, c := range d.Collaborators {
		if c == userID {
			return true
		}
	}
	return false
}

type DocumentCreate struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	IsPublic bool   `json:"is_public"`
}

type DocumentUpdate struct {
	Title    *string `json:"title,omitempty"`
	Content  *string `json:"content,omitempty"`
	IsPublic *bool   `json:"is_public,omitempty"`
}
