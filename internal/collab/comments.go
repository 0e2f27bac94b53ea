package collab

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"coedit/internal/models"
	"coedit/internal/repository"
)

// Comment/suggestion coordinator: validates mutations, applies them through
// the comment store, and rebroadcasts the authoritative result through the
// document room. The rebroadcast excludes the sender like every fan-out; the
// sender instead receives the same event targeted, so it learns the
// server-assigned id and timestamps without echo.

// fanOutComment sends the mirrored comment event to the room and the sender.
func (h *Hub) fanOutComment(s *Session, event string, comment *models.Comment) {
	frame := encodeEvent(event, commentEvent{
		DocumentID: comment.DocumentID,
		Comment:    comment,
		UserID:     s.UserID,
		Timestamp:  time.Now(),
	})
	h.broadcastToRoom(comment.DocumentID, s.ID, frame)
	s.enqueue(frame)
}

func (h *Hub) handleCommentAdded(s *Session, data json.RawMessage) {
	var p commentAddedPayload
	if err := json.Unmarshal(data, &p); err != nil || p.DocumentID == "" {
		return
	}
	if !h.state.InRoom(s.ID, p.DocumentID) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	comment, err := h.comments.Create(ctx, &models.Comment{
		DocumentID:    p.DocumentID,
		AuthorID:      s.UserID,
		AuthorName:    s.UserName,
		Body:          p.Body,
		Kind:          models.KindComment,
		SelectedRange: p.SelectedRange,
	})
	if err != nil {
		log.Printf("create comment on %s failed: %v", p.DocumentID, err)
		h.sendError(s, ErrCodeInternal, "could not create comment", p.DocumentID)
		return
	}

	h.fanOutComment(s, EventCommentAdded, comment)
}

func (h *Hub) handleSuggestionAdded(s *Session, data json.RawMessage) {
	var p suggestionAddedPayload
	if err := json.Unmarshal(data, &p); err != nil || p.DocumentID == "" {
		return
	}
	if !h.state.InRoom(s.ID, p.DocumentID) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	comment, err := h.comments.Create(ctx, &models.Comment{
		DocumentID:    p.DocumentID,
		AuthorID:      s.UserID,
		AuthorName:    s.UserName,
		Body:          p.Body,
		Kind:          models.KindSuggestion,
		SelectedRange: p.SelectedRange,
		SuggestedText: p.SuggestedText,
	})
	if err != nil {
		log.Printf("create suggestion on %s failed: %v", p.DocumentID, err)
		h.sendError(s, ErrCodeInternal, "could not create suggestion", p.DocumentID)
		return
	}

	h.fanOutComment(s, EventSuggestionAdded, comment)
}

func (h *Hub) handleReplyAdded(s *Session, data json.RawMessage) {
	var p replyAddedPayload
	if err := json.Unmarshal(data, &p); err != nil || p.DocumentID == "" || p.ParentID == "" {
		return
	}
	if !h.state.InRoom(s.ID, p.DocumentID) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	parent, err := h.comments.GetByID(ctx, p.ParentID)
	if err != nil {
		h.sendError(s, ErrCodeNotFound, "parent comment not found", p.DocumentID)
		return
	}
	if parent.DocumentID != p.DocumentID {
		h.sendError(s, ErrCodeNotFound, "parent comment not found", p.DocumentID)
		return
	}

	reply, err := h.comments.Create(ctx, &models.Comment{
		DocumentID: p.DocumentID,
		AuthorID:   s.UserID,
		AuthorName: s.UserName,
		Body:       p.Body,
		Kind:       models.KindReply,
		ParentID:   &p.ParentID,
	})
	if err != nil {
		log.Printf("create reply on %s failed: %v", p.DocumentID, err)
		h.sendError(s, ErrCodeInternal, "could not create reply", p.DocumentID)
		return
	}

	h.fanOutComment(s, EventReplyAdded, reply)
}

// handleCommentResolved toggles the resolved flag. Only the comment's author
// may toggle it.
func (h *Hub) handleCommentResolved(s *Session, data json.RawMessage) {
	var p commentResolvedPayload
	if err := json.Unmarshal(data, &p); err != nil || p.CommentID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	comment, err := h.comments.GetByID(ctx, p.CommentID)
	if err != nil {
		h.sendError(s, ErrCodeNotFound, "comment not found", "")
		return
	}
	if !h.state.InRoom(s.ID, comment.DocumentID) {
		return
	}
	if comment.Kind != models.KindComment {
		h.sendError(s, ErrCodeConflict, "only plain comments can be resolved", comment.DocumentID)
		return
	}
	if comment.AuthorID != s.UserID {
		h.sendError(s, ErrCodeForbidden, "only the author can resolve this comment", comment.DocumentID)
		return
	}

	updated, err := h.comments.SetResolved(ctx, p.CommentID, p.Resolved, s.UserID)
	if err != nil {
		log.Printf("resolve comment %s failed: %v", p.CommentID, err)
		h.sendError(s, ErrCodeInternal, "could not resolve comment", comment.DocumentID)
		return
	}

	h.fanOutComment(s, EventCommentResolved, updated)
}

// handleSuggestionResolved moves a pending suggestion to accepted/rejected.
// Only the document owner reviews suggestions; the terminal-state guard lives
// in the store and its rejection is surfaced to the caller.
func (h *Hub) handleSuggestionResolved(s *Session, data json.RawMessage) {
	var p suggestionResolvedPayload
	if err := json.Unmarshal(data, &p); err != nil || p.CommentID == "" {
		return
	}

	var status models.CommentStatus
	switch p.Action {
	case "accept":
		status = models.StatusAccepted
	case "reject":
		status = models.StatusRejected
	default:
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	comment, err := h.comments.GetByID(ctx, p.CommentID)
	if err != nil {
		h.sendError(s, ErrCodeNotFound, "suggestion not found", "")
		return
	}
	if !h.state.InRoom(s.ID, comment.DocumentID) {
		return
	}

	doc, err := h.document(ctx, comment.DocumentID)
	if err != nil {
		h.sendError(s, ErrCodeInternal, "document lookup failed", comment.DocumentID)
		return
	}
	if doc.OwnerID != s.UserID {
		h.sendError(s, ErrCodeForbidden, "only the document owner can review suggestions", comment.DocumentID)
		return
	}

	updated, err := h.comments.ResolveSuggestion(ctx, p.CommentID, status, s.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotPending) {
			h.sendError(s, ErrCodeConflict, "suggestion was already resolved", comment.DocumentID)
			return
		}
		log.Printf("resolve suggestion %s failed: %v", p.CommentID, err)
		h.sendError(s, ErrCodeInternal, "could not resolve suggestion", comment.DocumentID)
		return
	}

	h.fanOutComment(s, EventSuggestionResolved, updated)
}

// handleCommentDeleted removes a comment. Permitted to the author, or to the
// document owner regardless of authorship.
func (h *Hub) handleCommentDeleted(s *Session, data json.RawMessage) {
	var p commentDeletedPayload
	if err := json.Unmarshal(data, &p); err != nil || p.CommentID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	comment, err := h.comments.GetByID(ctx, p.CommentID)
	if err != nil {
		h.sendError(s, ErrCodeNotFound, "comment not found", "")
		return
	}
	if !h.state.InRoom(s.ID, comment.DocumentID) {
		return
	}

	if comment.AuthorID != s.UserID {
		doc, err := h.document(ctx, comment.DocumentID)
		if err != nil || doc.OwnerID != s.UserID {
			h.sendError(s, ErrCodeForbidden, "not allowed to delete this comment", comment.DocumentID)
			return
		}
	}

	if err := h.comments.Delete(ctx, p.CommentID); err != nil {
		log.Printf("delete comment %s failed: %v", p.CommentID, err)
		h.sendError(s, ErrCodeInternal, "could not delete comment", comment.DocumentID)
		return
	}

	frame := encodeEvent(EventCommentDeleted, commentDeletedEvent{
		DocumentID: comment.DocumentID,
		CommentID:  comment.ID,
		UserID:     s.UserID,
		Timestamp:  time.Now(),
	})
	h.broadcastToRoom(comment.DocumentID, s.ID, frame)
	s.enqueue(frame)
}
