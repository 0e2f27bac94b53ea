package collab

import (
	"encoding/json"
	"time"

	"coedit/internal/models"
)

// Inbound event names accepted from clients.
const (
	EventJoinDocument  = "join-document"
	EventContentChange = "content-change"
	EventTitleChange   = "title-change"
	EventCursorPos     = "cursor-position"
	EventMousePos      = "mouse-position"

	EventJoinSignaling  = "join-signaling"
	EventLeaveSignaling = "leave-signaling"
	EventWebRTCOffer    = "webrtc-offer"
	EventWebRTCAnswer   = "webrtc-answer"
	EventWebRTCICE      = "webrtc-ice-candidate"

	EventCommentAdded       = "comment-added"
	EventCommentResolved    = "comment-resolved"
	EventCommentDeleted     = "comment-deleted"
	EventSuggestionAdded    = "suggestion-added"
	EventSuggestionResolved = "suggestion-resolved"
	EventReplyAdded         = "reply-added"
)

// Outbound event names emitted to clients. The webrtc and comment events are
// mirrored under their inbound names.
const (
	EventActiveUsers        = "active-users"
	EventActiveUsersUpdated = "active-users-updated"
	EventUserJoined         = "user-joined"
	EventUserLeft           = "user-left"
	EventContentUpdated     = "content-updated"
	EventTitleUpdated       = "title-updated"
	EventCursorUpdated      = "cursor-updated"
	EventMouseUpdated       = "mouse-updated"
	EventError              = "error"

	EventUserJoinedSignaling = "user-joined-signaling"
	EventUserLeftSignaling   = "user-left-signaling"
)

// Error codes carried on the error event.
const (
	ErrCodeAccessDenied = "access-denied"
	ErrCodeNotFound     = "not-found"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal"
)

// Envelope frames every message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// encodeEvent marshals an outbound envelope. Marshal failures cannot happen
// for our own payload types, so the error is swallowed and nil returned.
func encodeEvent(event string, data interface{}) []byte {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	b, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		return nil
	}
	return b
}

// Inbound payloads. Wire keys are the camelCase names of the socket protocol.

type joinDocumentPayload struct {
	DocumentID string `json:"documentId"`
}

type contentChangePayload struct {
	DocumentID string `json:"documentId"`
	Content    string `json:"content"`
}

type titleChangePayload struct {
	DocumentID string `json:"documentId"`
	Title      string `json:"title"`
}

type positionPayload struct {
	DocumentID string          `json:"documentId"`
	Position   json.RawMessage `json:"position"`
}

type signalingRoomPayload struct {
	DocumentID string `json:"documentId"`
}

type signalingMessagePayload struct {
	DocumentID string          `json:"documentId"`
	Payload    json.RawMessage `json:"payload"`
}

type commentAddedPayload struct {
	DocumentID    string               `json:"documentId"`
	Body          string               `json:"body"`
	SelectedRange models.SelectedRange `json:"selectedRange"`
}

type suggestionAddedPayload struct {
	DocumentID    string               `json:"documentId"`
	Body          string               `json:"body"`
	SelectedRange models.SelectedRange `json:"selectedRange"`
	SuggestedText string               `json:"suggestedText"`
}

type replyAddedPayload struct {
	DocumentID string `json:"documentId"`
	ParentID   string `json:"parentId"`
	Body       string `json:"body"`
}

type commentResolvedPayload struct {
	CommentID string `json:"commentId"`
	Resolved  bool   `json:"resolved"`
}

type suggestionResolvedPayload struct {
	CommentID string `json:"commentId"`
	Action    string `json:"action"` // "accept" | "reject"
}

type commentDeletedPayload struct {
	CommentID string `json:"commentId"`
}

// Outbound payloads.

type senderInfo struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
	UserName     string `json:"userName"`
}

type activeUsersEvent struct {
	DocumentID string                  `json:"documentId"`
	Users      []*models.PresenceEntry `json:"users"`
}

type memberChangeEvent struct {
	DocumentID string     `json:"documentId"`
	User       senderInfo `json:"user"`
	Timestamp  time.Time  `json:"timestamp"`
}

type contentUpdatedEvent struct {
	DocumentID string    `json:"documentId"`
	Content    string    `json:"content"`
	UserID     string    `json:"userId"`
	UserName   string    `json:"userName"`
	Timestamp  time.Time `json:"timestamp"`
}

type titleUpdatedEvent struct {
	DocumentID string    `json:"documentId"`
	Title      string    `json:"title"`
	UserID     string    `json:"userId"`
	UserName   string    `json:"userName"`
	Timestamp  time.Time `json:"timestamp"`
}

type positionUpdatedEvent struct {
	DocumentID   string          `json:"documentId"`
	Position     json.RawMessage `json:"position"`
	ConnectionID string          `json:"connectionId"`
	UserID       string          `json:"userId"`
	UserName     string          `json:"userName"`
	Timestamp    time.Time       `json:"timestamp"`
}

type signalingMemberEvent struct {
	DocumentID   string `json:"documentId"`
	UserID       string `json:"userId"`
	ConnectionID string `json:"connectionId"`
}

type signalingRelayEvent struct {
	DocumentID string          `json:"documentId"`
	Payload    json.RawMessage `json:"payload"`
	FromUserID string          `json:"fromUserId"`
	Timestamp  time.Time       `json:"timestamp"`
}

type commentEvent struct {
	DocumentID string          `json:"documentId"`
	Comment    *models.Comment `json:"comment"`
	UserID     string          `json:"userId"`
	Timestamp  time.Time       `json:"timestamp"`
}

type commentDeletedEvent struct {
	DocumentID string    `json:"documentId"`
	CommentID  string    `json:"commentId"`
	UserID     string    `json:"userId"`
	Timestamp  time.Time `json:"timestamp"`
}

type errorEvent struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	DocumentID string `json:"documentId,omitempty"`
}
