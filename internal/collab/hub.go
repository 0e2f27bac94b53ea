package collab

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"coedit/internal/middleware"
	"coedit/internal/models"
	"coedit/internal/repository"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/attribute"
)

const dispatchTimeout = 5 * time.Second

// inboundEvent is one decoded frame waiting for the hub loop. Lifecycle
// transitions travel on the same channel as client events, so registration,
// a connection's events, and its disconnect are processed in FIFO order.
type inboundEvent struct {
	session *Session
	name    string
	data    json.RawMessage
	ctrl    controlKind
}

type controlKind int

const (
	ctrlNone controlKind = iota
	ctrlRegister
	ctrlDisconnect
)

// handlerFunc processes one inbound event on the hub loop.
type handlerFunc func(h *Hub, s *Session, data json.RawMessage)

// handlers is the dispatch table: event kind -> handler. Unknown events are
// dropped silently, the transport does not guarantee schema validity.
var handlers = map[string]handlerFunc{
	EventJoinDocument:  (*Hub).handleJoinDocument,
	EventContentChange: (*Hub).handleContentChange,
	EventTitleChange:   (*Hub).handleTitleChange,
	EventCursorPos:     (*Hub).handleCursorPosition,
	EventMousePos:      (*Hub).handleMousePosition,

	EventJoinSignaling:  (*Hub).handleJoinSignaling,
	EventLeaveSignaling: (*Hub).handleLeaveSignaling,
	EventWebRTCOffer:    (*Hub).handleWebRTCOffer,
	EventWebRTCAnswer:   (*Hub).handleWebRTCAnswer,
	EventWebRTCICE:      (*Hub).handleWebRTCICE,

	EventCommentAdded:       (*Hub).handleCommentAdded,
	EventCommentResolved:    (*Hub).handleCommentResolved,
	EventCommentDeleted:     (*Hub).handleCommentDeleted,
	EventSuggestionAdded:    (*Hub).handleSuggestionAdded,
	EventSuggestionResolved: (*Hub).handleSuggestionResolved,
	EventReplyAdded:         (*Hub).handleReplyAdded,
}

// Hub is the collaboration session engine: a single event loop that owns the
// registry and processes every inbound event to completion before the next.
// Handlers never run concurrently, so registry access needs no locking; the
// only asynchronous work is debounced persistence.
type Hub struct {
	state    *State
	sessions map[string]*Session // connectionID -> session

	docs     DocumentStore
	comments CommentStore
	debounce *Debouncer

	// Join-time access checks hit the document store; a short-TTL cache
	// keeps rapid rejoin/reconnect cycles off the database.
	access *cache.Cache

	inbound chan inboundEvent
	done    chan struct{}
	stopped chan struct{}
}

// NewHub wires the engine. The debouncer is owned by the hub; callers only
// provide the stores and delays.
func NewHub(docs DocumentStore, comments CommentStore, contentDelay, titleDelay, accessTTL time.Duration) *Hub {
	return &Hub{
		state:    NewState(),
		sessions: make(map[string]*Session),
		docs:     docs,
		comments: comments,
		debounce: NewDebouncer(docs, contentDelay, titleDelay),
		access:   cache.New(accessTTL, 2*accessTTL),
		inbound:  make(chan inboundEvent, 256),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start begins the hub event loop.
func (h *Hub) Start() {
	log.Println("✓ collaboration hub started")
	go h.run()
}

func (h *Hub) run() {
	defer close(h.stopped)
	for {
		select {
		case <-h.done:
			h.closeAll()
			return
		case ev := <-h.inbound:
			h.dispatch(ev)
		}
	}
}

// Register adds an authenticated session to the hub. Must be called before
// the session's read pump starts so the FIFO order holds.
func (h *Hub) Register(s *Session) {
	h.post(inboundEvent{session: s, ctrl: ctrlRegister})
}

// Unregister triggers full disconnect cleanup for a session. The read pump
// calls it after its last frame, so cleanup follows every queued event.
func (h *Hub) Unregister(s *Session) {
	h.post(inboundEvent{session: s, ctrl: ctrlDisconnect})
}

// Inbound decodes a raw frame and queues it for the loop. Malformed frames
// are dropped silently.
func (h *Hub) Inbound(s *Session, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		return
	}
	h.post(inboundEvent{session: s, name: env.Event, data: env.Data})
}

func (h *Hub) post(ev inboundEvent) {
	select {
	case h.inbound <- ev:
	case <-h.done:
	}
}

// Shutdown stops the loop, closes every session, and flushes pending writes.
func (h *Hub) Shutdown() {
	close(h.done)
	<-h.stopped
	h.debounce.Flush()
	log.Println("✓ collaboration hub shutdown complete")
}

// closeAll runs on the loop goroutine when the hub stops.
func (h *Hub) closeAll() {
	for _, s := range h.sessions {
		close(s.Send)
		if s.Conn != nil {
			s.Conn.Close()
		}
	}
	h.sessions = make(map[string]*Session)
}

func (h *Hub) dispatch(ev inboundEvent) {
	switch ev.ctrl {
	case ctrlRegister:
		h.sessions[ev.session.ID] = ev.session
		return
	case ctrlDisconnect:
		h.handleDisconnect(ev.session)
		return
	}

	// Events from sessions the hub does not know (never registered, or
	// already disconnected) are dropped.
	if _, ok := h.sessions[ev.session.ID]; !ok {
		return
	}

	handler, ok := handlers[ev.name]
	if !ok {
		return
	}

	_, span := middleware.StartSpan(context.Background(), "Hub.Dispatch",
		attribute.String("event", ev.name),
		attribute.String("connection.id", ev.session.ID),
		attribute.String("user.id", ev.session.UserID),
	)
	handler(h, ev.session, ev.data)
	span.End()
}

// broadcastToRoom fans an encoded frame out to the document room, always
// excluding the originating connection.
func (h *Hub) broadcastToRoom(documentID string, exclude string, frame []byte) {
	for _, connID := range h.state.RoomMembers(documentID) {
		if connID == exclude {
			continue
		}
		if member, ok := h.sessions[connID]; ok {
			member.enqueue(frame)
		}
	}
}

// broadcastToSignaling fans an encoded frame out to the signaling room,
// excluding the originating connection.
func (h *Hub) broadcastToSignaling(documentID string, exclude string, frame []byte) {
	for _, connID := range h.state.SignalingMembers(documentID) {
		if connID == exclude {
			continue
		}
		if member, ok := h.sessions[connID]; ok {
			member.enqueue(frame)
		}
	}
}

func (h *Hub) sendError(s *Session, code, message, documentID string) {
	s.enqueue(encodeEvent(EventError, errorEvent{
		Code:       code,
		Message:    message,
		DocumentID: documentID,
	}))
}

// document loads a document through the TTL cache.
func (h *Hub) document(ctx context.Context, documentID string) (*models.Document, error) {
	if cached, ok := h.access.Get(documentID); ok {
		return cached.(*models.Document), nil
	}

	doc, err := h.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}

	h.access.SetDefault(documentID, doc)
	return doc, nil
}

// InvalidateDocument drops a document from the access cache. The CRUD surface
// calls this when collaborators or visibility change.
func (h *Hub) InvalidateDocument(documentID string) {
	h.access.Delete(documentID)
}

// handleJoinDocument runs the room coordinator join flow: access check,
// presence registration, targeted snapshot, then membership fan-out.
func (h *Hub) handleJoinDocument(s *Session, data json.RawMessage) {
	var p joinDocumentPayload
	if err := json.Unmarshal(data, &p); err != nil || p.DocumentID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	doc, err := h.document(ctx, p.DocumentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.sendError(s, ErrCodeNotFound, "document not found", p.DocumentID)
		} else {
			log.Printf("join %s: document lookup failed: %v", p.DocumentID, err)
			h.sendError(s, ErrCodeInternal, "document lookup failed", p.DocumentID)
		}
		return
	}

	// Denied connections stay alive; they may join other documents.
	if !doc.HasAccess(s.UserID) {
		h.sendError(s, ErrCodeAccessDenied, "you do not have access to this document", p.DocumentID)
		return
	}

	entry := &models.PresenceEntry{
		ConnectionID: s.ID,
		UserID:       s.UserID,
		UserName:     s.UserName,
		DocumentID:   p.DocumentID,
	}

	prevDoc, moved := h.state.JoinRoom(entry)
	if moved {
		// The connection switched documents; tell the old room.
		h.broadcastToRoom(prevDoc, s.ID, encodeEvent(EventUserLeft, memberChangeEvent{
			DocumentID: prevDoc,
			User:       s.sender(),
			Timestamp:  time.Now(),
		}))
		h.broadcastMembership(prevDoc)
	}

	// Targeted snapshot first: the joiner learns who was already here.
	s.enqueue(encodeEvent(EventActiveUsers, activeUsersEvent{
		DocumentID: p.DocumentID,
		Users:      h.state.RoomPresence(p.DocumentID, s.ID),
	}))

	// Then the fan-out: existing members learn about the joiner, and every
	// member converges on the same full membership list.
	h.broadcastToRoom(p.DocumentID, s.ID, encodeEvent(EventUserJoined, memberChangeEvent{
		DocumentID: p.DocumentID,
		User:       s.sender(),
		Timestamp:  time.Now(),
	}))
	h.broadcastMembership(p.DocumentID)

	log.Printf("connection %s (%s) joined document %s (%d members)",
		s.ID, s.UserName, p.DocumentID, len(h.state.RoomMembers(p.DocumentID)))
}

// broadcastMembership sends the full presence list to every room member,
// including connections that triggered the change.
func (h *Hub) broadcastMembership(documentID string) {
	frame := encodeEvent(EventActiveUsersUpdated, activeUsersEvent{
		DocumentID: documentID,
		Users:      h.state.RoomPresence(documentID, ""),
	})
	for _, connID := range h.state.RoomMembers(documentID) {
		if member, ok := h.sessions[connID]; ok {
			member.enqueue(frame)
		}
	}
}

// handleContentChange relays the payload verbatim and arms debounced
// persistence. Events from connections not in the room are dropped, which
// covers the race between leave and trailing edits.
func (h *Hub) handleContentChange(s *Session, data json.RawMessage) {
	var p contentChangePayload
	if err := json.Unmarshal(data, &p); err != nil || p.DocumentID == "" {
		return
	}
	if !h.state.InRoom(s.ID, p.DocumentID) {
		return
	}

	h.broadcastToRoom(p.DocumentID, s.ID, encodeEvent(EventContentUpdated, contentUpdatedEvent{
		DocumentID: p.DocumentID,
		Content:    p.Content,
		UserID:     s.UserID,
		UserName:   s.UserName,
		Timestamp:  time.Now(),
	}))

	h.debounce.Schedule(p.DocumentID, FieldContent, p.Content)
}

func (h *Hub) handleTitleChange(s *Session, data json.RawMessage) {
	var p titleChangePayload
	if err := json.Unmarshal(data, &p); err != nil || p.DocumentID == "" {
		return
	}
	if !h.state.InRoom(s.ID, p.DocumentID) {
		return
	}

	h.broadcastToRoom(p.DocumentID, s.ID, encodeEvent(EventTitleUpdated, titleUpdatedEvent{
		DocumentID: p.DocumentID,
		Title:      p.Title,
		UserID:     s.UserID,
		UserName:   s.UserName,
		Timestamp:  time.Now(),
	}))

	h.debounce.Schedule(p.DocumentID, FieldTitle, p.Title)
}

func (h *Hub) handleCursorPosition(s *Session, data json.RawMessage) {
	h.relayPosition(s, data, EventCursorUpdated)
}

func (h *Hub) handleMousePosition(s *Session, data json.RawMessage) {
	h.relayPosition(s, data, EventMouseUpdated)
}

func (h *Hub) relayPosition(s *Session, data json.RawMessage, outEvent string) {
	var p positionPayload
	if err := json.Unmarshal(data, &p); err != nil || p.DocumentID == "" {
		return
	}
	if !h.state.InRoom(s.ID, p.DocumentID) {
		return
	}

	if outEvent == EventCursorUpdated {
		h.state.SetCursor(s.ID, p.Position)
	} else {
		h.state.SetPointer(s.ID, p.Position)
	}

	h.broadcastToRoom(p.DocumentID, s.ID, encodeEvent(outEvent, positionUpdatedEvent{
		DocumentID:   p.DocumentID,
		Position:     p.Position,
		ConnectionID: s.ID,
		UserID:       s.UserID,
		UserName:     s.UserName,
		Timestamp:    time.Now(),
	}))
}

// handleDisconnect runs the unconditional cleanup order: presence, room
// membership, signaling membership, then the membership broadcast and the
// signaling departures. No observer ever sees a presence entry for a closed
// connection.
func (h *Hub) handleDisconnect(s *Session) {
	if _, ok := h.sessions[s.ID]; !ok {
		return // already cleaned up
	}
	delete(h.sessions, s.ID)
	close(s.Send)

	roomDoc, hadRoom, signalingDocs := h.state.RemoveConnection(s.ID)

	if hadRoom {
		h.broadcastToRoom(roomDoc, s.ID, encodeEvent(EventUserLeft, memberChangeEvent{
			DocumentID: roomDoc,
			User:       s.sender(),
			Timestamp:  time.Now(),
		}))
		h.broadcastMembership(roomDoc)
	}

	for _, doc := range signalingDocs {
		h.broadcastToSignaling(doc, s.ID, encodeEvent(EventUserLeftSignaling, signalingMemberEvent{
			DocumentID:   doc,
			UserID:       s.UserID,
			ConnectionID: s.ID,
		}))
	}

	log.Printf("connection %s (%s) disconnected", s.ID, s.UserName)
}
