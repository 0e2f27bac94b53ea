package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"coedit/internal/auth"
	"coedit/internal/collab"
	"coedit/internal/models"
	"coedit/internal/repository"

	"github.com/gorilla/mux"
	"github.com/segmentio/ksuid"
)

type contextKey string

const identityKey contextKey = "identity"

// Handler handles the REST surface around the realtime engine: document CRUD,
// collaborator management, comment listing, and session (token) issuance.
type Handler struct {
	docRepo     *repository.DocumentRepositoryImpl
	commentRepo *repository.CommentRepositoryImpl
	sessions    SessionStore
	wsHandler   *collab.WebSocketHandler
	invalidator DocumentInvalidator
}

func NewHandler(
	docRepo *repository.DocumentRepositoryImpl,
	commentRepo *repository.CommentRepositoryImpl,
	sessions SessionStore,
	wsHandler *collab.WebSocketHandler,
	invalidator DocumentInvalidator,
) *Handler {
	return &Handler{
		docRepo:     docRepo,
		commentRepo: commentRepo,
		sessions:    sessions,
		wsHandler:   wsHandler,
		invalidator: invalidator,
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

func identityFrom(r *http.Request) auth.Identity {
	id, _ := r.Context().Value(identityKey).(auth.Identity)
	return id
}

// requireAuth resolves the bearer token to an identity and stores it on the
// request context. Requests without a valid token never reach the handler.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := h.sessions.Verify(r.Context(), bearerToken(r))
		if err != nil {
			http.Error(w, "invalid or missing token", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Session handlers

// CreateSession mints an opaque bearer token for a user. Stands in for a real
// login flow; the identity is taken from the request body as-is.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID      string `json:"userId"`
		DisplayName string `json:"displayName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.UserID
	}

	token := ksuid.New().String()
	identity := auth.Identity{UserID: req.UserID, DisplayName: req.DisplayName}
	if err := h.sessions.SaveToken(r.Context(), token, identity); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"token": token,
		"user":  identity,
	})
}

// DeleteSession revokes the caller's own token.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.RevokeToken(r.Context(), bearerToken(r)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Document handlers

func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)

	var doc models.DocumentCreate
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if doc.Title == "" {
		doc.Title = "Untitled"
	}

	created, err := h.docRepo.Create(r.Context(), identity.UserID, &doc)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)

	limit := 50
	offset := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}
	if s := r.URL.Query().Get("offset"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			offset = n
		}
	}

	documents, err := h.docRepo.ListForUser(r.Context(), identity.UserID, limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"documents": documents,
		"limit":     limit,
		"offset":    offset,
	})
}

// document loads a document and enforces read access for the caller.
func (h *Handler) document(w http.ResponseWriter, r *http.Request) (*models.Document, bool) {
	doc, err := h.docRepo.GetByID(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	if !doc.HasAccess(identityFrom(r).UserID) {
		http.Error(w, "no access to this document", http.StatusForbidden)
		return nil, false
	}
	return doc, true
}

func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.document(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.document(w, r)
	if !ok {
		return
	}
	if doc.OwnerID != identityFrom(r).UserID {
		http.Error(w, "only the owner can update document settings", http.StatusForbidden)
		return
	}

	var update models.DocumentUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	updated, err := h.docRepo.Update(r.Context(), doc.ID, &update)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Visibility may have changed; live connections must re-check access.
	if update.IsPublic != nil {
		h.invalidator.InvalidateDocument(doc.ID)
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.document(w, r)
	if !ok {
		return
	}
	if doc.OwnerID != identityFrom(r).UserID {
		http.Error(w, "only the owner can delete a document", http.StatusForbidden)
		return
	}

	if err := h.docRepo.Delete(r.Context(), doc.ID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.invalidator.InvalidateDocument(doc.ID)

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AddCollaborator(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.document(w, r)
	if !ok {
		return
	}
	if doc.OwnerID != identityFrom(r).UserID {
		http.Error(w, "only the owner can add collaborators", http.StatusForbidden)
		return
	}

	var req struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}

	updated, err := h.docRepo.AddCollaborator(r.Context(), doc.ID, req.UserID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.invalidator.InvalidateDocument(doc.ID)

	writeJSON(w, http.StatusOK, updated)
}

// Comment handlers

func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.document(w, r)
	if !ok {
		return
	}

	comments, err := h.commentRepo.ListByDocument(r.Context(), doc.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"documentId": doc.ID,
		"comments":   comments,
		"count":      len(comments),
	})
}

// Health

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// WebSocket entry point

func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsHandler.HandleConnection(w, r)
}
