package api

import (
	"context"

	"coedit/internal/auth"
)

// Interfaces for the services handlers call live here, in the consuming
// package. Only the methods handlers actually use are declared.

// SessionStore issues, verifies, and revokes the opaque bearer tokens the
// REST surface and the websocket handshake share.
type SessionStore interface {
	Verify(ctx context.Context, token string) (auth.Identity, error)
	SaveToken(ctx context.Context, token string, id auth.Identity) error
	RevokeToken(ctx context.Context, token string) error
	Ping(ctx context.Context) error
}

// DocumentInvalidator drops a document from the realtime engine's access
// cache after a REST mutation changes who may open it.
type DocumentInvalidator interface {
	InvalidateDocument(documentID string)
}
