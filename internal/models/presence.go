package models

import "encoding/json"

// PresenceEntry is the live state of one connection that has joined a
// document room. It is also the wire shape members see in active-users
// broadcasts, hence the camelCase tags of the socket protocol. Cursor and
// pointer blobs come from the editor widget and are relayed verbatim; the
// server never interprets them.
type PresenceEntry struct {
	ConnectionID string          `json:"connectionId"`
	UserID       string          `json:"userId"`
	UserName     string          `json:"userName"`
	DocumentID   string          `json:"documentId"`
	Cursor       json.RawMessage `json:"cursor,omitempty"`
	Pointer      json.RawMessage `json:"pointer,omitempty"`
}
