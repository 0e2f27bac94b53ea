package collab

import (
	"encoding/json"
	"sort"

	"coedit/internal/models"
)

// State is the single-owner registry for presence, room membership, and
// signaling membership. It is a pure in-memory container with no I/O; the hub
// goroutine is the only mutator, so no locking is needed here.
//
// Invariants:
//   - at most one presence entry per connection
//   - a connection is in at most one document room at a time
//   - a room's (or signaling room's) set is deleted when it becomes empty
type State struct {
	presence map[string]*models.PresenceEntry // connectionID -> entry
	rooms    map[string]map[string]struct{}   // documentID -> set of connectionIDs
	roomOf   map[string]string                // connectionID -> documentID

	signaling   map[string]map[string]struct{} // documentID -> set of connectionIDs
	signalingOf map[string]map[string]struct{} // connectionID -> set of documentIDs
}

func NewState() *State {
	return &State{
		presence:    make(map[string]*models.PresenceEntry),
		rooms:       make(map[string]map[string]struct{}),
		roomOf:      make(map[string]string),
		signaling:   make(map[string]map[string]struct{}),
		signalingOf: make(map[string]map[string]struct{}),
	}
}

// JoinRoom registers the presence entry and adds its connection to the
// document's room. If the connection was already in another room it is moved;
// the previous document id is returned so the caller can notify that room.
func (st *State) JoinRoom(entry *models.PresenceEntry) (prevDoc string, moved bool) {
	if prev, ok := st.roomOf[entry.ConnectionID]; ok {
		if prev == entry.DocumentID {
			// Re-join of the same room refreshes the entry only.
			st.presence[entry.ConnectionID] = entry
			return "", false
		}
		st.leaveRoom(entry.ConnectionID, prev)
		prevDoc, moved = prev, true
	}

	st.presence[entry.ConnectionID] = entry
	if st.rooms[entry.DocumentID] == nil {
		st.rooms[entry.DocumentID] = make(map[string]struct{})
	}
	st.rooms[entry.DocumentID][entry.ConnectionID] = struct{}{}
	st.roomOf[entry.ConnectionID] = entry.DocumentID

	return prevDoc, moved
}

// LeaveRoom removes the connection from its current room and drops its
// presence entry. Returns the document id it left, if any.
func (st *State) LeaveRoom(connectionID string) (string, bool) {
	doc, ok := st.roomOf[connectionID]
	if !ok {
		return "", false
	}
	st.leaveRoom(connectionID, doc)
	delete(st.presence, connectionID)
	return doc, true
}

func (st *State) leaveRoom(connectionID, documentID string) {
	if members, ok := st.rooms[documentID]; ok {
		delete(members, connectionID)
		if len(members) == 0 {
			delete(st.rooms, documentID)
		}
	}
	delete(st.roomOf, connectionID)
}

// InRoom reports whether the connection is currently a member of the
// document's room.
func (st *State) InRoom(connectionID, documentID string) bool {
	return st.roomOf[connectionID] == documentID
}

// RoomOf returns the document the connection is editing, if any.
func (st *State) RoomOf(connectionID string) (string, bool) {
	doc, ok := st.roomOf[connectionID]
	return doc, ok
}

// RoomMembers returns the connection ids in a document's room, sorted for
// deterministic fan-out order.
func (st *State) RoomMembers(documentID string) []string {
	return sortedKeys(st.rooms[documentID])
}

// RoomPresence returns the presence entries for a room, sorted by connection
// id. exclude may name one connection to omit (the snapshot sent to a joiner
// excludes the joiner itself).
func (st *State) RoomPresence(documentID, exclude string) []*models.PresenceEntry {
	members := st.rooms[documentID]
	entries := make([]*models.PresenceEntry, 0, len(members))
	for connID := range members {
		if connID == exclude {
			continue
		}
		if entry, ok := st.presence[connID]; ok {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ConnectionID < entries[j].ConnectionID
	})
	return entries
}

// Presence returns the entry for a connection, if registered.
func (st *State) Presence(connectionID string) (*models.PresenceEntry, bool) {
	entry, ok := st.presence[connectionID]
	return entry, ok
}

// SetCursor updates the cursor blob on the connection's presence entry.
func (st *State) SetCursor(connectionID string, position json.RawMessage) {
	if entry, ok := st.presence[connectionID]; ok {
		entry.Cursor = position
	}
}

// SetPointer updates the pointer blob on the connection's presence entry.
func (st *State) SetPointer(connectionID string, position json.RawMessage) {
	if entry, ok := st.presence[connectionID]; ok {
		entry.Pointer = position
	}
}

// JoinSignaling adds the connection to a document's signaling room. Signaling
// membership is independent of edit-room membership.
func (st *State) JoinSignaling(documentID, connectionID string) {
	if st.signaling[documentID] == nil {
		st.signaling[documentID] = make(map[string]struct{})
	}
	st.signaling[documentID][connectionID] = struct{}{}

	if st.signalingOf[connectionID] == nil {
		st.signalingOf[connectionID] = make(map[string]struct{})
	}
	st.signalingOf[connectionID][documentID] = struct{}{}
}

// LeaveSignaling removes the connection from a document's signaling room.
func (st *State) LeaveSignaling(documentID, connectionID string) bool {
	members, ok := st.signaling[documentID]
	if !ok {
		return false
	}
	if _, ok := members[connectionID]; !ok {
		return false
	}

	delete(members, connectionID)
	if len(members) == 0 {
		delete(st.signaling, documentID)
	}

	if docs, ok := st.signalingOf[connectionID]; ok {
		delete(docs, documentID)
		if len(docs) == 0 {
			delete(st.signalingOf, connectionID)
		}
	}
	return true
}

// InSignaling reports whether the connection has joined the document's
// signaling room.
func (st *State) InSignaling(connectionID, documentID string) bool {
	_, ok := st.signaling[documentID][connectionID]
	return ok
}

// SignalingMembers returns the connection ids in a signaling room, sorted.
func (st *State) SignalingMembers(documentID string) []string {
	return sortedKeys(st.signaling[documentID])
}

// RemoveConnection performs the full membership cleanup for a disconnect:
// presence entry, room membership, then signaling membership. Returns the
// document room left (if any) and the signaling rooms left, so the caller can
// broadcast departures in that order. Safe to call repeatedly.
func (st *State) RemoveConnection(connectionID string) (roomDoc string, hadRoom bool, signalingDocs []string) {
	roomDoc, hadRoom = st.LeaveRoom(connectionID)

	signalingDocs = sortedKeys(st.signalingOf[connectionID])
	for _, doc := range signalingDocs {
		st.LeaveSignaling(doc, connectionID)
	}

	return roomDoc, hadRoom, signalingDocs
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
