package collab

import (
	"testing"

	"coedit/internal/models"

	"github.com/stretchr/testify/require"
)

func entry(connID, userID, docID string) *models.PresenceEntry {
	return &models.PresenceEntry{
		ConnectionID: connID,
		UserID:       userID,
		UserName:     "user " + userID,
		DocumentID:   docID,
	}
}

func TestJoinLeaveRoom(t *testing.T) {
	st := NewState()

	st.JoinRoom(entry("c1", "u1", "d1"))
	st.JoinRoom(entry("c2", "u2", "d1"))

	require.Equal(t, []string{"c1", "c2"}, st.RoomMembers("d1"))
	require.True(t, st.InRoom("c1", "d1"))
	require.False(t, st.InRoom("c1", "d2"))

	doc, ok := st.LeaveRoom("c1")
	require.True(t, ok)
	require.Equal(t, "d1", doc)
	require.Equal(t, []string{"c2"}, st.RoomMembers("d1"))

	_, ok = st.Presence("c1")
	require.False(t, ok, "presence entry must be dropped with room membership")
}

func TestRoomDeletedWhenEmpty(t *testing.T) {
	st := NewState()

	st.JoinRoom(entry("c1", "u1", "d1"))
	st.LeaveRoom("c1")

	require.Empty(t, st.RoomMembers("d1"))
	require.NotContains(t, st.rooms, "d1", "empty room set must be deleted")
}

func TestJoinMovesConnectionBetweenRooms(t *testing.T) {
	st := NewState()

	st.JoinRoom(entry("c1", "u1", "d1"))
	prev, moved := st.JoinRoom(entry("c1", "u1", "d2"))

	require.True(t, moved)
	require.Equal(t, "d1", prev)
	require.Empty(t, st.RoomMembers("d1"))
	require.Equal(t, []string{"c1"}, st.RoomMembers("d2"))

	// A connection is in at most one room.
	doc, ok := st.RoomOf("c1")
	require.True(t, ok)
	require.Equal(t, "d2", doc)
}

func TestRejoinSameRoomIsNotAMove(t *testing.T) {
	st := NewState()

	st.JoinRoom(entry("c1", "u1", "d1"))
	_, moved := st.JoinRoom(entry("c1", "u1", "d1"))

	require.False(t, moved)
	require.Equal(t, []string{"c1"}, st.RoomMembers("d1"))
}

func TestRoomPresenceExcludes(t *testing.T) {
	st := NewState()

	st.JoinRoom(entry("c1", "u1", "d1"))
	st.JoinRoom(entry("c2", "u2", "d1"))

	all := st.RoomPresence("d1", "")
	require.Len(t, all, 2)

	others := st.RoomPresence("d1", "c2")
	require.Len(t, others, 1)
	require.Equal(t, "c1", others[0].ConnectionID)
}

func TestSignalingIndependentOfRoom(t *testing.T) {
	st := NewState()

	// Signaling membership without edit-room membership.
	st.JoinSignaling("d1", "c1")
	require.True(t, st.InSignaling("c1", "d1"))
	require.False(t, st.InRoom("c1", "d1"))

	// And the other way around.
	st.JoinRoom(entry("c2", "u2", "d1"))
	require.False(t, st.InSignaling("c2", "d1"))

	require.True(t, st.LeaveSignaling("d1", "c1"))
	require.False(t, st.LeaveSignaling("d1", "c1"), "second leave is a no-op")
	require.NotContains(t, st.signaling, "d1", "empty signaling set must be deleted")
}

func TestRemoveConnectionCleansEverything(t *testing.T) {
	st := NewState()

	st.JoinRoom(entry("c1", "u1", "d1"))
	st.JoinSignaling("d1", "c1")
	st.JoinSignaling("d2", "c1")

	roomDoc, hadRoom, signalingDocs := st.RemoveConnection("c1")

	require.True(t, hadRoom)
	require.Equal(t, "d1", roomDoc)
	require.Equal(t, []string{"d1", "d2"}, signalingDocs)

	require.Empty(t, st.RoomMembers("d1"))
	require.Empty(t, st.SignalingMembers("d1"))
	require.Empty(t, st.SignalingMembers("d2"))
	_, ok := st.Presence("c1")
	require.False(t, ok)
}

func TestRemoveConnectionIdempotent(t *testing.T) {
	st := NewState()

	st.JoinRoom(entry("c1", "u1", "d1"))
	st.RemoveConnection("c1")

	roomDoc, hadRoom, signalingDocs := st.RemoveConnection("c1")
	require.False(t, hadRoom)
	require.Empty(t, roomDoc)
	require.Empty(t, signalingDocs)
}

func TestMembershipMatchesJoinLeaveHistory(t *testing.T) {
	st := NewState()

	// Arbitrary join/leave interleaving; membership must equal exactly the
	// set of connections that joined and have not left.
	st.JoinRoom(entry("c1", "u1", "d1"))
	st.JoinRoom(entry("c2", "u2", "d1"))
	st.JoinRoom(entry("c3", "u3", "d1"))
	st.LeaveRoom("c2")
	st.JoinRoom(entry("c4", "u4", "d1"))
	st.RemoveConnection("c3")

	require.Equal(t, []string{"c1", "c4"}, st.RoomMembers("d1"))
}

func TestCursorPointerUpdates(t *testing.T) {
	st := NewState()

	st.JoinRoom(entry("c1", "u1", "d1"))
	st.SetCursor("c1", []byte(`{"from":3,"to":7}`))
	st.SetPointer("c1", []byte(`{"x":10,"y":20}`))

	e, ok := st.Presence("c1")
	require.True(t, ok)
	require.JSONEq(t, `{"from":3,"to":7}`, string(e.Cursor))
	require.JSONEq(t, `{"x":10,"y":20}`, string(e.Pointer))

	// Unknown connections are ignored.
	st.SetCursor("ghost", []byte(`{}`))
}
