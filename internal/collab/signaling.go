package collab

import (
	"encoding/json"
	"time"
)

// Signaling relay: pure forwarding for peer-connection negotiation, scoped to
// a signaling room per document that lives independently of the edit room. The
// relay never inspects payloads and never targets a single peer; receivers
// filter by the peer id embedded in the payload. Stale membership is cleared
// only on disconnect.

func (h *Hub) handleJoinSignaling(s *Session, data json.RawMessage) {
	var p signalingRoomPayload
	if err := json.Unmarshal(data, &p); err != nil || p.DocumentID == "" {
		return
	}

	if h.state.InSignaling(s.ID, p.DocumentID) {
		return
	}

	// Existing members learn about the new peer before it is added, so the
	// joiner never receives its own join notice.
	h.broadcastToSignaling(p.DocumentID, s.ID, encodeEvent(EventUserJoinedSignaling, signalingMemberEvent{
		DocumentID:   p.DocumentID,
		UserID:       s.UserID,
		ConnectionID: s.ID,
	}))

	h.state.JoinSignaling(p.DocumentID, s.ID)
}

func (h *Hub) handleLeaveSignaling(s *Session, data json.RawMessage) {
	var p signalingRoomPayload
	if err := json.Unmarshal(data, &p); err != nil || p.DocumentID == "" {
		return
	}

	if !h.state.LeaveSignaling(p.DocumentID, s.ID) {
		return
	}

	h.broadcastToSignaling(p.DocumentID, s.ID, encodeEvent(EventUserLeftSignaling, signalingMemberEvent{
		DocumentID:   p.DocumentID,
		UserID:       s.UserID,
		ConnectionID: s.ID,
	}))
}

func (h *Hub) handleWebRTCOffer(s *Session, data json.RawMessage) {
	h.relaySignaling(s, data, EventWebRTCOffer)
}

func (h *Hub) handleWebRTCAnswer(s *Session, data json.RawMessage) {
	h.relaySignaling(s, data, EventWebRTCAnswer)
}

func (h *Hub) handleWebRTCICE(s *Session, data json.RawMessage) {
	h.relaySignaling(s, data, EventWebRTCICE)
}

func (h *Hub) relaySignaling(s *Session, data json.RawMessage, outEvent string) {
	var p signalingMessagePayload
	if err := json.Unmarshal(data, &p); err != nil || p.DocumentID == "" {
		return
	}
	if !h.state.InSignaling(s.ID, p.DocumentID) {
		return
	}

	h.broadcastToSignaling(p.DocumentID, s.ID, encodeEvent(outEvent, signalingRelayEvent{
		DocumentID: p.DocumentID,
		Payload:    p.Payload,
		FromUserID: s.UserID,
		Timestamp:  time.Now(),
	}))
}
