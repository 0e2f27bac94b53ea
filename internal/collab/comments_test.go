package collab

import (
	"context"
	"encoding/json"
	"testing"

	"coedit/internal/models"

	"github.com/stretchr/testify/require"
)

// newCommentRoom returns a hub with owner and author sessions joined to d1.
func newCommentRoom(t *testing.T) (*Hub, *fakeCommentStore, *Session, *Session) {
	t.Helper()
	docs := newFakeDocStore(testDocument("d1", "owner", []string{"author"}, false))
	comments := newFakeCommentStore()
	h := newTestHub(docs, comments)

	o := newTestSession(h, "co", "owner", "O")
	a := newTestSession(h, "ca", "author", "A")
	joinDoc(t, h, o, "d1")
	joinDoc(t, h, a, "d1")
	drain(t, o)
	drain(t, a)
	return h, comments, o, a
}

func commentFrom(t *testing.T, env Envelope) commentEvent {
	t.Helper()
	var ev commentEvent
	require.NoError(t, json.Unmarshal(env.Data, &ev))
	return ev
}

func TestCommentAddedPersistsAndFansOut(t *testing.T) {
	h, comments, o, a := newCommentRoom(t)

	inject(t, h, a, EventCommentAdded, commentAddedPayload{
		DocumentID:    "d1",
		Body:          "typo here",
		SelectedRange: models.SelectedRange{From: 10, To: 14},
	})

	// Both the room and the sender receive the authoritative comment.
	ownerView := commentFrom(t, findEvent(t, drain(t, o), EventCommentAdded))
	authorView := commentFrom(t, findEvent(t, drain(t, a), EventCommentAdded))

	require.Equal(t, ownerView.Comment.ID, authorView.Comment.ID)
	require.NotEmpty(t, authorView.Comment.ID, "sender learns the server-assigned id")
	require.Equal(t, models.KindComment, ownerView.Comment.Kind)
	require.Equal(t, models.StatusOpen, ownerView.Comment.Status)
	require.Equal(t, "author", ownerView.Comment.AuthorID)
	require.Equal(t, models.SelectedRange{From: 10, To: 14}, ownerView.Comment.SelectedRange)

	stored, err := comments.GetByID(context.Background(), authorView.Comment.ID)
	require.NoError(t, err)
	require.Equal(t, "typo here", stored.Body)
}

func TestSuggestionStartsPending(t *testing.T) {
	h, _, o, a := newCommentRoom(t)

	inject(t, h, a, EventSuggestionAdded, suggestionAddedPayload{
		DocumentID:    "d1",
		Body:          "use a stronger verb",
		SelectedRange: models.SelectedRange{From: 3, To: 9},
		SuggestedText: "sprint",
	})

	view := commentFrom(t, findEvent(t, drain(t, o), EventSuggestionAdded))
	require.Equal(t, models.KindSuggestion, view.Comment.Kind)
	require.Equal(t, models.StatusPending, view.Comment.Status)
	require.Equal(t, "sprint", view.Comment.SuggestedText)
}

// Scenario D: owner accepts the author's suggestion; every room member,
// including the author, sees suggestion-resolved with status accepted.
func TestSuggestionAcceptFlow(t *testing.T) {
	h, comments, o, a := newCommentRoom(t)

	inject(t, h, a, EventSuggestionAdded, suggestionAddedPayload{
		DocumentID: "d1", Body: "b", SuggestedText: "s",
	})
	suggestion := commentFrom(t, findEvent(t, drain(t, o), EventSuggestionAdded))
	drain(t, a)

	inject(t, h, o, EventSuggestionResolved, suggestionResolvedPayload{
		CommentID: suggestion.Comment.ID,
		Action:    "accept",
	})

	authorView := commentFrom(t, findEvent(t, drain(t, a), EventSuggestionResolved))
	require.Equal(t, models.StatusAccepted, authorView.Comment.Status)
	require.NotNil(t, authorView.Comment.ResolvedBy)
	require.Equal(t, "owner", *authorView.Comment.ResolvedBy)

	ownerView := commentFrom(t, findEvent(t, drain(t, o), EventSuggestionResolved))
	require.Equal(t, models.StatusAccepted, ownerView.Comment.Status)

	stored, err := comments.GetByID(context.Background(), suggestion.Comment.ID)
	require.NoError(t, err)
	require.True(t, stored.Terminal())
}

func TestSuggestionResolutionIsTerminal(t *testing.T) {
	h, _, o, a := newCommentRoom(t)

	inject(t, h, a, EventSuggestionAdded, suggestionAddedPayload{
		DocumentID: "d1", Body: "b", SuggestedText: "s",
	})
	suggestion := commentFrom(t, findEvent(t, drain(t, o), EventSuggestionAdded))
	drain(t, a)

	inject(t, h, o, EventSuggestionResolved, suggestionResolvedPayload{
		CommentID: suggestion.Comment.ID, Action: "reject",
	})
	drain(t, o)
	drain(t, a)

	// Second resolution is rejected by the store; state is unchanged and the
	// caller gets a conflict error.
	inject(t, h, o, EventSuggestionResolved, suggestionResolvedPayload{
		CommentID: suggestion.Comment.ID, Action: "accept",
	})

	errEnv := findEvent(t, drain(t, o), EventError)
	var e errorEvent
	require.NoError(t, json.Unmarshal(errEnv.Data, &e))
	require.Equal(t, ErrCodeConflict, e.Code)

	stored, err := h.comments.GetByID(context.Background(), suggestion.Comment.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusRejected, stored.Status)
	require.Empty(t, drain(t, a), "failed retry is not rebroadcast")
}

func TestSuggestionResolveRequiresOwner(t *testing.T) {
	h, _, o, a := newCommentRoom(t)

	inject(t, h, a, EventSuggestionAdded, suggestionAddedPayload{
		DocumentID: "d1", Body: "b", SuggestedText: "s",
	})
	suggestion := commentFrom(t, findEvent(t, drain(t, o), EventSuggestionAdded))
	drain(t, a)

	inject(t, h, a, EventSuggestionResolved, suggestionResolvedPayload{
		CommentID: suggestion.Comment.ID, Action: "accept",
	})

	errEnv := findEvent(t, drain(t, a), EventError)
	var e errorEvent
	require.NoError(t, json.Unmarshal(errEnv.Data, &e))
	require.Equal(t, ErrCodeForbidden, e.Code)

	stored, err := h.comments.GetByID(context.Background(), suggestion.Comment.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, stored.Status)
}

func TestResolveToggleAuthorOnly(t *testing.T) {
	h, _, o, a := newCommentRoom(t)

	inject(t, h, a, EventCommentAdded, commentAddedPayload{DocumentID: "d1", Body: "note"})
	comment := commentFrom(t, findEvent(t, drain(t, a), EventCommentAdded))
	drain(t, o)

	// The owner is not the author and may not resolve.
	inject(t, h, o, EventCommentResolved, commentResolvedPayload{CommentID: comment.Comment.ID, Resolved: true})
	errEnv := findEvent(t, drain(t, o), EventError)
	var e errorEvent
	require.NoError(t, json.Unmarshal(errEnv.Data, &e))
	require.Equal(t, ErrCodeForbidden, e.Code)

	// The author resolves, then un-resolves; stamps follow the toggle.
	inject(t, h, a, EventCommentResolved, commentResolvedPayload{CommentID: comment.Comment.ID, Resolved: true})
	resolved := commentFrom(t, findEvent(t, drain(t, o), EventCommentResolved))
	require.True(t, resolved.Comment.Resolved)
	require.NotNil(t, resolved.Comment.ResolvedBy)
	require.NotNil(t, resolved.Comment.ResolvedAt)

	inject(t, h, a, EventCommentResolved, commentResolvedPayload{CommentID: comment.Comment.ID, Resolved: false})
	unresolved := commentFrom(t, findEvent(t, drain(t, o), EventCommentResolved))
	require.False(t, unresolved.Comment.Resolved)
	require.Nil(t, unresolved.Comment.ResolvedBy)
	require.Nil(t, unresolved.Comment.ResolvedAt)
}

func TestReplyHasNoResolutionState(t *testing.T) {
	h, _, o, a := newCommentRoom(t)

	inject(t, h, a, EventCommentAdded, commentAddedPayload{DocumentID: "d1", Body: "parent"})
	parent := commentFrom(t, findEvent(t, drain(t, a), EventCommentAdded))
	drain(t, o)

	inject(t, h, o, EventReplyAdded, replyAddedPayload{
		DocumentID: "d1", ParentID: parent.Comment.ID, Body: "agreed",
	})

	reply := commentFrom(t, findEvent(t, drain(t, a), EventReplyAdded))
	require.Equal(t, models.KindReply, reply.Comment.Kind)
	require.NotNil(t, reply.Comment.ParentID)
	require.Equal(t, parent.Comment.ID, *reply.Comment.ParentID)

	// Replies cannot be resolved.
	inject(t, h, o, EventCommentResolved, commentResolvedPayload{CommentID: reply.Comment.ID, Resolved: true})
	errEnv := findEvent(t, drain(t, o), EventError)
	var e errorEvent
	require.NoError(t, json.Unmarshal(errEnv.Data, &e))
	require.Equal(t, ErrCodeConflict, e.Code)
}

func TestReplyToUnknownParent(t *testing.T) {
	h, _, _, a := newCommentRoom(t)

	inject(t, h, a, EventReplyAdded, replyAddedPayload{
		DocumentID: "d1", ParentID: "ghost", Body: "?",
	})

	errEnv := findEvent(t, drain(t, a), EventError)
	var e errorEvent
	require.NoError(t, json.Unmarshal(errEnv.Data, &e))
	require.Equal(t, ErrCodeNotFound, e.Code)
}

func TestCommentDeleteAuthorOrOwner(t *testing.T) {
	h, comments, o, a := newCommentRoom(t)

	inject(t, h, a, EventCommentAdded, commentAddedPayload{DocumentID: "d1", Body: "one"})
	first := commentFrom(t, findEvent(t, drain(t, a), EventCommentAdded))
	inject(t, h, a, EventCommentAdded, commentAddedPayload{DocumentID: "d1", Body: "two"})
	second := commentFrom(t, findEvent(t, drain(t, a), EventCommentAdded))
	drain(t, o)

	// Author deletes their own comment.
	inject(t, h, a, EventCommentDeleted, commentDeletedPayload{CommentID: first.Comment.ID})
	deleted := findEvent(t, drain(t, o), EventCommentDeleted)
	var del commentDeletedEvent
	require.NoError(t, json.Unmarshal(deleted.Data, &del))
	require.Equal(t, first.Comment.ID, del.CommentID)

	// Owner deletes the author's comment.
	inject(t, h, o, EventCommentDeleted, commentDeletedPayload{CommentID: second.Comment.ID})
	require.True(t, hasEvent(drain(t, a), EventCommentDeleted))

	_, err := comments.GetByID(context.Background(), second.Comment.ID)
	require.Error(t, err)
}

func TestCommentDeleteForbiddenForThirdParty(t *testing.T) {
	docs := newFakeDocStore(testDocument("d1", "owner", []string{"author", "uz"}, false))
	comments := newFakeCommentStore()
	h := newTestHub(docs, comments)

	a := newTestSession(h, "ca", "author", "A")
	z := newTestSession(h, "cz", "uz", "Z")
	joinDoc(t, h, a, "d1")
	joinDoc(t, h, z, "d1")
	drain(t, a)
	drain(t, z)

	inject(t, h, a, EventCommentAdded, commentAddedPayload{DocumentID: "d1", Body: "mine"})
	comment := commentFrom(t, findEvent(t, drain(t, a), EventCommentAdded))
	drain(t, z)

	inject(t, h, z, EventCommentDeleted, commentDeletedPayload{CommentID: comment.Comment.ID})

	errEnv := findEvent(t, drain(t, z), EventError)
	var e errorEvent
	require.NoError(t, json.Unmarshal(errEnv.Data, &e))
	require.Equal(t, ErrCodeForbidden, e.Code)

	_, err := comments.GetByID(context.Background(), comment.Comment.ID)
	require.NoError(t, err, "comment survives the forbidden delete")
}

func TestCommentEventsRequireRoomMembership(t *testing.T) {
	docs := newFakeDocStore(testDocument("d1", "owner", []string{"author", "uz"}, false))
	comments := newFakeCommentStore()
	h := newTestHub(docs, comments)

	a := newTestSession(h, "ca", "author", "A")
	joinDoc(t, h, a, "d1")
	drain(t, a)

	// Z has access but never joined the room; the event is dropped.
	z := newTestSession(h, "cz", "uz", "Z")
	inject(t, h, z, EventCommentAdded, commentAddedPayload{DocumentID: "d1", Body: "drive-by"})

	require.Empty(t, drain(t, a))
	require.Empty(t, drain(t, z))
}
