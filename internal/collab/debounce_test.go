package collab

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestDebouncer(store DocumentStore) *Debouncer {
	return NewDebouncer(store, 30*time.Millisecond, 20*time.Millisecond)
}

// Scenario B: rapid mutations inside the window coalesce into exactly one
// write carrying the last payload.
func TestDebounceCoalesces(t *testing.T) {
	store := newFakeDocStore()
	d := newTestDebouncer(store)

	d.Schedule("d1", FieldContent, "Hello")
	time.Sleep(10 * time.Millisecond)
	d.Schedule("d1", FieldContent, "Hello World")

	require.Eventually(t, func() bool {
		return len(store.contentWriteLog()) == 1
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, []string{"Hello World"}, store.contentWriteLog())

	// And no second write afterwards.
	time.Sleep(60 * time.Millisecond)
	require.Len(t, store.contentWriteLog(), 1)
}

func TestDebounceKeysAreIndependent(t *testing.T) {
	store := newFakeDocStore()
	d := newTestDebouncer(store)

	d.Schedule("d1", FieldContent, "content-1")
	d.Schedule("d1", FieldTitle, "title-1")
	d.Schedule("d2", FieldContent, "content-2")

	require.Eventually(t, func() bool {
		return len(store.contentWriteLog()) == 2 && len(store.titleWriteLog()) == 1
	}, time.Second, 5*time.Millisecond)

	require.ElementsMatch(t, []string{"content-1", "content-2"}, store.contentWriteLog())
	require.Equal(t, []string{"title-1"}, store.titleWriteLog())
}

func TestDebounceNewMutationRestartsWindow(t *testing.T) {
	store := newFakeDocStore()
	d := newTestDebouncer(store)

	// Keep re-arming faster than the window; nothing may fire meanwhile.
	for i := 0; i < 4; i++ {
		d.Schedule("d1", FieldTitle, "draft")
		time.Sleep(10 * time.Millisecond)
		require.Empty(t, store.titleWriteLog())
	}

	require.Eventually(t, func() bool {
		return len(store.titleWriteLog()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestDebounceWriteFailureIsSwallowed(t *testing.T) {
	store := newFakeDocStore()
	store.failWrites = true
	d := newTestDebouncer(store)

	d.Schedule("d1", FieldContent, "lost")
	time.Sleep(60 * time.Millisecond)

	// Failure is logged and counted only; no retry, no panic.
	require.Empty(t, store.contentWriteLog())

	// The slot is free again for the next mutation.
	store.mu.Lock()
	store.failWrites = false
	store.mu.Unlock()
	d.Schedule("d1", FieldContent, "recovered")
	require.Eventually(t, func() bool {
		return len(store.contentWriteLog()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestFlushWritesPendingImmediately(t *testing.T) {
	store := newFakeDocStore()
	d := newTestDebouncer(store)

	d.Schedule("d1", FieldContent, "unsaved")
	d.Schedule("d2", FieldTitle, "unsaved title")
	d.Flush()

	require.Equal(t, []string{"unsaved"}, store.contentWriteLog())
	require.Equal(t, []string{"unsaved title"}, store.titleWriteLog())

	// Timers were stopped; nothing fires later.
	time.Sleep(60 * time.Millisecond)
	require.Len(t, store.contentWriteLog(), 1)
	require.Len(t, store.titleWriteLog(), 1)
}
