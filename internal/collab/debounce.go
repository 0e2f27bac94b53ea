package collab

import (
	"context"
	"log"
	"sync"
	"time"

	"coedit/internal/middleware"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Field names the document column a pending write targets.
type Field string

const (
	FieldContent Field = "content"
	FieldTitle   Field = "title"
)

// pendingKey identifies the one outstanding write slot per (document, field).
type pendingKey struct {
	DocumentID string
	Field      Field
}

type pendingWrite struct {
	payload string
	timer   *time.Timer
}

const persistTimeout = 10 * time.Second

// Debouncer coalesces rapid content/title mutations into a single delayed
// store write per (document, field). A new mutation replaces both the payload
// and the timer, so the write that eventually fires carries the latest
// payload observed. Writes are best-effort: failures are logged and counted,
// never retried, never surfaced to clients.
//
// The timer callbacks run off the hub loop, so the pending map has its own
// mutex.
type Debouncer struct {
	mu      sync.Mutex
	pending map[pendingKey]*pendingWrite

	contentDelay time.Duration
	titleDelay   time.Duration

	store    DocumentStore
	failures metric.Int64Counter
	wg       sync.WaitGroup
}

// NewDebouncer creates a debouncer writing through the given store.
func NewDebouncer(store DocumentStore, contentDelay, titleDelay time.Duration) *Debouncer {
	meter := otel.Meter("coedit")
	failures, err := meter.Int64Counter("coedit.persist.failures",
		metric.WithDescription("document persistence writes that failed"))
	if err != nil {
		log.Printf("persist failure counter unavailable: %v", err)
	}

	return &Debouncer{
		pending:      make(map[pendingKey]*pendingWrite),
		contentDelay: contentDelay,
		titleDelay:   titleDelay,
		store:        store,
		failures:     failures,
	}
}

func (d *Debouncer) delay(field Field) time.Duration {
	if field == FieldTitle {
		return d.titleDelay
	}
	return d.contentDelay
}

// Schedule arms (or re-arms) the write slot for (documentID, field) with the
// given payload.
func (d *Debouncer) Schedule(documentID string, field Field, payload string) {
	key := pendingKey{DocumentID: documentID, Field: field}

	d.mu.Lock()
	defer d.mu.Unlock()

	if pw, ok := d.pending[key]; ok {
		pw.payload = payload
		pw.timer.Reset(d.delay(field))
		return
	}

	pw := &pendingWrite{payload: payload}
	pw.timer = time.AfterFunc(d.delay(field), func() { d.fire(key) })
	d.pending[key] = pw
}

// fire takes the latest payload for the slot and issues the store write.
func (d *Debouncer) fire(key pendingKey) {
	d.mu.Lock()
	pw, ok := d.pending[key]
	if !ok {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	payload := pw.payload
	d.wg.Add(1) // under mu, so Flush cannot miss an in-flight write
	d.mu.Unlock()

	defer d.wg.Done()
	d.write(key, payload)
}

func (d *Debouncer) write(key pendingKey, payload string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	ctx, span := middleware.StartSpan(ctx, "Debouncer.Persist",
		attribute.String("document.id", key.DocumentID),
		attribute.String("field", string(key.Field)),
	)
	defer span.End()

	var err error
	switch key.Field {
	case FieldTitle:
		err = d.store.UpdateTitle(ctx, key.DocumentID, payload)
	default:
		err = d.store.UpdateContent(ctx, key.DocumentID, payload)
	}

	if err != nil {
		log.Printf("persist %s for document %s failed: %v", key.Field, key.DocumentID, err)
		middleware.AddSpanError(ctx, err)
		if d.failures != nil {
			d.failures.Add(ctx, 1,
				metric.WithAttributes(attribute.String("field", string(key.Field))))
		}
	}
}

// Flush stops all timers and writes every pending payload synchronously.
// Called on shutdown so the last keystrokes before a restart are not lost.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	drained := make(map[pendingKey]string, len(d.pending))
	for key, pw := range d.pending {
		pw.timer.Stop()
		drained[key] = pw.payload
	}
	d.pending = make(map[pendingKey]*pendingWrite)
	d.mu.Unlock()

	for key, payload := range drained {
		d.write(key, payload)
	}
	d.wg.Wait()
}
