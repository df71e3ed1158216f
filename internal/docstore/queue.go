package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/broadcastkit/studiod/internal/models"
)

// Queue serializes writes to one document store. Each document has its own
// FIFO of pending content snapshots; at most one write per document is in
// flight at any time, and snapshots are committed strictly in the order they
// were queued. Queueing never blocks the caller.
//
// A revision conflict or storage error stops the document's queue without
// retrying: the in-memory state stays authoritative and the failure is
// logged. All writes between acknowledgements mean the stored revision can
// only diverge if something else writes the same row, which is an
// operational fault, not a recoverable condition.
type Queue struct {
	store Persister
	log   *slog.Logger

	mu        sync.Mutex
	revisions map[string]string
	pending   map[string][][]byte
	wg        sync.WaitGroup
}

// NewQueue creates a write queue draining into store.
func NewQueue(store Persister, log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	return &Queue{
		store:     store,
		log:       log,
		revisions: make(map[string]string),
		pending:   make(map[string][][]byte),
	}
}

// Initialize loads every existing document, registers a queue for each and
// records its revision, then hands the loaded documents to onLoaded.
// onLoaded runs before any write can be queued for the loaded documents.
func (q *Queue) Initialize(ctx context.Context, onLoaded func(docs []models.Document) error) error {
	docs, err := q.store.Load(ctx)
	if err != nil {
		return err
	}

	q.mu.Lock()
	for _, doc := range docs {
		if _, ok := q.pending[doc.DocID]; ok {
			continue
		}
		q.pending[doc.DocID] = nil
		q.revisions[doc.DocID] = doc.Revision
	}
	q.mu.Unlock()

	if onLoaded != nil {
		return onLoaded(docs)
	}
	return nil
}

// AddQueue registers a queue for a document that does not exist in storage
// yet. Registering an id twice is a logged no-op.
func (q *Queue) AddQueue(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pending[id]; ok {
		q.log.Warn("document queue already registered", slog.String("doc_id", id))
		return
	}
	q.pending[id] = nil
}

// QueueChange appends a content snapshot to the document's queue and returns
// immediately. If no write is in flight for the document, a drain goroutine
// is started.
func (q *Queue) QueueChange(id string, content []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.pending[id]; !ok {
		q.log.Warn("change queued for unregistered document", slog.String("doc_id", id))
		q.pending[id] = nil
	}
	q.pending[id] = append(q.pending[id], content)
	if len(q.pending[id]) > 1 {
		return
	}
	q.wg.Add(1)
	go q.drain(id, q.revisions[id], content)
}

// QueueDeletion discards any pending snapshots for the document and issues
// its deletion. The document's queue is removed once the delete completes.
func (q *Queue) QueueDeletion(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.pending[id]; !ok {
		q.log.Warn("deletion queued for unregistered document", slog.String("doc_id", id))
		return
	}
	inFlight := len(q.pending[id]) > 0
	q.pending[id] = nil
	rev := q.revisions[id]
	if inFlight {
		// The drain goroutine owns the queue until its current write
		// completes; it observes the emptied queue and exits. Deleting
		// here would race its revision bookkeeping.
		q.log.Warn("deletion queued while a write is in flight",
			slog.String("doc_id", id))
	}
	delete(q.pending, id)
	delete(q.revisions, id)

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		if err := q.store.Delete(context.Background(), id, rev); err != nil {
			q.log.Error("document deletion failed",
				slog.String("doc_id", id),
				slog.String("error", err.Error()))
		}
	}()
}

// Revision returns the last acknowledged revision for the document.
func (q *Queue) Revision(id string) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	rev, ok := q.revisions[id]
	return rev, ok
}

// Wait blocks until every in-flight write and deletion has completed. Used
// during shutdown and by tests.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// drain commits snapshots head-first until the document's queue is empty.
// Exactly one drain goroutine runs per document at a time.
func (q *Queue) drain(id, rev string, content []byte) {
	defer q.wg.Done()
	for {
		newRev, err := q.store.Put(context.Background(), id, rev, content)
		if err != nil {
			q.reportFailure(id, err)
			return
		}

		q.mu.Lock()
		queue, ok := q.pending[id]
		if !ok || len(queue) == 0 {
			// Deleted while the write was in flight.
			q.mu.Unlock()
			return
		}
		q.revisions[id] = newRev
		q.pending[id] = queue[1:]
		if len(q.pending[id]) == 0 {
			q.mu.Unlock()
			return
		}
		content = q.pending[id][0]
		rev = newRev
		q.mu.Unlock()
	}
}

func (q *Queue) reportFailure(id string, err error) {
	var conflict *models.ConflictError
	if errors.As(err, &conflict) {
		q.log.Error("revision conflict while persisting document",
			slog.String("doc_id", id),
			slog.String("expected_revision", conflict.ExpectedRevision),
			slog.String("current_revision", conflict.CurrentRevision))
		return
	}
	q.log.Error("document write failed",
		slog.String("doc_id", id),
		slog.String("error", err.Error()))
}

// FetchRevision reloads the stored revision of a document. Tests use it to
// confirm acknowledged commits; normal operation relies on Queue bookkeeping.
func FetchRevision(ctx context.Context, store Persister, id string) (string, error) {
	docs, err := store.Load(ctx)
	if err != nil {
		return "", err
	}
	for _, doc := range docs {
		if doc.DocID == id {
			return doc.Revision, nil
		}
	}
	return "", fmt.Errorf("document %s: %w", id, models.ErrNotFound)
}
