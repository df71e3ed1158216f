package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/broadcastkit/studiod/internal/docstore"
	"github.com/broadcastkit/studiod/internal/models"
	"github.com/broadcastkit/studiod/internal/native"
)

// registryDoc is the persisted document shape of a registry. Implemented by
// the models document types through their embedded RegistryEntry.
type registryDoc interface {
	Entry() *models.RegistryEntry
}

// Registry tracks live native objects of one kind alongside their persisted
// documents. Entries are keyed by kind-prefixed unique id; persistent
// entries are written through the store's write queue, transient entries
// live only in memory.
type Registry[H native.Object, D registryDoc] struct {
	kind    string
	factory native.Factory[H]
	queue   *docstore.Queue
	log     *slog.Logger
	alloc   func() D

	mu      sync.Mutex
	entries map[string]*registryItem[H, D]
	order   []string
}

type registryItem[H native.Object, D registryDoc] struct {
	doc    D
	handle H
}

// NewRegistry creates a registry of the given kind. kind prefixes generated
// ids; alloc returns a zero document of the registry's persisted shape.
func NewRegistry[H native.Object, D registryDoc](kind string, factory native.Factory[H], store docstore.Persister, alloc func() D, log *slog.Logger) *Registry[H, D] {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("registry", kind))
	return &Registry[H, D]{
		kind:    kind,
		factory: factory,
		queue:   docstore.NewQueue(store, log),
		log:     log,
		alloc:   alloc,
		entries: make(map[string]*registryItem[H, D]),
	}
}

// Initialize loads every persisted document and recreates its native object
// from the stored type and settings. restored runs for each recreated entry,
// after the object exists but before Initialize returns.
func (r *Registry[H, D]) Initialize(ctx context.Context, restored func(id string, doc D, handle H) error) error {
	return r.queue.Initialize(ctx, func(docs []models.Document) error {
		for _, raw := range docs {
			doc := r.alloc()
			if err := json.Unmarshal(raw.Content, doc); err != nil {
				return fmt.Errorf("decoding %s document %s: %w", r.kind, raw.DocID, err)
			}
			entry := doc.Entry()
			entry.UniqueID = raw.DocID
			entry.IsPersistent = true

			handle, err := r.factory.Create(entry.Type, raw.DocID, entry.Settings)
			if err != nil {
				return fmt.Errorf("%w: recreating %s %s (type %s): %v",
					models.ErrNativeObjectCreationFailed, r.kind, raw.DocID, entry.Type, err)
			}
			r.mu.Lock()
			r.entries[raw.DocID] = &registryItem[H, D]{doc: doc, handle: handle}
			r.order = append(r.order, raw.DocID)
			r.mu.Unlock()

			if restored != nil {
				if err := restored(raw.DocID, doc, handle); err != nil {
					return err
				}
			}
			r.log.Debug("restored entry",
				slog.String("id", raw.DocID),
				slog.String("type", entry.Type))
		}
		return nil
	})
}

// Add creates a native object and registers it. Unset or invalid list-valued
// fields are defaulted to the first valid option before the settings
// snapshot is taken. customize may fill document fields beyond the shared
// core; nil is fine. Returns the generated unique id.
func (r *Registry[H, D]) Add(objectType string, persistent bool, settings native.Settings, customize func(doc D)) (string, error) {
	id := models.NewUniqueID(r.kind)

	handle, err := r.factory.Create(objectType, id, settings)
	if err != nil {
		return "", fmt.Errorf("%w: creating %s (type %s): %v",
			models.ErrNativeObjectCreationFailed, r.kind, objectType, err)
	}
	if err := applyListDefaults(handle); err != nil {
		_ = handle.Release()
		return "", fmt.Errorf("defaulting list fields of %s %s: %w", r.kind, id, err)
	}

	doc := r.alloc()
	entry := doc.Entry()
	entry.UniqueID = id
	entry.Type = objectType
	entry.Settings = handle.Settings()
	entry.IsPersistent = persistent
	if customize != nil {
		customize(doc)
	}

	r.mu.Lock()
	r.entries[id] = &registryItem[H, D]{doc: doc, handle: handle}
	r.order = append(r.order, id)
	r.mu.Unlock()

	if persistent {
		r.queue.AddQueue(id)
		r.persist(id)
	}
	r.log.Info("entry added",
		slog.String("id", id),
		slog.String("type", objectType),
		slog.Bool("persistent", persistent))
	return id, nil
}

// Remove releases the native object and deletes the entry. Removing an
// unknown or already removed id fails with ErrNotFound.
func (r *Registry[H, D]) Remove(id string) error {
	r.mu.Lock()
	item, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%s %s: %w", r.kind, id, models.ErrNotFound)
	}
	delete(r.entries, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	persistent := item.doc.Entry().IsPersistent
	r.mu.Unlock()

	if err := item.handle.Release(); err != nil {
		r.log.Warn("releasing native object failed",
			slog.String("id", id),
			slog.String("error", err.Error()))
	}
	if persistent {
		r.queue.QueueDeletion(id)
	}
	r.log.Info("entry removed", slog.String("id", id))
	return nil
}

// Handle returns the live native object for id.
func (r *Registry[H, D]) Handle(id string) (H, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.entries[id]
	if !ok {
		var zero H
		return zero, false
	}
	return item.handle, true
}

// Doc returns the registered document for id.
func (r *Registry[H, D]) Doc(id string) (D, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.entries[id]
	if !ok {
		var zero D
		return zero, false
	}
	return item.doc, true
}

// IDs lists registered ids in insertion order.
func (r *Registry[H, D]) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered entries.
func (r *Registry[H, D]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// UpdateSettings applies a partial settings patch to the native object, then
// snapshots the object's effective settings back into the document and
// persists it.
func (r *Registry[H, D]) UpdateSettings(id string, patch native.Settings) error {
	r.mu.Lock()
	item, ok := r.entries[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s %s: %w", r.kind, id, models.ErrNotFound)
	}
	if err := item.handle.Update(patch); err != nil {
		return fmt.Errorf("updating %s %s: %w", r.kind, id, err)
	}

	r.mu.Lock()
	item.doc.Entry().Settings = item.handle.Settings()
	persistent := item.doc.Entry().IsPersistent
	r.mu.Unlock()
	if persistent {
		r.persist(id)
	}
	return nil
}

// SetBitrate updates the object's bitrate field.
func (r *Registry[H, D]) SetBitrate(id string, kbps int) error {
	return r.UpdateSettings(id, native.Settings{"bitrate": kbps})
}

// ApplyFormData applies a properties-form submission as a settings patch.
func (r *Registry[H, D]) ApplyFormData(id string, form native.Settings) error {
	return r.UpdateSettings(id, form)
}

// Mutate lets a caller change document fields beyond the shared core and
// persists the result.
func (r *Registry[H, D]) Mutate(id string, change func(doc D)) error {
	r.mu.Lock()
	item, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%s %s: %w", r.kind, id, models.ErrNotFound)
	}
	change(item.doc)
	persistent := item.doc.Entry().IsPersistent
	r.mu.Unlock()
	if persistent {
		r.persist(id)
	}
	return nil
}

// persist queues the document's current state for writing.
func (r *Registry[H, D]) persist(id string) {
	r.mu.Lock()
	item, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	content, err := json.Marshal(item.doc)
	r.mu.Unlock()
	if err != nil {
		r.log.Error("encoding document failed",
			slog.String("id", id),
			slog.String("error", err.Error()))
		return
	}
	r.queue.QueueChange(id, content)
}

// Wait blocks until all queued writes have been committed.
func (r *Registry[H, D]) Wait() {
	r.queue.Wait()
}

// applyListDefaults selects the first valid option for every list-valued
// property that is unset or holds a value outside the option set.
func applyListDefaults[H native.Object](handle H) error {
	settings := handle.Settings()
	patch := native.Settings{}
	for _, prop := range handle.Properties() {
		if !prop.IsList || len(prop.Options) == 0 {
			continue
		}
		current, ok := settings[prop.Name]
		if ok && optionValid(prop.Options, current) {
			continue
		}
		patch[prop.Name] = prop.Options[0]
	}
	if len(patch) == 0 {
		return nil
	}
	return handle.Update(patch)
}

func optionValid(options []any, value any) bool {
	for _, opt := range options {
		if reflect.DeepEqual(opt, value) {
			return true
		}
	}
	return false
}
