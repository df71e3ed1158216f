// Package docstore implements the revisioned document store and the
// per-document single-flight write queue used by every configuration
// service. Documents live in one table keyed by (store, doc id); each
// commit reissues the revision token, and writes carrying a stale revision
// are rejected by the optimistic-concurrency check.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/broadcastkit/studiod/internal/models"
)

// Persister is the storage contract the write queue drains into.
type Persister interface {
	// Load returns every document of the store.
	Load(ctx context.Context) ([]models.Document, error)
	// Put commits content under id. rev must be the revision of the last
	// acknowledged commit, or empty on creation. Returns the new revision.
	Put(ctx context.Context, id, rev string, content []byte) (string, error)
	// Delete removes the document. rev follows the same contract as Put.
	Delete(ctx context.Context, id, rev string) error
}

// Migrate creates the documents table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Document{}); err != nil {
		return fmt.Errorf("%w: migrating documents table: %v", models.ErrStorageUnavailable, err)
	}
	return nil
}

// Store is one logical document store (a namespace inside the documents
// table) with revision-checked writes.
type Store struct {
	db   *gorm.DB
	name string
	log  *slog.Logger
}

// NewStore creates a handle for the named document store.
func NewStore(db *gorm.DB, name string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, name: name, log: log.With(slog.String("store", name))}
}

// Name returns the store name.
func (s *Store) Name() string {
	return s.name
}

// Load returns all documents of the store.
func (s *Store) Load(ctx context.Context) ([]models.Document, error) {
	var docs []models.Document
	if err := s.db.WithContext(ctx).
		Where("store = ?", s.name).
		Order("doc_id ASC").
		Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("%w: loading store %s: %v", models.ErrStorageUnavailable, s.name, err)
	}
	return docs, nil
}

// Put commits content under id with the optimistic-concurrency check.
// An empty rev creates the document; a non-empty rev must match the stored
// revision or the write is rejected with a ConflictError.
func (s *Store) Put(ctx context.Context, id, rev string, content []byte) (string, error) {
	newRev := models.NewULID()

	if rev == "" {
		doc := models.Document{
			Store:    s.name,
			DocID:    id,
			Revision: newRev,
			Content:  content,
		}
		if err := s.db.WithContext(ctx).Create(&doc).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return "", s.conflict(ctx, id, rev)
			}
			// Some dialects report key violations as plain errors;
			// distinguish by checking for an existing row.
			if current := s.currentRevision(ctx, id); current != "" {
				return "", &models.ConflictError{
					Store: s.name, DocID: id,
					ExpectedRevision: rev, CurrentRevision: current,
				}
			}
			return "", fmt.Errorf("creating document %s/%s: %w", s.name, id, err)
		}
		return newRev, nil
	}

	result := s.db.WithContext(ctx).
		Model(&models.Document{}).
		Where("store = ? AND doc_id = ? AND revision = ?", s.name, id, rev).
		Updates(map[string]any{"revision": newRev, "content": content})
	if result.Error != nil {
		return "", fmt.Errorf("updating document %s/%s: %w", s.name, id, result.Error)
	}
	if result.RowsAffected == 0 {
		return "", s.conflict(ctx, id, rev)
	}
	return newRev, nil
}

// Delete removes the document with the same revision contract as Put.
func (s *Store) Delete(ctx context.Context, id, rev string) error {
	result := s.db.WithContext(ctx).
		Where("store = ? AND doc_id = ? AND revision = ?", s.name, id, rev).
		Delete(&models.Document{})
	if result.Error != nil {
		return fmt.Errorf("deleting document %s/%s: %w", s.name, id, result.Error)
	}
	if result.RowsAffected == 0 {
		if current := s.currentRevision(ctx, id); current == "" {
			return fmt.Errorf("deleting document %s/%s: %w", s.name, id, models.ErrNotFound)
		}
		return s.conflict(ctx, id, rev)
	}
	return nil
}

// conflict builds a ConflictError carrying the revision currently stored.
func (s *Store) conflict(ctx context.Context, id, rev string) error {
	return &models.ConflictError{
		Store:            s.name,
		DocID:            id,
		ExpectedRevision: rev,
		CurrentRevision:  s.currentRevision(ctx, id),
	}
}

func (s *Store) currentRevision(ctx context.Context, id string) string {
	var doc models.Document
	err := s.db.WithContext(ctx).
		Select("revision").
		Where("store = ? AND doc_id = ?", s.name, id).
		First(&doc).Error
	if err != nil {
		return ""
	}
	return doc.Revision
}

// Ensure Store implements Persister.
var _ Persister = (*Store)(nil)
