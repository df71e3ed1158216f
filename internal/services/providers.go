package services

import (
	"context"
	"log/slog"

	"github.com/broadcastkit/studiod/internal/docstore"
	"github.com/broadcastkit/studiod/internal/models"
	"github.com/broadcastkit/studiod/internal/native"
)

// ProviderService owns the delivery provider registry. A provider carries
// the ingest endpoint and credentials an output streams to.
type ProviderService struct {
	log *slog.Logger
	reg *Registry[native.Provider, *models.ProviderDocument]

	initialized bool
}

// NewProviderService creates the provider service over the Providers store.
func NewProviderService(store docstore.Persister, engine native.Engine, log *slog.Logger) *ProviderService {
	if log == nil {
		log = slog.Default()
	}
	return &ProviderService{
		log: log,
		reg: NewRegistry("provider", engine.Providers(), store,
			func() *models.ProviderDocument { return &models.ProviderDocument{} }, log),
	}
}

// Initialize restores persisted providers. Calling it again is a no-op.
func (s *ProviderService) Initialize(ctx context.Context) error {
	if s.initialized {
		return nil
	}
	if err := s.reg.Initialize(ctx, nil); err != nil {
		return err
	}
	s.initialized = true
	return nil
}

// AddProvider creates a provider of the given engine type.
func (s *ProviderService) AddProvider(objectType string, persistent bool, settings native.Settings) (string, error) {
	return s.reg.Add(objectType, persistent, settings, nil)
}

// RemoveProvider releases and deletes a provider.
func (s *ProviderService) RemoveProvider(id string) error {
	return s.reg.Remove(id)
}

// UpdateProvider patches a provider's settings (server URL, stream key).
func (s *ProviderService) UpdateProvider(id string, patch native.Settings) error {
	return s.reg.UpdateSettings(id, patch)
}

// ApplyFormData applies a properties-form submission to a provider.
func (s *ProviderService) ApplyFormData(id string, form native.Settings) error {
	return s.reg.ApplyFormData(id, form)
}

// ProviderDoc returns the persisted document of a provider.
func (s *ProviderService) ProviderDoc(id string) (*models.ProviderDocument, bool) {
	return s.reg.Doc(id)
}

// ProviderIDs lists registered provider ids.
func (s *ProviderService) ProviderIDs() []string {
	return s.reg.IDs()
}

// Wait blocks until all queued provider writes have been committed.
func (s *ProviderService) Wait() {
	s.reg.Wait()
}
