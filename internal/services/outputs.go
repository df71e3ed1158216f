package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/broadcastkit/studiod/internal/docstore"
	"github.com/broadcastkit/studiod/internal/models"
	"github.com/broadcastkit/studiod/internal/native"
)

// OutputService owns the output registry. Outputs reference their encoders
// and provider by id; the references are weak, so a referenced entry may be
// removed underneath an output and the breakage only surfaces when the
// output is started.
type OutputService struct {
	engine native.Engine
	log    *slog.Logger
	reg    *Registry[native.Output, *models.OutputDocument]

	initialized bool
}

// NewOutputService creates the output service over the Outputs store.
func NewOutputService(store docstore.Persister, engine native.Engine, log *slog.Logger) *OutputService {
	if log == nil {
		log = slog.Default()
	}
	return &OutputService{
		engine: engine,
		log:    log,
		reg: NewRegistry("output", engine.Outputs(), store,
			func() *models.OutputDocument { return &models.OutputDocument{} }, log),
	}
}

// Initialize restores persisted outputs and rebinds their encoder and
// provider references where the referenced objects exist. Encoder services
// must be initialized first so the references resolve. Calling it again is
// a no-op.
func (s *OutputService) Initialize(ctx context.Context) error {
	if s.initialized {
		return nil
	}
	err := s.reg.Initialize(ctx, func(id string, doc *models.OutputDocument, handle native.Output) error {
		if doc.VideoEncoderID != "" {
			if enc, ok := s.engine.VideoEncoders().FromName(doc.VideoEncoderID); ok {
				if err := handle.SetVideoEncoder(enc); err != nil {
					return fmt.Errorf("rebinding video encoder on output %s: %w", id, err)
				}
			} else {
				s.log.Warn("output references missing video encoder",
					slog.String("output", id),
					slog.String("encoder", doc.VideoEncoderID))
			}
		}
		if doc.AudioEncoderID != "" {
			if enc, ok := s.engine.AudioEncoders().FromName(doc.AudioEncoderID); ok {
				if err := handle.SetAudioEncoder(enc, 0); err != nil {
					return fmt.Errorf("rebinding audio encoder on output %s: %w", id, err)
				}
			} else {
				s.log.Warn("output references missing audio encoder",
					slog.String("output", id),
					slog.String("encoder", doc.AudioEncoderID))
			}
		}
		if doc.ProviderID != "" {
			if p, ok := s.engine.Providers().FromName(doc.ProviderID); ok {
				if err := handle.SetProvider(p); err != nil {
					return fmt.Errorf("rebinding provider on output %s: %w", id, err)
				}
			} else {
				s.log.Warn("output references missing provider",
					slog.String("output", id),
					slog.String("provider", doc.ProviderID))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.initialized = true
	return nil
}

// AddOutput creates an output of the given engine type.
func (s *OutputService) AddOutput(objectType string, persistent bool, settings native.Settings) (string, error) {
	return s.reg.Add(objectType, persistent, settings, nil)
}

// RemoveOutput releases and deletes an output. Referenced encoders and the
// provider are left alone.
func (s *OutputService) RemoveOutput(id string) error {
	return s.reg.Remove(id)
}

// SetVideoEncoder binds a video encoder to the output and records the
// reference.
func (s *OutputService) SetVideoEncoder(outputID, encoderID string) error {
	handle, ok := s.reg.Handle(outputID)
	if !ok {
		return fmt.Errorf("output %s: %w", outputID, models.ErrNotFound)
	}
	enc, ok := s.engine.VideoEncoders().FromName(encoderID)
	if !ok {
		return fmt.Errorf("video encoder %s: %w", encoderID, models.ErrNotFound)
	}
	if err := handle.SetVideoEncoder(enc); err != nil {
		return fmt.Errorf("binding video encoder to output %s: %w", outputID, err)
	}
	return s.reg.Mutate(outputID, func(doc *models.OutputDocument) {
		doc.VideoEncoderID = encoderID
	})
}

// SetAudioEncoder binds an audio encoder to the output's first audio track
// and records the reference.
func (s *OutputService) SetAudioEncoder(outputID, encoderID string) error {
	handle, ok := s.reg.Handle(outputID)
	if !ok {
		return fmt.Errorf("output %s: %w", outputID, models.ErrNotFound)
	}
	enc, ok := s.engine.AudioEncoders().FromName(encoderID)
	if !ok {
		return fmt.Errorf("audio encoder %s: %w", encoderID, models.ErrNotFound)
	}
	if err := handle.SetAudioEncoder(enc, 0); err != nil {
		return fmt.Errorf("binding audio encoder to output %s: %w", outputID, err)
	}
	return s.reg.Mutate(outputID, func(doc *models.OutputDocument) {
		doc.AudioEncoderID = encoderID
	})
}

// SetProvider binds a provider to the output and records the reference.
func (s *OutputService) SetProvider(outputID, providerID string) error {
	handle, ok := s.reg.Handle(outputID)
	if !ok {
		return fmt.Errorf("output %s: %w", outputID, models.ErrNotFound)
	}
	p, ok := s.engine.Providers().FromName(providerID)
	if !ok {
		return fmt.Errorf("provider %s: %w", providerID, models.ErrNotFound)
	}
	if err := handle.SetProvider(p); err != nil {
		return fmt.Errorf("binding provider to output %s: %w", outputID, err)
	}
	return s.reg.Mutate(outputID, func(doc *models.OutputDocument) {
		doc.ProviderID = providerID
	})
}

// UpdateSettings patches the output's native settings.
func (s *OutputService) UpdateSettings(id string, patch native.Settings) error {
	return s.reg.UpdateSettings(id, patch)
}

// Start re-attaches the output's referenced encoders to the current global
// contexts and starts the output. Dangling references fail here, wrapped
// around ErrNotFound; an engine start rejection is wrapped around
// ErrNativeStartFailure with the engine's diagnostic.
func (s *OutputService) Start(id string) error {
	handle, ok := s.reg.Handle(id)
	if !ok {
		return fmt.Errorf("output %s: %w", id, models.ErrNotFound)
	}
	doc, _ := s.reg.Doc(id)

	if doc.VideoEncoderID != "" {
		enc, ok := s.engine.VideoEncoders().FromName(doc.VideoEncoderID)
		if !ok {
			return fmt.Errorf("output %s references video encoder %s: %w",
				id, doc.VideoEncoderID, models.ErrNotFound)
		}
		if err := enc.SetVideo(s.engine.Video()); err != nil {
			return fmt.Errorf("attaching video encoder %s: %w", doc.VideoEncoderID, err)
		}
		if err := handle.SetVideoEncoder(enc); err != nil {
			return fmt.Errorf("binding video encoder to output %s: %w", id, err)
		}
	}
	if doc.AudioEncoderID != "" {
		enc, ok := s.engine.AudioEncoders().FromName(doc.AudioEncoderID)
		if !ok {
			return fmt.Errorf("output %s references audio encoder %s: %w",
				id, doc.AudioEncoderID, models.ErrNotFound)
		}
		if err := enc.SetAudio(s.engine.Audio()); err != nil {
			return fmt.Errorf("attaching audio encoder %s: %w", doc.AudioEncoderID, err)
		}
		if err := handle.SetAudioEncoder(enc, 0); err != nil {
			return fmt.Errorf("binding audio encoder to output %s: %w", id, err)
		}
	}

	if err := handle.Start(); err != nil {
		lastErr := handle.LastError()
		s.log.Error("output start failed",
			slog.String("output", id),
			slog.String("engine_error", lastErr))
		if lastErr != "" {
			return fmt.Errorf("%w: output %s: %s", models.ErrNativeStartFailure, id, lastErr)
		}
		return fmt.Errorf("%w: output %s: %v", models.ErrNativeStartFailure, id, err)
	}
	s.log.Info("output started", slog.String("output", id))
	return nil
}

// Stop stops the output.
func (s *OutputService) Stop(id string) error {
	handle, ok := s.reg.Handle(id)
	if !ok {
		return fmt.Errorf("output %s: %w", id, models.ErrNotFound)
	}
	if err := handle.Stop(); err != nil {
		return fmt.Errorf("stopping output %s: %w", id, err)
	}
	s.log.Info("output stopped", slog.String("output", id))
	return nil
}

// Active reports whether the output is currently running.
func (s *OutputService) Active(id string) bool {
	handle, ok := s.reg.Handle(id)
	if !ok {
		return false
	}
	return handle.Active()
}

// LastError returns the engine's diagnostic for the output's most recent
// failure.
func (s *OutputService) LastError(id string) string {
	handle, ok := s.reg.Handle(id)
	if !ok {
		return ""
	}
	return handle.LastError()
}

// OutputDoc returns the persisted document of an output.
func (s *OutputService) OutputDoc(id string) (*models.OutputDocument, bool) {
	return s.reg.Doc(id)
}

// OutputIDs lists registered output ids.
func (s *OutputService) OutputIDs() []string {
	return s.reg.IDs()
}

// Wait blocks until all queued output writes have been committed.
func (s *OutputService) Wait() {
	s.reg.Wait()
}
