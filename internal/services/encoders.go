package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/broadcastkit/studiod/internal/docstore"
	"github.com/broadcastkit/studiod/internal/models"
	"github.com/broadcastkit/studiod/internal/native"
)

// EncoderService owns the video and audio encoder registries. Restored and
// newly created encoders are attached to the engine's current global
// contexts; after a context reset the output controller re-attaches them
// before starting.
type EncoderService struct {
	engine native.Engine
	log    *slog.Logger

	video *Registry[native.VideoEncoder, *models.EncoderDocument]
	audio *Registry[native.AudioEncoder, *models.EncoderDocument]

	initialized bool
}

// NewEncoderService creates the encoder service over the two encoder stores.
func NewEncoderService(videoStore, audioStore docstore.Persister, engine native.Engine, log *slog.Logger) *EncoderService {
	if log == nil {
		log = slog.Default()
	}
	return &EncoderService{
		engine: engine,
		log:    log,
		video: NewRegistry("videoEncoder", engine.VideoEncoders(), videoStore,
			func() *models.EncoderDocument { return &models.EncoderDocument{} }, log),
		audio: NewRegistry("audioEncoder", engine.AudioEncoders(), audioStore,
			func() *models.EncoderDocument { return &models.EncoderDocument{} }, log),
	}
}

// Initialize restores persisted encoders and attaches them to the current
// contexts. Calling it again is a no-op.
func (s *EncoderService) Initialize(ctx context.Context) error {
	if s.initialized {
		return nil
	}
	err := s.video.Initialize(ctx, func(id string, doc *models.EncoderDocument, handle native.VideoEncoder) error {
		doc.IsAudio = false
		if err := handle.SetVideo(s.engine.Video()); err != nil {
			return fmt.Errorf("attaching video encoder %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	err = s.audio.Initialize(ctx, func(id string, doc *models.EncoderDocument, handle native.AudioEncoder) error {
		doc.IsAudio = true
		if err := handle.SetAudio(s.engine.Audio()); err != nil {
			return fmt.Errorf("attaching audio encoder %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.initialized = true
	return nil
}

// AddVideoEncoder creates a video encoder of the given engine type and
// attaches it to the current video context.
func (s *EncoderService) AddVideoEncoder(objectType string, persistent bool, settings native.Settings) (string, error) {
	id, err := s.video.Add(objectType, persistent, settings, func(doc *models.EncoderDocument) {
		doc.IsAudio = false
	})
	if err != nil {
		return "", err
	}
	handle, _ := s.video.Handle(id)
	if err := handle.SetVideo(s.engine.Video()); err != nil {
		return "", fmt.Errorf("attaching video encoder %s: %w", id, err)
	}
	return id, nil
}

// AddAudioEncoder creates an audio encoder of the given engine type and
// attaches it to the current audio context.
func (s *EncoderService) AddAudioEncoder(objectType string, persistent bool, settings native.Settings) (string, error) {
	id, err := s.audio.Add(objectType, persistent, settings, func(doc *models.EncoderDocument) {
		doc.IsAudio = true
	})
	if err != nil {
		return "", err
	}
	handle, _ := s.audio.Handle(id)
	if err := handle.SetAudio(s.engine.Audio()); err != nil {
		return "", fmt.Errorf("attaching audio encoder %s: %w", id, err)
	}
	return id, nil
}

// RemoveVideoEncoder releases and deletes a video encoder.
func (s *EncoderService) RemoveVideoEncoder(id string) error {
	return s.video.Remove(id)
}

// RemoveAudioEncoder releases and deletes an audio encoder.
func (s *EncoderService) RemoveAudioEncoder(id string) error {
	return s.audio.Remove(id)
}

// UpdateVideoSettings patches a video encoder's settings.
func (s *EncoderService) UpdateVideoSettings(id string, patch native.Settings) error {
	return s.video.UpdateSettings(id, patch)
}

// UpdateAudioSettings patches an audio encoder's settings.
func (s *EncoderService) UpdateAudioSettings(id string, patch native.Settings) error {
	return s.audio.UpdateSettings(id, patch)
}

// SetVideoBitrate updates a video encoder's bitrate.
func (s *EncoderService) SetVideoBitrate(id string, kbps int) error {
	return s.video.SetBitrate(id, kbps)
}

// SetAudioBitrate updates an audio encoder's bitrate.
func (s *EncoderService) SetAudioBitrate(id string, kbps int) error {
	return s.audio.SetBitrate(id, kbps)
}

// ApplyVideoFormData applies a properties-form submission to a video
// encoder.
func (s *EncoderService) ApplyVideoFormData(id string, form native.Settings) error {
	return s.video.ApplyFormData(id, form)
}

// VideoEncoderDoc returns the persisted document of a video encoder.
func (s *EncoderService) VideoEncoderDoc(id string) (*models.EncoderDocument, bool) {
	return s.video.Doc(id)
}

// AudioEncoderDoc returns the persisted document of an audio encoder.
func (s *EncoderService) AudioEncoderDoc(id string) (*models.EncoderDocument, bool) {
	return s.audio.Doc(id)
}

// VideoEncoderIDs lists registered video encoder ids.
func (s *EncoderService) VideoEncoderIDs() []string {
	return s.video.IDs()
}

// AudioEncoderIDs lists registered audio encoder ids.
func (s *EncoderService) AudioEncoderIDs() []string {
	return s.audio.IDs()
}

// Wait blocks until all queued encoder writes have been committed.
func (s *EncoderService) Wait() {
	s.video.Wait()
	s.audio.Wait()
}
