package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/broadcastkit/studiod/internal/docstore"
	"github.com/broadcastkit/studiod/internal/models"
	"github.com/broadcastkit/studiod/internal/native"
)

// Default engine object types for the built-in pipelines.
const (
	TypeRtmpOutput     = "rtmp_output"
	TypeRecordOutput   = "ffmpeg_muxer"
	TypeAACEncoder     = "ffmpeg_aac"
	TypeX264Encoder    = "obs_x264"
	TypeCommonProvider = "rtmp_common"
	TypeCustomProvider = "rtmp_custom"
)

const rtmpPipelineDocID = "rtmpOutputSettings"

// StreamingState is published on the streaming topic.
type StreamingState struct {
	Active bool
	Error  string
}

// RtmpOutputService is the streaming pipeline controller: one RTMP output,
// one audio encoder, a simple and an advanced video encoder slot, and a
// common and a custom provider slot. Both slots of each pair exist at all
// times; mode switches swap which one is bound to the output, so the
// inactive side keeps its configuration.
type RtmpOutputService struct {
	queue     *docstore.Queue
	outputs   *OutputService
	encoders  *EncoderService
	providers *ProviderService
	settings  *SettingsService
	bus       *Bus
	log       *slog.Logger

	state       models.RtmpPipelineDocument
	initialized bool
}

// NewRtmpOutputService creates the streaming pipeline controller.
func NewRtmpOutputService(store docstore.Persister, outputs *OutputService, encoders *EncoderService, providers *ProviderService, settings *SettingsService, bus *Bus, log *slog.Logger) *RtmpOutputService {
	if log == nil {
		log = slog.Default()
	}
	return &RtmpOutputService{
		queue:     docstore.NewQueue(store, log),
		outputs:   outputs,
		encoders:  encoders,
		providers: providers,
		settings:  settings,
		bus:       bus,
		log:       log,
	}
}

// Initialize loads the pipeline document, creating the full object graph on
// first run, and rebinds the active encoder and provider to the output.
// The registries it depends on are initialized first. Calling it again is a
// no-op.
func (s *RtmpOutputService) Initialize(ctx context.Context) error {
	if s.initialized {
		return nil
	}
	if err := s.settings.Initialize(ctx); err != nil {
		return err
	}
	if err := s.encoders.Initialize(ctx); err != nil {
		return err
	}
	if err := s.providers.Initialize(ctx); err != nil {
		return err
	}
	if err := s.outputs.Initialize(ctx); err != nil {
		return err
	}

	loaded := false
	err := s.queue.Initialize(ctx, func(docs []models.Document) error {
		for _, doc := range docs {
			if doc.DocID != rtmpPipelineDocID {
				continue
			}
			if err := json.Unmarshal(doc.Content, &s.state); err != nil {
				return fmt.Errorf("decoding streaming pipeline document: %w", err)
			}
			loaded = true
		}
		return nil
	})
	if err != nil {
		return err
	}

	if !loaded {
		if err := s.createConfig(); err != nil {
			return err
		}
	} else {
		s.rebind()
	}
	s.initialized = true
	return nil
}

// createConfig builds the pipeline's object graph on first run and persists
// the document referencing it.
func (s *RtmpOutputService) createConfig() error {
	s.log.Info("creating streaming pipeline configuration")

	outputID, err := s.outputs.AddOutput(TypeRtmpOutput, true, nil)
	if err != nil {
		return err
	}
	audioID, err := s.encoders.AddAudioEncoder(TypeAACEncoder, true, nil)
	if err != nil {
		return err
	}
	simpleID, err := s.encoders.AddVideoEncoder(TypeX264Encoder, true, nil)
	if err != nil {
		return err
	}
	advancedID, err := s.encoders.AddVideoEncoder(TypeX264Encoder, true, nil)
	if err != nil {
		return err
	}
	commonID, err := s.providers.AddProvider(TypeCommonProvider, true, nil)
	if err != nil {
		return err
	}
	customID, err := s.providers.AddProvider(TypeCustomProvider, true, nil)
	if err != nil {
		return err
	}

	s.state = models.RtmpPipelineDocument{
		OutputID:          outputID,
		AudioEncoderID:    audioID,
		SimpleEncoderID:   simpleID,
		AdvancedEncoderID: advancedID,
		CommonProviderID:  commonID,
		CustomProviderID:  customID,
		EncoderMode:       models.EncoderModeSimple,
		ProviderMode:      models.ProviderModeCommon,
	}
	s.rebind()

	s.queue.AddQueue(rtmpPipelineDocID)
	s.persist()
	return nil
}

// rebind points the output at the encoders and provider selected by the
// current modes. Dangling references are logged and surface as failures at
// the next Start.
func (s *RtmpOutputService) rebind() {
	bindings := []struct {
		name string
		err  error
	}{
		{"video encoder", s.outputs.SetVideoEncoder(s.state.OutputID, s.state.ActiveEncoderID())},
		{"audio encoder", s.outputs.SetAudioEncoder(s.state.OutputID, s.state.AudioEncoderID)},
		{"provider", s.outputs.SetProvider(s.state.OutputID, s.state.ActiveProviderID())},
	}
	for _, b := range bindings {
		if b.err != nil {
			s.log.Warn("streaming pipeline binding failed",
				slog.String("binding", b.name),
				slog.String("error", b.err.Error()))
		}
	}
}

func (s *RtmpOutputService) persist() {
	content, err := json.Marshal(s.state)
	if err != nil {
		s.log.Error("encoding streaming pipeline document failed",
			slog.String("error", err.Error()))
		return
	}
	s.queue.QueueChange(rtmpPipelineDocID, content)
}

// State returns a copy of the pipeline document.
func (s *RtmpOutputService) State() models.RtmpPipelineDocument {
	return s.state
}

// EncoderMode returns the active encoder mode.
func (s *RtmpOutputService) EncoderMode() models.EncoderMode {
	return s.state.EncoderMode
}

// SetEncoderMode swaps which video encoder slot is live on the output.
func (s *RtmpOutputService) SetEncoderMode(mode models.EncoderMode) error {
	if !mode.Valid() {
		return fmt.Errorf("unknown encoder mode %q", mode)
	}
	if mode == s.state.EncoderMode {
		return nil
	}
	s.state.EncoderMode = mode
	if err := s.outputs.SetVideoEncoder(s.state.OutputID, s.state.ActiveEncoderID()); err != nil {
		return err
	}
	s.persist()
	return nil
}

// SetVideoEncoderType replaces the encoder in the given slot with a fresh
// encoder of a different engine type. The old encoder is destroyed; its
// settings do not carry over. If the slot is the active one the output is
// rebound to the replacement.
func (s *RtmpOutputService) SetVideoEncoderType(slot models.EncoderMode, objectType string) error {
	if !slot.Valid() {
		return fmt.Errorf("unknown encoder mode %q", slot)
	}

	newID, err := s.encoders.AddVideoEncoder(objectType, true, nil)
	if err != nil {
		return err
	}

	var oldID string
	if slot == models.EncoderModeAdvanced {
		oldID = s.state.AdvancedEncoderID
		s.state.AdvancedEncoderID = newID
	} else {
		oldID = s.state.SimpleEncoderID
		s.state.SimpleEncoderID = newID
	}
	if oldID != "" {
		if err := s.encoders.RemoveVideoEncoder(oldID); err != nil {
			s.log.Warn("removing replaced video encoder failed",
				slog.String("encoder", oldID),
				slog.String("error", err.Error()))
		}
	}
	if slot == s.state.EncoderMode {
		if err := s.outputs.SetVideoEncoder(s.state.OutputID, newID); err != nil {
			return err
		}
	}
	s.persist()
	return nil
}

// ProviderMode returns the active provider mode.
func (s *RtmpOutputService) ProviderMode() models.ProviderMode {
	return s.state.ProviderMode
}

// SetProviderMode swaps which provider slot is live on the output.
func (s *RtmpOutputService) SetProviderMode(mode models.ProviderMode) error {
	if !mode.Valid() {
		return fmt.Errorf("unknown provider mode %q", mode)
	}
	if mode == s.state.ProviderMode {
		return nil
	}
	s.state.ProviderMode = mode
	if err := s.outputs.SetProvider(s.state.OutputID, s.state.ActiveProviderID()); err != nil {
		return err
	}
	s.persist()
	return nil
}

// UpdateProvider patches the provider in the given slot. Both slots can be
// configured regardless of which is active.
func (s *RtmpOutputService) UpdateProvider(slot models.ProviderMode, patch native.Settings) error {
	if !slot.Valid() {
		return fmt.Errorf("unknown provider mode %q", slot)
	}
	id := s.state.CommonProviderID
	if slot == models.ProviderModeCustom {
		id = s.state.CustomProviderID
	}
	return s.providers.UpdateProvider(id, patch)
}

// SetVideoBitrate updates the active video encoder's bitrate.
func (s *RtmpOutputService) SetVideoBitrate(kbps int) error {
	return s.encoders.SetVideoBitrate(s.state.ActiveEncoderID(), kbps)
}

// SetAudioBitrate updates the audio encoder's bitrate.
func (s *RtmpOutputService) SetAudioBitrate(kbps int) error {
	return s.encoders.SetAudioBitrate(s.state.AudioEncoderID, kbps)
}

// UpdateActiveEncoder patches the active video encoder's settings.
func (s *RtmpOutputService) UpdateActiveEncoder(patch native.Settings) error {
	return s.encoders.UpdateVideoSettings(s.state.ActiveEncoderID(), patch)
}

// Start applies the stream delay settings and starts the output. A start
// rejection carries the engine's diagnostic and is published on the
// streaming topic.
func (s *RtmpOutputService) Start() error {
	delay := s.settings.Delay()
	delaySec := 0
	if delay.Enabled {
		delaySec = delay.Seconds
	}
	err := s.outputs.UpdateSettings(s.state.OutputID, native.Settings{
		"delay_sec":      delaySec,
		"delay_preserve": delay.ReconnectPreserve,
	})
	if err != nil {
		return err
	}

	if err := s.outputs.Start(s.state.OutputID); err != nil {
		if s.bus != nil && errors.Is(err, models.ErrNativeStartFailure) {
			s.bus.Publish(TopicStreaming, StreamingState{
				Active: false,
				Error:  s.outputs.LastError(s.state.OutputID),
			})
		}
		return err
	}
	if s.bus != nil {
		s.bus.Publish(TopicStreaming, StreamingState{Active: true})
	}
	return nil
}

// Stop stops the output.
func (s *RtmpOutputService) Stop() error {
	if err := s.outputs.Stop(s.state.OutputID); err != nil {
		return err
	}
	if s.bus != nil {
		s.bus.Publish(TopicStreaming, StreamingState{Active: false})
	}
	return nil
}

// Active reports whether the stream is live.
func (s *RtmpOutputService) Active() bool {
	return s.outputs.Active(s.state.OutputID)
}

// Wait blocks until the pipeline document's queued writes have committed.
func (s *RtmpOutputService) Wait() {
	s.queue.Wait()
}
