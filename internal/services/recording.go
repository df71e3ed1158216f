package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/broadcastkit/studiod/internal/docstore"
	"github.com/broadcastkit/studiod/internal/models"
	"github.com/broadcastkit/studiod/internal/native"
)

const recPipelineDocID = "recOutputSettings"

// RecordingState is published on the recording topic.
type RecordingState struct {
	Active bool
	Path   string
	Error  string
}

// RecordingOutputService is the recording pipeline controller: one file
// output, one audio encoder and a simple and an advanced video encoder
// slot, plus the target directory and container format. Each recording gets
// a timestamped filename inside the configured directory.
type RecordingOutputService struct {
	queue    *docstore.Queue
	outputs  *OutputService
	encoders *EncoderService
	bus      *Bus
	log      *slog.Logger

	state       models.RecordingPipelineDocument
	initialized bool
	now         func() time.Time
}

// NewRecordingOutputService creates the recording pipeline controller.
func NewRecordingOutputService(store docstore.Persister, outputs *OutputService, encoders *EncoderService, bus *Bus, log *slog.Logger) *RecordingOutputService {
	if log == nil {
		log = slog.Default()
	}
	return &RecordingOutputService{
		queue:    docstore.NewQueue(store, log),
		outputs:  outputs,
		encoders: encoders,
		bus:      bus,
		log:      log,
		now:      time.Now,
	}
}

// Initialize loads the pipeline document, creating the object graph on
// first run. The registries it depends on are initialized first. Calling it
// again is a no-op.
func (s *RecordingOutputService) Initialize(ctx context.Context) error {
	if s.initialized {
		return nil
	}
	if err := s.encoders.Initialize(ctx); err != nil {
		return err
	}
	if err := s.outputs.Initialize(ctx); err != nil {
		return err
	}

	loaded := false
	err := s.queue.Initialize(ctx, func(docs []models.Document) error {
		for _, doc := range docs {
			if doc.DocID != recPipelineDocID {
				continue
			}
			if err := json.Unmarshal(doc.Content, &s.state); err != nil {
				return fmt.Errorf("decoding recording pipeline document: %w", err)
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

func (s *RecordingOutputService) createConfig() error {
	s.log.Info("creating recording pipeline configuration")

	outputID, err := s.outputs.AddOutput(TypeRecordOutput, true, nil)
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

	s.state = models.RecordingPipelineDocument{
		OutputID:          outputID,
		AudioEncoderID:    audioID,
		SimpleEncoderID:   simpleID,
		AdvancedEncoderID: advancedID,
		EncoderMode:       models.EncoderModeSimple,
		Format:            "flv",
	}
	s.rebind()

	s.queue.AddQueue(recPipelineDocID)
	s.persist()
	return nil
}

func (s *RecordingOutputService) rebind() {
	if err := s.outputs.SetVideoEncoder(s.state.OutputID, s.state.ActiveEncoderID()); err != nil {
		s.log.Warn("recording pipeline video encoder binding failed",
			slog.String("error", err.Error()))
	}
	if err := s.outputs.SetAudioEncoder(s.state.OutputID, s.state.AudioEncoderID); err != nil {
		s.log.Warn("recording pipeline audio encoder binding failed",
			slog.String("error", err.Error()))
	}
}

func (s *RecordingOutputService) persist() {
	content, err := json.Marshal(s.state)
	if err != nil {
		s.log.Error("encoding recording pipeline document failed",
			slog.String("error", err.Error()))
		return
	}
	s.queue.QueueChange(recPipelineDocID, content)
}

// State returns a copy of the pipeline document.
func (s *RecordingOutputService) State() models.RecordingPipelineDocument {
	return s.state
}

// SetEncoderMode swaps which video encoder slot is live on the output.
func (s *RecordingOutputService) SetEncoderMode(mode models.EncoderMode) error {
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
// encoder of a different engine type, destroying the old one.
func (s *RecordingOutputService) SetVideoEncoderType(slot models.EncoderMode, objectType string) error {
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

// SetDirectory sets the directory recordings are written to.
func (s *RecordingOutputService) SetDirectory(dir string) error {
	if dir == "" {
		return fmt.Errorf("recording directory must not be empty")
	}
	s.state.Directory = dir
	s.persist()
	return nil
}

// SetFormat sets the container format of future recordings.
func (s *RecordingOutputService) SetFormat(format string) error {
	if !models.ValidRecordingFormat(format) {
		return fmt.Errorf("unknown recording format %q", format)
	}
	s.state.Format = format
	s.persist()
	return nil
}

// SetVideoBitrate updates the active video encoder's bitrate.
func (s *RecordingOutputService) SetVideoBitrate(kbps int) error {
	return s.encoders.SetVideoBitrate(s.state.ActiveEncoderID(), kbps)
}

// Start points the output at a timestamped file inside the configured
// directory and starts it.
func (s *RecordingOutputService) Start() error {
	if s.state.Directory == "" {
		return fmt.Errorf("recording directory is not configured")
	}
	filename := fmt.Sprintf("%s.%s", s.now().Format("2006-01-02 15-04-05"), s.state.Format)
	path := filepath.Join(s.state.Directory, filename)

	if err := s.outputs.UpdateSettings(s.state.OutputID, native.Settings{"path": path}); err != nil {
		return err
	}
	if err := s.outputs.Start(s.state.OutputID); err != nil {
		if s.bus != nil && errors.Is(err, models.ErrNativeStartFailure) {
			s.bus.Publish(TopicRecording, RecordingState{
				Active: false,
				Error:  s.outputs.LastError(s.state.OutputID),
			})
		}
		return err
	}
	s.log.Info("recording started", slog.String("path", path))
	if s.bus != nil {
		s.bus.Publish(TopicRecording, RecordingState{Active: true, Path: path})
	}
	return nil
}

// Stop stops the recording.
func (s *RecordingOutputService) Stop() error {
	if err := s.outputs.Stop(s.state.OutputID); err != nil {
		return err
	}
	if s.bus != nil {
		s.bus.Publish(TopicRecording, RecordingState{Active: false})
	}
	return nil
}

// Active reports whether a recording is running.
func (s *RecordingOutputService) Active() bool {
	return s.outputs.Active(s.state.OutputID)
}

// Wait blocks until the pipeline document's queued writes have committed.
func (s *RecordingOutputService) Wait() {
	s.queue.Wait()
}
