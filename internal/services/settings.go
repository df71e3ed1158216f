package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/broadcastkit/studiod/internal/config"
	"github.com/broadcastkit/studiod/internal/docstore"
	"github.com/broadcastkit/studiod/internal/models"
	"github.com/broadcastkit/studiod/internal/native"
)

// SettingsService owns the application settings tree. Each section is one
// document in the Settings store; sections are patched independently but
// always persisted whole. The in-memory tree is authoritative after
// initialization.
type SettingsService struct {
	queue  *docstore.Queue
	engine native.Engine
	engCfg config.EngineConfig
	bus    *Bus
	log    *slog.Logger

	state       models.Settings
	initialized bool
}

// NewSettingsService creates the settings service over the Settings store.
func NewSettingsService(store docstore.Persister, engine native.Engine, engCfg config.EngineConfig, bus *Bus, log *slog.Logger) *SettingsService {
	if log == nil {
		log = slog.Default()
	}
	return &SettingsService{
		queue:  docstore.NewQueue(store, log),
		engine: engine,
		engCfg: engCfg,
		bus:    bus,
		log:    log,
	}
}

// Initialize loads every section document, backfills fields added since the
// document was written, and seeds defaults for sections that have never been
// persisted. Calling it again is a no-op.
func (s *SettingsService) Initialize(ctx context.Context) error {
	if s.initialized {
		return nil
	}

	s.state = models.DefaultSettings()
	defaults := models.DefaultSettings()

	seen := make(map[models.SettingsSection]bool)
	err := s.queue.Initialize(ctx, func(docs []models.Document) error {
		for _, doc := range docs {
			section := models.SettingsSection(doc.DocID)
			target := s.state.Section(section)
			if target == nil {
				s.log.Warn("ignoring unknown settings document",
					slog.String("doc_id", doc.DocID))
				continue
			}
			merged, missing, mergeErr := models.MergeDefaults(doc.Content, defaults.Section(section))
			if mergeErr != nil {
				return fmt.Errorf("migrating settings section %s: %w", section, mergeErr)
			}
			if err := json.Unmarshal(merged, target); err != nil {
				return fmt.Errorf("decoding settings section %s: %w", section, err)
			}
			if len(missing) > 0 {
				sort.Strings(missing)
				s.log.Warn("settings section missing fields, applying defaults",
					slog.String("section", string(section)),
					slog.Any("fields", missing))
				s.queue.QueueChange(doc.DocID, merged)
			}
			seen[section] = true
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, section := range models.SettingsSections() {
		if seen[section] {
			continue
		}
		s.log.Info("seeding default settings section",
			slog.String("section", string(section)))
		content, err := json.Marshal(s.state.Section(section))
		if err != nil {
			return fmt.Errorf("encoding settings section %s: %w", section, err)
		}
		s.queue.AddQueue(string(section))
		s.queue.QueueChange(string(section), content)
	}

	s.initialized = true
	return nil
}

// Snapshot returns a copy of the full settings tree.
func (s *SettingsService) Snapshot() models.Settings {
	return s.state
}

// General returns the general section.
func (s *SettingsService) General() models.GeneralSettings { return s.state.General }

// Audio returns the audio section.
func (s *SettingsService) Audio() models.AudioSettings { return s.state.Audio }

// Video returns the video section.
func (s *SettingsService) Video() models.VideoSettings { return s.state.Video }

// Delay returns the stream delay section.
func (s *SettingsService) Delay() models.DelaySettings { return s.state.Delay }

// PatchSection merges a partial update into one section, persists the whole
// section and publishes the change. Unknown sections and unknown fields are
// rejected.
func (s *SettingsService) PatchSection(section models.SettingsSection, patch map[string]any) error {
	target := s.state.Section(section)
	if target == nil {
		return fmt.Errorf("unknown settings section %q", section)
	}

	current, err := json.Marshal(target)
	if err != nil {
		return fmt.Errorf("encoding settings section %s: %w", section, err)
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(current, &merged); err != nil {
		return fmt.Errorf("decoding settings section %s: %w", section, err)
	}
	for key, val := range patch {
		if _, ok := merged[key]; !ok {
			return fmt.Errorf("unknown field %q in settings section %s", key, section)
		}
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("encoding field %q: %w", key, err)
		}
		merged[key] = raw
	}
	content, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encoding settings section %s: %w", section, err)
	}

	decoder := json.NewDecoder(bytes.NewReader(content))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("applying patch to settings section %s: %w", section, err)
	}

	s.queue.QueueChange(string(section), content)
	if s.bus != nil {
		s.bus.Publish(TopicSettings, SettingsChanged{Section: section})
	}
	return nil
}

// SettingsChanged is published on the settings topic after a section update.
type SettingsChanged struct {
	Section models.SettingsSection
}

// ResetVideo pushes the video section into the engine's global video
// context. Every video encoder must be re-attached before the next output
// start.
func (s *SettingsService) ResetVideo() error {
	v := s.state.Video
	base, err := models.ParseResolution(v.BaseResolution)
	if err != nil {
		return fmt.Errorf("base resolution: %w", err)
	}
	output, err := models.ParseResolution(v.OutputResolution)
	if err != nil {
		return fmt.Errorf("output resolution: %w", err)
	}
	fps := v.EffectiveFPS()

	info := native.VideoInfo{
		GraphicsModule: s.engCfg.GraphicsModule,
		FPSNum:         uint32(fps.Num),
		FPSDen:         uint32(fps.Den),
		BaseWidth:      uint32(base.Width),
		BaseHeight:     uint32(base.Height),
		OutputWidth:    uint32(output.Width),
		OutputHeight:   uint32(output.Height),
		OutputFormat:   v.ColorFormat,
		Adapter:        s.engCfg.Adapter,
		GPUConversion:  true,
		ColorSpace:     v.ColorSpace,
		Range:          v.ColorRange,
		ScaleType:      v.DownscaleFilter,
	}
	if err := s.engine.Video().Reset(info); err != nil {
		return fmt.Errorf("resetting video context: %w", err)
	}
	s.log.Info("video context reset",
		slog.Int("fps_num", fps.Num),
		slog.Int("fps_den", fps.Den),
		slog.String("base", v.BaseResolution),
		slog.String("output", v.OutputResolution))
	return nil
}

// ResetAudio pushes the audio section into the engine's global audio context
// and reapplies the monitoring device.
func (s *SettingsService) ResetAudio() error {
	a := s.state.Audio
	info := native.AudioInfo{
		SamplesPerSec: uint32(a.SampleRate),
		SpeakerLayout: a.SpeakerLayout,
	}
	if err := s.engine.Audio().Reset(info); err != nil {
		return fmt.Errorf("resetting audio context: %w", err)
	}
	return s.ResetMonitoringDevice()
}

// ResetMonitoringDevice applies the configured monitoring device to the
// audio context.
func (s *SettingsService) ResetMonitoringDevice() error {
	a := s.state.Audio
	if err := s.engine.Audio().SetMonitoringDevice(a.MonitoringDeviceName, a.MonitoringDeviceID); err != nil {
		return fmt.Errorf("setting monitoring device: %w", err)
	}
	return nil
}

// Wait blocks until all queued section writes have been committed.
func (s *SettingsService) Wait() {
	s.queue.Wait()
}
