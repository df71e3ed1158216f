package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// SettingsSection identifies one independently patchable settings document.
type SettingsSection string

// Settings sections, also used as document ids inside the Settings store.
const (
	SectionGeneral    SettingsSection = "General"
	SectionTCP        SettingsSection = "TCP"
	SectionNamedPipe  SettingsSection = "NamedPipe"
	SectionWebSockets SettingsSection = "WebSockets"
	SectionAudio      SettingsSection = "Audio"
	SectionVideo      SettingsSection = "Video"
	SectionDelay      SettingsSection = "Delay"
)

// SettingsSections lists every section in a stable order.
func SettingsSections() []SettingsSection {
	return []SettingsSection{
		SectionGeneral, SectionTCP, SectionNamedPipe, SectionWebSockets,
		SectionAudio, SectionVideo, SectionDelay,
	}
}

// GeneralSettings holds behavioral toggles for the studio UI and recording.
type GeneralSettings struct {
	KeepRecordingWhenStreamStops bool `json:"KeepRecordingWhenStreamStops"`
	RecordWhenStreaming          bool `json:"RecordWhenStreaming"`
	WarnBeforeStartingStream     bool `json:"WarnBeforeStartingStream"`
	WarnBeforeStoppingStream     bool `json:"WarnBeforeStoppingStream"`
	SnappingEnabled              bool `json:"SnappingEnabled"`
	SnapDistance                 int  `json:"SnapDistance"`
	ScreenSnapping               bool `json:"ScreenSnapping"`
	SourceSnapping               bool `json:"SourceSnapping"`
	CenterSnapping               bool `json:"CenterSnapping"`
}

// TCPSettings configures the remote-control TCP listener.
type TCPSettings struct {
	Enabled     bool `json:"Enabled"`
	AllowRemote bool `json:"AllowRemote"`
	Port        int  `json:"Port"`
}

// NamedPipeSettings configures the local named-pipe control channel.
type NamedPipeSettings struct {
	Enabled  bool   `json:"Enabled"`
	PipeName string `json:"PipeName"`
}

// WebSocketsSettings configures the WebSocket control listener.
type WebSocketsSettings struct {
	Enabled     bool `json:"Enabled"`
	AllowRemote bool `json:"AllowRemote"`
	Port        int  `json:"Port"`
}

// AudioSettings configures the engine's global audio context.
type AudioSettings struct {
	SampleRate           int    `json:"SampleRate"`
	SpeakerLayout        int    `json:"SpeakerLayout"`
	MonitoringDeviceName string `json:"MonitoringDeviceName"`
	MonitoringDeviceID   string `json:"MonitoringDeviceId"`
}

// VideoSettings configures the engine's global video context. Any change
// here must be followed by a video pipeline reset.
type VideoSettings struct {
	BaseResolution   string `json:"BaseResolution"`
	OutputResolution string `json:"OutputResolution"`
	DownscaleFilter  int    `json:"DownscaleFilter"`
	ColorFormat      int    `json:"ColorFormat"`
	ColorSpace       int    `json:"ColorSpace"`
	ColorRange       int    `json:"ColorRange"`
	FPSType          int    `json:"FPSType"`
	FPSCommon        int    `json:"FPSCommon"`
	FPSInt           int    `json:"FPSInt"`
	FPSNum           int    `json:"FPSNum"`
	FPSDen           int    `json:"FPSDen"`
}

// DelaySettings configures stream delay.
type DelaySettings struct {
	Enabled           bool `json:"Enabled"`
	ReconnectPreserve bool `json:"ReconnectPreserve"`
	Seconds           int  `json:"Seconds"`
}

// Settings is the full in-memory settings tree, one field per section.
type Settings struct {
	General    GeneralSettings
	TCP        TCPSettings
	NamedPipe  NamedPipeSettings
	WebSockets WebSocketsSettings
	Audio      AudioSettings
	Video      VideoSettings
	Delay      DelaySettings
}

// FPS specification modes. Exactly one is active at a time, selected by
// VideoSettings.FPSType; the effective fps must be derived by switching on
// the active mode, never by reading more than one mode's fields.
const (
	FPSTypeCommon = iota
	FPSTypeInteger
	FPSTypeFraction
)

// FPS is a numerator/denominator frame rate pair.
type FPS struct {
	Num int `json:"num"`
	Den int `json:"den"`
}

// fpsCommonValues is the fixed lookup table for the Common FPS mode.
var fpsCommonValues = []FPS{
	{10, 1},
	{20, 1},
	{24000, 1001},
	{30000, 1001},
	{30, 1},
	{48, 1},
	{60000, 1001},
	{60, 1},
}

// CommonFPSValues returns the selectable common frame rates.
func CommonFPSValues() []FPS {
	out := make([]FPS, len(fpsCommonValues))
	copy(out, fpsCommonValues)
	return out
}

// EffectiveFPS resolves the active frame rate by switching on FPSType.
// Out-of-range common indices fall back to 30/1.
func (v VideoSettings) EffectiveFPS() FPS {
	switch v.FPSType {
	case FPSTypeInteger:
		return FPS{Num: v.FPSInt, Den: 1}
	case FPSTypeFraction:
		return FPS{Num: v.FPSNum, Den: v.FPSDen}
	default:
		if v.FPSCommon < 0 || v.FPSCommon >= len(fpsCommonValues) {
			return FPS{Num: 30, Den: 1}
		}
		return fpsCommonValues[v.FPSCommon]
	}
}

// Resolution is a parsed "WxH" pair.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ParseResolution parses a "1920x1080" style string.
func ParseResolution(s string) (Resolution, error) {
	w, h, ok := strings.Cut(s, "x")
	if !ok {
		return Resolution{}, fmt.Errorf("invalid resolution %q", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return Resolution{}, fmt.Errorf("invalid resolution %q: %w", s, err)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return Resolution{}, fmt.Errorf("invalid resolution %q: %w", s, err)
	}
	return Resolution{Width: width, Height: height}, nil
}

// Engine enumeration values mirrored from the native binding layer. Only
// the defaults referenced here are named; everything else is passed through
// opaquely.
const (
	VideoFormatNV12     = 0
	ColorSpace601       = 0
	ColorRangePartial   = 0
	ScaleBilinear       = 0
	SpeakerLayoutStereo = 2
)

// DefaultSettings is the full default tree, persisted verbatim on first run.
func DefaultSettings() Settings {
	return Settings{
		General: GeneralSettings{
			KeepRecordingWhenStreamStops: false,
			RecordWhenStreaming:          false,
			WarnBeforeStartingStream:     true,
			WarnBeforeStoppingStream:     false,
			SnappingEnabled:              true,
			SnapDistance:                 10,
			ScreenSnapping:               true,
			SourceSnapping:               true,
			CenterSnapping:               false,
		},
		TCP: TCPSettings{
			Enabled:     false,
			AllowRemote: false,
			Port:        59651,
		},
		NamedPipe: NamedPipeSettings{
			Enabled:  true,
			PipeName: "studiod",
		},
		WebSockets: WebSocketsSettings{
			Enabled:     false,
			AllowRemote: false,
			Port:        59650,
		},
		Audio: AudioSettings{
			SampleRate:           44100,
			SpeakerLayout:        SpeakerLayoutStereo,
			MonitoringDeviceName: "Default",
			MonitoringDeviceID:   "default",
		},
		Video: VideoSettings{
			BaseResolution:   "1920x1080",
			OutputResolution: "1280x720",
			ColorFormat:      VideoFormatNV12,
			ColorSpace:       ColorSpace601,
			ColorRange:       ColorRangePartial,
			DownscaleFilter:  ScaleBilinear,
			FPSType:          FPSTypeCommon,
			FPSCommon:        4, // 30 FPS
			FPSInt:           30,
			FPSNum:           30,
			FPSDen:           1,
		},
		Delay: DelaySettings{
			Enabled:           false,
			ReconnectPreserve: false,
			Seconds:           10,
		},
	}
}

// Section returns a pointer to the tree's section value for id.
func (s *Settings) Section(id SettingsSection) any {
	switch id {
	case SectionGeneral:
		return &s.General
	case SectionTCP:
		return &s.TCP
	case SectionNamedPipe:
		return &s.NamedPipe
	case SectionWebSockets:
		return &s.WebSockets
	case SectionAudio:
		return &s.Audio
	case SectionVideo:
		return &s.Video
	case SectionDelay:
		return &s.Delay
	default:
		return nil
	}
}

// MergeDefaults overlays docJSON onto the JSON encoding of defaults and
// reports which top-level fields were absent from docJSON. This implements
// forward-compatible schema migration by presence check: fields the current
// schema knows but an older document lacks take their default value.
func MergeDefaults(docJSON []byte, defaults any) (merged []byte, missing []string, err error) {
	defJSON, err := json.Marshal(defaults)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling defaults: %w", err)
	}

	var defMap, docMap map[string]json.RawMessage
	if err := json.Unmarshal(defJSON, &defMap); err != nil {
		return nil, nil, fmt.Errorf("decoding defaults: %w", err)
	}
	if err := json.Unmarshal(docJSON, &docMap); err != nil {
		return nil, nil, fmt.Errorf("decoding document: %w", err)
	}

	for key, val := range defMap {
		if _, ok := docMap[key]; !ok {
			docMap[key] = val
			missing = append(missing, key)
		}
	}

	merged, err = json.Marshal(docMap)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding merged document: %w", err)
	}
	return merged, missing, nil
}
