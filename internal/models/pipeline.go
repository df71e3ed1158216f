package models

// EncoderMode selects which of a pipeline's two tracked video encoders is
// live on the output. Both encoders exist at all times; switching modes is
// a reference swap, so the inactive side keeps its settings.
type EncoderMode string

// Encoder modes.
const (
	EncoderModeSimple   EncoderMode = "Simple"
	EncoderModeAdvanced EncoderMode = "Advanced"
)

// Valid reports whether m is a known encoder mode.
func (m EncoderMode) Valid() bool {
	return m == EncoderModeSimple || m == EncoderModeAdvanced
}

// ProviderMode selects which of an RTMP pipeline's two pre-created
// providers is live on the output.
type ProviderMode string

// Provider modes.
const (
	ProviderModeCommon ProviderMode = "Common"
	ProviderModeCustom ProviderMode = "Custom"
)

// Valid reports whether m is a known provider mode.
func (m ProviderMode) Valid() bool {
	return m == ProviderModeCommon || m == ProviderModeCustom
}

// RtmpPipelineDocument is the singleton document of the RTMP output
// controller: one output, one audio encoder, two video encoder slots, two
// provider slots, and the active mode for each pair.
type RtmpPipelineDocument struct {
	OutputID          string       `json:"rtmpOutputId"`
	AudioEncoderID    string       `json:"rtmpAudioEncoderId"`
	SimpleEncoderID   string       `json:"rtmpSimpleEncoderId"`
	AdvancedEncoderID string       `json:"rtmpAdvEncoderId"`
	CommonProviderID  string       `json:"rtmpCommonProviderId"`
	CustomProviderID  string       `json:"rtmpCustomProviderId"`
	EncoderMode       EncoderMode  `json:"rtmpEncoderMode"`
	ProviderMode      ProviderMode `json:"rtmpProviderMode"`
}

// ActiveEncoderID returns the encoder id selected by the current mode.
func (d RtmpPipelineDocument) ActiveEncoderID() string {
	if d.EncoderMode == EncoderModeAdvanced {
		return d.AdvancedEncoderID
	}
	return d.SimpleEncoderID
}

// ActiveProviderID returns the provider id selected by the current mode.
func (d RtmpPipelineDocument) ActiveProviderID() string {
	if d.ProviderMode == ProviderModeCustom {
		return d.CustomProviderID
	}
	return d.CommonProviderID
}

// RecordingPipelineDocument is the singleton document of the recording
// output controller.
type RecordingPipelineDocument struct {
	OutputID          string      `json:"recOutputId"`
	AudioEncoderID    string      `json:"recAudioEncoderId"`
	SimpleEncoderID   string      `json:"recSimpleEncoderId"`
	AdvancedEncoderID string      `json:"recAdvEncoderId"`
	EncoderMode       EncoderMode `json:"recEncoderMode"`
	Directory         string      `json:"recDirectory"`
	Format            string      `json:"recFormat"`
}

// ActiveEncoderID returns the encoder id selected by the current mode.
func (d RecordingPipelineDocument) ActiveEncoderID() string {
	if d.EncoderMode == EncoderModeAdvanced {
		return d.AdvancedEncoderID
	}
	return d.SimpleEncoderID
}

// RecordingFormats lists the selectable container formats.
func RecordingFormats() []string {
	return []string{"flv", "mp4", "mov", "mkv", "ts", "m3u8"}
}

// ValidRecordingFormat reports whether format is a known container format.
func ValidRecordingFormat(format string) bool {
	for _, f := range RecordingFormats() {
		if f == format {
			return true
		}
	}
	return false
}
