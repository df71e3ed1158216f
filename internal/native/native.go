// Package native defines the contract between the configuration services
// and the media engine binding. The engine itself is linked in by the
// embedding build and registered with Register; this package carries no
// engine implementation of its own.
package native

import (
	"errors"
	"sync"
)

// Settings is an opaque key/value settings blob handed to the engine.
// Values are JSON-compatible scalars, lists and nested maps.
type Settings = map[string]any

// Property describes one configurable field exposed by an engine object.
// List-valued fields enumerate their valid options.
type Property struct {
	Name    string
	IsList  bool
	Options []any
}

// Object is the surface shared by every engine-side handle.
type Object interface {
	// Name returns the unique name the object was created under.
	Name() string
	// Settings returns the object's effective settings as the engine
	// normalized them.
	Settings() Settings
	// Update applies a partial settings patch.
	Update(patch Settings) error
	// Properties enumerates the object's configurable fields.
	Properties() []Property
	// Release destroys the engine-side object. The handle must not be
	// used afterwards.
	Release() error
}

// VideoContext is the engine's global video pipeline state. Resetting it
// invalidates every encoder attachment made against the previous state.
type VideoContext interface {
	Reset(info VideoInfo) error
}

// AudioContext is the engine's global audio pipeline state.
type AudioContext interface {
	Reset(info AudioInfo) error
	SetMonitoringDevice(name, id string) error
}

// VideoInfo carries the parameters of a video pipeline reset.
type VideoInfo struct {
	GraphicsModule string
	FPSNum         uint32
	FPSDen         uint32
	BaseWidth      uint32
	BaseHeight     uint32
	OutputWidth    uint32
	OutputHeight   uint32
	OutputFormat   int
	Adapter        int
	GPUConversion  bool
	ColorSpace     int
	Range          int
	ScaleType      int
}

// AudioInfo carries the parameters of an audio pipeline reset.
type AudioInfo struct {
	SamplesPerSec uint32
	SpeakerLayout int
}

// VideoEncoder is an engine video encoder handle.
type VideoEncoder interface {
	Object
	// SetVideo attaches the encoder to the current video context. Must be
	// called again after the context is reset.
	SetVideo(ctx VideoContext) error
}

// AudioEncoder is an engine audio encoder handle.
type AudioEncoder interface {
	Object
	SetAudio(ctx AudioContext) error
}

// Provider is a delivery endpoint handle (ingest URL, credentials).
type Provider interface {
	Object
}

// Output is an engine output handle. Encoders and the provider must be
// bound before Start.
type Output interface {
	Object
	SetVideoEncoder(enc VideoEncoder) error
	SetAudioEncoder(enc AudioEncoder, track int) error
	SetProvider(p Provider) error
	Start() error
	Stop() error
	Active() bool
	// LastError returns the engine's diagnostic for the most recent
	// failure, empty if none.
	LastError() string
}

// Factory creates and looks up engine objects of one kind.
type Factory[T Object] interface {
	// Create instantiates an object of the given engine type under a
	// unique name with initial settings.
	Create(objectType, name string, settings Settings) (T, error)
	// FromName returns the live object created under name.
	FromName(name string) (T, bool)
}

// Engine is the full binding surface.
type Engine interface {
	Outputs() Factory[Output]
	VideoEncoders() Factory[VideoEncoder]
	AudioEncoders() Factory[AudioEncoder]
	Providers() Factory[Provider]
	Video() VideoContext
	Audio() AudioContext
	// Shutdown tears the engine down. No handle may be used afterwards.
	Shutdown() error
}

// ErrNoEngine is returned by Default when no engine has been registered.
var ErrNoEngine = errors.New("no media engine registered")

var (
	registerMu sync.Mutex
	registered Engine
)

// Register installs the engine binding. Typically called from an init
// function of the binding package linked into the final binary. Registering
// twice panics.
func Register(e Engine) {
	registerMu.Lock()
	defer registerMu.Unlock()
	if registered != nil {
		panic("native: engine already registered")
	}
	registered = e
}

// Default returns the registered engine binding.
func Default() (Engine, error) {
	registerMu.Lock()
	defer registerMu.Unlock()
	if registered == nil {
		return nil, ErrNoEngine
	}
	return registered, nil
}
