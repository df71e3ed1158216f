// Package nativetest provides an in-memory media engine for tests. It
// records object lifecycles and imperative calls and can be told to fail
// creation or startup.
package nativetest

import (
	"fmt"
	"sync"

	"github.com/broadcastkit/studiod/internal/native"
)

// Engine is a fake native.Engine.
type Engine struct {
	mu sync.Mutex

	video *videoContext
	audio *audioContext

	outputs       map[string]*Output
	videoEncoders map[string]*VideoEncoder
	audioEncoders map[string]*AudioEncoder
	providers     map[string]*Provider

	createErr    map[string]error
	startErr     string
	propsByType  map[string][]native.Property
	released     []string
	createdNames []string
}

// New creates an empty fake engine.
func New() *Engine {
	e := &Engine{
		outputs:       make(map[string]*Output),
		videoEncoders: make(map[string]*VideoEncoder),
		audioEncoders: make(map[string]*AudioEncoder),
		providers:     make(map[string]*Provider),
		createErr:     make(map[string]error),
		propsByType:   make(map[string][]native.Property),
	}
	e.video = &videoContext{engine: e, generation: 1}
	e.audio = &audioContext{engine: e, generation: 1}
	return e
}

// FailCreate makes every Create of the given engine type fail with err.
func (e *Engine) FailCreate(objectType string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.createErr[objectType] = err
}

// FailStart makes every Output.Start fail, surfacing msg via LastError.
func (e *Engine) FailStart(msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startErr = msg
}

// ClearStartFailure re-enables Output.Start.
func (e *Engine) ClearStartFailure() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startErr = ""
}

// SetTypeProperties declares the property schema reported by objects of the
// given engine type.
func (e *Engine) SetTypeProperties(objectType string, props []native.Property) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.propsByType[objectType] = props
}

// Released reports whether an object created under name has been released.
func (e *Engine) Released(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, n := range e.released {
		if n == name {
			return true
		}
	}
	return false
}

// CreatedNames returns the names of every object created, in order,
// including released ones.
func (e *Engine) CreatedNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.createdNames...)
}

// VideoResets returns how many times the video context has been reset.
func (e *Engine) VideoResets() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.video.resets
}

// LastVideoInfo returns the parameters of the most recent video reset.
func (e *Engine) LastVideoInfo() native.VideoInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.video.lastInfo
}

// AudioResets returns how many times the audio context has been reset.
func (e *Engine) AudioResets() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.audio.resets
}

// LastAudioInfo returns the parameters of the most recent audio reset.
func (e *Engine) LastAudioInfo() native.AudioInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.audio.lastInfo
}

// MonitoringDevice returns the monitoring device last applied to the audio
// context.
func (e *Engine) MonitoringDevice() (name, id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.audio.monitorName, e.audio.monitorID
}

// LookupOutput returns the live fake output created under name.
func (e *Engine) LookupOutput(name string) (*Output, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.outputs[name]
	return o, ok
}

// LookupVideoEncoder returns the live fake video encoder created under name.
func (e *Engine) LookupVideoEncoder(name string) (*VideoEncoder, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	enc, ok := e.videoEncoders[name]
	return enc, ok
}

// LookupProvider returns the live fake provider created under name.
func (e *Engine) LookupProvider(name string) (*Provider, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.providers[name]
	return p, ok
}

func (e *Engine) Outputs() native.Factory[native.Output]             { return outputFactory{e} }
func (e *Engine) VideoEncoders() native.Factory[native.VideoEncoder] { return videoEncoderFactory{e} }
func (e *Engine) AudioEncoders() native.Factory[native.AudioEncoder] { return audioEncoderFactory{e} }
func (e *Engine) Providers() native.Factory[native.Provider]         { return providerFactory{e} }
func (e *Engine) Video() native.VideoContext                         { return e.video }
func (e *Engine) Audio() native.AudioContext                         { return e.audio }

func (e *Engine) Shutdown() error { return nil }

func (e *Engine) checkCreate(objectType, name string) error {
	if err := e.createErr[objectType]; err != nil {
		return err
	}
	e.createdNames = append(e.createdNames, name)
	return nil
}

// object carries the state shared by every fake handle.
type object struct {
	engine   *Engine
	name     string
	typ      string
	settings native.Settings
	released bool
}

func (o *object) Name() string { return o.name }

func (o *object) Type() string { return o.typ }

func (o *object) Settings() native.Settings {
	o.engine.mu.Lock()
	defer o.engine.mu.Unlock()
	out := make(native.Settings, len(o.settings))
	for k, v := range o.settings {
		out[k] = v
	}
	return out
}

func (o *object) Update(patch native.Settings) error {
	o.engine.mu.Lock()
	defer o.engine.mu.Unlock()
	if o.released {
		return fmt.Errorf("object %s used after release", o.name)
	}
	for k, v := range patch {
		o.settings[k] = v
	}
	return nil
}

func (o *object) Properties() []native.Property {
	o.engine.mu.Lock()
	defer o.engine.mu.Unlock()
	return o.engine.propsByType[o.typ]
}

func (o *object) release(remove func()) error {
	o.engine.mu.Lock()
	defer o.engine.mu.Unlock()
	if o.released {
		return fmt.Errorf("object %s released twice", o.name)
	}
	o.released = true
	o.engine.released = append(o.engine.released, o.name)
	remove()
	return nil
}

func newObject(e *Engine, typ, name string, settings native.Settings) object {
	s := make(native.Settings, len(settings))
	for k, v := range settings {
		s[k] = v
	}
	return object{engine: e, name: name, typ: typ, settings: s}
}

type videoContext struct {
	engine     *Engine
	generation int
	resets     int
	lastInfo   native.VideoInfo
}

func (c *videoContext) Reset(info native.VideoInfo) error {
	c.engine.mu.Lock()
	defer c.engine.mu.Unlock()
	c.generation++
	c.resets++
	c.lastInfo = info
	return nil
}

type audioContext struct {
	engine      *Engine
	generation  int
	resets      int
	lastInfo    native.AudioInfo
	monitorName string
	monitorID   string
}

func (c *audioContext) Reset(info native.AudioInfo) error {
	c.engine.mu.Lock()
	defer c.engine.mu.Unlock()
	c.generation++
	c.resets++
	c.lastInfo = info
	return nil
}

func (c *audioContext) SetMonitoringDevice(name, id string) error {
	c.engine.mu.Lock()
	defer c.engine.mu.Unlock()
	c.monitorName = name
	c.monitorID = id
	return nil
}

// VideoEncoder is a fake engine video encoder.
type VideoEncoder struct {
	object
	attachedGen int
}

func (e *VideoEncoder) SetVideo(native.VideoContext) error {
	e.engine.mu.Lock()
	defer e.engine.mu.Unlock()
	if e.released {
		return fmt.Errorf("encoder %s used after release", e.name)
	}
	e.attachedGen = e.engine.video.generation
	return nil
}

func (e *VideoEncoder) Release() error {
	return e.release(func() { delete(e.engine.videoEncoders, e.name) })
}

// AudioEncoder is a fake engine audio encoder.
type AudioEncoder struct {
	object
	attachedGen int
}

func (e *AudioEncoder) SetAudio(native.AudioContext) error {
	e.engine.mu.Lock()
	defer e.engine.mu.Unlock()
	if e.released {
		return fmt.Errorf("encoder %s used after release", e.name)
	}
	e.attachedGen = e.engine.audio.generation
	return nil
}

func (e *AudioEncoder) Release() error {
	return e.release(func() { delete(e.engine.audioEncoders, e.name) })
}

// Provider is a fake delivery endpoint.
type Provider struct {
	object
}

func (p *Provider) Release() error {
	return p.release(func() { delete(p.engine.providers, p.name) })
}

// Output is a fake engine output. Start enforces that its encoders are
// attached to the current global contexts.
type Output struct {
	object
	videoEnc  *VideoEncoder
	audioEnc  map[int]*AudioEncoder
	provider  *Provider
	active    bool
	lastError string
	starts    int
}

func (o *Output) SetVideoEncoder(enc native.VideoEncoder) error {
	o.engine.mu.Lock()
	defer o.engine.mu.Unlock()
	fake, ok := enc.(*VideoEncoder)
	if !ok {
		return fmt.Errorf("unexpected encoder implementation %T", enc)
	}
	o.videoEnc = fake
	return nil
}

func (o *Output) SetAudioEncoder(enc native.AudioEncoder, track int) error {
	o.engine.mu.Lock()
	defer o.engine.mu.Unlock()
	fake, ok := enc.(*AudioEncoder)
	if !ok {
		return fmt.Errorf("unexpected encoder implementation %T", enc)
	}
	o.audioEnc[track] = fake
	return nil
}

func (o *Output) SetProvider(p native.Provider) error {
	o.engine.mu.Lock()
	defer o.engine.mu.Unlock()
	fake, ok := p.(*Provider)
	if !ok {
		return fmt.Errorf("unexpected provider implementation %T", p)
	}
	o.provider = fake
	return nil
}

func (o *Output) Start() error {
	o.engine.mu.Lock()
	defer o.engine.mu.Unlock()
	o.starts++
	if o.engine.startErr != "" {
		o.lastError = o.engine.startErr
		return fmt.Errorf("output %s failed to start", o.name)
	}
	if o.videoEnc == nil {
		o.lastError = "no video encoder bound"
		return fmt.Errorf("output %s has no video encoder", o.name)
	}
	if len(o.audioEnc) == 0 {
		o.lastError = "no audio encoder bound"
		return fmt.Errorf("output %s has no audio encoder", o.name)
	}
	if o.videoEnc.attachedGen != o.engine.video.generation {
		o.lastError = "video encoder not attached to current video context"
		return fmt.Errorf("output %s: stale video encoder attachment", o.name)
	}
	for track, enc := range o.audioEnc {
		if enc.attachedGen != o.engine.audio.generation {
			o.lastError = "audio encoder not attached to current audio context"
			return fmt.Errorf("output %s: stale audio encoder attachment on track %d", o.name, track)
		}
	}
	o.active = true
	o.lastError = ""
	return nil
}

func (o *Output) Stop() error {
	o.engine.mu.Lock()
	defer o.engine.mu.Unlock()
	o.active = false
	return nil
}

func (o *Output) Active() bool {
	o.engine.mu.Lock()
	defer o.engine.mu.Unlock()
	return o.active
}

func (o *Output) LastError() string {
	o.engine.mu.Lock()
	defer o.engine.mu.Unlock()
	return o.lastError
}

// Starts returns how many times Start has been attempted.
func (o *Output) Starts() int {
	o.engine.mu.Lock()
	defer o.engine.mu.Unlock()
	return o.starts
}

// VideoEncoderName returns the name of the bound video encoder.
func (o *Output) VideoEncoderName() string {
	o.engine.mu.Lock()
	defer o.engine.mu.Unlock()
	if o.videoEnc == nil {
		return ""
	}
	return o.videoEnc.name
}

// ProviderName returns the name of the bound provider.
func (o *Output) ProviderName() string {
	o.engine.mu.Lock()
	defer o.engine.mu.Unlock()
	if o.provider == nil {
		return ""
	}
	return o.provider.name
}

func (o *Output) Release() error {
	return o.release(func() { delete(o.engine.outputs, o.name) })
}

type outputFactory struct{ e *Engine }

func (f outputFactory) Create(objectType, name string, settings native.Settings) (native.Output, error) {
	f.e.mu.Lock()
	defer f.e.mu.Unlock()
	if err := f.e.checkCreate(objectType, name); err != nil {
		return nil, err
	}
	o := &Output{
		object:   newObject(f.e, objectType, name, settings),
		audioEnc: make(map[int]*AudioEncoder),
	}
	f.e.outputs[name] = o
	return o, nil
}

func (f outputFactory) FromName(name string) (native.Output, bool) {
	f.e.mu.Lock()
	defer f.e.mu.Unlock()
	o, ok := f.e.outputs[name]
	return o, ok
}

type videoEncoderFactory struct{ e *Engine }

func (f videoEncoderFactory) Create(objectType, name string, settings native.Settings) (native.VideoEncoder, error) {
	f.e.mu.Lock()
	defer f.e.mu.Unlock()
	if err := f.e.checkCreate(objectType, name); err != nil {
		return nil, err
	}
	enc := &VideoEncoder{object: newObject(f.e, objectType, name, settings)}
	f.e.videoEncoders[name] = enc
	return enc, nil
}

func (f videoEncoderFactory) FromName(name string) (native.VideoEncoder, bool) {
	f.e.mu.Lock()
	defer f.e.mu.Unlock()
	enc, ok := f.e.videoEncoders[name]
	return enc, ok
}

type audioEncoderFactory struct{ e *Engine }

func (f audioEncoderFactory) Create(objectType, name string, settings native.Settings) (native.AudioEncoder, error) {
	f.e.mu.Lock()
	defer f.e.mu.Unlock()
	if err := f.e.checkCreate(objectType, name); err != nil {
		return nil, err
	}
	enc := &AudioEncoder{object: newObject(f.e, objectType, name, settings)}
	f.e.audioEncoders[name] = enc
	return enc, nil
}

func (f audioEncoderFactory) FromName(name string) (native.AudioEncoder, bool) {
	f.e.mu.Lock()
	defer f.e.mu.Unlock()
	enc, ok := f.e.audioEncoders[name]
	return enc, ok
}

type providerFactory struct{ e *Engine }

func (f providerFactory) Create(objectType, name string, settings native.Settings) (native.Provider, error) {
	f.e.mu.Lock()
	defer f.e.mu.Unlock()
	if err := f.e.checkCreate(objectType, name); err != nil {
		return nil, err
	}
	p := &Provider{object: newObject(f.e, objectType, name, settings)}
	f.e.providers[name] = p
	return p, nil
}

func (f providerFactory) FromName(name string) (native.Provider, bool) {
	f.e.mu.Lock()
	defer f.e.mu.Unlock()
	p, ok := f.e.providers[name]
	return p, ok
}

var _ native.Engine = (*Engine)(nil)
