package services

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/broadcastkit/studiod/internal/models"
	"github.com/broadcastkit/studiod/internal/native"
)

// rtmpFixture wires the full streaming pipeline over one env.
type rtmpFixture struct {
	env      *testEnv
	settings *SettingsService
	rtmp     *RtmpOutputService
	outputs  *OutputService
	encoders *EncoderService
}

func newRtmpFixture(t *testing.T) *rtmpFixture {
	t.Helper()
	env := newTestEnv(t)
	return buildRtmpFixture(t, env)
}

func buildRtmpFixture(t *testing.T, env *testEnv) *rtmpFixture {
	t.Helper()
	settings := env.settingsService()
	encoders := NewEncoderService(env.store("VideoEncoders"), env.store("AudioEncoders"), env.engine, slog.Default())
	providers := NewProviderService(env.store("Providers"), env.engine, slog.Default())
	outputs := NewOutputService(env.store("Outputs"), env.engine, slog.Default())
	rtmp := NewRtmpOutputService(env.store("RtmpOutputSettings"),
		outputs, encoders, providers, settings, env.bus, slog.Default())
	require.NoError(t, rtmp.Initialize(context.Background()))
	return &rtmpFixture{env: env, settings: settings, rtmp: rtmp, outputs: outputs, encoders: encoders}
}

func (f *rtmpFixture) waitAll() {
	f.rtmp.Wait()
	f.outputs.Wait()
	f.encoders.Wait()
	f.settings.Wait()
}

func TestRtmpBootstrapCreatesObjectGraph(t *testing.T) {
	f := newRtmpFixture(t)
	state := f.rtmp.State()

	assert.NotEmpty(t, state.OutputID)
	assert.NotEmpty(t, state.AudioEncoderID)
	assert.NotEmpty(t, state.SimpleEncoderID)
	assert.NotEmpty(t, state.AdvancedEncoderID)
	assert.NotEmpty(t, state.CommonProviderID)
	assert.NotEmpty(t, state.CustomProviderID)
	assert.NotEqual(t, state.SimpleEncoderID, state.AdvancedEncoderID)
	assert.Equal(t, models.EncoderModeSimple, state.EncoderMode)
	assert.Equal(t, models.ProviderModeCommon, state.ProviderMode)

	// The simple encoder and common provider are live on the output.
	out, ok := f.env.engine.LookupOutput(state.OutputID)
	require.True(t, ok)
	assert.Equal(t, state.SimpleEncoderID, out.VideoEncoderName())
	assert.Equal(t, state.CommonProviderID, out.ProviderName())
}

func TestRtmpStateReloadsAcrossRestart(t *testing.T) {
	f := newRtmpFixture(t)
	first := f.rtmp.State()
	require.NoError(t, f.rtmp.SetEncoderMode(models.EncoderModeAdvanced))
	f.waitAll()

	reload := buildRtmpFixture(t, f.env)
	state := reload.rtmp.State()
	assert.Equal(t, first.OutputID, state.OutputID)
	assert.Equal(t, first.SimpleEncoderID, state.SimpleEncoderID)
	assert.Equal(t, models.EncoderModeAdvanced, state.EncoderMode)

	out, ok := f.env.engine.LookupOutput(state.OutputID)
	require.True(t, ok)
	assert.Equal(t, state.AdvancedEncoderID, out.VideoEncoderName())
}

func TestRtmpEncoderModeSwapKeepsInactiveSlot(t *testing.T) {
	f := newRtmpFixture(t)
	state := f.rtmp.State()

	require.NoError(t, f.encoders.SetVideoBitrate(state.SimpleEncoderID, 2500))
	require.NoError(t, f.rtmp.SetEncoderMode(models.EncoderModeAdvanced))

	out, _ := f.env.engine.LookupOutput(state.OutputID)
	assert.Equal(t, state.AdvancedEncoderID, out.VideoEncoderName())

	// The simple slot keeps its configuration while inactive.
	doc, ok := f.encoders.VideoEncoderDoc(state.SimpleEncoderID)
	require.True(t, ok)
	assert.EqualValues(t, 2500, doc.Settings["bitrate"])

	require.NoError(t, f.rtmp.SetEncoderMode(models.EncoderModeSimple))
	assert.Equal(t, state.SimpleEncoderID, out.VideoEncoderName())

	assert.Error(t, f.rtmp.SetEncoderMode("Bogus"))
}

func TestRtmpSetVideoEncoderTypeDestroysAndRecreates(t *testing.T) {
	f := newRtmpFixture(t)
	before := f.rtmp.State()

	require.NoError(t, f.rtmp.SetVideoEncoderType(models.EncoderModeSimple, "obs_qsv11"))
	after := f.rtmp.State()

	assert.NotEqual(t, before.SimpleEncoderID, after.SimpleEncoderID)
	assert.True(t, f.env.engine.Released(before.SimpleEncoderID))

	doc, ok := f.encoders.VideoEncoderDoc(after.SimpleEncoderID)
	require.True(t, ok)
	assert.Equal(t, "obs_qsv11", doc.Type)

	// The replacement is live because the simple slot is active.
	out, _ := f.env.engine.LookupOutput(after.OutputID)
	assert.Equal(t, after.SimpleEncoderID, out.VideoEncoderName())
}

func TestRtmpSetVideoEncoderTypeOnInactiveSlot(t *testing.T) {
	f := newRtmpFixture(t)
	before := f.rtmp.State()

	require.NoError(t, f.rtmp.SetVideoEncoderType(models.EncoderModeAdvanced, "obs_qsv11"))
	after := f.rtmp.State()

	assert.NotEqual(t, before.AdvancedEncoderID, after.AdvancedEncoderID)
	// The active binding is untouched.
	out, _ := f.env.engine.LookupOutput(after.OutputID)
	assert.Equal(t, after.SimpleEncoderID, out.VideoEncoderName())
}

func TestRtmpProviderModeSwap(t *testing.T) {
	f := newRtmpFixture(t)
	state := f.rtmp.State()

	require.NoError(t, f.rtmp.UpdateProvider(models.ProviderModeCustom, native.Settings{
		"server": "rtmp://ingest.example.com/live",
		"key":    "secret",
	}))
	require.NoError(t, f.rtmp.SetProviderMode(models.ProviderModeCustom))

	out, _ := f.env.engine.LookupOutput(state.OutputID)
	assert.Equal(t, state.CustomProviderID, out.ProviderName())

	p, ok := f.env.engine.LookupProvider(state.CustomProviderID)
	require.True(t, ok)
	assert.Equal(t, "rtmp://ingest.example.com/live", p.Settings()["server"])
}

func TestRtmpStartAppliesDelaySettings(t *testing.T) {
	f := newRtmpFixture(t)
	require.NoError(t, f.settings.PatchSection(models.SectionDelay, map[string]any{
		"Enabled": true,
		"Seconds": 25,
	}))

	require.NoError(t, f.rtmp.Start())
	assert.True(t, f.rtmp.Active())

	out, _ := f.env.engine.LookupOutput(f.rtmp.State().OutputID)
	assert.EqualValues(t, 25, out.Settings()["delay_sec"])
}

func TestRtmpStartFailurePublishesState(t *testing.T) {
	f := newRtmpFixture(t)
	f.env.engine.FailStart("stream key rejected")

	var states []StreamingState
	f.env.bus.Subscribe(TopicStreaming, func(e Event) {
		states = append(states, e.Payload.(StreamingState))
	})

	err := f.rtmp.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNativeStartFailure)
	assert.Contains(t, err.Error(), "stream key rejected")
	require.Len(t, states, 1)
	assert.False(t, states[0].Active)
	assert.Equal(t, "stream key rejected", states[0].Error)

	f.env.engine.ClearStartFailure()
	require.NoError(t, f.rtmp.Start())
	require.Len(t, states, 2)
	assert.True(t, states[1].Active)

	require.NoError(t, f.rtmp.Stop())
	assert.False(t, f.rtmp.Active())
}
