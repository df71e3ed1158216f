package services

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/broadcastkit/studiod/internal/models"
)

// outputFixture wires encoder, provider, and output services over one env.
type outputFixture struct {
	env       *testEnv
	encoders  *EncoderService
	providers *ProviderService
	outputs   *OutputService
}

func newOutputFixture(t *testing.T) *outputFixture {
	t.Helper()
	env := newTestEnv(t)
	f := &outputFixture{
		env:       env,
		encoders:  NewEncoderService(env.store("VideoEncoders"), env.store("AudioEncoders"), env.engine, slog.Default()),
		providers: NewProviderService(env.store("Providers"), env.engine, slog.Default()),
		outputs:   NewOutputService(env.store("Outputs"), env.engine, slog.Default()),
	}
	ctx := context.Background()
	require.NoError(t, f.encoders.Initialize(ctx))
	require.NoError(t, f.providers.Initialize(ctx))
	require.NoError(t, f.outputs.Initialize(ctx))
	return f
}

// boundOutput creates an output with encoders and a provider bound.
func (f *outputFixture) boundOutput(t *testing.T) (outputID, videoID, audioID, providerID string) {
	t.Helper()
	var err error
	outputID, err = f.outputs.AddOutput(TypeRtmpOutput, true, nil)
	require.NoError(t, err)
	videoID, err = f.encoders.AddVideoEncoder(TypeX264Encoder, true, nil)
	require.NoError(t, err)
	audioID, err = f.encoders.AddAudioEncoder(TypeAACEncoder, true, nil)
	require.NoError(t, err)
	providerID, err = f.providers.AddProvider(TypeCommonProvider, true, nil)
	require.NoError(t, err)
	require.NoError(t, f.outputs.SetVideoEncoder(outputID, videoID))
	require.NoError(t, f.outputs.SetAudioEncoder(outputID, audioID))
	require.NoError(t, f.outputs.SetProvider(outputID, providerID))
	return outputID, videoID, audioID, providerID
}

func TestOutputStartStop(t *testing.T) {
	f := newOutputFixture(t)
	outputID, _, _, _ := f.boundOutput(t)

	require.NoError(t, f.outputs.Start(outputID))
	assert.True(t, f.outputs.Active(outputID))

	require.NoError(t, f.outputs.Stop(outputID))
	assert.False(t, f.outputs.Active(outputID))
}

func TestOutputStartReattachesEncodersAfterVideoReset(t *testing.T) {
	f := newOutputFixture(t)
	outputID, _, _, _ := f.boundOutput(t)

	// Resetting the video context invalidates the encoder attachments made
	// at creation time; Start must re-attach before starting.
	require.NoError(t, f.env.engine.Video().Reset(f.env.engine.LastVideoInfo()))
	require.NoError(t, f.outputs.Start(outputID))
	assert.True(t, f.outputs.Active(outputID))
}

func TestOutputStartWithDanglingEncoderReference(t *testing.T) {
	f := newOutputFixture(t)
	outputID, videoID, _, _ := f.boundOutput(t)

	// Removing the referenced encoder does not cascade.
	require.NoError(t, f.encoders.RemoveVideoEncoder(videoID))
	doc, ok := f.outputs.OutputDoc(outputID)
	require.True(t, ok)
	assert.Equal(t, videoID, doc.VideoEncoderID)

	// The breakage surfaces when the output is started.
	err := f.outputs.Start(outputID)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.False(t, f.outputs.Active(outputID))
}

func TestOutputStartFailureSurfacesEngineDiagnostic(t *testing.T) {
	f := newOutputFixture(t)
	outputID, _, _, _ := f.boundOutput(t)

	f.env.engine.FailStart("connection refused by ingest")
	err := f.outputs.Start(outputID)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNativeStartFailure)
	assert.Contains(t, err.Error(), "connection refused by ingest")
	assert.False(t, f.outputs.Active(outputID))

	// A later attempt succeeds once the engine recovers.
	f.env.engine.ClearStartFailure()
	require.NoError(t, f.outputs.Start(outputID))
}

func TestOutputReferencesPersistAcrossRestart(t *testing.T) {
	f := newOutputFixture(t)
	outputID, videoID, audioID, providerID := f.boundOutput(t)
	f.outputs.Wait()
	f.encoders.Wait()
	f.providers.Wait()

	// Fresh services over the same stores, same engine process state reset.
	env2 := &testEnv{db: f.env.db, engine: f.env.engine, bus: f.env.bus}
	encoders := NewEncoderService(env2.store("VideoEncoders"), env2.store("AudioEncoders"), env2.engine, slog.Default())
	providers := NewProviderService(env2.store("Providers"), env2.engine, slog.Default())
	outputs := NewOutputService(env2.store("Outputs"), env2.engine, slog.Default())
	ctx := context.Background()
	require.NoError(t, encoders.Initialize(ctx))
	require.NoError(t, providers.Initialize(ctx))
	require.NoError(t, outputs.Initialize(ctx))

	doc, ok := outputs.OutputDoc(outputID)
	require.True(t, ok)
	assert.Equal(t, videoID, doc.VideoEncoderID)
	assert.Equal(t, audioID, doc.AudioEncoderID)
	assert.Equal(t, providerID, doc.ProviderID)

	require.NoError(t, outputs.Start(outputID))
}

func TestOutputRemoveLeavesReferencedEntriesAlone(t *testing.T) {
	f := newOutputFixture(t)
	outputID, videoID, audioID, providerID := f.boundOutput(t)

	require.NoError(t, f.outputs.RemoveOutput(outputID))

	assert.True(t, f.env.engine.Released(outputID))
	assert.False(t, f.env.engine.Released(videoID))
	assert.False(t, f.env.engine.Released(audioID))
	assert.False(t, f.env.engine.Released(providerID))
}

func TestOutputOperationsOnUnknownID(t *testing.T) {
	f := newOutputFixture(t)

	assert.ErrorIs(t, f.outputs.Start("output_missing"), models.ErrNotFound)
	assert.ErrorIs(t, f.outputs.Stop("output_missing"), models.ErrNotFound)
	assert.ErrorIs(t, f.outputs.SetVideoEncoder("output_missing", "enc"), models.ErrNotFound)
	assert.False(t, f.outputs.Active("output_missing"))
}
