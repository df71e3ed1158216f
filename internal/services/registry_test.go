package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/broadcastkit/studiod/internal/models"
	"github.com/broadcastkit/studiod/internal/native"
)

func newVideoEncoderRegistry(env *testEnv) *Registry[native.VideoEncoder, *models.EncoderDocument] {
	return NewRegistry("videoEncoder", env.engine.VideoEncoders(), env.store("VideoEncoders"),
		func() *models.EncoderDocument { return &models.EncoderDocument{} }, slog.Default())
}

func TestRegistryAddPersistsAndGeneratesID(t *testing.T) {
	env := newTestEnv(t)
	reg := newVideoEncoderRegistry(env)
	require.NoError(t, reg.Initialize(context.Background(), nil))

	id, err := reg.Add(TypeX264Encoder, true, native.Settings{"bitrate": 2500}, nil)
	require.NoError(t, err)
	assert.True(t, models.ValidUniqueID(id))
	reg.Wait()

	docs, err := env.store("VideoEncoders").Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, id, docs[0].DocID)
	assert.Contains(t, string(docs[0].Content), TypeX264Encoder)
}

func TestRegistryTransientEntryIsNotPersisted(t *testing.T) {
	env := newTestEnv(t)
	reg := newVideoEncoderRegistry(env)
	require.NoError(t, reg.Initialize(context.Background(), nil))

	id, err := reg.Add(TypeX264Encoder, false, nil, nil)
	require.NoError(t, err)
	reg.Wait()

	docs, err := env.store("VideoEncoders").Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)

	// The entry still exists in memory and in the engine.
	_, ok := reg.Handle(id)
	assert.True(t, ok)
	_, ok = env.engine.LookupVideoEncoder(id)
	assert.True(t, ok)
}

func TestRegistryCreateFailureRegistersNothing(t *testing.T) {
	env := newTestEnv(t)
	env.engine.FailCreate("bad_type", errors.New("unknown encoder type"))
	reg := newVideoEncoderRegistry(env)
	require.NoError(t, reg.Initialize(context.Background(), nil))

	_, err := reg.Add("bad_type", true, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNativeObjectCreationFailed)
	assert.Zero(t, reg.Len())
	reg.Wait()

	docs, err := env.store("VideoEncoders").Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestRegistryRemoveReleasesAndDeletes(t *testing.T) {
	env := newTestEnv(t)
	reg := newVideoEncoderRegistry(env)
	require.NoError(t, reg.Initialize(context.Background(), nil))

	id, err := reg.Add(TypeX264Encoder, true, nil, nil)
	require.NoError(t, err)
	reg.Wait()

	require.NoError(t, reg.Remove(id))
	reg.Wait()

	assert.True(t, env.engine.Released(id))
	docs, err := env.store("VideoEncoders").Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)

	err = reg.Remove(id)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRegistryRestoreRecreatesNativeObjects(t *testing.T) {
	env := newTestEnv(t)
	reg := newVideoEncoderRegistry(env)
	require.NoError(t, reg.Initialize(context.Background(), nil))
	id, err := reg.Add(TypeX264Encoder, true, native.Settings{"bitrate": 4000}, nil)
	require.NoError(t, err)
	reg.Wait()

	// A second registry over the same store rebuilds the object graph.
	reload := newVideoEncoderRegistry(env)
	var restoredIDs []string
	require.NoError(t, reload.Initialize(context.Background(),
		func(restoredID string, doc *models.EncoderDocument, handle native.VideoEncoder) error {
			restoredIDs = append(restoredIDs, restoredID)
			assert.Equal(t, TypeX264Encoder, doc.Type)
			assert.EqualValues(t, 4000, doc.Settings["bitrate"])
			return nil
		}))
	assert.Equal(t, []string{id}, restoredIDs)

	handle, ok := reload.Handle(id)
	require.True(t, ok)
	assert.EqualValues(t, 4000, handle.Settings()["bitrate"])
}

func TestRegistryDefaultsListFieldsOnCreate(t *testing.T) {
	env := newTestEnv(t)
	env.engine.SetTypeProperties(TypeX264Encoder, []native.Property{
		{Name: "preset", IsList: true, Options: []any{"veryfast", "fast", "medium"}},
		{Name: "profile", IsList: true, Options: []any{"main", "high"}},
		{Name: "bitrate", IsList: false},
	})
	reg := newVideoEncoderRegistry(env)
	require.NoError(t, reg.Initialize(context.Background(), nil))

	// "preset" holds an invalid value, "profile" is unset.
	id, err := reg.Add(TypeX264Encoder, true, native.Settings{"preset": "turbo"}, nil)
	require.NoError(t, err)

	handle, _ := reg.Handle(id)
	assert.Equal(t, "veryfast", handle.Settings()["preset"])
	assert.Equal(t, "main", handle.Settings()["profile"])

	doc, _ := reg.Doc(id)
	assert.Equal(t, "veryfast", doc.Settings["preset"])
}

func TestRegistryDefaultsKeepValidListValues(t *testing.T) {
	env := newTestEnv(t)
	env.engine.SetTypeProperties(TypeX264Encoder, []native.Property{
		{Name: "preset", IsList: true, Options: []any{"veryfast", "fast", "medium"}},
	})
	reg := newVideoEncoderRegistry(env)
	require.NoError(t, reg.Initialize(context.Background(), nil))

	id, err := reg.Add(TypeX264Encoder, true, native.Settings{"preset": "medium"}, nil)
	require.NoError(t, err)
	handle, _ := reg.Handle(id)
	assert.Equal(t, "medium", handle.Settings()["preset"])
}

func TestRegistryUpdateSettingsSnapshotsReadBack(t *testing.T) {
	env := newTestEnv(t)
	reg := newVideoEncoderRegistry(env)
	require.NoError(t, reg.Initialize(context.Background(), nil))
	id, err := reg.Add(TypeX264Encoder, true, native.Settings{"bitrate": 2500}, nil)
	require.NoError(t, err)

	require.NoError(t, reg.SetBitrate(id, 6000))
	reg.Wait()

	doc, _ := reg.Doc(id)
	assert.EqualValues(t, 6000, doc.Settings["bitrate"])

	docs, err := env.store("VideoEncoders").Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Contains(t, string(docs[0].Content), "6000")

	err = reg.UpdateSettings("videoEncoder_missing", native.Settings{"bitrate": 1})
	assert.ErrorIs(t, err, models.ErrNotFound)
}
