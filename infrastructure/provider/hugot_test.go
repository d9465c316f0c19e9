package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/vectable/domain/embedding"
)

func writeTokenizer(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tokenizer.json"), []byte(`{}`), 0o644))
}

func TestSentenceTransformers_Embed(t *testing.T) {
	if !hasEmbeddedModel {
		t.Skip("skipping: requires -tags embed_model")
	}

	fn := NewSentenceTransformersFunction(t.TempDir(), "", 0)
	vectors, err := fn.ComputeSourceEmbeddings(context.Background(), stringColumn(t, "hello world", "goodbye"))
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	for _, v := range vectors {
		assert.Len(t, v, DefaultSentenceTransformersDimension)
	}

	query, err := fn.ComputeQueryEmbeddings(context.Background(), "hello world")
	require.NoError(t, err)
	assert.InDeltaSlice(t, vectors[0], query, 1e-4)
}

func TestSentenceTransformers_EmptyColumn(t *testing.T) {
	fn := NewSentenceTransformersFunction(t.TempDir(), "", 0)
	vectors, err := fn.ComputeSourceEmbeddings(context.Background(), stringColumn(t))
	require.NoError(t, err)
	assert.Empty(t, vectors)
}

func TestSentenceTransformers_CancelledContext(t *testing.T) {
	fn := NewSentenceTransformersFunction(t.TempDir(), "", 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fn.ComputeSourceEmbeddings(ctx, stringColumn(t, "hello"))
	assert.ErrorIs(t, err, context.Canceled)
	_, err = fn.ComputeQueryEmbeddings(ctx, "hello")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSentenceTransformers_DestType(t *testing.T) {
	fn := NewSentenceTransformersFunction(t.TempDir(), "", 0)
	vt, err := fn.DestType(arrow.BinaryTypes.String)
	require.NoError(t, err)
	assert.Equal(t, embedding.NewVectorType(384), vt)

	_, err = fn.DestType(arrow.BinaryTypes.Binary)
	assert.ErrorIs(t, err, ErrUnsupportedSource)

	custom := NewSentenceTransformersFunction(t.TempDir(), "BAAI/bge-base-en", 768)
	vt, err = custom.DestType(arrow.BinaryTypes.LargeString)
	require.NoError(t, err)
	assert.Equal(t, 768, vt.Dimension)
}

func TestSentenceTransformers_DiskModelPath(t *testing.T) {
	t.Run("model dir is the model", func(t *testing.T) {
		dir := t.TempDir()
		writeTokenizer(t, dir)
		got, err := NewSentenceTransformersFunction(dir, "", 0).diskModelPath()
		require.NoError(t, err)
		assert.Equal(t, dir, got)
	})

	t.Run("named subdirectory wins over others", func(t *testing.T) {
		dir := t.TempDir()
		writeTokenizer(t, filepath.Join(dir, "aaa-other"))
		writeTokenizer(t, filepath.Join(dir, "sentence-transformers_all-MiniLM-L6-v2"))
		got, err := NewSentenceTransformersFunction(dir, "", 0).diskModelPath()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "sentence-transformers_all-MiniLM-L6-v2"), got)
	})

	t.Run("any subdirectory with a tokenizer", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("readme"), 0o644))
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "incomplete"), 0o755))
		writeTokenizer(t, filepath.Join(dir, "my-model"))
		got, err := NewSentenceTransformersFunction(dir, "x/y", 0).diskModelPath()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "my-model"), got)
	})

	t.Run("nothing usable", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "incomplete"), 0o755))
		_, err := NewSentenceTransformersFunction(dir, "", 0).diskModelPath()
		assert.Error(t, err)
	})
}

func TestSentenceTransformers_Available(t *testing.T) {
	dir := t.TempDir()
	fn := NewSentenceTransformersFunction(dir, "", 0)
	if !hasEmbeddedModel {
		assert.False(t, fn.Available())
	}
	writeTokenizer(t, filepath.Join(dir, "model"))
	assert.True(t, fn.Available())
}

func TestExtractEmbeddedModel(t *testing.T) {
	fakeFS := fstest.MapFS{
		"models/test-model/tokenizer.json":  {Data: []byte(`{"test": true}`)},
		"models/test-model/config.json":     {Data: []byte(`{"hidden_size": 384}`)},
		"models/test-model/onnx/model.onnx": {Data: []byte("fake-onnx-data")},
	}

	targetDir := t.TempDir()
	modelPath, err := extractEmbeddedModel(fakeFS, targetDir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(targetDir, "test-model"), modelPath)

	data, err := os.ReadFile(filepath.Join(modelPath, "onnx", "model.onnx"))
	require.NoError(t, err)
	assert.Equal(t, "fake-onnx-data", string(data))

	again, err := extractEmbeddedModel(fakeFS, targetDir)
	require.NoError(t, err)
	assert.Equal(t, modelPath, again)
}

func TestExtractEmbeddedModel_NoModelDir(t *testing.T) {
	_, err := extractEmbeddedModel(fstest.MapFS{"models/.gitkeep": {Data: []byte("")}}, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no model directory found")
}

func TestSentenceTransformersFactory(t *testing.T) {
	dir := t.TempDir()
	fn, err := SentenceTransformersFactory(dir).Create(embedding.Params{"dim": 512})
	require.NoError(t, err)
	vt, err := fn.DestType(arrow.BinaryTypes.String)
	require.NoError(t, err)
	assert.Equal(t, 512, vt.Dimension)

	_, err = SentenceTransformersFactory("").Create(nil)
	assert.Error(t, err)
}
