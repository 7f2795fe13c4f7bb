package ort_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/neural"
	"pipelined.dev/neural/ort"
	"pipelined.dev/neural/schema"
)

func TestResolveModelPath(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "model.onnx")
	require.NoError(t, os.WriteFile(model, []byte("onnx"), 0o644))
	t.Setenv(ort.ModelDirEnv, dir)

	var tests = []struct {
		description string
		model       string
		expected    string
		err         error
	}{
		{
			description: "absolute",
			model:       model,
			expected:    model,
		},
		{
			description: "model dir",
			model:       "model.onnx",
			expected:    model,
		},
		{
			description: "missing",
			model:       "missing.onnx",
			err:         ort.ErrModelNotFound,
		},
		{
			description: "empty",
			err:         ort.ErrModelNotFound,
		},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			path, err := ort.ResolveModelPath(test.model)
			if test.err != nil {
				assert.ErrorIs(t, err, test.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expected, path)
		})
	}
}

func TestOpenMissingModel(t *testing.T) {
	_, err := ort.Open(schema.CL1B(), ort.Config{ModelPath: filepath.Join(t.TempDir(), "missing.onnx")})
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = ort.Loader(ort.Config{ModelPath: filepath.Join(t.TempDir(), "missing.onnx")}).Load(schema.CL1B())
	assert.Error(t, err)
}

// TestProcessor runs a real model. It requires onnxruntime shared library
// in ONNXRUNTIME_LIB and a model matching NEURAL_TEST_PRESET schema in
// NEURAL_TEST_MODEL.
func TestProcessor(t *testing.T) {
	lib, model := os.Getenv(ort.LibraryEnv), os.Getenv("NEURAL_TEST_MODEL")
	if lib == "" || model == "" {
		t.Skip("onnxruntime library or test model isn't set")
	}
	preset := os.Getenv("NEURAL_TEST_PRESET")
	if preset == "" {
		preset = "cl1b"
	}
	s, ok := schema.Preset(preset)
	require.True(t, ok, "unknown preset %s", preset)

	p, err := neural.New(s)
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.Prepare(44100, 256, 2))
	require.NoError(t, p.Load(ort.Loader(ort.Config{LibraryPath: lib, ModelPath: model})))
	require.True(t, p.Loaded())

	block := [][]float32{make([]float32, 256), make([]float32, 256)}
	for i := range block[0] {
		block[0][i] = 0.1
		block[1][i] = -0.1
	}
	for i := 0; i < 4; i++ {
		p.Process(block)
	}
	stats := p.Stats()
	assert.Zero(t, stats.Failures)
	assert.Equal(t, uint64(8), stats.Processed)
	for _, ch := range block {
		for _, v := range ch {
			assert.LessOrEqual(t, v, float32(1))
			assert.GreaterOrEqual(t, v, float32(-1))
		}
	}
}
