package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/neural"
	"pipelined.dev/neural/mock"
	"pipelined.dev/neural/ort"
	"pipelined.dev/neural/schema"
	"pipelined.dev/neural/signal"
	"pipelined.dev/neural/wav"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	renderOpts.params, liveOpts.params = nil, nil
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func withModel(t *testing.T, m *mock.Model) {
	t.Helper()
	loader := neuralLoader
	neuralLoader = func(ort.Config) neural.Loader {
		return m.Loader()
	}
	t.Cleanup(func() { neuralLoader = loader })
}

func writeConstant(t *testing.T, path string, sampleRate, numChannels, size int, v float32) {
	t.Helper()
	floats := signal.Allocate(numChannels, size)
	for c := range floats {
		for i := range floats[c] {
			floats[c][i] = v
		}
	}
	w, err := wav.Create(path, sampleRate, numChannels, signal.BitDepth16)
	require.NoError(t, err)
	require.NoError(t, w.Write(floats, size))
	require.NoError(t, w.Close())
}

func readFile(t *testing.T, path string) (signal.Float32, int) {
	t.Helper()
	r, err := wav.Open(path)
	require.NoError(t, err)
	defer r.Close()
	floats, err := readAll(r, 128)
	require.NoError(t, err)
	return floats, r.SampleRate()
}

func TestVersion(t *testing.T) {
	out, err := runCmd(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "neuralfx dev"), out)
}

func TestInspect(t *testing.T) {
	out, err := runCmd(t, "inspect", "--preset", "hybrid")
	require.NoError(t, err)
	assert.Contains(t, out, "name: hybrid")
	assert.Contains(t, out, "new_h2")
	assert.Contains(t, out, "#   t (Tape)")

	manifest := filepath.Join(t.TempDir(), "hybrid.yaml")
	data, err := schema.Marshal(schema.Hybrid())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(manifest, data, 0o644))
	fromManifest, err := runCmd(t, "inspect", "--preset", "", "--manifest", manifest)
	require.NoError(t, err)
	assert.Equal(t, out, fromManifest)
}

func TestInspectErrors(t *testing.T) {
	var tests = []struct {
		description string
		args        []string
		contains    string
	}{
		{
			description: "no schema",
			args:        []string{"inspect", "--preset", "", "--manifest", ""},
			contains:    "schema is required",
		},
		{
			description: "unknown preset",
			args:        []string{"inspect", "--preset", "tape", "--manifest", ""},
			contains:    "unknown preset",
		},
		{
			description: "both",
			args:        []string{"inspect", "--preset", "cl1b", "--manifest", "cl1b.yaml"},
			contains:    "mutually exclusive",
		},
		{
			description: "missing model",
			args:        []string{"inspect", "--preset", "cl1b", "--manifest", "", "--model", "missing.onnx"},
			contains:    "missing.onnx",
		},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			_, err := runCmd(t, test.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), test.contains)
		})
	}
	inspectOpts.model = ""
}

func TestRender(t *testing.T) {
	withModel(t, &mock.Model{Step: mock.Scale(0.5, 0)})
	dir := t.TempDir()
	in, out := filepath.Join(dir, "in.wav"), filepath.Join(dir, "out.wav")
	writeConstant(t, in, 44100, 2, 1000, 0.25)

	_, err := runCmd(t, "render", "--preset", "cl1b", "--manifest", "", "--in", in, "--out", out, "--block", "256", "--param", "threshold=0.3")
	require.NoError(t, err)

	result, sampleRate := readFile(t, out)
	assert.Equal(t, 44100, sampleRate)
	require.Equal(t, 2, result.NumChannels())
	require.Equal(t, 1000, result.Size())
	for c := range result {
		for _, v := range result[c] {
			assert.InDelta(t, 0.125, v, 1e-3)
		}
	}
}

func TestRenderResample(t *testing.T) {
	withModel(t, &mock.Model{Step: mock.Scale(1, 0)})
	dir := t.TempDir()
	in, out, manifest := filepath.Join(dir, "in.wav"), filepath.Join(dir, "out.wav"), filepath.Join(dir, "model.yaml")
	writeConstant(t, in, 44100, 1, 4410, 0.1)
	s := schema.NeuralPiano()
	s.SampleRate = 22050
	data, err := schema.Marshal(s)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(manifest, data, 0o644))

	_, err = runCmd(t, "render", "--preset", "", "--manifest", manifest, "--in", in, "--out", out, "--block", "128")
	require.NoError(t, err)

	result, sampleRate := readFile(t, out)
	assert.Equal(t, 44100, sampleRate)
	assert.Equal(t, 1, result.NumChannels())
	assert.NotZero(t, result.Size())
}

func TestRenderErrors(t *testing.T) {
	withModel(t, &mock.Model{})
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	writeConstant(t, in, 44100, 1, 10, 0.1)
	var tests = []struct {
		description string
		args        []string
	}{
		{
			description: "no files",
			args:        []string{"render", "--preset", "cl1b", "--manifest", "", "--in", "", "--out", ""},
		},
		{
			description: "missing input",
			args:        []string{"render", "--preset", "cl1b", "--manifest", "", "--in", filepath.Join(dir, "missing.wav"), "--out", filepath.Join(dir, "out.wav")},
		},
		{
			description: "block size",
			args:        []string{"render", "--preset", "cl1b", "--manifest", "", "--in", in, "--out", filepath.Join(dir, "out.wav"), "--block", "0"},
		},
		{
			description: "limiter",
			args:        []string{"render", "--preset", "cl1b", "--manifest", "", "--in", in, "--out", filepath.Join(dir, "out.wav"), "--block", "64", "--limiter", "clip"},
		},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			_, err := runCmd(t, test.args...)
			assert.Error(t, err)
		})
	}
	renderOpts.limiter = "tanh"
}

func TestParseParam(t *testing.T) {
	var tests = []struct {
		kv    string
		name  string
		value float32
		err   bool
	}{
		{kv: "threshold=0.5", name: "threshold", value: 0.5},
		{kv: "t=1", name: "t", value: 1},
		{kv: "t", err: true},
		{kv: "=0.5", err: true},
		{kv: "t=loud", err: true},
	}
	for _, test := range tests {
		t.Run(test.kv, func(t *testing.T) {
			name, value, err := parseParam(test.kv)
			if test.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.name, name)
			assert.Equal(t, test.value, value)
		})
	}

	f := modelFlags{params: []string{"drive=0.5"}}
	_, err := f.parameters(schema.CL1B())
	assert.Error(t, err)
	f.params = []string{"ratio=2"}
	r, err := f.parameters(schema.CL1B())
	require.NoError(t, err)
	assert.Equal(t, float32(1), r.NormalizedValue("ratio"))
}
