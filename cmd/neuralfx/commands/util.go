package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pipelined.dev/neural"
	"pipelined.dev/neural/limiter"
	"pipelined.dev/neural/log"
	"pipelined.dev/neural/ort"
	"pipelined.dev/neural/param"
	"pipelined.dev/neural/schema"
)

// DefaultBlockSize is the default processing block size.
const DefaultBlockSize = 512

// neuralLoader returns the model loader for commands.
var neuralLoader = func(cfg ort.Config) neural.Loader {
	return ort.Loader(cfg)
}

// modelFlags are shared by commands that load a model.
type modelFlags struct {
	preset   string
	manifest string
	model    string
	lib      string
	limiter  string
	params   []string
	block    int
}

func (f *modelFlags) register(cmd *cobra.Command, processing bool) {
	cmd.Flags().StringVarP(&f.preset, "preset", "p", "", "built-in schema preset: "+strings.Join(schema.Presets(), ", "))
	cmd.Flags().StringVarP(&f.manifest, "manifest", "m", "", "schema manifest yaml file")
	cmd.Flags().StringVar(&f.model, "model", "", "onnx model file, resolved from schema if empty")
	cmd.Flags().StringVar(&f.lib, "lib", "", "onnxruntime shared library path")
	if !processing {
		return
	}
	cmd.Flags().StringVar(&f.limiter, "limiter", "tanh", "output limiter: tanh, knee or bypass")
	cmd.Flags().StringArrayVar(&f.params, "param", nil, "conditioning value as name=value in [0, 1], repeatable")
	cmd.Flags().IntVarP(&f.block, "block", "b", DefaultBlockSize, "block size in samples")
}

// schema returns the preset or the manifest schema.
func (f *modelFlags) schema() (schema.Schema, error) {
	switch {
	case f.preset != "" && f.manifest != "":
		return schema.Schema{}, errors.New("--preset and --manifest are mutually exclusive")
	case f.preset != "":
		s, ok := schema.Preset(f.preset)
		if !ok {
			return schema.Schema{}, fmt.Errorf("unknown preset %q, available: %s", f.preset, strings.Join(schema.Presets(), ", "))
		}
		return s, nil
	case f.manifest != "":
		return schema.LoadFile(f.manifest)
	}
	return schema.Schema{}, errors.New("schema is required, use --preset or --manifest")
}

func (f *modelFlags) config() ort.Config {
	return ort.Config{
		LibraryPath: f.lib,
		ModelPath:   f.model,
	}
}

// parameters returns a registry for the schema with values from --param.
func (f *modelFlags) parameters(s schema.Schema) (*param.Registry, error) {
	r := param.ForSchema(s)
	for _, kv := range f.params {
		name, value, err := parseParam(kv)
		if err != nil {
			return nil, err
		}
		if err := r.Set(name, value); err != nil {
			return nil, fmt.Errorf("--param %s: %w, available: %s", kv, err, strings.Join(r.Names(), ", "))
		}
	}
	return r, nil
}

func parseParam(kv string) (string, float32, error) {
	name, value, ok := strings.Cut(kv, "=")
	if !ok || name == "" {
		return "", 0, fmt.Errorf("--param %q: want name=value", kv)
	}
	v, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return "", 0, fmt.Errorf("--param %q: %w", kv, err)
	}
	return name, float32(v), nil
}

// processor creates a processor with parameters, limiter and logger from
// flags. Model is not loaded.
func (f *modelFlags) processor(s schema.Schema) (*neural.Processor, *logrus.Entry, error) {
	if f.block <= 0 {
		return nil, nil, fmt.Errorf("--block must be positive, got %d", f.block)
	}
	params, err := f.parameters(s)
	if err != nil {
		return nil, nil, err
	}
	l, err := limiter.New(f.limiter, s.Limit())
	if err != nil {
		return nil, nil, err
	}
	logger := log.ForProcessor(log.GetLogger(), s.Name, xid.New().String())
	p, err := neural.New(s,
		neural.WithLogger(logger),
		neural.WithParameters(params),
		neural.WithLimiter(l),
		neural.WithMetrics(),
	)
	if err != nil {
		return nil, nil, err
	}
	return p, logger, nil
}

// statsFields returns processor counters as log fields.
func statsFields(stats neural.Stats) logrus.Fields {
	return logrus.Fields{
		"blocks":      stats.Blocks,
		"processed":   stats.Processed,
		"passthrough": stats.Passthrough,
		"failures":    stats.Failures,
		"mismatches":  stats.SizeMismatches,
	}
}
