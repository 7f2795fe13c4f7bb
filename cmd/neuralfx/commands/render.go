package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	resampling "github.com/tphakala/go-audio-resampling"

	"pipelined.dev/neural"
	"pipelined.dev/neural/signal"
	"pipelined.dev/neural/wav"
)

var renderOpts struct {
	modelFlags
	in       string
	out      string
	bitDepth int
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Process a wav file offline",
	Long: `Process a wav file offline and write the result into a new wav file.

If the schema declares a sample rate that differs from the file, audio is
resampled to the model rate for processing and back to the file rate.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return render(cmd)
	},
}

func init() {
	renderOpts.register(renderCmd, true)
	renderCmd.Flags().StringVarP(&renderOpts.in, "in", "i", "", "input wav file (required)")
	renderCmd.Flags().StringVarP(&renderOpts.out, "out", "o", "", "output wav file (required)")
	renderCmd.Flags().IntVar(&renderOpts.bitDepth, "bit-depth", 0, "output bit depth, input bit depth if zero")
	rootCmd.AddCommand(renderCmd)
}

func render(cmd *cobra.Command) error {
	if renderOpts.in == "" || renderOpts.out == "" {
		return errors.New("input and output files are required, use --in and --out flags")
	}
	s, err := renderOpts.schema()
	if err != nil {
		return err
	}
	p, logger, err := renderOpts.processor(s)
	if err != nil {
		return err
	}
	defer p.Close()

	r, err := wav.Open(renderOpts.in)
	if err != nil {
		return err
	}
	defer r.Close()
	bitDepth := r.BitDepth()
	if renderOpts.bitDepth != 0 {
		bitDepth = signal.BitDepth(renderOpts.bitDepth)
	}
	source, err := readAll(r, renderOpts.block)
	if err != nil {
		return fmt.Errorf("read %s: %w", renderOpts.in, err)
	}

	sampleRate := r.SampleRate()
	if s.SampleRate > 0 && s.SampleRate != sampleRate {
		if source, err = resample(source, sampleRate, s.SampleRate); err != nil {
			return err
		}
		sampleRate = s.SampleRate
	}
	if err := p.Prepare(float64(sampleRate), renderOpts.block, source.NumChannels()); err != nil {
		return err
	}
	if err := p.Load(neuralLoader(renderOpts.config())); err != nil {
		return err
	}
	processAll(p, source, renderOpts.block)
	if sampleRate != r.SampleRate() {
		if source, err = resample(source, sampleRate, r.SampleRate()); err != nil {
			return err
		}
	}

	w, err := wav.Create(renderOpts.out, r.SampleRate(), source.NumChannels(), bitDepth)
	if err != nil {
		return err
	}
	if err := w.Write(source, source.Size()); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	logger.WithFields(statsFields(p.Stats())).Infof("rendered %d samples into %s", w.Samples(), renderOpts.out)
	return nil
}

// readAll reads the whole file.
func readAll(r *wav.Reader, blockSize int) (signal.Float32, error) {
	block := signal.Allocate(r.NumChannels(), blockSize)
	var result signal.Float32
	for {
		n, err := r.Read(block)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		result = result.Append(block.Slice(0, n))
	}
	if result == nil {
		return nil, errors.New("file is empty")
	}
	return result, nil
}

// processAll runs the signal through the processor in place. The last
// partial block is zero padded and the padding is dropped.
func processAll(p *neural.Processor, floats signal.Float32, blockSize int) {
	block := signal.Allocate(floats.NumChannels(), blockSize)
	for pos := 0; pos < floats.Size(); pos += blockSize {
		view := floats.Slice(pos, blockSize)
		n := view.Size()
		for c := range block {
			copy(block[c], view[c])
			clear(block[c][n:])
		}
		p.Process(block)
		for c := range view {
			copy(view[c], block[c][:n])
		}
	}
}

// resample converts every channel from one sample rate to another.
func resample(floats signal.Float32, from, to int) (signal.Float32, error) {
	result := make(signal.Float32, floats.NumChannels())
	size := -1
	for c := range floats {
		r, err := resampling.New(&resampling.Config{
			InputRate:  float64(from),
			OutputRate: float64(to),
			Channels:   1,
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create resampler: %w", err)
		}
		in := make([]float64, len(floats[c]))
		for i, v := range floats[c] {
			in[i] = float64(v)
		}
		processed, err := r.Process(in)
		if err != nil {
			return nil, fmt.Errorf("resample %d to %d: %w", from, to, err)
		}
		// flush reuses the output buffer
		out := append([]float64(nil), processed...)
		tail, err := r.Flush()
		if err != nil {
			return nil, fmt.Errorf("resample %d to %d: %w", from, to, err)
		}
		out = append(out, tail...)
		result[c] = make([]float32, len(out))
		for i, v := range out {
			result[c][i] = float32(v)
		}
		if size < 0 || len(out) < size {
			size = len(out)
		}
	}
	for c := range result {
		result[c] = result[c][:size]
	}
	return result, nil
}
