package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pipelined.dev/neural/portaudio"
)

var liveOpts struct {
	modelFlags
	sampleRate int
	channels   int
	duration   time.Duration
}

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Process default input device into default output device",
	Long: `Process default input device into default output device until
interrupted or the duration passes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return live(ctx)
	},
}

func init() {
	liveOpts.register(liveCmd, true)
	liveCmd.Flags().IntVar(&liveOpts.sampleRate, "rate", 0, "device sample rate, schema rate or 48000 if zero")
	liveCmd.Flags().IntVarP(&liveOpts.channels, "channels", "c", 2, "number of channels")
	liveCmd.Flags().DurationVarP(&liveOpts.duration, "duration", "d", 0, "stop after duration, run until interrupted if zero")
	rootCmd.AddCommand(liveCmd)
}

func live(ctx context.Context) error {
	s, err := liveOpts.schema()
	if err != nil {
		return err
	}
	p, logger, err := liveOpts.processor(s)
	if err != nil {
		return err
	}
	defer p.Close()

	sampleRate := liveOpts.sampleRate
	if sampleRate == 0 {
		sampleRate = s.SampleRate
	}
	if sampleRate == 0 {
		sampleRate = 48000
	}
	stream, err := portaudio.Open(p, float64(sampleRate), liveOpts.block, liveOpts.channels)
	if err != nil {
		return err
	}
	if err := p.Load(neuralLoader(liveOpts.config())); err != nil {
		stream.Close()
		return err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return err
	}
	logger.Infof("live at %d Hz, %d channels, block %d", sampleRate, liveOpts.channels, liveOpts.block)

	if liveOpts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, liveOpts.duration)
		defer cancel()
	}
	<-ctx.Done()

	stats := p.Stats()
	if err := stream.Close(); err != nil {
		return err
	}
	logger.WithFields(statsFields(stats)).Info("stopped")
	return nil
}
