package commands

import (
	"github.com/spf13/cobra"

	"pipelined.dev/neural/log"
)

var (
	// Global flags
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "neuralfx",
	Short: "Run recurrent neural audio models",
	Long: `neuralfx - process audio with recurrent neural models in fixed size blocks.

Models are described by a schema: a built-in preset or a yaml manifest.
Built-in presets: cl1b, hybrid, piano.

The onnxruntime shared library is taken from --lib or ONNXRUNTIME_LIB.
Models are looked up by path, then in NEURAL_MODEL_DIR, then in Resources
directory next to the executable directory.

Examples:
  # Render a file with the compressor model
  neuralfx render --preset cl1b --in dry.wav --out wet.wav --param threshold=0.4

  # Print a schema as yaml manifest
  neuralfx inspect --preset hybrid`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetDebug(true)
		}
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
