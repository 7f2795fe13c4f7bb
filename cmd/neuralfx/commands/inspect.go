package commands

import (
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"pipelined.dev/neural/ort"
	"pipelined.dev/neural/param"
	"pipelined.dev/neural/schema"
)

var inspectOpts struct {
	modelFlags
	check bool
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print and validate a model schema",
	Long: `Print the schema as yaml manifest together with conditioning parameters.

With --check the model file is opened and its inputs and outputs are
validated against the schema.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return inspect(cmd)
	},
}

func init() {
	inspectOpts.register(inspectCmd, false)
	inspectCmd.Flags().BoolVar(&inspectOpts.check, "check", false, "validate model file against the schema")
	rootCmd.AddCommand(inspectCmd)
}

func inspect(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	s, err := inspectOpts.schema()
	if err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return err
	}
	data, err := schema.Marshal(s)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s", data)

	fmt.Fprintln(out, "# parameters")
	for _, p := range param.ForSchema(s).All() {
		fmt.Fprintf(out, "#   %s (%s): default %v, step %v\n", p.Name, p.Label, p.Default, p.Step)
	}
	if verbose {
		spew.Fdump(out, s)
	}

	if !inspectOpts.check && inspectOpts.model == "" {
		return nil
	}
	m, err := ort.Open(s, inspectOpts.config())
	if err != nil {
		return err
	}
	defer m.Close()
	fmt.Fprintf(out, "# model %s matches schema %s\n", m.Path(), s.Name)
	if verbose {
		inputs, outputs := m.IO()
		spew.Fdump(out, inputs, outputs)
	}
	return nil
}
