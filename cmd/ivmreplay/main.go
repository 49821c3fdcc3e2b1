// Command ivmreplay drives a JSON replay fixture (schemas + a scripted
// sequence of SourceChanges, see harness.Fixture) against freshly built
// sources and prints every resulting Change in the §6 wire shape,
// mirroring the teacher's cmd/octosql as the module's one outward-facing
// binary.
package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/orbitflow/ivmcore/harness"
	"github.com/orbitflow/ivmcore/row"
	"github.com/orbitflow/ivmcore/wire"
)

var quiet bool

var rootCmd = &cobra.Command{
	Use:   "ivmreplay <fixture.json>",
	Short: "Replay a scripted sequence of SourceChanges against a fixture's sources.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(args[0])
	},
}

func init() {
	rootCmd.Flags().BoolVar(&quiet, "quiet", false, "Suppress per-change wire JSON output; print only the final count.")
}

func run(fixturePath string) error {
	f, err := os.Open(fixturePath)
	if err != nil {
		return errors.Wrap(err, "ivmreplay: opening fixture")
	}
	defer f.Close()

	fixture, err := harness.DecodeFixture(f)
	if err != nil {
		return err
	}

	sources, err := harness.BuildSources(fixture.Sources)
	if err != nil {
		return err
	}
	defer sources.Close()

	snitch := harness.NewSnitch()
	for name, src := range sources {
		pk := src.Schema().PrimaryKey
		ordering := make(row.Ordering, len(pk))
		for i, col := range pk {
			ordering[i] = row.OrderPart{Column: col}
		}
		conn, err := src.Connect(ordering)
		if err != nil {
			return errors.Wrapf(err, "ivmreplay: connecting to source %q", name)
		}
		conn.SetOutput(snitch)
	}

	if err := harness.Replay(sources, fixture.Steps); err != nil {
		return errors.Wrap(err, "ivmreplay: replay failed")
	}

	changes := snitch.Changes()
	if !quiet {
		enc := wire.NewEncoder(os.Stdout)
		if err := enc.EncodeBatch(changes); err != nil {
			return errors.Wrap(err, "ivmreplay: encoding result")
		}
	}
	fmt.Printf("ivmreplay: %d steps, %d changes emitted\n", len(fixture.Steps), len(changes))
	return nil
}

func main() {
	cobra.CheckErr(rootCmd.Execute())
}
