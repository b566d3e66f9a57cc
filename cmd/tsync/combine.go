package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/vjranagit/timesync/pkg/combine"
	"github.com/vjranagit/timesync/pkg/timeseries"
)

type combineFlags struct {
	window timeRange
	fn     string
	kind   string
	mode   string
	now    int64
}

var (
	cFlags combineFlags

	combineCmd = &cobra.Command{
		Use:   "combine path [path...]",
		Short: "Reduce several resources into one derived series",
		Long: "Combine evaluates a reduce function over the synchronized values of the given resources. " +
			"Functions: sum, avg, min, max, first, concat",
		Args: cobra.MinimumNArgs(1),
		RunE: combineExec,
		Example: `# Total flow of two pumps, holding the last reading up to now:
tsync combine plant/pump1/flow plant/pump2/flow --func sum --now 1700000000000`,
	}
)

func init() {
	flags := combineCmd.Flags()
	cFlags.window.register(flags)
	flags.StringVarP(&cFlags.fn, "func", "f", "sum", "reduce function")
	flags.StringVarP(&cFlags.kind, "kind", "k", "float64", "output kind: float32, float64, int32, int64 or string")
	flags.StringVar(&cFlags.mode, "output-mode", "", "interpolation mode reported by the derived series")
	flags.Int64Var(&cFlags.now, "now", 0, "hold each series' last sample until this timestamp")
}

func combineExec(cmd *cobra.Command, args []string) error {
	if err := cFlags.window.validate(); err != nil {
		return err
	}
	reduce, ok := combine.ReduceFuncByName(cFlags.fn)
	if !ok {
		return fmt.Errorf("unknown reduce function %q", cFlags.fn)
	}
	kind, err := timeseries.ParseKind(cFlags.kind)
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	opts := []combine.Option{combine.WithIgnoreGaps(a.cfg.Engine.IgnoreGaps)}
	if cFlags.mode != "" {
		mode, err := timeseries.ParseInterpolationMode(cFlags.mode)
		if err != nil {
			return err
		}
		opts = append(opts, combine.WithOutputMode(mode))
	}
	if cmd.Flags().Changed("now") {
		opts = append(opts, combine.WithNow(cFlags.now))
	}

	series, err := a.loadSeries(cmd.Context(), args, cFlags.window.start, cFlags.window.end)
	if err != nil {
		return err
	}
	fs, err := combine.NewFunctionSeries(series, kind, reduce, opts...)
	if err != nil {
		return err
	}
	return writeSeries(cmd.OutOrStdout(), fs, cFlags.window)
}

// writeSeries prints every sample of s within the window, one per row.
func writeSeries(w io.Writer, s timeseries.Series, window timeRange) error {
	it := s.Iterator(window.start, window.end)
	for it.Next() {
		cur := it.Current()
		if err := writeRow(w, cur.Timestamp, []string{formatSample(cur)}); err != nil {
			return err
		}
	}
	return it.Err()
}
