package main

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/vjranagit/timesync/pkg/multiseries"
	"github.com/vjranagit/timesync/pkg/timeseries"
)

// timeRange is the [start, end) window shared by the read commands.
type timeRange struct {
	start int64
	end   int64
}

func (r *timeRange) register(flags *pflag.FlagSet) {
	flags.Int64Var(&r.start, "start", math.MinInt64, "first timestamp, inclusive")
	flags.Int64Var(&r.end, "end", math.MaxInt64, "last timestamp, exclusive")
}

func (r *timeRange) validate() error {
	if r.end <= r.start {
		return fmt.Errorf("empty range: end %d is not after start %d", r.end, r.start)
	}
	return nil
}

type syncFlags struct {
	window timeRange
	rulers []int
}

var (
	sFlags syncFlags

	syncCmd = &cobra.Command{
		Use:   "sync path [path...]",
		Short: "Print several resources on a common timeline",
		Long: "Sync merges the given resources into one row per distinct timestamp. " +
			"Values interpolated for a series are shown in parentheses, bad samples end with '!'",
		Args: cobra.MinimumNArgs(1),
		RunE: syncExec,
		Example: `# Align temperature and pressure, emitting only rows where pressure was sampled:
tsync sync plant/boiler/temperature plant/boiler/pressure --ruler 1`,
	}
)

func init() {
	flags := syncCmd.Flags()
	sFlags.window.register(flags)
	flags.IntSliceVar(&sFlags.rulers, "ruler", nil, "indices of the series that drive the output timeline")
}

func syncExec(cmd *cobra.Command, args []string) error {
	if err := sFlags.window.validate(); err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	series, err := a.loadSeries(cmd.Context(), args, sFlags.window.start, sFlags.window.end)
	if err != nil {
		return err
	}

	it, err := newSyncIterator(series, sFlags.window, sFlags.rulers, a.cfg.Engine.HistoryDepth)
	if err != nil {
		return err
	}
	return writeSync(cmd.OutOrStdout(), it)
}

func newSyncIterator(series []timeseries.Series, window timeRange, rulers []int, depth int) (*multiseries.MergeIterator, error) {
	lower, upper := boundaries(series, window.start, window.end)
	b := multiseries.NewBuilder(iterators(series, window.start, window.end)).
		SetModes(modesOf(series)).
		SetLowerBoundaries(lower).
		SetUpperBoundaries(upper).
		SetHistoryDepth(depth).
		StoreNeighbours(true)
	if len(rulers) > 0 {
		b = b.SetStepRuler(rulers...)
	}
	return b.Build()
}

// writeSync prints one row per data point: the timestamp followed by one
// cell per series.
func writeSync(w io.Writer, it *multiseries.MergeIterator) error {
	cells := make([]string, it.Size())
	for it.HasNext() {
		dp, err := it.Next()
		if err != nil {
			if errors.Is(err, timeseries.ErrExhausted) {
				break
			}
			return err
		}
		for idx := range cells {
			cells[idx] = syncCell(dp, idx)
		}
		if err := writeRow(w, dp.Timestamp(), cells); err != nil {
			return err
		}
	}
	return it.Err()
}

func syncCell(dp *multiseries.DataPoint, idx int) string {
	if s, ok := dp.Element(idx); ok {
		return formatSample(s)
	}
	s, ok, err := dp.Interpolated(idx)
	if err != nil || !ok {
		return "-"
	}
	return "(" + formatSample(s) + ")"
}
