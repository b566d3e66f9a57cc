package main

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/spf13/cobra"
	"github.com/vjranagit/timesync/pkg/combine"
	"github.com/vjranagit/timesync/pkg/multiseries"
	"github.com/vjranagit/timesync/pkg/timeseries"
)

type integrateFlags struct {
	window     timeRange
	average    bool
	cumulative bool
}

var (
	inFlags integrateFlags

	integrateCmd = &cobra.Command{
		Use:   "integrate path [path...]",
		Short: "Print running integrals or interval averages",
		Long: "Integrate merges the given resources and prints, for each synchronized timestamp, " +
			"the integral of every series since the first timestamp, or with --average the mean " +
			"over the interval since the previous timestamp. " +
			"With --cumulative each resource is integrated on its own from --start",
		Args: cobra.MinimumNArgs(1),
		RunE: integrateExec,
		Example: `# Mean power between consecutive samples:
tsync integrate plant/meter/power --average

# Energy accumulated since a timestamp:
tsync integrate plant/meter/power --cumulative --start 1700000000000`,
	}
)

func init() {
	flags := integrateCmd.Flags()
	inFlags.window.register(flags)
	flags.BoolVar(&inFlags.average, "average", false, "print the mean over each interval instead of the running integral")
	flags.BoolVar(&inFlags.cumulative, "cumulative", false, "print the running integral from --start per resource")
}

func integrateExec(cmd *cobra.Command, args []string) error {
	if err := inFlags.window.validate(); err != nil {
		return err
	}
	if inFlags.cumulative && inFlags.window.start == math.MinInt64 {
		return fmt.Errorf("--cumulative needs an explicit --start")
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	series, err := a.loadSeries(cmd.Context(), args, inFlags.window.start, inFlags.window.end)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if inFlags.cumulative {
		for i, s := range series {
			if _, err := fmt.Fprintf(out, "# %s\n", args[i]); err != nil {
				return err
			}
			is := combine.NewIntegralSeries(s, inFlags.window.start)
			if err := writeSeries(out, is, inFlags.window); err != nil {
				return err
			}
		}
		return nil
	}

	it, err := newIntegrateIterator(series, inFlags.window, inFlags.average)
	if err != nil {
		return err
	}
	return writeAggregates(out, it)
}

func newIntegrateIterator(series []timeseries.Series, window timeRange, average bool) (*multiseries.MergeIterator, error) {
	lower, upper := boundaries(series, window.start, window.end)
	return multiseries.NewBuilder(iterators(series, window.start, window.end)).
		SetModes(modesOf(series)).
		SetLowerBoundaries(lower).
		SetUpperBoundaries(upper).
		DoIntegrate(average).
		Build()
}

func writeAggregates(w io.Writer, it *multiseries.MergeIterator) error {
	cells := make([]string, it.Size())
	for it.HasNext() {
		dp, err := it.Next()
		if err != nil {
			if errors.Is(err, timeseries.ErrExhausted) {
				break
			}
			return err
		}
		agg, err := dp.Aggregated()
		if err != nil {
			return err
		}
		for idx := range cells {
			if s, ok := agg[idx]; ok {
				cells[idx] = formatSample(s)
			} else {
				cells[idx] = "-"
			}
		}
		if err := writeRow(w, dp.Timestamp(), cells); err != nil {
			return err
		}
	}
	return it.Err()
}
