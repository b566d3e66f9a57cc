package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/vjranagit/timesync/pkg/storage"
	"github.com/vjranagit/timesync/pkg/timeseries"
	"github.com/vjranagit/timesync/pkg/types"
	"go.uber.org/zap"
)

type ingestFlags struct {
	path      string
	mode      string
	kind      string
	labels    map[string]string
	batchSize int
}

var (
	iFlags ingestFlags

	ingestCmd = &cobra.Command{
		Use:   "ingest [file]",
		Short: "Write CSV samples into a resource",
		Long:  "Ingest reads timestamp,value[,quality] records from a file or stdin and stores them under one resource path",
		Args:  cobra.MaximumNArgs(1),
		RunE:  ingestExec,
		Example: `# Store boiler temperatures, interpolated linearly:
tsync ingest --path plant/boiler/temperature --kind float64 --mode linear --label unit=C temps.csv`,
	}
)

func init() {
	flags := ingestCmd.Flags()
	flags.StringVarP(&iFlags.path, "path", "p", "", "resource path")
	flags.StringVarP(&iFlags.mode, "mode", "m", "linear", "interpolation mode: none, steps, linear or nearest")
	flags.StringVarP(&iFlags.kind, "kind", "k", "float64", "value kind: float32, float64, int32, int64, string or bool")
	flags.StringToStringVarP(&iFlags.labels, "label", "l", nil, "resource label as key=value, repeatable")
	flags.IntVar(&iFlags.batchSize, "batch-size", 1000, "samples buffered before each write")
	ingestCmd.MarkFlagRequired("path")
}

func ingestExec(cmd *cobra.Command, args []string) error {
	kind, err := timeseries.ParseKind(iFlags.kind)
	if err != nil {
		return err
	}
	mode, err := timeseries.ParseInterpolationMode(iFlags.mode)
	if err != nil {
		return err
	}

	in := cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	res := types.Resource{Path: iFlags.path, Labels: iFlags.labels, Mode: mode, Kind: kind}
	n, err := ingest(cmd.Context(), a.store, a.logger, a.tenant, res, in, iFlags.batchSize)
	if err != nil {
		return err
	}
	a.logger.Info("ingest complete",
		zap.String("path", res.Path),
		zap.Int("samples", n))
	return nil
}

// ingest streams samples from in into the store and returns how many were
// written.
func ingest(
	ctx context.Context,
	store storage.Storage,
	logger *zap.Logger,
	tenant string,
	res types.Resource,
	in io.Reader,
	batchSize int,
) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	bw := storage.NewBatchWriter(store, logger, batchSize, 0)
	sr := newSampleReader(in, res.Kind)

	n := 0
	for {
		s, err := sr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			bw.Close(ctx)
			return n, err
		}
		if err := bw.Add(ctx, tenant, res, s); err != nil {
			bw.Close(ctx)
			return n, err
		}
		n++
	}
	if err := bw.Close(ctx); err != nil {
		return n, fmt.Errorf("failed to flush samples: %w", err)
	}
	return n, nil
}
