package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

type globalFlags struct {
	configPath string
	tenant     string
	logLevel   string
}

var (
	gFlags globalFlags

	rootCmd = &cobra.Command{
		Use:          "tsync",
		Short:        "Synchronize and aggregate stored time series",
		Long:         "tsync stores typed time series and merges several of them onto a common timeline",
		Version:      version,
		SilenceUsage: true,
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&gFlags.configPath, "config", "c", "", "path to a YAML configuration file")
	flags.StringVarP(&gFlags.tenant, "tenant", "t", "", "tenant id, overrides the configured one")
	flags.StringVar(&gFlags.logLevel, "log-level", "", "log level, overrides the configured one")

	rootCmd.AddCommand(
		ingestCmd,
		syncCmd,
		combineCmd,
		integrateCmd,
		resourcesCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
