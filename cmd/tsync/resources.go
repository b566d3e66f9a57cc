package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vjranagit/timesync/pkg/types"
)

var (
	resourceSelectors map[string]string

	resourcesCmd = &cobra.Command{
		Use:   "resources",
		Short: "List stored resources",
		Args:  cobra.NoArgs,
		RunE:  resourcesExec,
	}
)

func init() {
	resourcesCmd.Flags().StringToStringVarP(&resourceSelectors, "label", "l", nil, "only list resources with this label, repeatable")
}

func resourcesExec(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	resources, err := a.store.Resources(cmd.Context(), a.tenant, resourceSelectors)
	if err != nil {
		return err
	}
	return writeResources(cmd.OutOrStdout(), resources)
}

func writeResources(w io.Writer, resources []types.Resource) error {
	for _, res := range resources {
		keys := make([]string, 0, len(res.Labels))
		for k := range res.Labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, len(keys))
		for i, k := range keys {
			pairs[i] = k + "=" + res.Labels[k]
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			res.Path, res.Kind, res.Mode, strings.Join(pairs, ",")); err != nil {
			return err
		}
	}
	return nil
}
