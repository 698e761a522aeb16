// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/census-collector/internal/resolve"
	"github.com/pdiddy/census-collector/pkg/types"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [bare code]",
	Short: "Qualify a bare table code into a full identifier",
	Long: `Resolve probes dataset/year combinations against the metadata endpoint and
prints the first fully-qualified identifier that exists upstream (e.g.
B01001 -> ACSDT1Y2021.B01001).`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().String("dataset", "", "restrict probing to one dataset family (e.g. acs/acs1)")
	resolveCmd.Flags().String("year", "", "try this four-digit year first")
	resolveCmd.Flags().Duration("timeout", 0, "HTTP request timeout (default 60s)")

	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	dataset, _ := cmd.Flags().GetString("dataset")
	year, _ := cmd.Flags().GetString("year")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	httpCfg := newHTTPConfig(timeout)
	_, resolver, _ := newPipeline(httpCfg, types.SearchConfig{HTTPConfig: httpCfg})

	id, err := resolver.Resolve(cmd.Context(), args[0], dataset, year)
	if err != nil {
		if errors.Is(err, resolve.ErrNotFound) {
			return fmt.Errorf("no dataset/year combination resolved for %q", args[0])
		}
		return err
	}

	fmt.Println(id.String())
	return nil
}
