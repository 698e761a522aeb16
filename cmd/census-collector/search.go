// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/census-collector/internal/search"
	"github.com/pdiddy/census-collector/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search the table APIs for candidate tables",
	Long: `Search expands a free-text query into probe terms, runs them against the
table-search APIs, qualifies bare table codes, and returns deduplicated
candidate tables. Results can be saved to a query file and replayed by the
collect command.`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().String("query", "", "free-text search query")
	searchCmd.Flags().String("dataset", "", "restrict to one dataset family (e.g. acs/acs1)")
	searchCmd.Flags().String("year", "", "restrict to one four-digit year")
	searchCmd.Flags().Int("max-results", 20, "maximum number of candidates to return")
	searchCmd.Flags().Duration("timeout", 0, "HTTP request timeout (default 60s)")
	searchCmd.Flags().Bool("json", false, "output candidates as JSON")
	searchCmd.Flags().String("save", "", "save the query and candidates to a YAML file")

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query, _ := cmd.Flags().GetString("query")
	if query == "" && len(args) > 0 {
		query = args[0]
	}
	if query == "" {
		return fmt.Errorf("provide a search query via --query")
	}

	dataset, _ := cmd.Flags().GetString("dataset")
	year, _ := cmd.Flags().GetString("year")
	maxResults, _ := cmd.Flags().GetInt("max-results")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	asJSON, _ := cmd.Flags().GetBool("json")
	savePath, _ := cmd.Flags().GetString("save")

	httpCfg := newHTTPConfig(timeout)
	searchCfg := types.SearchConfig{
		HTTPConfig: httpCfg,
		MaxResults: maxResults,
		Dataset:    stringSetting(dataset, "search.dataset"),
		Year:       year,
	}

	_, _, aggregator := newPipeline(httpCfg, searchCfg)

	out, err := aggregator.Search(cmd.Context(), query, os.Stderr)
	if err != nil {
		return err
	}

	if asJSON {
		if err := search.FormatJSON(out, os.Stdout); err != nil {
			return err
		}
	} else {
		search.FormatTable(out, os.Stdout)
	}

	if savePath != "" {
		if err := search.WriteQueryFile(savePath, query, searchCfg, out); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Saved query file: %s\n", savePath)
	}
	return nil
}
