// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/census-collector/internal/collect"
	"github.com/pdiddy/census-collector/internal/resolve"
	"github.com/pdiddy/census-collector/internal/search"
	"github.com/pdiddy/census-collector/internal/store"
	"github.com/pdiddy/census-collector/pkg/types"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect table metadata and data into the record store",
	Long: `Collect turns a table identifier, a free-text query, or a saved query file
into normalized table records. Identifiers are resolved, metadata and data are
fetched in bounded-concurrency batches, and every identifier produces exactly
one record (success or error) in the SQLite record store.`,
	RunE: runCollect,
}

func init() {
	collectCmd.Flags().String("table", "", "bare or fully-qualified table identifier (mutually exclusive with --query)")
	collectCmd.Flags().String("query", "", "free-text search query (mutually exclusive with --table)")
	collectCmd.Flags().String("from-file", "", "replay candidates from a saved query file")
	collectCmd.Flags().String("dataset", "", "restrict to one dataset family (e.g. acs/acs1)")
	collectCmd.Flags().String("geography", "", "advisory geography-level filter forwarded to the data endpoint")
	collectCmd.Flags().String("year", "", "four-digit year, prioritized in resolution and filtering")
	collectCmd.Flags().Int("max-items", 0, "hard cap on emitted records (0 = unlimited)")
	collectCmd.Flags().Int("batch-size", 0, "identifiers fetched concurrently per batch (default 20)")
	collectCmd.Flags().Duration("batch-delay", 0, "delay between batches (default 1s)")
	collectCmd.Flags().Duration("timeout", 0, "HTTP request timeout (default 60s)")
	collectCmd.Flags().Int("size-budget", 0, "maximum serialized record size in bytes (default 9 MiB)")
	collectCmd.Flags().Bool("skip-data", false, "collect metadata only")
	collectCmd.Flags().String("store-dir", "records", "base directory for the record store")

	rootCmd.AddCommand(collectCmd)
}

func runCollect(cmd *cobra.Command, args []string) error {
	table, _ := cmd.Flags().GetString("table")
	query, _ := cmd.Flags().GetString("query")
	fromFile, _ := cmd.Flags().GetString("from-file")

	inputs := 0
	for _, v := range []string{table, query, fromFile} {
		if v != "" {
			inputs++
		}
	}
	if inputs == 0 {
		return fmt.Errorf("provide a table identifier (--table), a search query (--query), or a query file (--from-file)")
	}
	if inputs > 1 {
		return fmt.Errorf("--table, --query, and --from-file are mutually exclusive")
	}

	dataset, _ := cmd.Flags().GetString("dataset")
	geography, _ := cmd.Flags().GetString("geography")
	year, _ := cmd.Flags().GetString("year")
	maxItems, _ := cmd.Flags().GetInt("max-items")
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	batchDelay, _ := cmd.Flags().GetDuration("batch-delay")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	sizeBudget, _ := cmd.Flags().GetInt("size-budget")
	skipData, _ := cmd.Flags().GetBool("skip-data")
	storeDir, _ := cmd.Flags().GetString("store-dir")

	if batchDelay == 0 {
		batchDelay = defaultBatchDelay
	}
	if maxItems == 0 {
		maxItems = viper.GetInt("collection.max_items")
	}

	httpCfg := newHTTPConfig(timeout)
	searchCfg := types.SearchConfig{
		HTTPConfig: httpCfg,
		MaxResults: maxItems,
		Dataset:    stringSetting(dataset, "search.dataset"),
		Year:       year,
	}
	collectCfg := types.CollectionConfig{
		HTTPConfig: httpCfg,
		BatchSize:  batchSize,
		BatchDelay: batchDelay,
		MaxItems:   maxItems,
		SizeBudget: sizeBudget,
		Geography:  stringSetting(geography, "collection.geography"),
		SkipData:   skipData,
	}

	client, resolver, aggregator := newPipeline(httpCfg, searchCfg)

	ctx := cmd.Context()
	var candidates []collect.Candidate

	switch {
	case table != "":
		cand, err := directCandidate(cmd, resolver, table, searchCfg)
		if err != nil {
			return err
		}
		cand.Year = year
		candidates = []collect.Candidate{cand}

	case fromFile != "":
		qf, err := search.ReadQueryFile(fromFile)
		if err != nil {
			return err
		}
		candidates = entityCandidates(qf.Candidates, year)
		fmt.Fprintf(os.Stderr, "Replaying %d candidates from %s\n", len(candidates), fromFile)

	default:
		out, err := aggregator.Search(ctx, query, os.Stderr)
		if err != nil {
			return err
		}
		candidates = entityCandidates(out.Candidates, year)
		fmt.Fprintf(os.Stderr, "Search found %d candidate tables\n", len(candidates))
	}

	st, err := store.NewStore(types.StoreConfig{StoreDir: storeDir})
	if err != nil {
		return err
	}
	defer st.Close()

	scheduler := &collect.Scheduler{Client: client, Cfg: collectCfg}
	run := collect.NewRun()

	started := time.Now()
	summary, err := scheduler.Collect(ctx, run, candidates, st, os.Stdout)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Run finished in %s (%d records emitted)\n",
		time.Since(started).Round(time.Millisecond), run.Emitted())

	if summary.Failed > 0 {
		fmt.Fprintf(os.Stderr, "warning: %d identifier(s) produced error records\n", summary.Failed)
	}
	return nil
}

// directCandidate turns a --table argument into a collection candidate:
// already-qualified identifiers pass through, bare codes go through the
// resolver, and an unresolvable identifier is carried raw as a last
// resort so the failure surfaces as an error record rather than silence.
func directCandidate(cmd *cobra.Command, resolver *resolve.Resolver, table string, cfg types.SearchConfig) (collect.Candidate, error) {
	if id, err := types.ParseTableID(table); err == nil {
		return collect.Candidate{ID: id}, nil
	}

	id, err := resolver.Resolve(cmd.Context(), table, cfg.Dataset, cfg.Year)
	if err != nil {
		if errors.Is(err, resolve.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "warning: %q did not resolve, trying it as-is\n", table)
			return collect.Candidate{ID: types.RawTableID(table)}, nil
		}
		return collect.Candidate{}, err
	}
	fmt.Fprintf(os.Stderr, "Resolved %s -> %s\n", table, id)
	return collect.Candidate{ID: id}, nil
}

// entityCandidates converts qualified search entities into collection
// candidates, keeping the entity for fallback metadata.
func entityCandidates(entities []types.CandidateEntity, year string) []collect.Candidate {
	var candidates []collect.Candidate
	for i := range entities {
		entity := entities[i]
		id, err := types.ParseTableID(entity.TableID)
		if err != nil {
			continue
		}
		candidates = append(candidates, collect.Candidate{ID: id, Entity: &entity, Year: year})
	}
	return candidates
}
