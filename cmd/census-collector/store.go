// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pdiddy/census-collector/internal/store"
	"github.com/pdiddy/census-collector/pkg/types"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect and export the record store",
}

var storeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List collected records",
	RunE:  runStoreList,
}

var storeErrorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "List error records",
	RunE:  runStoreErrors,
}

var storeExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the store to YAML and JSON files",
	RunE:  runStoreExport,
}

func init() {
	storeCmd.PersistentFlags().String("store-dir", "records", "base directory for the record store")

	storeListCmd.Flags().String("search", "", "full-text search over titles and descriptions")
	storeListCmd.Flags().String("survey", "", "filter by survey name")
	storeListCmd.Flags().String("year", "", "filter by reference year")
	storeListCmd.Flags().Int("limit", 50, "maximum rows to return")
	storeListCmd.Flags().Bool("json", false, "output records as JSON")

	storeErrorsCmd.Flags().Int("limit", 50, "maximum rows to return")

	storeCmd.AddCommand(storeListCmd, storeErrorsCmd, storeExportCmd)
	rootCmd.AddCommand(storeCmd)
}

func openStore(cmd *cobra.Command) (*store.Store, error) {
	storeDir, _ := cmd.Flags().GetString("store-dir")
	return store.NewStore(types.StoreConfig{StoreDir: storeDir})
}

func runStoreList(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	fullText, _ := cmd.Flags().GetString("search")
	survey, _ := cmd.Flags().GetString("survey")
	year, _ := cmd.Flags().GetString("year")
	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")

	records, err := st.Records(cmd.Context(), store.QueryOptions{
		FullText: fullText,
		Survey:   survey,
		Year:     year,
		Limit:    limit,
	})
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE ID\tYEAR\tSURVEY\tTITLE")
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", rec.TableID, rec.Year, rec.Survey, rec.Title)
	}
	tw.Flush()

	collected, failed, err := st.Counts(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("\n%d record(s) shown, %d in store, %d error(s)\n", len(records), collected, failed)
	return nil
}

func runStoreErrors(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	errs, err := st.Errors(cmd.Context(), limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE ID\tFETCHED AT\tERROR")
	for _, rec := range errs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", rec.TableID, rec.FetchedAt, rec.ErrorMessage)
	}
	tw.Flush()
	return nil
}

func runStoreExport(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	yamlPath, jsonPath, err := st.ExportFiles(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Exported %s\n", yamlPath)
	fmt.Printf("Exported %s\n", jsonPath)
	return nil
}
