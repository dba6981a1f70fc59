package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/legendaryobs/crystal"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search stored crystals",
	Long: `Search crystals by category and by a case-insensitive substring of the
pattern. Searches scan at most twice --limit keys and do not count as
accesses.

Examples:
  crystal search --category workflow
  crystal search --pattern deploy --limit 5 --json`,
	Args: cobra.NoArgs,
	RunE: runSearch,
}

var (
	searchCategory string
	searchPattern  string
	searchLimit    int
	searchJSON     bool
)

func init() {
	searchCmd.Flags().StringVar(&searchCategory, "category", "", "only return crystals of this category")
	searchCmd.Flags().StringVar(&searchPattern, "pattern", "", "only return crystals whose pattern contains this text")
	searchCmd.Flags().IntVar(&searchLimit, "limit", crystal.DefaultSearchLimit, "maximum number of results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON lines")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	sess, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)

	q := crystal.Query{Category: searchCategory, Pattern: searchPattern, Limit: searchLimit}
	var found int
	for rec, err := range sess.store.Search(ctx, q) {
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		found++
		if searchJSON {
			if err := enc.Encode(rec); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintf(out, "%s  %-11s  %s\n", rec.ID, rec.Category, rec.Pattern)
	}

	if !searchJSON && found == 0 {
		fmt.Fprintln(out, "No crystals found.")
	}
	return nil
}
