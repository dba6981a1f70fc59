package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/legendaryobs/crystal"
)

var getCmd = &cobra.Command{
	Use:   "get [ID]",
	Short: "Read a crystal by id",
	Long: `Read a crystal by id. Each read counts as an access and raises the
crystal's efficiency score.

Examples:
  crystal get 3f2a9c81d04e
  crystal get 3f2a9c81d04e --json`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

var outputJSON bool

func init() {
	getCmd.Flags().BoolVar(&outputJSON, "json", false, "output result as JSON")
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	sess, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	rec, err := sess.store.Get(ctx, args[0])
	if err != nil {
		if errors.Is(err, crystal.ErrNotFound) {
			return fmt.Errorf("crystal %s not found", args[0])
		}
		return fmt.Errorf("get failed: %w", err)
	}

	if outputJSON {
		return printRecordJSON(cmd.OutOrStdout(), rec)
	}
	printRecordText(cmd.OutOrStdout(), rec)
	return nil
}

func printRecordText(w io.Writer, rec *crystal.Record) {
	fmt.Fprintf(w, "ID:         %s\n", rec.ID)
	fmt.Fprintf(w, "Category:   %s\n", rec.Category)
	fmt.Fprintf(w, "Pattern:    %s\n", rec.Pattern)
	if len(rec.Metadata) > 0 && string(rec.Metadata) != "null" {
		fmt.Fprintf(w, "Metadata:   %s\n", rec.Metadata)
	}
	fmt.Fprintf(w, "Created:    %s\n", rec.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Accessed:   %s\n", rec.LastAccessed.Format(time.RFC3339))
	fmt.Fprintf(w, "Accesses:   %d\n", rec.AccessCount)
	fmt.Fprintf(w, "Efficiency: %.1f\n", rec.EfficiencyScore)
}

func printRecordJSON(w io.Writer, rec *crystal.Record) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}
