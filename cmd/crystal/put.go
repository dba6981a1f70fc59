package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/legendaryobs/crystal"
)

var putCmd = &cobra.Command{
	Use:   "put [CATEGORY] [PATTERN]",
	Short: "Store a crystal",
	Long: `Store a pattern under the given category and print its id.

PATTERN is parsed as JSON; anything that is not valid JSON is stored as a
string. Storing the same category and pattern again refreshes the existing
crystal and prints the same id.

Examples:
  crystal put hyperfocus '{"task":"refactor","minutes":90}'
  crystal put debug "nil map write in handler" --metadata '{"repo":"api"}'`,
	Args: cobra.ExactArgs(2),
	RunE: runPut,
}

var putMetadata string

func init() {
	putCmd.Flags().StringVar(&putMetadata, "metadata", "", "metadata as a JSON object")
	rootCmd.AddCommand(putCmd)
}

func runPut(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var metadata map[string]any
	if putMetadata != "" {
		if err := json.Unmarshal([]byte(putMetadata), &metadata); err != nil {
			return fmt.Errorf("parsing --metadata: %w", err)
		}
	}

	sess, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	id, err := sess.store.Put(ctx, args[0], parsePattern(args[1]), metadata)
	if err != nil {
		if errors.Is(err, crystal.ErrMalformedInput) {
			return fmt.Errorf("pattern cannot be stored: %w", err)
		}
		return fmt.Errorf("put failed: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

// parsePattern decodes arg as JSON, falling back to the raw string.
func parsePattern(arg string) any {
	var v any
	if err := json.Unmarshal([]byte(arg), &v); err != nil {
		return arg
	}
	return v
}
