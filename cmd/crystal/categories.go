package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/legendaryobs/crystal"
)

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the known crystal categories",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, c := range crystal.Categories() {
			fmt.Fprintf(cmd.OutOrStdout(), "%-12s %s\n", c.Name, c.Description)
		}
	},
}

func init() {
	rootCmd.AddCommand(categoriesCmd)
}
