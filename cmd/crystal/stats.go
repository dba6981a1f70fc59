package main

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/legendaryobs/crystal"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show statistics about the crystal store",
	Long: `Display statistics about the crystal store including:
- Backend in use and whether it is durable
- Storage footprint
- Crystals per category
- Mean access count and efficiency score`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

type categoryStats struct {
	name       string
	count      int
	accesses   int64
	efficiency float64
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	sess, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	byCategory := make(map[string]*categoryStats)
	var total categoryStats
	for rec, err := range sess.store.Records(ctx) {
		if err != nil {
			return fmt.Errorf("scanning crystals: %w", err)
		}
		cs, ok := byCategory[rec.Category]
		if !ok {
			cs = &categoryStats{name: rec.Category}
			byCategory[rec.Category] = cs
		}
		for _, s := range []*categoryStats{cs, &total} {
			s.count++
			s.accesses += rec.AccessCount
			s.efficiency += rec.EfficiencyScore
		}
	}

	footprint, err := sess.store.Footprint(ctx)
	if err != nil {
		return fmt.Errorf("measuring footprint: %w", err)
	}

	out := cmd.OutOrStdout()
	st := sess.store.Status()
	durability := "durable"
	if st.Ephemeral {
		durability = "in-memory"
	}
	if st.Degraded {
		durability += ", degraded"
	}

	fmt.Fprintf(out, "Backend:    %s (%s)\n", st.Backend, durability)
	fmt.Fprintf(out, "Codec:      %s\n", sess.codec.Name())
	fmt.Fprintf(out, "Footprint:  %s\n", formatBytes(footprint))
	fmt.Fprintf(out, "Crystals:   %d\n", total.count)

	if total.count == 0 {
		return nil
	}
	mean := total.efficiency / float64(total.count)
	fmt.Fprintf(out, "Accesses:   %d\n", total.accesses)
	fmt.Fprintf(out, "Efficiency: %.1f mean (%s)\n", mean, crystal.GradeOf(mean))
	fmt.Fprintln(out)

	rows := make([]*categoryStats, 0, len(byCategory))
	for _, cs := range byCategory {
		rows = append(rows, cs)
	}
	slices.SortFunc(rows, func(a, b *categoryStats) int {
		return cmp.Or(cmp.Compare(b.count, a.count), cmp.Compare(a.name, b.name))
	})

	fmt.Fprintf(out, "%-12s %8s %9s %10s\n", "CATEGORY", "CRYSTALS", "ACCESSES", "EFFICIENCY")
	for _, cs := range rows {
		fmt.Fprintf(out, "%-12s %8d %9d %10.1f\n", cs.name, cs.count, cs.accesses, cs.efficiency/float64(cs.count))
	}
	return nil
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
