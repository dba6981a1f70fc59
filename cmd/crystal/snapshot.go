package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/legendaryobs/crystal/fx/crystalfx"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Export or import a snapshot of all crystals",
	Long: `Copy every crystal to or from the configured snapshot sink
(snapshot.sink: disk, s3 or gcs). Imported crystals keep their access
history; entries whose id does not match their content are skipped.

Examples:
  crystal snapshot export --config crystal.yaml
  CRYSTAL_SNAPSHOT_SINK=disk crystal snapshot import`,
}

var snapshotExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write all crystals to the snapshot sink",
	Args:  cobra.NoArgs,
	RunE:  func(cmd *cobra.Command, args []string) error { return runSnapshot(cmd, true) },
}

var snapshotImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Load crystals from the snapshot sink",
	Args:  cobra.NoArgs,
	RunE:  func(cmd *cobra.Command, args []string) error { return runSnapshot(cmd, false) },
}

func init() {
	snapshotCmd.AddCommand(snapshotExportCmd, snapshotImportCmd)
	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshot(cmd *cobra.Command, export bool) error {
	ctx := cmd.Context()

	sess, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	snap, err := crystalfx.NewSnapshotter(ctx, sess.cfg.Snapshot, sess.codec, sess.log)
	if err != nil {
		return err
	}
	if snap == nil {
		return errors.New("no snapshot sink configured; set snapshot.sink")
	}
	defer snap.Close()

	var (
		n    int
		verb string
	)
	if export {
		verb = "Exported"
		n, err = snap.Export(ctx, sess.store)
	} else {
		verb = "Imported"
		n, err = snap.Import(ctx, sess.store)
	}
	if err != nil {
		return fmt.Errorf("%s snapshot %s: %w", sess.cfg.Snapshot.Sink, snap.Blob(), err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %d crystals (%s)\n", verb, n, snap.Blob())
	return nil
}
