package cmd

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"github.com/synfig/synfig-vfs/container"
	"github.com/synfig/synfig-vfs/vfs"
)

// resolveVersion maps a 1-based version number as printed by history to its
// record. Negative numbers count back from the newest version.
func resolveVersion(path, arg string) (container.HistoryRecord, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return container.HistoryRecord{}, fmt.Errorf("invalid version %q", arg)
	}
	records, err := container.ReadHistory(osFs, path)
	if err != nil {
		return container.HistoryRecord{}, err
	}
	if n < 0 {
		n += len(records) + 1
	}
	if n < 1 || n > len(records) {
		return container.HistoryRecord{}, fmt.Errorf("version %s of %s: %w", arg, path, vfs.ErrNotFound)
	}
	return records[n-1], nil
}

// NewHistoryCmd creates the history subcommand.
func NewHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history ARCHIVE",
		Short: "List the versions stored in a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := container.ReadHistory(osFs, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-8s %12s %12s\n", "VERSION", "SIZE", "PREVIOUS")
			for i, r := range records {
				fmt.Fprintf(out, "%-8d %12d %12d\n", i+1, r.StorageSize, r.PrevStorageSize)
			}
			return nil
		},
	}
}

// NewRollbackCmd creates the rollback subcommand.
func NewRollbackCmd() *cobra.Command {
	var (
		inPlace bool
		output  string
	)

	cmd := &cobra.Command{
		Use:   "rollback ARCHIVE VERSION",
		Short: "Restore an older version of a container",
		Long: `Restore an older version of a container.

By default the old version is saved again as the newest one, so the versions
after it stay in the history. With --in-place the container is truncated to
the old version instead. With --output the old version is written to a new
file and the container is left alone.

VERSION is the number printed by history; negative numbers count back from
the newest version.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if inPlace && output != "" {
				return errors.New("--in-place and --output are mutually exclusive")
			}
			record, err := resolveVersion(args[0], args[1])
			if err != nil {
				return err
			}
			if output != "" {
				return container.ExportVersion(osFs, args[0], record.StorageSize, output)
			}
			return container.Rollback(osFs, args[0], record.StorageSize, inPlace)
		},
	}

	cmd.Flags().BoolVar(&inPlace, "in-place", false, "Truncate the container to the version")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the version to a new file instead")

	return cmd
}

// versionResult is the outcome of verifying one version.
type versionResult struct {
	version int
	record  container.HistoryRecord
	files   int
	err     error
}

func verifyVersion(path string, version int, record container.HistoryRecord) versionResult {
	res := versionResult{version: version, record: record}
	c := container.New(container.WithFs(osFs), container.ReadOnly())
	if err := c.OpenFromHistory(path, record.StorageSize); err != nil {
		res.err = err
		return res
	}
	defer c.Close()

	for _, e := range c.Entries() {
		if !e.IsDirectory {
			res.files++
		}
	}
	res.err = c.Verify()
	return res
}

// NewVerifyCmd creates the verify subcommand.
func NewVerifyCmd() *cobra.Command {
	var (
		latest  bool
		workers int
	)

	cmd := &cobra.Command{
		Use:   "verify ARCHIVE",
		Short: "Check the checksums of every version of a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := container.ReadHistory(osFs, args[0])
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return fmt.Errorf("%s: %w", args[0], vfs.ErrCorrupt)
			}
			first := 0
			if latest {
				first = len(records) - 1
			}
			if workers < 1 {
				workers = 1
			}

			results := make([]versionResult, len(records)-first)
			p := pool.New().WithMaxGoroutines(workers)
			for i, r := range records[first:] {
				p.Go(func() {
					results[i] = verifyVersion(args[0], first+i+1, r)
				})
			}
			p.Wait()

			out := cmd.OutOrStdout()
			var failed int
			for _, res := range results {
				if res.err != nil {
					failed++
					fmt.Fprintf(out, "version %d (%d bytes): FAILED: %v\n", res.version, res.record.StorageSize, res.err)
					continue
				}
				fmt.Fprintf(out, "version %d (%d bytes): %d files OK\n", res.version, res.record.StorageSize, res.files)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d versions failed verification: %w", failed, len(results), vfs.ErrCorrupt)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&latest, "latest", false, "Only verify the newest version")
	cmd.Flags().IntVarP(&workers, "workers", "w", runtime.NumCPU(), "Number of versions verified concurrently")

	return cmd
}
