package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/scanhelper/scanhelper/internal/identity"
	"github.com/scanhelper/scanhelper/internal/store"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newHistoryCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Manage saved solutions",
		Long: `Lists, exports and imports the solutions saved for this device.

The device id is kept in the data directory (SCANHELPER_DATA_DIR) and the
solutions in SQLite (SCANHELPER_DB_PATH).`,
	}

	cmd.AddCommand(newHistoryListCmd(root))
	cmd.AddCommand(newHistoryExportCmd(root))
	cmd.AddCommand(newHistoryImportCmd(root))
	cmd.AddCommand(newHistoryDeleteCmd(root))

	return cmd
}

// openHistory returns the configured store and this machine's device id.
func openHistory(root *rootOptions) (*store.SQLiteStore, identity.DeviceID, error) {
	cfg, err := loadConfig(root)
	if err != nil {
		return nil, "", err
	}
	deviceID, err := identity.LoadOrCreate(cfg.DataDir)
	if err != nil {
		return nil, "", err
	}
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return nil, "", err
	}
	return repo, deviceID, nil
}

func newHistoryListCmd(root *rootOptions) *cobra.Command {
	var (
		format     string
		bookmarked bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print saved solutions, newest first",
		Example: `  scanhelper history list
  scanhelper history list --bookmarked --format json --limit 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, deviceID, err := openHistory(root)
			if err != nil {
				return err
			}
			defer repo.Close()

			records, err := repo.List(cmd.Context(), deviceID, store.ListOptions{BookmarkedOnly: bookmarked, Limit: limit})
			if err != nil {
				return err
			}
			return writeRecords(cmd.OutOrStdout(), records, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format: yaml or json")
	cmd.Flags().BoolVar(&bookmarked, "bookmarked", false, "Only list bookmarked solutions")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of solutions (0 = all)")

	return cmd
}

// writeRecords prints records without their image data.
func writeRecords(w io.Writer, records []store.SolutionRecord, format string) error {
	if records == nil {
		records = []store.SolutionRecord{}
	}
	switch format {
	case "yaml":
		// ImageBase64 is tagged yaml:"-"
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(records); err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
		return enc.Close()
	case "json":
		for i := range records {
			records[i].ImageBase64 = ""
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	default:
		return fmt.Errorf("unsupported format %q (want yaml or json)", format)
	}
}

func newHistoryExportCmd(root *rootOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:     "export",
		Short:   "Export saved solutions, images included, to a Parquet file",
		Example: `  scanhelper history export --out solutions.parquet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, deviceID, err := openHistory(root)
			if err != nil {
				return err
			}
			defer repo.Close()

			records, err := repo.List(cmd.Context(), deviceID, store.ListOptions{})
			if err != nil {
				return err
			}

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", out, err)
			}
			if err := store.WriteParquet(f, records); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("failed to close %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d solutions to %s\n", len(records), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "solutions.parquet", "Output Parquet file")

	return cmd
}

func newHistoryImportCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.parquet>",
		Short: "Import solutions from a Parquet export into this device's history",
		Long: `Imports a file written by "history export". Records are re-owned by this
device and merged by image hash, so importing the same file twice is harmless.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, deviceID, err := openHistory(root)
			if err != nil {
				return err
			}
			defer repo.Close()

			n, err := importParquet(cmd.Context(), repo, deviceID, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d solutions\n", n)
			return nil
		},
	}
	return cmd
}

func importParquet(ctx context.Context, repo store.Repository, deviceID identity.DeviceID, path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat file: %w", err)
	}
	records, err := store.ReadParquet(file, info.Size())
	if err != nil {
		return 0, err
	}

	for i := range records {
		rec := records[i]
		rec.ID = ""
		rec.DeviceID = deviceID
		if err := repo.Upsert(ctx, &rec); err != nil {
			return i, err
		}
	}
	slog.Info("Imported solutions", "path", path, "count", len(records))
	return len(records), nil
}

func newHistoryDeleteCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved solution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, deviceID, err := openHistory(root)
			if err != nil {
				return err
			}
			defer repo.Close()
			return repo.Delete(cmd.Context(), deviceID, args[0])
		},
	}
}
