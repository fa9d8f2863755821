package store

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/scanhelper/scanhelper/internal/identity"
)

// ExportRow is the Parquet layout of a SolutionRecord.
type ExportRow struct {
	ID          string `parquet:"id"`
	DeviceID    string `parquet:"device_id"`
	ImageHash   string `parquet:"image_hash"`
	ImageBase64 string `parquet:"image_base64,zstd"`
	Solution    string `parquet:"solution,zstd"`
	Bookmarked  bool   `parquet:"bookmarked"`
	TimestampMS int64  `parquet:"timestamp_ms"`
}

func toExportRow(rec SolutionRecord) ExportRow {
	return ExportRow{
		ID:          rec.ID,
		DeviceID:    rec.DeviceID.String(),
		ImageHash:   rec.ImageHash,
		ImageBase64: rec.ImageBase64,
		Solution:    rec.Solution,
		Bookmarked:  rec.Bookmarked,
		TimestampMS: rec.CreatedAt.UnixMilli(),
	}
}

func (r ExportRow) record() SolutionRecord {
	return SolutionRecord{
		ID:          r.ID,
		DeviceID:    identity.DeviceID(r.DeviceID),
		ImageHash:   r.ImageHash,
		ImageBase64: r.ImageBase64,
		Solution:    r.Solution,
		Bookmarked:  r.Bookmarked,
		CreatedAt:   time.UnixMilli(r.TimestampMS),
	}
}

// WriteParquet writes records to w as a single Parquet file.
func WriteParquet(w io.Writer, records []SolutionRecord) error {
	rows := make([]ExportRow, len(records))
	for i, rec := range records {
		rows[i] = toExportRow(rec)
	}

	writer := parquet.NewGenericWriter[ExportRow](w)
	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

// ReadParquet reads every record from a Parquet file written by WriteParquet.
func ReadParquet(r io.ReaderAt, size int64) ([]SolutionRecord, error) {
	pf, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}
	slog.Debug("Parquet file opened", "num_rows", pf.NumRows(), "num_row_groups", len(pf.RowGroups()))

	reader := parquet.NewGenericReader[ExportRow](pf)
	defer reader.Close()

	records := make([]SolutionRecord, 0, pf.NumRows())
	rows := make([]ExportRow, 128) // Read in batches
	for {
		n, err := reader.Read(rows)
		for _, row := range rows[:n] {
			records = append(records, row.record())
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}
	return records, nil
}
