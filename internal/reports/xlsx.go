package reports

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Predictions"

// WriteXLSX writes the same rows as WriteCSV to a single worksheet. Numeric
// fields are stored as numbers.
func (e *Engine) WriteXLSX(ctx context.Context, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("error naming sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(exportSheet)
	if err != nil {
		return fmt.Errorf("error creating stream writer: %w", err)
	}

	header := make([]interface{}, len(ExportHeader))
	for i, h := range ExportHeader {
		header[i] = h
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}

	row := 2
	for rec, err := range e.source.IterRecords(ctx) {
		if err != nil {
			return err
		}

		values := []interface{}{
			rec.Row,
			rec.Label,
			optional(rec.Ip),
			optional(rec.Msisdn),
			optional(rec.Timestamp),
			nil,
			nil,
		}
		if rec.Volume != nil {
			values[5] = *rec.Volume
		} else if rec.VolumeRaw != nil {
			values[5] = *rec.VolumeRaw
		}
		if rec.Confidence != nil {
			values[6] = *rec.Confidence
		}

		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, values); err != nil {
			return fmt.Errorf("error writing row %d: %w", row, err)
		}
		row++
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("error flushing worksheet: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}
