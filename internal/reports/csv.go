package reports

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"ipdr-backend/internal/records"
)

var ExportHeader = []string{"row", "prediction", "ip", "msisdn", "timestamp", "volume", "confidence"}

func optional(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'g', -1, 64)
}

func exportRow(rec records.DatasetRecord) []string {
	return []string{
		strconv.Itoa(rec.Row),
		rec.Label,
		optional(rec.Ip),
		optional(rec.Msisdn),
		optional(rec.Timestamp),
		optional(rec.VolumeRaw),
		formatFloat(rec.Confidence),
	}
}

// WriteCSV streams every live record. Output is identical across calls as long
// as no dataset is ingested or deleted in between.
func (e *Engine) WriteCSV(ctx context.Context, w io.Writer) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(ExportHeader); err != nil {
		return fmt.Errorf("error writing csv header: %w", err)
	}

	for rec, err := range e.source.IterRecords(ctx) {
		if err != nil {
			return err
		}
		if err := writer.Write(exportRow(rec)); err != nil {
			return fmt.Errorf("error writing csv row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}
