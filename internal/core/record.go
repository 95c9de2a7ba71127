package core

import "strings"

// Record joins one input row's key fields with its predicted label. Optional
// fields are nil when the column could not be resolved or the cell is empty.
type Record struct {
	Row        int
	Label      string
	Ip         *string
	Msisdn     *string
	Timestamp  *string
	VolumeRaw  *string
	Volume     *float64
	Confidence *float64
}

func BuildRecords(table *Table, prediction Prediction, mapping ColumnMapping) []Record {
	idx := mapping.Indices(table.Columns)

	records := make([]Record, table.Len())
	for i := range table.Rows {
		rec := Record{
			Row:        i,
			Ip:         optionalCell(table, i, idx.Ip),
			Msisdn:     optionalCell(table, i, idx.Msisdn),
			Timestamp:  optionalCell(table, i, idx.Timestamp),
			VolumeRaw:  optionalCell(table, i, idx.Volume),
			Confidence: prediction.Confidence.At(i),
		}
		if i < len(prediction.Labels) {
			rec.Label = prediction.Labels[i]
		}
		if rec.VolumeRaw != nil {
			if v, ok := ParseNumber(*rec.VolumeRaw); ok {
				rec.Volume = &v
			}
		}
		records[i] = rec
	}
	return records
}

func optionalCell(table *Table, row, col int) *string {
	if col < 0 {
		return nil
	}
	cell := strings.TrimSpace(table.Cell(row, col))
	if cell == "" {
		return nil
	}
	return &cell
}
