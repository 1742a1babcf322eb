package csv

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gcp-billing-cost/domain/cost"
)

var recordHeader = []string{
	"provider", "account", "product", "usage_type", "region_code", "usage_unit",
	"usage_quantity", "cost", "currency", "billed_date", "additional_info", "tags",
}

// RecordWriter appends normalized cost records to a CSV file batch by batch,
// so a whole sync never has to sit in memory.
type RecordWriter struct {
	f     *os.File
	w     *csv.Writer
	count int
}

// CreateRecordWriter creates (or truncates) path, including missing parent directories, and writes the header.
func CreateRecordWriter(path string) (*RecordWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(recordHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	return &RecordWriter{f: f, w: w}, nil
}

func (rw *RecordWriter) WriteBatch(b cost.Batch) error {
	for _, r := range b.Results {
		info, err := json.Marshal(r.AdditionalInfo)
		if err != nil {
			return err
		}
		tags, err := json.Marshal(r.Tags)
		if err != nil {
			return err
		}
		row := []string{
			r.Provider,
			r.Account,
			r.Product,
			r.UsageType,
			r.RegionCode,
			r.UsageUnit,
			strconv.FormatFloat(r.UsageQuantity, 'f', -1, 64),
			strconv.FormatFloat(r.Cost, 'f', -1, 64),
			r.Currency,
			r.BilledDate.String(),
			string(info),
			string(tags),
		}
		if err := rw.w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
		rw.count++
	}
	return nil
}

// Count returns the number of records written so far.
func (rw *RecordWriter) Count() int { return rw.count }

func (rw *RecordWriter) Close() error {
	rw.w.Flush()
	if err := rw.w.Error(); err != nil {
		rw.f.Close()
		return err
	}
	return rw.f.Close()
}
