package csv

import (
	"encoding/csv"
	"io"
	"iter"
	"strings"
)

// Records streams the rows of a CSV document keyed by headers, reading one line at a time.
// Headers are trimmed of surrounding whitespace (exports often pad them), values are kept as
// strings so callers decide how to coerce them. A UTF-8 byte order mark on the first header is dropped.
func Records(r io.Reader) iter.Seq2[map[string]string, error] {
	return func(yield func(map[string]string, error) bool) {
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		head, err := cr.Read()
		if err == io.EOF {
			return
		}
		if err != nil {
			yield(nil, err)
			return
		}

		headers := make([]string, len(head))
		for i, h := range head {
			if i == 0 {
				h = strings.TrimPrefix(h, "\ufeff")
			}
			headers[i] = strings.TrimSpace(h)
		}
		for {
			row, err := cr.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
				continue
			}
			obj := make(map[string]string, len(headers))
			for j := 0; j < len(headers) && j < len(row); j++ {
				obj[headers[j]] = row[j]
			}
			if !yield(obj, nil) {
				return
			}
		}
	}
}

// ReadRecords loads a whole CSV document. Small side files only; exports go through Records.
func ReadRecords(r io.Reader) ([]map[string]string, error) {
	res := []map[string]string{}
	for row, err := range Records(r) {
		if err != nil {
			return nil, err
		}
		res = append(res, row)
	}
	return res, nil
}
