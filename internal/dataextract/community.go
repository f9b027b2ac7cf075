package dataextract

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

type CommunityOptions struct {
	HasHeader bool
	// ValueColumnName wins over ValueColumnIndex when both are set.
	ValueColumnName  string
	ValueColumnIndex int
}

// ReadCommunityCSV reads one column of crowd samples. Blank cells are
// skipped.
func ReadCommunityCSV(in io.Reader, opts CommunityOptions) ([]float64, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1

	valueIdx := opts.ValueColumnIndex
	row := 0
	if opts.HasHeader {
		header, err := reader.Read()
		if err == io.EOF {
			return nil, errors.New("community csv is empty")
		}
		if err != nil {
			return nil, fmt.Errorf("read community header: %w", err)
		}
		row++
		if strings.TrimSpace(opts.ValueColumnName) != "" {
			if valueIdx, err = columnIndexByName(header, opts.ValueColumnName); err != nil {
				return nil, err
			}
		}
	}
	if valueIdx < 0 {
		valueIdx = 0
	}

	var samples []float64
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read community row %d: %w", row+1, err)
		}
		row++
		if blankRecord(record) {
			continue
		}
		value, ok, err := parseOptionalFloat(record, valueIdx, row)
		if err != nil {
			return nil, err
		}
		if ok {
			samples = append(samples, value)
		}
	}
	if len(samples) == 0 {
		return nil, errors.New("community csv has no samples")
	}
	return samples, nil
}
