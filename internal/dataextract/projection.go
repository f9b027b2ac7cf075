// Package dataextract reads collaborator tables (dated projections and crowd
// samples) from CSV.
package dataextract

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"montecarlo/internal/model"
)

const (
	DefaultDateColumn = "date"
	DefaultDateLayout = "2006-01-02"
)

type ProjectionOptions struct {
	DateColumn string
	DateLayout string
	// FilterColumn and FilterValue keep only rows for one location.
	FilterColumn string
	FilterValue  string
	// Metrics selects value columns. Empty means every column except the
	// date and filter columns.
	Metrics []string
	Source  string
}

// ReadProjectionCSV returns one series per metric column. Blank and NaN
// cells are treated as missing.
func ReadProjectionCSV(in io.Reader, opts ProjectionOptions) ([]model.ProjectionSeries, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1

	dateColumn := strings.TrimSpace(opts.DateColumn)
	if dateColumn == "" {
		dateColumn = DefaultDateColumn
	}
	layout := opts.DateLayout
	if layout == "" {
		layout = DefaultDateLayout
	}

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("projection csv is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read projection header: %w", err)
	}
	dateIdx, err := columnIndexByName(header, dateColumn)
	if err != nil {
		return nil, err
	}
	filterIdx := -1
	if strings.TrimSpace(opts.FilterColumn) != "" {
		if filterIdx, err = columnIndexByName(header, opts.FilterColumn); err != nil {
			return nil, err
		}
	}

	var metricIdx []int
	if len(opts.Metrics) > 0 {
		for _, name := range opts.Metrics {
			idx, err := columnIndexByName(header, name)
			if err != nil {
				return nil, err
			}
			metricIdx = append(metricIdx, idx)
		}
	} else {
		for i, field := range header {
			if i == dateIdx || i == filterIdx || strings.TrimSpace(field) == "" {
				continue
			}
			metricIdx = append(metricIdx, i)
		}
	}
	if len(metricIdx) == 0 {
		return nil, errors.New("projection csv has no metric columns")
	}

	series := make([]model.ProjectionSeries, len(metricIdx))
	for i, idx := range metricIdx {
		series[i] = model.ProjectionSeries{Metric: strings.TrimSpace(header[idx]), Source: opts.Source}
	}

	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read projection row %d: %w", row+1, err)
		}
		row++
		if blankRecord(record) {
			continue
		}
		if filterIdx >= 0 && (filterIdx >= len(record) || strings.TrimSpace(record[filterIdx]) != opts.FilterValue) {
			continue
		}
		if dateIdx >= len(record) {
			return nil, fmt.Errorf("projection row %d missing date column", row)
		}
		date, err := time.Parse(layout, strings.TrimSpace(record[dateIdx]))
		if err != nil {
			return nil, fmt.Errorf("parse projection date row %d: %w", row, err)
		}
		for i, idx := range metricIdx {
			value, ok, err := parseOptionalFloat(record, idx, row)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			series[i].Points = append(series[i].Points, model.ProjectionPoint{Date: date, Value: value})
		}
	}
	return series, nil
}

func parseOptionalFloat(record []string, idx, row int) (float64, bool, error) {
	if idx >= len(record) {
		return 0, false, nil
	}
	raw := strings.TrimSpace(record[idx])
	if raw == "" {
		return 0, false, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse value row %d column %d: %w", row, idx, err)
	}
	if math.IsNaN(value) {
		return 0, false, nil
	}
	return value, true, nil
}

func columnIndexByName(header []string, name string) (int, error) {
	want := strings.TrimSpace(strings.ToLower(name))
	for i, field := range header {
		if strings.ToLower(strings.TrimSpace(field)) == want {
			return i, nil
		}
	}
	return -1, fmt.Errorf("csv column not found: %s", name)
}

func blankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
