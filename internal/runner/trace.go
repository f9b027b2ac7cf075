package runner

import (
	"math"
	"sort"
)

// Row holds the values of every named sampler invoked during one draw.
type Row map[string]float64

// Trace is the per-draw table of the top-level output and every named
// intermediate, aligned by draw index.
type Trace struct {
	// Labels lists the top-level label first, then intermediates sorted.
	Labels []string
	Rows   []Row
}

func newTrace(top string, rows []Row) *Trace {
	seen := map[string]struct{}{top: {}}
	var others []string
	for _, row := range rows {
		for label := range row {
			if _, ok := seen[label]; ok {
				continue
			}
			seen[label] = struct{}{}
			others = append(others, label)
		}
	}
	sort.Strings(others)
	return &Trace{Labels: append([]string{top}, others...), Rows: rows}
}

// Column returns the values of label by draw index, NaN where label was not
// invoked.
func (t *Trace) Column(label string) []float64 {
	out := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		v, ok := row[label]
		if !ok {
			v = math.NaN()
		}
		out[i] = v
	}
	return out
}

// Columns returns every column keyed by label.
func (t *Trace) Columns() map[string][]float64 {
	out := make(map[string][]float64, len(t.Labels))
	for _, label := range t.Labels {
		out[label] = t.Column(label)
	}
	return out
}

// Invoked reports whether label was evaluated during draw.
func (t *Trace) Invoked(draw int, label string) bool {
	if draw < 0 || draw >= len(t.Rows) {
		return false
	}
	_, ok := t.Rows[draw][label]
	return ok
}
