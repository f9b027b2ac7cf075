package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

type ProjectionPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// ProjectionSeries is a dated forecast of one metric (e.g. hospital beds
// needed) produced by an external projection model.
type ProjectionSeries struct {
	VersionedRecord
	Metric string            `json:"metric"`
	Source string            `json:"source,omitempty"`
	Points []ProjectionPoint `json:"points"`
}

// CommunitySamples holds already-parsed numeric samples of a crowd forecast
// for one question.
type CommunitySamples struct {
	VersionedRecord
	QuestionID string    `json:"question_id"`
	Title      string    `json:"title,omitempty"`
	Samples    []float64 `json:"samples"`
}
