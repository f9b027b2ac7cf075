package storage

import (
	"encoding/json"
	"errors"

	"montecarlo/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeProjection(series model.ProjectionSeries) ([]byte, error) {
	return json.Marshal(series)
}

func DecodeProjection(data []byte) (model.ProjectionSeries, error) {
	var series model.ProjectionSeries
	if err := json.Unmarshal(data, &series); err != nil {
		return model.ProjectionSeries{}, err
	}
	if err := checkVersion(series.VersionedRecord); err != nil {
		return model.ProjectionSeries{}, err
	}
	return series, nil
}

func EncodeCommunitySamples(samples model.CommunitySamples) ([]byte, error) {
	return json.Marshal(samples)
}

func DecodeCommunitySamples(data []byte) (model.CommunitySamples, error) {
	var samples model.CommunitySamples
	if err := json.Unmarshal(data, &samples); err != nil {
		return model.CommunitySamples{}, err
	}
	if err := checkVersion(samples.VersionedRecord); err != nil {
		return model.CommunitySamples{}, err
	}
	return samples, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
