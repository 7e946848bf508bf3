package storage

import (
	"encoding/json"
	"errors"

	"github.com/jerry-samek/tick-frame-space-sub001/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// Stamp applies the current schema/codec versions before persisting.
func Stamp(v *model.VersionedRecord) {
	v.SchemaVersion = CurrentSchemaVersion
	v.CodecVersion = CurrentCodecVersion
}

func EncodeRun(r model.RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodeCommits(batches []model.CommitBatch) ([]byte, error) {
	return json.Marshal(batches)
}

func DecodeCommits(data []byte) ([]model.CommitBatch, error) {
	var batches []model.CommitBatch
	if err := json.Unmarshal(data, &batches); err != nil {
		return nil, err
	}
	return batches, nil
}

func EncodeTimeline(timeline []model.TickSnapshot) ([]byte, error) {
	return json.Marshal(timeline)
}

func DecodeTimeline(data []byte) ([]model.TickSnapshot, error) {
	var timeline []model.TickSnapshot
	if err := json.Unmarshal(data, &timeline); err != nil {
		return nil, err
	}
	return timeline, nil
}

func EncodeCheckpoint(cp model.FieldCheckpoint) ([]byte, error) {
	return json.Marshal(cp)
}

func DecodeCheckpoint(data []byte) (model.FieldCheckpoint, error) {
	var cp model.FieldCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return model.FieldCheckpoint{}, err
	}
	if err := checkVersion(cp.VersionedRecord); err != nil {
		return model.FieldCheckpoint{}, err
	}
	return cp, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
