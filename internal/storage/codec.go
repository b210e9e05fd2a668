package storage

import (
	"encoding/json"
	"errors"

	"daedalus/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeRun(r model.Run) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.Run, error) {
	var run model.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return model.Run{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.Run{}, err
	}
	return run, nil
}

func EncodeCandidate(c model.Candidate) ([]byte, error) {
	return json.Marshal(c)
}

func DecodeCandidate(data []byte) (model.Candidate, error) {
	var candidate model.Candidate
	if err := json.Unmarshal(data, &candidate); err != nil {
		return model.Candidate{}, err
	}
	if err := checkVersion(candidate.VersionedRecord); err != nil {
		return model.Candidate{}, err
	}
	return candidate, nil
}

func EncodeCandidates(candidates []model.Candidate) ([]byte, error) {
	return json.Marshal(candidates)
}

func DecodeCandidates(data []byte) ([]model.Candidate, error) {
	var candidates []model.Candidate
	if err := json.Unmarshal(data, &candidates); err != nil {
		return nil, err
	}
	for _, candidate := range candidates {
		if err := checkVersion(candidate.VersionedRecord); err != nil {
			return nil, err
		}
	}
	return candidates, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
