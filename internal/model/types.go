package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Run records one architecture search run: the strategy searched, the shape
// of the space it searched over, and the data it was scored against.
type Run struct {
	VersionedRecord
	ID           string `json:"id"`
	Strategy     string `json:"strategy"`
	SpaceLayers  int    `json:"space_layers"`
	SpaceSize    string `json:"space_size"`
	Dataset      string `json:"dataset,omitempty"`
	Seed         int64  `json:"seed"`
	Trials       int    `json:"trials"`
	CreatedAtUTC string `json:"created_at_utc"`
}

// Candidate is one evaluated architecture within a run.
type Candidate struct {
	VersionedRecord
	RunID    string             `json:"run_id"`
	Step     int                `json:"step"`
	Sequence []int              `json:"sequence"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`
	Fitness  float64            `json:"fitness"`
}
