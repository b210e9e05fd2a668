package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"daedalus/internal/dag"
	"daedalus/internal/dataset"
	"daedalus/internal/modeler"
	"daedalus/internal/space"
)

// searchConfig is the YAML document shared by the build and search
// commands. Relative paths resolve against the config file's directory.
type searchConfig struct {
	SpaceFile string              `yaml:"space_file"`
	Inputs    []map[string]any    `yaml:"inputs"`
	Outputs   []map[string]any    `yaml:"outputs"`
	Builder   modeler.BuilderSpec `yaml:"builder"`

	Trials    int    `yaml:"trials"`
	Epochs    int    `yaml:"epochs"`
	BatchSize int    `yaml:"batch_size"`
	Seed      int64  `yaml:"seed"`
	RunID     string `yaml:"run_id"`
	Dataset   string `yaml:"dataset"`

	// Training data comes either from an inline x/y file or from a
	// BED interval file resolved against a genome.
	DataFile  string `yaml:"data_file"`
	Intervals string `yaml:"intervals"`
	Genome    string `yaml:"genome"`
	NExamples int    `yaml:"n_examples"`
	Pad       int    `yaml:"pad"`

	baseDir string
	space   *space.ModelSpace
	inputs  []space.Operation
	outputs []space.Operation
}

func loadSearchConfig(path string) (searchConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return searchConfig{}, err
	}
	var cfg searchConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return searchConfig{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.baseDir = filepath.Dir(path)
	if cfg.Builder.Loss == "" {
		cfg.Builder.Loss = "mse"
	}

	if cfg.SpaceFile == "" {
		return searchConfig{}, errors.New("config is missing space_file")
	}
	if len(cfg.Inputs) == 0 {
		return searchConfig{}, errors.New("config is missing inputs")
	}
	if len(cfg.Outputs) == 0 {
		return searchConfig{}, errors.New("config is missing outputs")
	}

	cfg.space, err = space.LoadSpace(cfg.resolve(cfg.SpaceFile))
	if err != nil {
		return searchConfig{}, err
	}
	cfg.inputs, err = parseOps(cfg.Inputs)
	if err != nil {
		return searchConfig{}, fmt.Errorf("parse inputs: %w", err)
	}
	cfg.outputs, err = parseOps(cfg.Outputs)
	if err != nil {
		return searchConfig{}, fmt.Errorf("parse outputs: %w", err)
	}
	return cfg, nil
}

func (cfg searchConfig) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(cfg.baseDir, path)
}

func (cfg searchConfig) datasetLabel() string {
	switch {
	case cfg.Dataset != "":
		return cfg.Dataset
	case cfg.Intervals != "":
		return filepath.Base(cfg.Intervals)
	case cfg.DataFile != "":
		return filepath.Base(cfg.DataFile)
	}
	return ""
}

// trainingData resolves the configured source into flat example rows.
// Interval examples flatten position-major, matching dataset batching.
func (cfg searchConfig) trainingData() (x, y [][]float64, err error) {
	switch {
	case cfg.DataFile != "":
		return loadTrainingData(cfg.resolve(cfg.DataFile))
	case cfg.Intervals != "" && cfg.Genome != "":
		return loadIntervalData(cfg.resolve(cfg.Intervals), cfg.resolve(cfg.Genome), dataset.Options{
			NExamples: cfg.NExamples,
			Seed:      cfg.Seed,
			Pad:       cfg.Pad,
		})
	case cfg.Intervals != "" || cfg.Genome != "":
		return nil, nil, errors.New("intervals and genome must be set together")
	}
	return nil, nil, errors.New("config needs data_file or intervals+genome")
}

type dataDoc struct {
	X [][]float64 `yaml:"x"`
	Y [][]float64 `yaml:"y"`
}

func loadTrainingData(path string) ([][]float64, [][]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	var doc dataDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("parse data file %s: %w", path, err)
	}
	if len(doc.X) == 0 {
		return nil, nil, fmt.Errorf("data file %s has no x rows", path)
	}
	return doc.X, doc.Y, nil
}

func loadIntervalData(intervalsPath, genomePath string, opts dataset.Options) ([][]float64, [][]float64, error) {
	genome, err := loadGenome(genomePath)
	if err != nil {
		return nil, nil, err
	}
	set, err := dataset.LoadIntervals(intervalsPath, genome, opts)
	if err != nil {
		return nil, nil, err
	}
	if set.Len() == 0 {
		_ = set.Close()
		return nil, nil, fmt.Errorf("no intervals loaded from %s", intervalsPath)
	}
	batches, err := dataset.NewBatches(set, set.Len(), false, opts.Seed)
	if err != nil {
		_ = set.Close()
		return nil, nil, err
	}
	defer func() {
		_ = batches.Close()
	}()
	return batches.Batch(0)
}

func loadGenome(path string) (*dataset.EncodedGenome, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var chroms map[string]string
	if err := yaml.Unmarshal(data, &chroms); err != nil {
		return nil, fmt.Errorf("parse genome %s: %w", path, err)
	}
	if len(chroms) == 0 {
		return nil, fmt.Errorf("genome %s has no chromosomes", path)
	}
	return dataset.NewEncodedGenome(chroms), nil
}

func parseOps(defs []map[string]any) ([]space.Operation, error) {
	ops := make([]space.Operation, 0, len(defs))
	for i, def := range defs {
		op, err := space.ParseOperation(def)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func parseSequence(raw string) (dag.Sequence, error) {
	parts := strings.Split(raw, ",")
	seq := make(dag.Sequence, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("bad sequence element %q: %w", part, err)
		}
		seq = append(seq, v)
	}
	return seq, nil
}
