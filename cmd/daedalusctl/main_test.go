package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func captureStdout(fn func() error) (string, error) {
	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		return "", err
	}

	os.Stdout = w
	runErr := fn()
	_ = w.Close()
	os.Stdout = origStdout

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		_ = r.Close()
		return "", err
	}
	_ = r.Close()
	return buf.String(), runErr
}

func TestRunRequiresCommand(t *testing.T) {
	err := run(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "missing command") {
		t.Fatalf("want missing command error, got %v", err)
	}
	if !strings.Contains(err.Error(), "usage: daedalusctl") {
		t.Fatalf("want usage hint, got %v", err)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	err := run(context.Background(), []string{"bogus"})
	if err == nil || !strings.Contains(err.Error(), "unknown command: bogus") {
		t.Fatalf("want unknown command error, got %v", err)
	}
}

func TestSpaceCommandPrintsLayers(t *testing.T) {
	dir := t.TempDir()
	spacePath := writeFile(t, filepath.Join(dir, "space.yaml"), spaceYAML)

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"space", "--file", spacePath})
	})
	if err != nil {
		t.Fatalf("space command: %v", err)
	}
	if !strings.Contains(out, "layer=0 candidates=2") {
		t.Fatalf("missing layer line in output:\n%s", out)
	}
	if !strings.Contains(out, "layers=2 combinations=4") {
		t.Fatalf("missing summary line in output:\n%s", out)
	}
}

func TestSpaceCommandJSON(t *testing.T) {
	dir := t.TempDir()
	spacePath := writeFile(t, filepath.Join(dir, "space.yaml"), spaceYAML)

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"space", "--file", spacePath, "--json"})
	})
	if err != nil {
		t.Fatalf("space command: %v", err)
	}

	var got struct {
		Layers       int    `json:"layers"`
		Combinations string `json:"combinations"`
		LayerDetail  []struct {
			Layer      int      `json:"layer"`
			Candidates []string `json:"candidates"`
		} `json:"layer_detail"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode space JSON: %v\n%s", err, out)
	}
	if got.Layers != 2 || got.Combinations != "4" {
		t.Fatalf("unexpected summary: %+v", got)
	}
	if len(got.LayerDetail) != 2 || len(got.LayerDetail[0].Candidates) != 2 {
		t.Fatalf("unexpected layer detail: %+v", got.LayerDetail)
	}
}

func TestSampleCommandEmitsSequences(t *testing.T) {
	dir := t.TempDir()
	spacePath := writeFile(t, filepath.Join(dir, "space.yaml"), spaceYAML)

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"sample", "--file", spacePath, "--n", "3", "--seed", "9"})
	})
	if err != nil {
		t.Fatalf("sample command: %v", err)
	}
	if !strings.Contains(out, "sequence_length=2 layers=2") {
		t.Fatalf("missing layout line in output:\n%s", out)
	}
	if got := strings.Count(out, "sample="); got != 3 {
		t.Fatalf("sample lines = %d, want 3\n%s", got, out)
	}
}

func TestSampleCommandSkipBitsWidenSequences(t *testing.T) {
	dir := t.TempDir()
	spacePath := writeFile(t, filepath.Join(dir, "space.yaml"), spaceYAML)

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"sample", "--file", spacePath, "--n", "1", "--skip"})
	})
	if err != nil {
		t.Fatalf("sample command: %v", err)
	}
	if !strings.Contains(out, "sequence_length=3 layers=2") {
		t.Fatalf("missing widened layout line in output:\n%s", out)
	}
}

func TestBuildCommandPrintsSelectedOps(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeSearchConfigFiles(t, dir)

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"build", "--config", cfgPath, "--seq", "0,1"})
	})
	if err != nil {
		t.Fatalf("build command: %v", err)
	}
	if !strings.Contains(out, "layer=0 op=dense(") || !strings.Contains(out, "layer=1 op=dense(") {
		t.Fatalf("missing layer op lines in output:\n%s", out)
	}
	if strings.Contains(out, "shared_parameters=") {
		t.Fatalf("dag builder should not report a shared graph:\n%s", out)
	}
}

func TestBuildCommandEnasReportsGraphAndNodes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "space.yaml"), spaceYAML)
	writeFile(t, filepath.Join(dir, "data.yaml"), dataYAML)
	cfgPath := writeFile(t, filepath.Join(dir, "config.yaml"), `space_file: space.yaml
inputs:
  - type: input
    name: x
    units: 2
outputs:
  - type: output
    name: y
    units: 1
    activation: sigmoid
builder:
  kind: enas-ann
  loss: mse
trials: 2
data_file: data.yaml
`)

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"build", "--config", cfgPath, "--seq", "0,1"})
	})
	if err != nil {
		t.Fatalf("build command: %v", err)
	}
	if !strings.Contains(out, "shared_parameters=") {
		t.Fatalf("missing shared graph line in output:\n%s", out)
	}
	if !strings.Contains(out, "node x(input)") || !strings.Contains(out, "node y(output)") {
		t.Fatalf("missing node wiring lines in output:\n%s", out)
	}
}

func TestBuildCommandRejectsBadSequence(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeSearchConfigFiles(t, dir)

	if err := run(context.Background(), []string{"build", "--config", cfgPath, "--seq", "0,1,0"}); err == nil {
		t.Fatal("expected error for over-long sequence")
	}
	if err := run(context.Background(), []string{"build", "--config", cfgPath, "--seq", "0,9"}); err == nil {
		t.Fatal("expected error for out-of-range op index")
	}
}

func TestSearchCommandRunsTrials(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeSearchConfigFiles(t, dir)

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"search", "--config", cfgPath})
	})
	if err != nil {
		t.Fatalf("search command: %v", err)
	}
	if !strings.Contains(out, "strategy=dag") || !strings.Contains(out, "space_size=4") {
		t.Fatalf("missing run summary in output:\n%s", out)
	}
	if !strings.Contains(out, "trials=3 evaluated=3 skipped=0") {
		t.Fatalf("missing trial counts in output:\n%s", out)
	}
	if !strings.Contains(out, "best step=") {
		t.Fatalf("missing best line in output:\n%s", out)
	}
	if !strings.Contains(out, "metric loss=") {
		t.Fatalf("missing metric line in output:\n%s", out)
	}
}

func TestSearchCommandJSONSummary(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeSearchConfigFiles(t, dir)

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"search", "--config", cfgPath, "--run-id", "cli-json-run", "--json"})
	})
	if err != nil {
		t.Fatalf("search command: %v", err)
	}

	var got struct {
		RunID        string `json:"run_id"`
		Strategy     string `json:"strategy"`
		Evaluated    int    `json:"evaluated"`
		BestSequence []int  `json:"best_sequence"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode search JSON: %v\n%s", err, out)
	}
	if got.RunID != "cli-json-run" || got.Strategy != "dag" || got.Evaluated != 3 {
		t.Fatalf("unexpected summary: %+v", got)
	}
	if len(got.BestSequence) != 2 {
		t.Fatalf("best sequence = %v, want length 2", got.BestSequence)
	}
}

func TestSearchCommandIntervalData(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "space.yaml"), spaceYAML)
	writeFile(t, filepath.Join(dir, "genome.yaml"), genomeYAML)
	writeFile(t, filepath.Join(dir, "train.bed"), intervalsBED)
	cfgPath := writeFile(t, filepath.Join(dir, "config.yaml"), `space_file: space.yaml
inputs:
  - type: input
    name: x
    units: 8
outputs:
  - type: output
    name: y
    units: 1
    activation: sigmoid
builder:
  kind: dag
  loss: mse
trials: 2
intervals: train.bed
genome: genome.yaml
`)

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"search", "--config", cfgPath})
	})
	if err != nil {
		t.Fatalf("search command: %v", err)
	}
	if !strings.Contains(out, "trials=2 evaluated=2 skipped=0") {
		t.Fatalf("missing trial counts in output:\n%s", out)
	}
}

func TestSearchCommandRequiresConfig(t *testing.T) {
	err := run(context.Background(), []string{"search"})
	if err == nil || !strings.Contains(err.Error(), "search requires --config") {
		t.Fatalf("want config error, got %v", err)
	}
}

func TestRunsCommandEmptyStore(t *testing.T) {
	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"runs"})
	})
	if err != nil {
		t.Fatalf("runs command: %v", err)
	}
	if !strings.Contains(out, "no runs found") {
		t.Fatalf("want empty listing, got:\n%s", out)
	}
}

func TestHistoryCommandFlagValidation(t *testing.T) {
	err := run(context.Background(), []string{"history", "--run-id", "a", "--latest"})
	if err == nil || !strings.Contains(err.Error(), "use either --run-id or --latest, not both") {
		t.Fatalf("want conflict error, got %v", err)
	}

	err = run(context.Background(), []string{"history"})
	if err == nil || !strings.Contains(err.Error(), "history requires --run-id or --latest") {
		t.Fatalf("want selector error, got %v", err)
	}
}

func TestBestCommandFlagValidation(t *testing.T) {
	err := run(context.Background(), []string{"best", "--run-id", "a", "--latest"})
	if err == nil || !strings.Contains(err.Error(), "use either --run-id or --latest, not both") {
		t.Fatalf("want conflict error, got %v", err)
	}

	err = run(context.Background(), []string{"best"})
	if err == nil || !strings.Contains(err.Error(), "best requires --run-id or --latest") {
		t.Fatalf("want selector error, got %v", err)
	}
}

func TestReportCommandFlagValidation(t *testing.T) {
	err := run(context.Background(), []string{"report", "--run-id", "a", "--latest"})
	if err == nil || !strings.Contains(err.Error(), "use either --run-id or --latest, not both") {
		t.Fatalf("want conflict error, got %v", err)
	}

	err = run(context.Background(), []string{"report"})
	if err == nil || !strings.Contains(err.Error(), "report requires --run-id or --latest") {
		t.Fatalf("want selector error, got %v", err)
	}
}

func TestDatasetCommandReportsShapes(t *testing.T) {
	dir := t.TempDir()
	genomePath := writeFile(t, filepath.Join(dir, "genome.yaml"), genomeYAML)
	bedPath := writeFile(t, filepath.Join(dir, "train.bed"), intervalsBED)

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{
			"dataset",
			"--intervals", bedPath,
			"--genome", genomePath,
			"--pad", "1",
			"--batch-size", "2",
		})
	})
	if err != nil {
		t.Fatalf("dataset command: %v", err)
	}
	if !strings.Contains(out, "examples=4 left_pad=1 right_pad=1") {
		t.Fatalf("missing examples line in output:\n%s", out)
	}
	if !strings.Contains(out, "example_rows=4 example_cols=4 label_width=1") {
		t.Fatalf("missing example shape line in output:\n%s", out)
	}
	if !strings.Contains(out, "batches=2") {
		t.Fatalf("missing batches line in output:\n%s", out)
	}
	if !strings.Contains(out, "batch_rows=2 row_width=16 label_width=1") {
		t.Fatalf("missing batch shape line in output:\n%s", out)
	}
}

func TestDatasetCommandRequiresPaths(t *testing.T) {
	err := run(context.Background(), []string{"dataset"})
	if err == nil || !strings.Contains(err.Error(), "dataset requires --intervals and --genome") {
		t.Fatalf("want path error, got %v", err)
	}
}
