package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"daedalus/internal/model"
)

// RunArtifacts is the on-disk bundle for one run: the run record, its
// summary, and the full candidate history.
type RunArtifacts struct {
	Run     model.Run
	Summary RunSummary
	History []model.Candidate
}

// WriteRunArtifacts writes run.json, summary.json, and history.csv under
// baseDir/<run id> and returns the run directory.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Run.ID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Run.ID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "run.json"), artifacts.Run); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "summary.json"), artifacts.Summary); err != nil {
		return "", err
	}
	if err := writeHistoryCSV(filepath.Join(runDir, "history.csv"), artifacts.History); err != nil {
		return "", err
	}
	return runDir, nil
}

// ReadRunSummary loads a previously written summary.json.
func ReadRunSummary(baseDir, runID string) (RunSummary, bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runID, "summary.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return RunSummary{}, false, nil
		}
		return RunSummary{}, false, err
	}
	var summary RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return RunSummary{}, false, err
	}
	return summary, true, nil
}

// writeHistoryCSV emits one row per candidate: step, fitness, the
// sequence joined by spaces, then the union of metric names as sorted
// columns (empty cell when a candidate lacks a metric).
func writeHistoryCSV(path string, history []model.Candidate) error {
	names := map[string]bool{}
	for _, c := range history {
		for name := range c.Metrics {
			names[name] = true
		}
	}
	metricCols := make([]string, 0, len(names))
	for name := range names {
		metricCols = append(metricCols, name)
	}
	sort.Strings(metricCols)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)

	header := append([]string{"step", "fitness", "sequence"}, metricCols...)
	if err := w.Write(header); err != nil {
		_ = f.Close()
		return err
	}
	for _, c := range history {
		row := []string{
			strconv.Itoa(c.Step),
			strconv.FormatFloat(c.Fitness, 'g', -1, 64),
			joinSequence(c.Sequence),
		}
		for _, name := range metricCols {
			if value, ok := c.Metrics[name]; ok {
				row = append(row, strconv.FormatFloat(value, 'g', -1, 64))
			} else {
				row = append(row, "")
			}
		}
		if err := w.Write(row); err != nil {
			_ = f.Close()
			return err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func joinSequence(seq []int) string {
	parts := make([]string, len(seq))
	for i, v := range seq {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, " ")
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
