package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jerry-samek/tick-frame-space-sub001/internal/config"
	"github.com/jerry-samek/tick-frame-space-sub001/internal/model"
)

const runIndexFile = "run_index.json"

// RunArtifacts bundles everything a finished run writes to disk.
type RunArtifacts struct {
	RunID     string               `json:"run_id"`
	Config    config.Config        `json:"config"`
	Summary   model.RunRecord      `json:"summary"`
	CommitLog []model.CommitBatch  `json:"commit_log"`
	Timeline  []model.TickSnapshot `json:"timeline"`
}

type RunIndexEntry struct {
	RunID        string `json:"run_id"`
	Ticks        uint64 `json:"ticks"`
	Seed         int64  `json:"seed"`
	CommitCount  int    `json:"commit_count"`
	EntityPeak   int    `json:"entity_peak"`
	ClampHits    uint64 `json:"clamp_hits"`
	CreatedAtUTC string `json:"created_at_utc"`
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "run_config.json"), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "summary.json"), artifacts.Summary); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "commit_log.json"), artifacts.CommitLog); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "entity_timeline.json"), artifacts.Timeline); err != nil {
		return "", err
	}
	if err := writeTimelineCSV(filepath.Join(runDir, "entity_timeline.csv"), artifacts.Timeline); err != nil {
		return "", err
	}

	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	files := []string{"run_config.json", "summary.json", "commit_log.json", "entity_timeline.json", "entity_timeline.csv"}
	for _, file := range files {
		path := filepath.Join(src, file)
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", err
		}
		if err := copyFile(path, filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}

	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (config.Config, bool, error) {
	path := filepath.Join(baseDir, runID, "run_config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config.Config{}, false, nil
		}
		return config.Config{}, false, err
	}

	var cfg config.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return config.Config{}, false, err
	}
	return cfg, true, nil
}

func ReadCommitLog(baseDir, runID string) ([]model.CommitBatch, bool, error) {
	path := filepath.Join(baseDir, runID, "commit_log.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var log []model.CommitBatch
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, false, err
	}
	return log, true, nil
}

func ReadTimeline(baseDir, runID string) ([]model.TickSnapshot, bool, error) {
	path := filepath.Join(baseDir, runID, "entity_timeline.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var timeline []model.TickSnapshot
	if err := json.Unmarshal(data, &timeline); err != nil {
		return nil, false, err
	}
	return timeline, true, nil
}

func ReadSummary(baseDir, runID string) (model.RunRecord, bool, error) {
	path := filepath.Join(baseDir, runID, "summary.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.RunRecord{}, false, nil
		}
		return model.RunRecord{}, false, err
	}

	var summary model.RunRecord
	if err := json.Unmarshal(data, &summary); err != nil {
		return model.RunRecord{}, false, err
	}
	return summary, true, nil
}

func writeTimelineCSV(path string, timeline []model.TickSnapshot) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"tick", "entity_id", "position", "salience", "age", "lag"}); err != nil {
		return err
	}
	for _, snapshot := range timeline {
		for _, entity := range snapshot.Entities {
			if err := writer.Write([]string{
				strconv.FormatUint(snapshot.Tick, 10),
				entity.ID,
				formatPosition(entity.Position),
				strconv.FormatFloat(entity.Salience, 'f', -1, 64),
				strconv.FormatUint(entity.Age, 10),
				strconv.Itoa(entity.Lag),
			}); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadTimelineCSV parses the flat per-entity rows back out of the CSV export.
func ReadTimelineCSV(baseDir, runID string) ([][]string, bool, error) {
	path := filepath.Join(baseDir, runID, "entity_timeline.csv")
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return [][]string{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 6 {
		return nil, false, fmt.Errorf("entity timeline header must have at least 6 columns")
	}

	rows := make([][]string, 0, 128)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		rows = append(rows, record)
	}
	return rows, true, nil
}

func formatPosition(position []float64) string {
	parts := make([]string, len(position))
	for i, v := range position {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ";")
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
