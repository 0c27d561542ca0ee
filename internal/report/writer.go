package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Output file names, written under <dir>/<job>/.
const (
	MembersFile      = "members.json"
	ActivityFile     = "member_activity.json"
	LeaderboardsFile = "leaderboards.json"
	TextFile         = "activity_report.txt"
	CSVFile          = "activity_data.csv"
)

// Writer stores a cycle's reports on local disk.
type Writer struct {
	dir string
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Write renders s into the job's output directory. Every file is replaced
// atomically; the first failure stops the remaining files.
func (w *Writer) Write(job string, s *Summary) error {
	dir := filepath.Join(w.dir, job)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	leaderboards := make(map[string][]Entry, len(s.Leaderboards)+1)
	for c, lb := range s.Leaderboards {
		leaderboards[c] = lb
	}
	leaderboards[TotalCategory] = s.Overall

	docs := []struct {
		name string
		v    any
	}{
		{MembersFile, s.Members},
		{ActivityFile, s.Records},
		{LeaderboardsFile, leaderboards},
	}
	for _, d := range docs {
		data, err := json.MarshalIndent(d.v, "", "  ")
		if err != nil {
			return fmt.Errorf("encode %s: %w", d.name, err)
		}
		if err := writeFileAtomic(filepath.Join(dir, d.name), data); err != nil {
			return err
		}
	}

	if err := writeFileAtomic(filepath.Join(dir, TextFile), []byte(RenderText(s))); err != nil {
		return err
	}

	csvData, err := RenderCSV(s)
	if err != nil {
		return fmt.Errorf("encode %s: %w", CSVFile, err)
	}
	return writeFileAtomic(filepath.Join(dir, CSVFile), csvData)
}

// writeFileAtomic writes to a temp file in the same directory and renames
// it over path, so readers never observe a partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
