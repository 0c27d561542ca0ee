package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterWritesEveryFile(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(filepath.Join(dir, "out"))

	require.NoError(t, w.Write("profile", sampleSummary()))

	for _, name := range []string{MembersFile, ActivityFile, LeaderboardsFile, TextFile, CSVFile} {
		info, err := os.Stat(filepath.Join(dir, "out", "profile", name))
		require.NoError(t, err, name)
		assert.NotZero(t, info.Size(), name)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "out", "profile"))
	require.NoError(t, err)
	assert.Len(t, entries, 5)

	data, err := os.ReadFile(filepath.Join(dir, "out", "profile", LeaderboardsFile))
	require.NoError(t, err)
	var boards map[string][]Entry
	require.NoError(t, json.Unmarshal(data, &boards))
	assert.Contains(t, boards, TotalCategory)
	assert.Equal(t, "1", boards["general"][0].UserID)
}

func TestWriterOverwrites(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	require.NoError(t, w.Write("job", sampleSummary()))

	s := sampleSummary()
	s.Records = s.Records[:1]
	require.NoError(t, w.Write("job", s))

	data, err := os.ReadFile(filepath.Join(dir, "job", ActivityFile))
	require.NoError(t, err)
	var records []map[string]any
	require.NoError(t, json.Unmarshal(data, &records))
	assert.Len(t, records, 1)
}
