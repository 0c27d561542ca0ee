package handles

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileSource reads external usernames from a YAML map of user id to handle.
// The file is re-read on every call so edits apply on the next cycle.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Handles returns the non-empty handles in the file, without a leading @.
// A missing file yields no handles.
func (s *FileSource) Handles(_ context.Context) (map[string]string, error) {
	if s.path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	out := make(map[string]string, len(raw))
	for id, h := range raw {
		h = strings.TrimPrefix(strings.TrimSpace(h), "@")
		if id != "" && h != "" {
			out[id] = h
		}
	}
	return out, nil
}
