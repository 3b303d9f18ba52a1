package training

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// ScalarWriter persists named scalar series under a log directory, one
// space-delimited file per tag with "iteration value" rows.
type ScalarWriter struct {
	dir     string
	files   map[string]*os.File
	writers map[string]*csv.Writer
}

// NewScalarWriter creates the log directory if needed.
func NewScalarWriter(dir string) (*ScalarWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %v", err)
	}
	return &ScalarWriter{
		dir:     dir,
		files:   make(map[string]*os.File),
		writers: make(map[string]*csv.Writer),
	}, nil
}

// Add appends one observation to the tag's series.
func (s *ScalarWriter) Add(tag string, iteration int, value float64) error {
	w, ok := s.writers[tag]
	if !ok {
		f, err := os.Create(filepath.Join(s.dir, tag+".csv"))
		if err != nil {
			return fmt.Errorf("failed to open scalar log for %q: %v", tag, err)
		}
		w = csv.NewWriter(f)
		w.Comma = ' '
		s.files[tag] = f
		s.writers[tag] = w
	}
	return w.Write([]string{
		strconv.Itoa(iteration),
		strconv.FormatFloat(value, 'g', -1, 64),
	})
}

// Close flushes and closes every open series.
func (s *ScalarWriter) Close() error {
	tags := make([]string, 0, len(s.files))
	for tag := range s.files {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	var firstErr error
	for _, tag := range tags {
		s.writers[tag].Flush()
		if err := s.writers[tag].Error(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to flush scalar log %q: %v", tag, err)
		}
		if err := s.files[tag].Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close scalar log %q: %v", tag, err)
		}
	}
	return firstErr
}
