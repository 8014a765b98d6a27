package activity

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const fileTimeLayout = "2006-01-02 15:04:05"

// FileSink appends one line per event to a plain text file.
type FileSink struct {
	mu   sync.Mutex
	path string
}

func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

func (s *FileSink) Name() string { return "file" }

// Write opens the file per event so external rotation does not need a reopen signal.
func (s *FileSink) Write(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("activity: create dir: %w", err)
		}
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("activity: open %s: %w", s.path, err)
	}
	line := fmt.Sprintf("%s - %s\n", ev.At.Format(fileTimeLayout), ev.Line())
	if _, err := f.WriteString(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("activity: write: %w", err)
	}
	return f.Close()
}
