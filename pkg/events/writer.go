package events

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Writer is a subscriber that archives events as JSON files under an
// audit directory, one file per event.
type Writer struct {
	baseDir string
	logger  *zap.Logger
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithWriterLogger sets the logger for write failures.
func WithWriterLogger(logger *zap.Logger) WriterOption {
	return func(w *Writer) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWriter creates an audit writer rooted at baseDir.
func NewWriter(baseDir string, opts ...WriterOption) (*Writer, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if err := os.MkdirAll(filepath.Join(baseDir, "rounds"), 0755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(baseDir, "verifications"), 0755); err != nil {
		return nil, err
	}

	w := &Writer{baseDir: baseDir, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// BaseDir returns the audit directory path.
func (w *Writer) BaseDir() string {
	return w.baseDir
}

// OnRound archives a round event to rounds/<round_id>.json.
func (w *Writer) OnRound(ev RoundEvent) {
	path := filepath.Join(w.baseDir, "rounds", fmt.Sprintf("%s.json", ev.RoundID))
	if err := writeJSON(path, ev); err != nil {
		w.logger.Warn("audit write failed", zap.String("path", path), zap.Error(err))
	}
}

// OnVerification archives a verification event to
// verifications/<task_id>-<nanos>.json. The timestamp suffix keeps
// repeated runs of the same task distinct.
func (w *Writer) OnVerification(ev VerificationEvent) {
	name := fmt.Sprintf("%s-%d.json", ev.TaskID, ev.CompletedAt.UnixNano())
	path := filepath.Join(w.baseDir, "verifications", name)
	if err := writeJSON(path, ev); err != nil {
		w.logger.Warn("audit write failed", zap.String("path", path), zap.Error(err))
	}
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
