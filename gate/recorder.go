package gate

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"

	"github.com/nbd-wtf/go-nostr"

	"github.com/c360/relaybridge/errors"
)

// FileRecorder appends events that failed signature verification to a
// file, one JSON line per event, for offline inspection.
type FileRecorder struct {
	mu     sync.Mutex
	file   *os.File
	logger *slog.Logger
}

// NewFileRecorder opens (or creates) the record file in append mode.
func NewFileRecorder(path string, logger *slog.Logger) (*FileRecorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "gate", "NewFileRecorder", "opening record file")
	}
	return &FileRecorder{file: f, logger: logger}, nil
}

type invalidEventRecord struct {
	Source string       `json:"source"`
	Event  *nostr.Event `json:"event"`
}

func (r *FileRecorder) Record(ev *nostr.Event, sourceURL string) {
	line, err := json.Marshal(invalidEventRecord{Source: sourceURL, Event: ev})
	if err != nil {
		return
	}
	line = append(line, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.file.Write(line); err != nil {
		r.logger.Warn("failed to record invalid event", "id", ev.ID, "error", err)
	}
}

// Close flushes and closes the record file.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}
