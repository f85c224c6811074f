package stream

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Recorder appends formatted log lines to one file per calendar day,
// created lazily on the first line of each day.
type Recorder struct {
	dir    string
	logger *zap.SugaredLogger

	mu   sync.Mutex
	day  string
	file *os.File
}

// NewRecorder creates a recorder writing into dir.
func NewRecorder(dir string, logger *zap.SugaredLogger) *Recorder {
	return &Recorder{dir: dir, logger: logger}
}

// Append writes one line to the day file for t. Disk failures are logged
// and swallowed: log recording is not allowed to disturb the stream.
func (r *Recorder) Append(t time.Time, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	day := t.Format("2006-01-02")
	if r.file == nil || day != r.day {
		if err := r.rotate(day); err != nil {
			r.logger.Warnw("Failed to open day log file", "day", day, "error", err)
			return
		}
	}

	if _, err := fmt.Fprintln(r.file, line); err != nil {
		r.logger.Warnw("Failed to append log line", "error", err)
	}
}

func (r *Recorder) rotate(day string) error {
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(r.dir, day+".log"),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	r.file = f
	r.day = day
	return nil
}

// Close releases the current day file.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
}
