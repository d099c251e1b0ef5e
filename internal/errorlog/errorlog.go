package errorlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/askql/backend/internal/models"
	"github.com/askql/backend/pkg/logger"
)

const (
	jsonlName    = "ai_errors.jsonl"
	readableName = "ai_errors_readable.log"

	maxFileBytes = 5 << 20
	maxInMemory  = 500
)

// Log is an append-only failure journal. Every entry goes to a JSONL file
// for machines, a readable companion file for humans, and an in-memory
// ring for the API. The ring is rebuilt from the JSONL file on open.
type Log struct {
	mu      sync.Mutex
	dir     string
	entries []models.ErrorLogEntry
}

func Open(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create error log dir: %w", err)
	}

	l := &Log{dir: dir}
	if err := l.load(); err != nil {
		return nil, err
	}

	logger.Info("Error log opened",
		zap.String("dir", dir),
		zap.Int("entries", len(l.entries)),
	)
	return l, nil
}

func (l *Log) load() error {
	f, err := os.Open(filepath.Join(l.dir, jsonlName))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open error log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		var entry models.ErrorLogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		l.entries = append(l.entries, entry)
	}
	if len(l.entries) > maxInMemory {
		l.entries = l.entries[len(l.entries)-maxInMemory:]
	}
	return scanner.Err()
}

// Append records one failure. Write errors are logged and swallowed; the
// journal never fails the pipeline that feeds it.
func (l *Log) Append(entry models.ErrorLogEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, entry)
	if len(l.entries) > maxInMemory {
		l.entries = l.entries[1:]
	}

	if err := l.writeJSONL(entry); err != nil {
		logger.Warn("Failed to write error log entry", zap.Error(err))
	}
	if err := l.writeReadable(entry); err != nil {
		logger.Warn("Failed to write readable error log entry", zap.Error(err))
	}
}

func (l *Log) writeJSONL(entry models.ErrorLogEntry) error {
	path := filepath.Join(l.dir, jsonlName)
	rotateIfLarge(path)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	return err
}

func (l *Log) writeReadable(entry models.ErrorLogEntry) error {
	path := filepath.Join(l.dir, readableName)
	rotateIfLarge(path)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "[%s] %s (source=%s attempt=%d)\n  question: %s\n  sql: %s\n  error: %s\n\n",
		entry.Timestamp.Format(time.RFC3339),
		entry.Kind, entry.Source, entry.Attempt,
		entry.Question, entry.SQL, entry.Message,
	)
	return err
}

func rotateIfLarge(path string) {
	info, err := os.Stat(path)
	if err != nil || info.Size() < maxFileBytes {
		return
	}
	os.Rename(path, path+".1")
}

// Recent returns up to n entries, newest first.
func (l *Log) Recent(n int) []models.ErrorLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}

	out := make([]models.ErrorLogEntry, 0, n)
	for i := len(l.entries) - 1; i >= len(l.entries)-n; i-- {
		out = append(out, l.entries[i])
	}
	return out
}

// Summary aggregates the in-memory entries by failure kind.
type Summary struct {
	Total  int                        `json:"total"`
	ByKind map[models.FailureKind]int `json:"by_kind"`
	Latest *time.Time                 `json:"latest,omitempty"`
}

func (l *Log) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Summary{ByKind: make(map[models.FailureKind]int)}
	for _, entry := range l.entries {
		s.Total++
		s.ByKind[entry.Kind]++
	}
	if len(l.entries) > 0 {
		ts := l.entries[len(l.entries)-1].Timestamp
		s.Latest = &ts
	}
	return s
}
