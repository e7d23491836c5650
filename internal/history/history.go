package history

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"towncrier/pkg/logging"
)

// Record is one used topic, appended when the agent commits to it. The
// commit happens before composition, so the record carries the topic only.
type Record struct {
	Topic  string    `json:"topic"`
	UsedAt time.Time `json:"used_at"`
}

// Store is an append-only topic history backed by a JSON-lines file. The
// agent is the single writer; reads and writes happen within one cycle, so
// no locking is needed.
type Store struct {
	path    string
	logger  logging.Logger
	records []Record
}

// Open loads the history file at path. A missing file is a fresh start.
// Corrupt lines are skipped with a warning rather than failing the load.
func Open(path string, logger logging.Logger) (*Store, error) {
	s := &Store{path: path, logger: logger}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.WithField("path", path).Info("No topic history found, starting fresh")
			return s, nil
		}
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			logger.WithField("line", line).WithError(err).Warn("Skipping corrupt history record")
			continue
		}
		s.records = append(s.records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read history %s: %w", path, err)
	}

	logger.WithField("count", len(s.records)).Info("Loaded topic history")
	return s, nil
}

// Append records a used topic in memory and flushes it to disk immediately.
func (s *Store) Append(rec Record) error {
	if rec.UsedAt.IsZero() {
		rec.UsedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode history record: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history for append: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("append history record: %w", err)
	}

	s.records = append(s.records, rec)
	return nil
}

// Recent returns up to n most recent records, newest last.
func (s *Store) Recent(n int) []Record {
	if n <= 0 || len(s.records) == 0 {
		return nil
	}
	if n > len(s.records) {
		n = len(s.records)
	}
	out := make([]Record, n)
	copy(out, s.records[len(s.records)-n:])
	return out
}

// RecentTopics returns the topics of the last n records.
func (s *Store) RecentTopics(n int) []string {
	recent := s.Recent(n)
	topics := make([]string, 0, len(recent))
	for _, rec := range recent {
		topics = append(topics, rec.Topic)
	}
	return topics
}

// Contains reports whether topic was used within the last window entries.
// Matching is a case-insensitive exact comparison after normalization.
func (s *Store) Contains(topic string, window int) bool {
	needle := Normalize(topic)
	if needle == "" {
		return false
	}
	for _, rec := range s.Recent(window) {
		if Normalize(rec.Topic) == needle {
			return true
		}
	}
	return false
}

// Len returns the number of loaded records.
func (s *Store) Len() int {
	return len(s.records)
}

// Normalize prepares a topic string for duplicate comparison: surrounding
// whitespace and quote characters are stripped and the result lowercased.
func Normalize(topic string) string {
	trimmed := strings.TrimSpace(topic)
	trimmed = strings.Trim(trimmed, `"'`)
	trimmed = strings.TrimSpace(trimmed)
	return strings.ToLower(trimmed)
}
