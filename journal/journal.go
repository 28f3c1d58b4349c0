// Package journal records the refresh lifecycle as an append-only JSONL
// trail: what was observed, what the evaluation concluded, what got
// published, and what failed. The trail is for audit and postmortems, not
// for serving queries.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EntryType defines the type of journal entry
type EntryType string

const (
	EntryObserved  EntryType = "observed"
	EntryEvaluated EntryType = "evaluated"
	EntryPublished EntryType = "published"
	EntryPruned    EntryType = "pruned"
	EntryReloaded  EntryType = "reloaded"
	EntryFailed    EntryType = "failed"
)

const filePrefix = "vahti"

// Entry represents a single journal entry
type Entry struct {
	Timestamp  time.Time       `json:"timestamp"`
	Sequence   int64           `json:"sequence"`
	Type       EntryType       `json:"type"`
	SnapshotID string          `json:"snapshot_id,omitempty"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error,omitempty"`
}

// Journal appends refresh lifecycle entries to a timestamped file
type Journal struct {
	mu       sync.Mutex
	file     *os.File
	writer   *bufio.Writer
	sequence int64
	dir      string
}

// Open creates or opens a journal in the specified directory. Each open
// starts a fresh file; the sequence continues from the highest one found
// in earlier files.
func Open(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	filename := fmt.Sprintf("%s-%s.journal", filePrefix, time.Now().Format("20060102-150405"))
	path := filepath.Join(dir, filename)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) // #nosec G304 -- path built from config dir
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}

	return &Journal{
		file:     file,
		writer:   bufio.NewWriter(file),
		sequence: lastSequence(dir),
		dir:      dir,
	}, nil
}

// Close flushes and closes the journal
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.writer.Flush(); err != nil {
		return err
	}
	return j.file.Close()
}

// Append adds an entry to the journal
func (j *Journal) Append(entryType EntryType, snapshotID string, data interface{}) error {
	return j.append(entryType, snapshotID, data, nil)
}

// AppendError adds an entry recording a failure
func (j *Journal) AppendError(entryType EntryType, snapshotID string, data interface{}, cause error) error {
	return j.append(entryType, snapshotID, data, cause)
}

func (j *Journal) append(entryType EntryType, snapshotID string, data interface{}, cause error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	j.sequence++
	entry := Entry{
		Timestamp:  time.Now(),
		Sequence:   j.sequence,
		Type:       entryType,
		SnapshotID: snapshotID,
		Data:       jsonData,
	}
	if cause != nil {
		entry.Error = cause.Error()
	}

	return j.writeEntry(entry)
}

// writeEntry writes a single entry and forces it to disk
func (j *Journal) writeEntry(entry Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	if _, err := j.writer.Write(line); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	if _, err := j.writer.WriteString("\n"); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	if err := j.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	return j.file.Sync()
}

// lastSequence scans existing journal files for the highest sequence
// written so far. Corrupt lines are skipped; a fresh directory yields 0.
func lastSequence(dir string) int64 {
	files, err := filepath.Glob(filepath.Join(dir, filePrefix+"-*.journal"))
	if err != nil {
		return 0
	}

	var maxSeq int64
	for _, path := range files {
		if seq := maxSequenceInFile(path); seq > maxSeq {
			maxSeq = seq
		}
	}
	return maxSeq
}

func maxSequenceInFile(path string) int64 {
	file, err := os.Open(path) // #nosec G304 -- path comes from our own glob
	if err != nil {
		return 0
	}
	defer func() { _ = file.Close() }()

	var maxSeq int64
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if entry.Sequence > maxSeq {
			maxSeq = entry.Sequence
		}
	}
	return maxSeq
}

// Reader provides journal replay functionality
type Reader struct {
	scanner *bufio.Scanner
	file    *os.File
}

// NewReader creates a journal reader for the specified file
func NewReader(path string) (*Reader, error) {
	file, err := os.Open(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}

	return &Reader{
		scanner: bufio.NewScanner(file),
		file:    file,
	}, nil
}

// errCorruptEntry marks a line that is not a valid journal entry, usually
// a torn write from a crashed process
var errCorruptEntry = errors.New("corrupt journal entry")

// Next reads the next entry from the journal
func (r *Reader) Next() (*Entry, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	var entry Entry
	if err := json.Unmarshal(r.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", errCorruptEntry, err)
	}

	return &entry, nil
}

// Close closes the reader
func (r *Reader) Close() error {
	return r.file.Close()
}

// Replay walks journal entries newer than since across all files in dir
func Replay(dir string, since time.Time, handler func(*Entry) error) error {
	files, err := filepath.Glob(filepath.Join(dir, filePrefix+"-*.journal"))
	if err != nil {
		return fmt.Errorf("failed to list journal files: %w", err)
	}

	for _, file := range files {
		if err := replayFile(file, since, handler); err != nil {
			return err
		}
	}
	return nil
}

func replayFile(path string, since time.Time, handler func(*Entry) error) error {
	reader, err := NewReader(path)
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()

	for {
		entry, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if errors.Is(err, errCorruptEntry) {
			continue
		}
		if err != nil {
			return err
		}
		if entry.Timestamp.After(since) {
			if err := handler(entry); err != nil {
				return err
			}
		}
	}
}
