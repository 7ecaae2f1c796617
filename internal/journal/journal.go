// Package journal keeps a hash-chained JSONL log of every backup store mutation.
package journal

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/savekeeper/savekeeper/pkg/errclass"
	"github.com/savekeeper/savekeeper/pkg/model"
)

// FileName is the journal file kept next to the config file.
const FileName = "journal.jsonl"

// PathFor returns the journal location for a config file path.
func PathFor(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), FileName)
}

// Journal appends records to a JSONL file. Each record carries the hash of its predecessor.
type Journal struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// New creates a journal writing to path.
func New(path string) *Journal {
	return &Journal{path: path, now: time.Now}
}

// Path returns the journal file location.
func (j *Journal) Path() string {
	return j.path
}

// Append adds a new record to the log.
func (j *Journal) Append(event model.JournalEventType, profile, backup string, details map[string]any) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(j.path), 0755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}
	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	if err := lockFile(file); err != nil {
		return fmt.Errorf("lock journal: %w", err)
	}
	defer unlockFile(file)

	prevHash, err := lastHash(file)
	if err != nil {
		return err
	}

	record := &model.JournalRecord{
		ID:        uuid.NewString(),
		Timestamp: j.now().UTC(),
		EventType: event,
		Profile:   profile,
		Backup:    backup,
		Details:   details,
		PrevHash:  prevHash,
	}
	record.RecordHash, err = recordHash(record)
	if err != nil {
		return err
	}

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal journal record: %w", err)
	}
	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek to end: %w", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write journal record: %w", err)
	}
	return file.Sync()
}

func lastHash(file *os.File) (string, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("seek to start: %w", err)
	}
	var last string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var r model.JournalRecord
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			continue
		}
		last = r.RecordHash
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan journal: %w", err)
	}
	return last, nil
}

func recordHash(r *model.JournalRecord) (string, error) {
	c := *r
	c.RecordHash = ""
	data, err := json.Marshal(&c)
	if err != nil {
		return "", fmt.Errorf("marshal for hash: %w", err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Filter narrows the records returned by Records.
type Filter struct {
	Profile string
	Backup  string
	Event   model.JournalEventType
	Since   time.Time
	Limit   int // newest records kept when > 0
}

func (f Filter) match(r *model.JournalRecord) bool {
	if f.Profile != "" && r.Profile != f.Profile {
		return false
	}
	if f.Backup != "" && r.Backup != f.Backup {
		return false
	}
	if f.Event != "" && r.EventType != f.Event {
		return false
	}
	if !f.Since.IsZero() && r.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// Records reads the records matching f in append order. A missing journal yields none.
func (j *Journal) Records(f Filter) ([]model.JournalRecord, error) {
	all, err := j.read()
	if err != nil {
		return nil, err
	}
	out := make([]model.JournalRecord, 0, len(all))
	for i := range all {
		if f.match(&all[i]) {
			out = append(out, all[i])
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out, nil
}

// Verify walks the hash chain and reports the number of intact records.
// A broken link or tampered record yields E_PARSE naming the offending line.
func (j *Journal) Verify() (int, error) {
	all, err := j.read()
	if err != nil {
		return 0, err
	}
	prev := ""
	for i := range all {
		r := &all[i]
		if r.PrevHash != prev {
			return i, errclass.ErrParse.WithMessagef("journal line %d: chain broken", i+1)
		}
		want, err := recordHash(r)
		if err != nil {
			return i, err
		}
		if want != r.RecordHash {
			return i, errclass.ErrParse.WithMessagef("journal line %d: record hash mismatch", i+1)
		}
		prev = r.RecordHash
	}
	return len(all), nil
}

func (j *Journal) read() ([]model.JournalRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	var out []model.JournalRecord
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var r model.JournalRecord
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			return nil, errclass.ErrParse.WithMessagef("journal line %d: %v", line, err)
		}
		out = append(out, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}
	return out, nil
}
