// Package msglog implements the durable per-chat message log.
// The log is a single CSV file rewritten whole on every append; the
// rewrite is what makes the duplicate scan see every prior record.
package msglog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// DateLayout is the timestamp format used in the persisted log.
// Second precision, matching the transport-provided message dates.
const DateLayout = "2006-01-02 15:04:05"

// dedupTolerance is the band within which two timestamps count as the
// same delivery. Kept deliberately loose (not exact-second equality) so
// near-simultaneous duplicate deliveries are still suppressed.
const dedupTolerance = time.Second

// ErrStoreCorrupt is returned when the log file exists but cannot be
// parsed. A missing or empty file is a valid empty log, not this error.
var ErrStoreCorrupt = errors.New("message log is corrupt")

// Record is one logged chat message. Records are immutable once
// persisted; the store only ever appends.
type Record struct {
	UserID   int64
	Username string
	ChatID   int64
	Text     string
	Date     time.Time

	// Legacy marks a row loaded from a log written before the chat_id
	// column existed. Legacy rows belong to every chat partition.
	Legacy bool
}

var header = []string{"user_id", "username", "chat_id", "message", "date"}

// Store owns the log file. All operations are serialized by an internal
// mutex: an append is a full load-modify-save cycle and must not
// interleave with another writer (live ingestion vs. a sync batch).
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store backed by the CSV file at path. The file is
// created lazily on first append.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the location of the backing log file.
func (s *Store) Path() string {
	return s.path
}

// Append adds rec to the log unless an equivalent record already
// exists. It reports true when the record was added and false when it
// was a duplicate; a duplicate is not an error. Every call reloads and
// rewrites the whole log.
func (s *Store) Append(rec Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return false, err
	}

	for _, existing := range records {
		if isDuplicate(existing, rec) {
			return false, nil
		}
	}

	records = append(records, rec)
	if err := s.save(records); err != nil {
		return false, fmt.Errorf("append message: %w", err)
	}
	return true, nil
}

// Load returns every record in insertion order. A missing or empty log
// file yields an empty slice.
func (s *Store) Load() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func isDuplicate(a, b Record) bool {
	if !a.Legacy && !b.Legacy && a.ChatID != b.ChatID {
		return false
	}
	if a.Text != b.Text {
		return false
	}
	d := a.Date.Sub(b.Date)
	if d < 0 {
		d = -d
	}
	return d < dedupTolerance
}

func (s *Store) load() ([]Record, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open message log: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	head, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}

	cols := make(map[string]int, len(head))
	for i, name := range head {
		cols[name] = i
	}
	for _, required := range []string{"user_id", "username", "message", "date"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrStoreCorrupt, required)
		}
	}
	chatCol, hasChatID := cols["chat_id"]

	var records []Record
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
		}

		rec, err := parseRow(row, cols, chatCol, hasChatID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRow(row []string, cols map[string]int, chatCol int, hasChatID bool) (Record, error) {
	field := func(i int) (string, error) {
		if i >= len(row) {
			return "", fmt.Errorf("row has %d fields, want at least %d", len(row), i+1)
		}
		return row[i], nil
	}

	var rec Record
	raw, err := field(cols["user_id"])
	if err != nil {
		return rec, err
	}
	rec.UserID, err = strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return rec, fmt.Errorf("parse user_id %q: %v", raw, err)
	}

	rec.Username, err = field(cols["username"])
	if err != nil {
		return rec, err
	}
	if rec.Username == "" {
		rec.Username = "Unknown"
	}

	// An absent chat_id column (pre-chat_id log) or an empty cell (legacy
	// row carried through a rewrite) both mark a legacy record.
	if hasChatID {
		raw, err = field(chatCol)
		if err != nil {
			return rec, err
		}
		if raw == "" {
			rec.Legacy = true
		} else {
			rec.ChatID, err = strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return rec, fmt.Errorf("parse chat_id %q: %v", raw, err)
			}
		}
	} else {
		rec.Legacy = true
	}

	rec.Text, err = field(cols["message"])
	if err != nil {
		return rec, err
	}

	raw, err = field(cols["date"])
	if err != nil {
		return rec, err
	}
	rec.Date, err = time.ParseInLocation(DateLayout, raw, time.Local)
	if err != nil {
		return rec, fmt.Errorf("parse date %q: %v", raw, err)
	}
	return rec, nil
}

// save rewrites the whole log atomically: write a temp file in the same
// directory, then rename over the old log.
func (s *Store) save(records []Record) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp log: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("write log header: %w", err)
	}
	for _, rec := range records {
		chat := strconv.FormatInt(rec.ChatID, 10)
		if rec.Legacy {
			chat = ""
		}
		row := []string{
			strconv.FormatInt(rec.UserID, 10),
			rec.Username,
			chat,
			rec.Text,
			rec.Date.Format(DateLayout),
		}
		if err := w.Write(row); err != nil {
			tmp.Close()
			return fmt.Errorf("write log row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp log: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace log: %w", err)
	}
	return nil
}
