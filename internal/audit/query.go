package audit

import (
	"bufio"
	"encoding/json"
	"path/filepath"
	"time"
)

// maxLineSize bounds a single serialized record during scans.
const maxLineSize = 1 << 20

// Filter selects entries by per-field equality plus an optional time
// range. Zero values match everything; Offset/Limit paginate after
// filtering.
type Filter struct {
	EventType     string
	Resource      string
	Action        string
	Status        string
	UserID        string
	CorrelationID string
	From          time.Time
	To            time.Time
	Offset        int
	Limit         int
}

func (f Filter) matches(e *Entry) bool {
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if f.Resource != "" && e.Resource != f.Resource {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.CorrelationID != "" && e.CorrelationID != f.CorrelationID {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}

	return true
}

// Query scans the ledger newest-first and returns matching entries.
// Rotation never mutates closed files, so a rotation racing the scan is
// harmless. Malformed lines are skipped; query is a read surface, the
// complete damage report belongs to Verify.
func (l *Logger) Query(filter Filter) ([]*Entry, error) {
	l.mu.Lock()
	dir := l.cfg.Dir
	l.mu.Unlock()

	names, err := ledgerFiles(dir)
	if err != nil {
		return nil, err
	}

	var (
		out     []*Entry
		skipped int
	)

	// Files ascend chronologically; walk them backward, and each
	// file's entries backward, for newest-first results.
	for i := len(names) - 1; i >= 0; i-- {
		entries, err := readFileEntries(filepath.Join(dir, names[i]))
		if err != nil {
			l.log.Warn().Str("file", names[i]).Err(err).Msg("Skipping unreadable audit file during query")
			continue
		}

		for j := len(entries) - 1; j >= 0; j-- {
			if !filter.matches(entries[j]) {
				continue
			}
			if skipped < filter.Offset {
				skipped++
				continue
			}

			out = append(out, entries[j])
			if filter.Limit > 0 && len(out) >= filter.Limit {
				return out, nil
			}
		}
	}

	return out, nil
}

func readFileEntries(path string) ([]*Entry, error) {
	r, err := openReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var entries []*Entry

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		entries = append(entries, &entry)
	}

	return entries, scanner.Err()
}
