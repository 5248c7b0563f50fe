package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"path/filepath"
	"time"
)

// DiscrepancyKind classifies one integrity finding.
type DiscrepancyKind string

const (
	DiscrepancyHashMismatch DiscrepancyKind = "hash_mismatch"
	DiscrepancyBrokenLink   DiscrepancyKind = "broken_link"
	DiscrepancyBadSignature DiscrepancyKind = "bad_signature"
	DiscrepancyMalformed    DiscrepancyKind = "malformed_record"
)

// Discrepancy pins one finding to a file and line so an operator can
// locate the damage. Verification reports, it never repairs.
type Discrepancy struct {
	File    string          `json:"file"`
	Line    int             `json:"line"`
	EntryID string          `json:"entry_id,omitempty"`
	Kind    DiscrepancyKind `json:"kind"`
	Detail  string          `json:"detail"`
}

// Report is the result of one verification run.
type Report struct {
	Started       time.Time     `json:"started"`
	Finished      time.Time     `json:"finished"`
	Files         int           `json:"files"`
	Entries       int           `json:"entries"`
	Discrepancies []Discrepancy `json:"discrepancies"`
	Aborted       bool          `json:"aborted"`
}

// Intact reports whether the full scan completed without findings.
func (r *Report) Intact() bool {
	return !r.Aborted && len(r.Discrepancies) == 0
}

// Verify replays every retained file in filename order, recomputing each
// entry's hash and the link to its predecessor and, when a public key is
// configured, checking signatures. Every discrepancy is collected rather
// than stopping at the first, giving a complete damage report per run.
// Cancellation is honored between files; a cut-short report is flagged
// Aborted.
func (l *Logger) Verify(ctx context.Context) (*Report, error) {
	l.mu.Lock()
	dir := l.cfg.Dir
	verifyKey := l.verifyKey
	head := l.state.LastHash
	l.mu.Unlock()

	report := &Report{Started: l.now().UTC()}

	names, err := ledgerFiles(dir)
	if err != nil {
		return nil, err
	}

	// The link into the oldest retained file cannot be checked once
	// retention has deleted its predecessor; the first entry seen
	// anchors the replay.
	expectedPrev := ""

	for _, name := range names {
		if ctx.Err() != nil {
			report.Aborted = true
			break
		}

		report.Files++
		expectedPrev = l.verifyFile(dir, name, expectedPrev, verifyKey, report)
	}

	// Truncating the tail leaves every remaining entry valid, so the
	// replayed head must also match the persisted chain head or the
	// newest records have been removed.
	if !report.Aborted && report.Entries > 0 && expectedPrev != head {
		report.Discrepancies = append(report.Discrepancies, Discrepancy{
			File:   names[len(names)-1],
			Kind:   DiscrepancyBrokenLink,
			Detail: "last entry's current_hash does not match the persisted chain head",
		})
	}

	report.Finished = l.now().UTC()

	return report, nil
}

// verifyFile scans one file and returns the chain head expected by the
// next file.
func (l *Logger) verifyFile(dir, name, expectedPrev string, verifyKey []byte, report *Report) string {
	r, err := openReader(filepath.Join(dir, name))
	if err != nil {
		report.Discrepancies = append(report.Discrepancies, Discrepancy{
			File:   name,
			Kind:   DiscrepancyMalformed,
			Detail: err.Error(),
		})
		return expectedPrev
	}
	defer r.Close()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		line++

		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			report.Discrepancies = append(report.Discrepancies, Discrepancy{
				File:   name,
				Line:   line,
				Kind:   DiscrepancyMalformed,
				Detail: err.Error(),
			})
			continue
		}
		report.Entries++

		if recomputed := entry.ComputeHash(); recomputed != entry.CurrentHash {
			report.Discrepancies = append(report.Discrepancies, Discrepancy{
				File:    name,
				Line:    line,
				EntryID: entry.ID,
				Kind:    DiscrepancyHashMismatch,
				Detail:  "stored hash does not match recomputed hash",
			})
		}

		if expectedPrev != "" && entry.PreviousHash != expectedPrev {
			report.Discrepancies = append(report.Discrepancies, Discrepancy{
				File:    name,
				Line:    line,
				EntryID: entry.ID,
				Kind:    DiscrepancyBrokenLink,
				Detail:  "previous_hash does not match predecessor's current_hash",
			})
		}

		if len(verifyKey) > 0 && !entry.VerifySignature(verifyKey) {
			report.Discrepancies = append(report.Discrepancies, Discrepancy{
				File:    name,
				Line:    line,
				EntryID: entry.ID,
				Kind:    DiscrepancyBadSignature,
				Detail:  "signature does not verify against configured public key",
			})
		}

		expectedPrev = entry.CurrentHash
	}

	if err := scanner.Err(); err != nil {
		report.Discrepancies = append(report.Discrepancies, Discrepancy{
			File:   name,
			Line:   line,
			Kind:   DiscrepancyMalformed,
			Detail: err.Error(),
		})
	}

	return expectedPrev
}
