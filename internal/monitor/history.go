package monitor

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"codeberg.org/halcyard/taskguard/internal/errors"
	"codeberg.org/halcyard/taskguard/internal/logger"
)

const (
	historySchemaVersion = 1
	historyDirPerm       = 0o755

	createHistorySQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS stats_windows (
	       window_start    INTEGER NOT NULL,
	       window_end      INTEGER NOT NULL,
	       total           INTEGER NOT NULL,
	       successful      INTEGER NOT NULL,
	       failed          INTEGER NOT NULL,
	       avg_duration_ms REAL NOT NULL,
	       max_cpu         REAL NOT NULL,
	       max_memory      REAL NOT NULL,
	       max_disk        REAL NOT NULL,
	       max_network     REAL NOT NULL,
	       security_events INTEGER NOT NULL,
	       error_codes     TEXT NOT NULL,
	       skills          TEXT NOT NULL,
	       PRIMARY KEY (window_start, window_end)
	   );`

	insertWindowSQL = `
    INSERT OR REPLACE INTO stats_windows (
        window_start, window_end,
        total, successful, failed, avg_duration_ms,
        max_cpu, max_memory, max_disk, max_network,
        security_events, error_codes, skills
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

// WindowRecord is one persisted stats window.
type WindowRecord struct {
	WindowStart    time.Time
	WindowEnd      time.Time
	Total          int64
	Successful     int64
	Failed         int64
	AvgDurationMs  float64
	Maxima         ResourceMaxima
	SecurityEvents int64
	ErrorCodes     map[string]int64
	Skills         map[string]SkillStats
}

// History persists stats snapshots taken before each hourly window
// reset. The monitor itself never writes here; the scheduler is the
// consumer that snapshots ahead of the reset.
type History struct {
	db  *sql.DB
	log logger.Logger
}

func NewHistory(dbPath string, log logger.Logger) (*History, error) {
	errFactory := errors.New()

	if dbPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), historyDirPerm); err != nil {
		return nil, errFactory.WithData(ErrHistoryInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  dbPath,
			Error: err.Error(),
		})
	}

	dsn := dbPath + "?_journal=WAL&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.Wrap(ErrHistoryInit, err)
	}

	if err := initHistorySchema(db); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().
		Str("path", dbPath).
		Int("schema_version", historySchemaVersion).
		Msg("Stats history initialized")

	return &History{db: db, log: log}, nil
}

func initHistorySchema(db *sql.DB) error {
	errFactory := errors.New()

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if _, err := tx.Exec(createHistorySQL); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	if _, err := tx.Exec(`
        INSERT OR IGNORE INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, historySchemaVersion); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	return nil
}

// Record persists one window snapshot.
func (h *History) Record(stats Stats, windowEnd time.Time) error {
	errFactory := errors.New()

	errorCodes, err := json.Marshal(stats.ErrorCodes)
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	skills, err := json.Marshal(stats.Skills)
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	tx, err := h.db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	if _, err := tx.Exec(insertWindowSQL,
		stats.WindowStart.Unix(),
		windowEnd.Unix(),
		stats.Total,
		stats.Successful,
		stats.Failed,
		float64(stats.AvgDuration)/float64(time.Millisecond),
		stats.Maxima.MaxCPU,
		stats.Maxima.MaxMemory,
		stats.Maxima.MaxDisk,
		stats.Maxima.MaxNetwork,
		stats.SecurityEvents,
		string(errorCodes),
		string(skills),
	); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			h.log.Error().Err(rerr).Msg("Failed to roll back history transaction")
		}
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	h.log.Debug().
		Time("window_start", stats.WindowStart).
		Int64("total", stats.Total).
		Msg("Stats window persisted")

	return nil
}

// Latest returns up to n most recent persisted windows, newest first.
func (h *History) Latest(n int) ([]WindowRecord, error) {
	errFactory := errors.New()

	rows, err := h.db.Query(`
        SELECT window_start, window_end,
               total, successful, failed, avg_duration_ms,
               max_cpu, max_memory, max_disk, max_network,
               security_events, error_codes, skills
        FROM stats_windows
        ORDER BY window_start DESC
        LIMIT ?
    `, n)
	if err != nil {
		return nil, errFactory.Wrap(ErrHistoryQuery, err)
	}
	defer rows.Close()

	var out []WindowRecord
	for rows.Next() {
		var (
			rec             WindowRecord
			start, end      int64
			codesB, skillsB string
		)
		if err := rows.Scan(&start, &end,
			&rec.Total, &rec.Successful, &rec.Failed, &rec.AvgDurationMs,
			&rec.Maxima.MaxCPU, &rec.Maxima.MaxMemory, &rec.Maxima.MaxDisk, &rec.Maxima.MaxNetwork,
			&rec.SecurityEvents, &codesB, &skillsB); err != nil {
			return nil, errFactory.Wrap(ErrHistoryQuery, err)
		}

		rec.WindowStart = time.Unix(start, 0).UTC()
		rec.WindowEnd = time.Unix(end, 0).UTC()
		if err := json.Unmarshal([]byte(codesB), &rec.ErrorCodes); err != nil {
			return nil, errFactory.Wrap(ErrHistoryQuery, err)
		}
		if err := json.Unmarshal([]byte(skillsB), &rec.Skills); err != nil {
			return nil, errFactory.Wrap(ErrHistoryQuery, err)
		}

		out = append(out, rec)
	}

	return out, rows.Err()
}

// Close checkpoints the WAL and closes the database.
func (h *History) Close() error {
	errFactory := errors.New()

	if _, err := h.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errFactory.Wrap(ErrHistoryClose, err)
	}
	if err := h.db.Close(); err != nil {
		return errFactory.Wrap(ErrHistoryClose, err)
	}

	h.log.Info().Msg("Stats history closed")

	return nil
}
