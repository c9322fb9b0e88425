package vm

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteTraceSink persists every unhandled exception's StackTrace rows
// to a SQLite file for postmortem inspection across process runs — the
// in-memory *StackTrace built by unwindStack remains the canonical
// runtime representation this only mirrors.
type SQLiteTraceSink struct {
	db *sql.DB
}

// OpenSQLiteTraceSink opens (creating if absent) the trace table at
// path. Typically wired from a Config.TraceSink DSN of the form
// "sqlite://path/to/file.db".
func OpenSQLiteTraceSink(path string) (*SQLiteTraceSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("tracesink_sqlite: open: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS stack_trace (
	session_id TEXT NOT NULL,
	depth      INTEGER NOT NULL,
	module     TEXT NOT NULL,
	function   TEXT NOT NULL,
	line       INTEGER NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("tracesink_sqlite: schema: %w", err)
	}
	return &SQLiteTraceSink{db: db}, nil
}

// Record implements StackTraceRecorder: frames are written innermost
// first, matching the order unwindStack appended them in, with depth
// as an explicit column so a later query can reconstruct the original
// ordering regardless of how the rows are read back.
func (s *SQLiteTraceSink) Record(sessionID string, module, function string, frames []TraceFrame) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("tracesink_sqlite: begin: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO stack_trace (session_id, depth, module, function, line) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("tracesink_sqlite: prepare: %w", err)
	}
	defer stmt.Close()
	for depth, f := range frames {
		mod, fn := f.Module, f.Function
		if mod == "" {
			mod = module
		}
		if fn == "" {
			fn = function
		}
		if _, err := stmt.Exec(sessionID, depth, mod, fn, f.Line); err != nil {
			tx.Rollback()
			return fmt.Errorf("tracesink_sqlite: insert: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteTraceSink) Close() error {
	return s.db.Close()
}
