package vm

import (
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb"
)

// DuckDBMetricsSink persists the opcode-dispatch histogram (one
// counter per Opcode, maintained by run() as a zero-overhead array
// increment) to a DuckDB file at VM shutdown, for offline analysis
// across many process runs — a columnar aggregate, distinct from the
// SQLite sink's row-structured exception traces.
type DuckDBMetricsSink struct {
	db *sql.DB
}

// OpenDuckDBMetricsSink opens (creating if absent) the opcode_counts
// table at path. Typically wired from a Config.MetricsSink DSN of the
// form "duckdb://path/to/file.duckdb".
func OpenDuckDBMetricsSink(path string) (*DuckDBMetricsSink, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("metricssink_duckdb: open: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS opcode_counts (
	session_id TEXT,
	opcode     UTINYINT,
	count      BIGINT
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("metricssink_duckdb: schema: %w", err)
	}
	return &DuckDBMetricsSink{db: db}, nil
}

// Flush implements MetricsSink: only non-zero counters are written, so
// a short-lived VM that only ever dispatched a handful of opcodes
// doesn't pay for 256 rows of zeroes.
func (s *DuckDBMetricsSink) Flush(sessionID string, counts [256]int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("metricssink_duckdb: begin: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO opcode_counts (session_id, opcode, count) VALUES (?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("metricssink_duckdb: prepare: %w", err)
	}
	defer stmt.Close()
	for op, n := range counts {
		if n == 0 {
			continue
		}
		if _, err := stmt.Exec(sessionID, op, n); err != nil {
			tx.Rollback()
			return fmt.Errorf("metricssink_duckdb: insert: %w", err)
		}
	}
	return tx.Commit()
}

func (s *DuckDBMetricsSink) Close() error {
	return s.db.Close()
}
