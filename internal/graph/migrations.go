package graph

import (
	"database/sql"
	"fmt"

	"layeredquery/internal/logging"
)

// columnMigration adds column Def to Table if the table exists and the
// column is missing, an ALTER-TABLE-if-needed approach for upgrading
// databases created by an older binary.
type columnMigration struct {
	table  string
	column string
	def    string
}

var pendingMigrations = []columnMigration{
	{"concepts", "last_seen", "DATETIME"},
	{"relationships", "last_confirmed", "DATETIME"},
}

func runMigrations(db *sql.DB) error {
	applied, skipped := 0, 0
	for _, m := range pendingMigrations {
		if !tableExists(db, m.table) {
			skipped++
			continue
		}
		if columnExists(db, m.table, m.column) {
			skipped++
			continue
		}
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.table, m.column, m.def)
		if _, err := db.Exec(query); err != nil {
			logging.GraphWarn("migration failed (may already exist): %s.%s: %v", m.table, m.column, err)
			skipped++
			continue
		}
		applied++
	}
	logging.GraphDebug("schema migrations complete: applied=%d skipped=%d", applied, skipped)
	return nil
}

func tableExists(db *sql.DB, table string) bool {
	row := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name = ?`, table)
	var name string
	return row.Scan(&name) == nil
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}
