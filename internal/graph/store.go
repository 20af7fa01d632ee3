// Package graph implements Layer 3 — the embedded Concept Graph: durable
// storage for concepts, their symbol representations, and the typed
// relationships between them, plus bounded-depth traversal and
// approximate name matching. Grounded on
// internal/store/local.go (SQLite schema/initialize pattern),
// internal/store/migrations.go (versioned ALTER TABLE migrations), and
// internal/store/local_graph.go (TraversePath's cameFrom-map BFS).
package graph

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"layeredquery/internal/logging"
	"layeredquery/internal/types"
)

// Store is the embedded Concept Graph store.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

const schemaVersion = 1

// Open opens (creating if needed) the SQLite-backed concept graph at
// path and ensures its schema exists.
func Open(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryGraph, "Open")
	defer timer.Stop()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("graph: creating directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("graph: opening database: %w", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS concepts (
		id TEXT PRIMARY KEY,
		canonical_name TEXT NOT NULL,
		kind TEXT NOT NULL,
		confidence REAL NOT NULL DEFAULT 0.5,
		metadata TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_concepts_name ON concepts(canonical_name);
	CREATE INDEX IF NOT EXISTS idx_concepts_kind ON concepts(kind);

	CREATE TABLE IF NOT EXISTS symbol_representations (
		concept_id TEXT NOT NULL,
		name TEXT NOT NULL,
		uri TEXT NOT NULL,
		start_line INTEGER NOT NULL,
		start_col INTEGER NOT NULL,
		end_line INTEGER NOT NULL,
		end_col INTEGER NOT NULL,
		occurrences INTEGER NOT NULL DEFAULT 1,
		context TEXT,
		PRIMARY KEY (concept_id, uri, start_line, start_col)
	);
	CREATE INDEX IF NOT EXISTS idx_reps_name ON symbol_representations(name);
	CREATE INDEX IF NOT EXISTS idx_reps_uri ON symbol_representations(uri);

	CREATE TABLE IF NOT EXISTS relationships (
		source TEXT NOT NULL,
		target TEXT NOT NULL,
		type TEXT NOT NULL,
		confidence REAL NOT NULL DEFAULT 0.5,
		metadata TEXT,
		PRIMARY KEY (source, target, type)
	);
	CREATE INDEX IF NOT EXISTS idx_rel_source ON relationships(source);
	CREATE INDEX IF NOT EXISTS idx_rel_target ON relationships(target);

	CREATE TABLE IF NOT EXISTS patterns (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		template TEXT NOT NULL,
		category TEXT NOT NULL,
		occurrences INTEGER NOT NULL DEFAULT 0,
		confidence REAL NOT NULL DEFAULT 0.5,
		last_used DATETIME,
		decay_rate REAL NOT NULL DEFAULT 0.0
	);
	CREATE INDEX IF NOT EXISTS idx_patterns_category ON patterns(category);

	CREATE TABLE IF NOT EXISTS schema_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("graph: initializing schema: %w", err)
	}
	return runMigrations(s.db)
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for the pattern learner (L4), which shares
// this store's database file rather than opening a second connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// UpsertConcept inserts or updates a concept by id.
func (s *Store) UpsertConcept(c types.Concept) error {
	if !c.Valid() {
		return types.NewError(types.ErrInvalidRequest, "invalid concept", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := marshalMetadata(c.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO concepts (id, canonical_name, kind, confidence, metadata)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   canonical_name = excluded.canonical_name,
		   kind = excluded.kind,
		   confidence = excluded.confidence,
		   metadata = excluded.metadata`,
		c.ID, c.CanonicalName, string(c.Kind), c.Confidence, meta,
	)
	if err != nil {
		return fmt.Errorf("graph: upserting concept %s: %w", c.ID, err)
	}
	return nil
}

// GetConcept fetches a concept by id, returning (zero, false) if absent.
func (s *Store) GetConcept(id string) (types.Concept, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT id, canonical_name, kind, confidence, metadata FROM concepts WHERE id = ?`, id)
	c, err := scanConcept(row)
	if err == sql.ErrNoRows {
		return types.Concept{}, false, nil
	}
	if err != nil {
		return types.Concept{}, false, fmt.Errorf("graph: fetching concept %s: %w", id, err)
	}
	return c, true, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConcept(row rowScanner) (types.Concept, error) {
	var c types.Concept
	var kind, meta string
	if err := row.Scan(&c.ID, &c.CanonicalName, &kind, &c.Confidence, &meta); err != nil {
		return types.Concept{}, err
	}
	c.Kind = types.ConceptKind(kind)
	c.Metadata, _ = unmarshalMetadata(meta)
	return c, nil
}

// AddRepresentation records an occurrence of a concept at a location.
func (s *Store) AddRepresentation(rep types.SymbolRepresentation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO symbol_representations
		   (concept_id, name, uri, start_line, start_col, end_line, end_col, occurrences, context)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(concept_id, uri, start_line, start_col) DO UPDATE SET
		   occurrences = symbol_representations.occurrences + 1`,
		rep.ConceptID, rep.Name, rep.Location.Start.URI,
		rep.Location.Start.Line, rep.Location.Start.Col,
		rep.Location.End.Line, rep.Location.End.Col,
		rep.Occurrences, rep.Context,
	)
	if err != nil {
		return fmt.Errorf("graph: adding representation: %w", err)
	}
	return nil
}

// RepresentationsFor returns every recorded occurrence of conceptID.
func (s *Store) RepresentationsFor(conceptID string) ([]types.SymbolRepresentation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT concept_id, name, uri, start_line, start_col, end_line, end_col, occurrences, context
		 FROM symbol_representations WHERE concept_id = ?`, conceptID)
	if err != nil {
		return nil, fmt.Errorf("graph: querying representations: %w", err)
	}
	defer rows.Close()

	var out []types.SymbolRepresentation
	for rows.Next() {
		var r types.SymbolRepresentation
		if err := rows.Scan(&r.ConceptID, &r.Name, &r.Location.Start.URI,
			&r.Location.Start.Line, &r.Location.Start.Col,
			&r.Location.End.Line, &r.Location.End.Col,
			&r.Occurrences, &r.Context); err != nil {
			logging.GraphWarn("scanning representation row: %v", err)
			continue
		}
		r.Location.End.URI = r.Location.Start.URI
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertRelationship inserts or strengthens an edge between two concepts.
func (s *Store) UpsertRelationship(r types.Relationship) error {
	if !r.Valid() {
		return types.NewError(types.ErrInvalidRequest, "invalid relationship", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := marshalMetadata(r.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO relationships (source, target, type, confidence, metadata)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(source, target, type) DO UPDATE SET
		   confidence = MAX(relationships.confidence, excluded.confidence),
		   metadata = excluded.metadata`,
		r.Source, r.Target, string(r.Type), r.Confidence, meta,
	)
	if err != nil {
		return fmt.Errorf("graph: upserting relationship: %w", err)
	}
	return nil
}

// relationshipsLocked queries edges touching entity in the given
// direction, assuming the caller already holds at least s.mu.RLock().
// Traverse calls this directly instead of RelationshipsFor to avoid
// re-acquiring RLock mid-traversal, which can deadlock against a
// pending writer.
func (s *Store) relationshipsLocked(conceptID, direction string) ([]types.Relationship, error) {
	var query string
	switch direction {
	case "outgoing":
		query = `SELECT source, target, type, confidence, metadata FROM relationships WHERE source = ?`
	case "incoming":
		query = `SELECT source, target, type, confidence, metadata FROM relationships WHERE target = ?`
	default:
		query = `SELECT source, target, type, confidence, metadata FROM relationships WHERE source = ? OR target = ?`
	}

	var args []interface{}
	if direction == "both" {
		args = []interface{}{conceptID, conceptID}
	} else {
		args = []interface{}{conceptID}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("graph: querying relationships: %w", err)
	}
	defer rows.Close()

	var out []types.Relationship
	for rows.Next() {
		var r types.Relationship
		var typ, meta string
		if err := rows.Scan(&r.Source, &r.Target, &typ, &r.Confidence, &meta); err != nil {
			logging.GraphWarn("scanning relationship row: %v", err)
			continue
		}
		r.Type = types.RelationshipType(typ)
		r.Metadata, _ = unmarshalMetadata(meta)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RelationshipsFor returns edges touching conceptID in the given
// direction ("outgoing", "incoming", or "both").
func (s *Store) RelationshipsFor(conceptID, direction string) ([]types.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.relationshipsLocked(conceptID, direction)
}
