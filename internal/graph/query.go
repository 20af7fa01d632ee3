package graph

import (
	"fmt"
	"sort"

	"layeredquery/internal/logging"
	"layeredquery/internal/types"
)

// FindOptions tunes FindDefinition lookup behavior.
type FindOptions struct {
	FuzzyFloor float64 // minimum score a fuzzy match must clear to be returned
	MaxResults int
}

// DefinitionMatch pairs a concept with the representations found for
// it and the rank score that placed it in FindDefinition's results.
type DefinitionMatch struct {
	Concept         types.Concept
	Representations []types.SymbolRepresentation
	Score           float64
}

// FindDefinition ranks concepts by confidence * nameSimilarity *
// recency, with recency taken from recencyScore since the schema does
// not track per-row timestamps on representations. Matches are sorted
// by that product alone; the order of equal scores is not defined.
func (s *Store) FindDefinition(name string, opts FindOptions) ([]DefinitionMatch, error) {
	timer := logging.StartTimer(logging.CategoryGraph, "FindDefinition")
	defer timer.Stop()

	if opts.FuzzyFloor <= 0 {
		opts.FuzzyFloor = 0.5
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 20
	}

	s.mu.RLock()
	rows, err := s.db.Query(`SELECT id, canonical_name, kind, confidence, metadata FROM concepts`)
	if err != nil {
		s.mu.RUnlock()
		return nil, fmt.Errorf("graph: scanning concepts for find-definition: %w", err)
	}
	var concepts []types.Concept
	for rows.Next() {
		c, err := scanConcept(rows)
		if err != nil {
			continue
		}
		concepts = append(concepts, c)
	}
	rows.Close()
	s.mu.RUnlock()

	var matches []DefinitionMatch
	for _, c := range concepts {
		sim := nameSimilarity(name, c.CanonicalName, opts.FuzzyFloor)
		if sim <= 0 {
			continue
		}
		reps, err := s.RepresentationsFor(c.ID)
		if err != nil {
			continue
		}
		if resolved := resolvableRepresentations(reps); len(reps) > 0 {
			if len(resolved) == 0 {
				// Every representation has an unresolvable (empty) URI:
				// the concept cannot be navigated to, so it is dropped
				// from findDefinition entirely rather than surfaced
				// with a placeholder location.
				continue
			}
			reps = resolved
		}
		recency := recencyScore(reps)
		matches = append(matches, DefinitionMatch{
			Concept:         c,
			Representations: reps,
			Score:           c.Confidence * sim * recency,
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > opts.MaxResults {
		matches = matches[:opts.MaxResults]
	}
	return matches, nil
}

// resolvableRepresentations filters out representations whose URI is
// empty — they cannot be navigated to, so they never justify ranking
// or displaying a concept.
func resolvableRepresentations(reps []types.SymbolRepresentation) []types.SymbolRepresentation {
	var out []types.SymbolRepresentation
	for _, r := range reps {
		if r.Location.Start.URI != "" {
			out = append(out, r)
		}
	}
	return out
}

// recencyScore uses the total occurrence count as a recency/activity
// proxy: 1.0 when the representations record more than one occurrence,
// 0.8 when they record at most one; concepts with no recorded
// representations score lowest (0.5) since they cannot be confirmed live.
func recencyScore(reps []types.SymbolRepresentation) float64 {
	if len(reps) == 0 {
		return 0.5
	}
	total := 0
	for _, r := range reps {
		total += r.Occurrences
	}
	if total <= 1 {
		return 0.8
	}
	return 1.0
}

// ConceptsNear returns concepts with a representation within maxLines
// of loc.
func (s *Store) ConceptsNear(loc types.Location, maxLines int) ([]types.Concept, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT DISTINCT concept_id FROM symbol_representations
		 WHERE uri = ? AND start_line BETWEEN ? AND ?`,
		loc.URI, loc.Line-maxLines, loc.Line+maxLines,
	)
	if err != nil {
		return nil, fmt.Errorf("graph: querying concepts near: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}

	var out []types.Concept
	for _, id := range ids {
		row := s.db.QueryRow(`SELECT id, canonical_name, kind, confidence, metadata FROM concepts WHERE id = ?`, id)
		c, err := scanConcept(row)
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// ReplaceRepresentationsForFile atomically replaces every representation
// recorded for uri with reps, satisfying the consistency contract with
// L2: stale representations for a reparsed file are deleted in the
// same transaction that inserts the fresh set.
func (s *Store) ReplaceRepresentationsForFile(uri string, reps []types.SymbolRepresentation) error {
	timer := logging.StartTimer(logging.CategoryGraph, "ReplaceRepresentationsForFile")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("graph: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM symbol_representations WHERE uri = ?`, uri); err != nil {
		return fmt.Errorf("graph: clearing stale representations for %s: %w", uri, err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO symbol_representations
		   (concept_id, name, uri, start_line, start_col, end_line, end_col, occurrences, context)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("graph: preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range reps {
		if _, err := stmt.Exec(r.ConceptID, r.Name, uri,
			r.Location.Start.Line, r.Location.Start.Col,
			r.Location.End.Line, r.Location.End.Col,
			r.Occurrences, r.Context); err != nil {
			return fmt.Errorf("graph: inserting representation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("graph: committing representation replace: %w", err)
	}
	logging.GraphDebug("replaced %d representations for %s", len(reps), uri)
	return nil
}
