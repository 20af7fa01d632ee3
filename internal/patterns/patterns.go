// Package patterns implements Layer 4 — the Pattern Learner: it learns
// rename/structural templates from observed edits, predicts likely
// next renames, and applies known patterns. Confidence reinforces via
// `MIN(1.0, confidence + delta)` and decays over time via `confidence
// * decayFactor`, pruning rows below a confidence floor. Reuses the
// Concept Graph's *sql.DB handle instead of opening a second database.
package patterns

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"layeredquery/internal/logging"
)

const (
	reinforceDelta = 0.1
	negativeDelta  = -0.15
	pruneFloor     = 0.1
)

// LearningResult reports the effect of a learning event on a pattern.
type LearningResult struct {
	PatternID string
	Delta     float64
}

// Prediction is a proposed next rename with supporting evidence.
type Prediction struct {
	Suggested  string
	Confidence float64
	PatternID  string
	Reason     string
}

// Engine is the Pattern Learner (L4).
type Engine struct {
	db                  *sql.DB
	learningThreshold   int
	confidenceThreshold float64
	maxPatterns         int
	decayRate           float64
}

// Config groups the tunables an Engine needs from CoreConfig.
type Config struct {
	LearningThreshold   int
	ConfidenceThreshold float64
	MaxPatterns         int
	DecayRate           float64
}

// New builds a Pattern Learner sharing db with the Concept Graph.
func New(db *sql.DB, cfg Config) (*Engine, error) {
	if cfg.LearningThreshold <= 0 {
		cfg.LearningThreshold = 3
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.7
	}
	if cfg.MaxPatterns <= 0 {
		cfg.MaxPatterns = 10000
	}
	return &Engine{
		db:                  db,
		learningThreshold:   cfg.LearningThreshold,
		confidenceThreshold: cfg.ConfidenceThreshold,
		maxPatterns:         cfg.MaxPatterns,
		decayRate:           cfg.DecayRate,
	}, nil
}

// templateFor derives a category + templated transform from an
// observed (oldName, newName) rename pair. A single differing token at
// a shared position (regardless of whether it's the prefix, suffix, or
// a middle token) becomes a reusable "token" swap; identical tokens
// that merely changed case/delimiter convention become a "case"
// pattern; anything else is recorded as a literal, non-generalizing
// substring swap.
func templateFor(oldName, newName string) (category, template string) {
	oldTokens, newTokens := splitTokensPatterns(oldName), splitTokensPatterns(newName)
	if len(oldTokens) == len(newTokens) && len(oldTokens) > 0 {
		diffIdx := -1
		diffCount := 0
		for i := range oldTokens {
			if oldTokens[i] != newTokens[i] {
				diffIdx = i
				diffCount++
			}
		}
		if diffCount == 1 {
			return "token", fmt.Sprintf("%s->%s", oldTokens[diffIdx], newTokens[diffIdx])
		}
	}
	if strings.ToLower(oldName) == strings.ToLower(newName) && oldName != newName {
		return "case", caseConventionOf(newName)
	}
	return "substring", fmt.Sprintf("%s->%s", oldName, newName)
}

func splitTokensPatterns(name string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, strings.ToLower(cur.String()))
			cur.Reset()
		}
	}
	runes := []rune(name)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-':
			flush()
		case r >= 'A' && r <= 'Z' && i > 0 && !(runes[i-1] >= 'A' && runes[i-1] <= 'Z'):
			flush()
			cur.WriteRune(r)
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}


var pascalRe = regexp.MustCompile(`^[A-Z][a-zA-Z0-9]*$`)
var camelRe = regexp.MustCompile(`^[a-z][a-zA-Z0-9]*$`)
var snakeRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func caseConventionOf(name string) string {
	switch {
	case snakeRe.MatchString(name) && strings.Contains(name, "_"):
		return "snake_case"
	case pascalRe.MatchString(name):
		return "PascalCase"
	case camelRe.MatchString(name):
		return "camelCase"
	default:
		return "unknown"
	}
}

func patternID(category, template string) string {
	return category + ":" + template
}

// LearnFromRename records an observed rename, reinforcing the matching
// pattern's confidence by a fixed step of reinforceDelta, capped at 1.0
// (an additive step, not an exponential moving average), or creating
// it with a starting confidence of 0.5.
func (e *Engine) LearnFromRename(oldName, newName, context string) (LearningResult, error) {
	timer := logging.StartTimer(logging.CategoryPatterns, "LearnFromRename")
	defer timer.Stop()

	category, template := templateFor(oldName, newName)
	id := patternID(category, template)

	var exists bool
	var occurrences int
	var confidence float64
	row := e.db.QueryRow(`SELECT occurrences, confidence FROM patterns WHERE id = ?`, id)
	if err := row.Scan(&occurrences, &confidence); err == nil {
		exists = true
	}

	if !exists {
		var total int
		e.db.QueryRow(`SELECT COUNT(*) FROM patterns`).Scan(&total)
		if total >= e.maxPatterns {
			logging.PatternsWarn("pattern store at capacity (%d), dropping lowest-confidence pattern to make room", e.maxPatterns)
			if _, err := e.db.Exec(`DELETE FROM patterns WHERE id = (SELECT id FROM patterns ORDER BY confidence ASC LIMIT 1)`); err != nil {
				return LearningResult{}, fmt.Errorf("patterns: evicting to stay under maxPatterns: %w", err)
			}
		}

		_, err := e.db.Exec(
			`INSERT INTO patterns (id, name, template, category, occurrences, confidence, last_used, decay_rate)
			 VALUES (?, ?, ?, ?, 1, 0.5, ?, ?)`,
			id, id, template, category, time.Now(), e.decayRate,
		)
		if err != nil {
			return LearningResult{}, fmt.Errorf("patterns: inserting new pattern: %w", err)
		}
		logging.PatternsDebug("learned new pattern %s from %s->%s", id, oldName, newName)
		return LearningResult{PatternID: id, Delta: 0.5}, nil
	}

	newConfidence := confidence + reinforceDelta
	if newConfidence > 1.0 {
		newConfidence = 1.0
	}
	_, err := e.db.Exec(
		`UPDATE patterns SET occurrences = occurrences + 1, confidence = ?, last_used = ? WHERE id = ?`,
		newConfidence, time.Now(), id,
	)
	if err != nil {
		return LearningResult{}, fmt.Errorf("patterns: reinforcing pattern: %w", err)
	}
	logging.PatternsDebug("reinforced pattern %s: %.2f -> %.2f", id, confidence, newConfidence)
	return LearningResult{PatternID: id, Delta: newConfidence - confidence}, nil
}

// RejectPrediction penalizes a pattern after a predicted rename is
// declined, the symmetric counterpart to LearnFromRename's
// reinforcement.
func (e *Engine) RejectPrediction(patternID string) (LearningResult, error) {
	var confidence float64
	row := e.db.QueryRow(`SELECT confidence FROM patterns WHERE id = ?`, patternID)
	if err := row.Scan(&confidence); err != nil {
		return LearningResult{}, fmt.Errorf("patterns: pattern %s not found: %w", patternID, err)
	}

	newConfidence := confidence + negativeDelta
	if newConfidence < 0 {
		newConfidence = 0
	}
	if _, err := e.db.Exec(`UPDATE patterns SET confidence = ? WHERE id = ?`, newConfidence, patternID); err != nil {
		return LearningResult{}, fmt.Errorf("patterns: demoting pattern: %w", err)
	}
	logging.PatternsDebug("demoted pattern %s: %.2f -> %.2f", patternID, confidence, newConfidence)
	return LearningResult{PatternID: patternID, Delta: newConfidence - confidence}, nil
}

type storedPattern struct {
	id, template, category string
	occurrences            int
	confidence             float64
	lastUsed               time.Time
}

func (e *Engine) activePatterns() ([]storedPattern, error) {
	rows, err := e.db.Query(`SELECT id, template, category, occurrences, confidence, last_used FROM patterns WHERE occurrences >= ?`, e.learningThreshold)
	if err != nil {
		return nil, fmt.Errorf("patterns: querying active patterns: %w", err)
	}
	defer rows.Close()

	var out []storedPattern
	for rows.Next() {
		var p storedPattern
		var lastUsed sql.NullTime
		if err := rows.Scan(&p.id, &p.template, &p.category, &p.occurrences, &p.confidence, &lastUsed); err != nil {
			continue
		}
		if lastUsed.Valid {
			p.lastUsed = lastUsed.Time
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// FindApplicablePatterns returns active patterns whose template could
// plausibly apply to identifier, filtered to confidence >= the
// configured threshold.
func (e *Engine) FindApplicablePatterns(identifier string) ([]storedPattern, error) {
	all, err := e.activePatterns()
	if err != nil {
		return nil, err
	}
	var out []storedPattern
	for _, p := range all {
		if p.confidence < e.confidenceThreshold {
			continue
		}
		if _, ok := applyTemplate(p, identifier); ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func applyTemplate(p storedPattern, identifier string) (string, bool) {
	parts := strings.SplitN(p.template, "->", 2)
	if len(parts) != 2 {
		return "", false
	}
	from, to := parts[0], parts[1]

	switch p.category {
	case "token":
		tokens := splitTokensPatterns(identifier)
		matchIdx := -1
		for i, t := range tokens {
			if t == from {
				matchIdx = i
				break
			}
		}
		if matchIdx < 0 {
			return "", false
		}
		rebuilt := make([]string, len(tokens))
		copy(rebuilt, tokens)
		rebuilt[matchIdx] = to
		return rebuildIdentifier(rebuilt, identifier), true
	case "case":
		return convertCase(identifier, to), true
	default:
		if identifier == from {
			return to, true
		}
		return "", false
	}
}

// rebuildIdentifier joins tokens back using the same casing convention
// the original identifier used, detected from its first character.
func rebuildIdentifier(tokens []string, original string) string {
	if pascalRe.MatchString(original) {
		return convertCase(strings.Join(tokens, "_"), "PascalCase")
	}
	if strings.Contains(original, "_") {
		return strings.Join(tokens, "_")
	}
	return convertCase(strings.Join(tokens, "_"), "camelCase")
}

func convertCase(identifier, convention string) string {
	tokens := splitTokensPatterns(identifier)
	switch convention {
	case "snake_case":
		return strings.Join(tokens, "_")
	case "PascalCase":
		var b strings.Builder
		for _, t := range tokens {
			if len(t) > 0 {
				b.WriteString(strings.ToUpper(t[:1]) + t[1:])
			}
		}
		return b.String()
	case "camelCase":
		var b strings.Builder
		for i, t := range tokens {
			if len(t) == 0 {
				continue
			}
			if i == 0 {
				b.WriteString(t)
			} else {
				b.WriteString(strings.ToUpper(t[:1]) + t[1:])
			}
		}
		return b.String()
	default:
		return identifier
	}
}

// ApplyPattern applies a specific pattern to identifier, returning
// (newName, true) or ("", false) if the pattern's template does not
// match identifier's shape.
func (e *Engine) ApplyPattern(id, identifier string) (string, bool, error) {
	row := e.db.QueryRow(`SELECT id, template, category, occurrences, confidence, last_used FROM patterns WHERE id = ?`, id)
	var p storedPattern
	var lastUsed sql.NullTime
	if err := row.Scan(&p.id, &p.template, &p.category, &p.occurrences, &p.confidence, &lastUsed); err != nil {
		return "", false, fmt.Errorf("patterns: pattern %s not found: %w", id, err)
	}
	name, ok := applyTemplate(p, identifier)
	return name, ok, nil
}

// PredictNextRename ranks active, confident patterns by how well they
// apply to identifier, returning the proposed new names in descending
// confidence order.
func (e *Engine) PredictNextRename(identifier, context string) ([]Prediction, error) {
	timer := logging.StartTimer(logging.CategoryPatterns, "PredictNextRename")
	defer timer.Stop()

	applicable, err := e.FindApplicablePatterns(identifier)
	if err != nil {
		return nil, err
	}

	var out []Prediction
	for _, p := range applicable {
		name, ok := applyTemplate(p, identifier)
		if !ok || name == identifier {
			continue
		}
		out = append(out, Prediction{
			Suggested:  name,
			Confidence: p.confidence,
			PatternID:  p.id,
			Reason:     fmt.Sprintf("%s pattern %q observed %d times", p.category, p.template, p.occurrences),
		})
	}

	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Confidence > out[i].Confidence {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

// DecayConfidence applies the configured decay factor to every pattern
// not used within the most recent window and prunes those that fall
// below pruneFloor — a fade-then-forget behavior.
func (e *Engine) DecayConfidence(window time.Duration) error {
	timer := logging.StartTimer(logging.CategoryPatterns, "DecayConfidence")
	defer timer.Stop()

	if e.decayRate <= 0 || e.decayRate >= 1 {
		return nil
	}

	cutoff := time.Now().Add(-window)
	result, err := e.db.Exec(
		`UPDATE patterns SET confidence = confidence * ? WHERE last_used < ?`,
		1.0-e.decayRate, cutoff,
	)
	if err != nil {
		return fmt.Errorf("patterns: decaying confidence: %w", err)
	}
	decayed, _ := result.RowsAffected()

	result, err = e.db.Exec(`DELETE FROM patterns WHERE confidence < ?`, pruneFloor)
	if err != nil {
		return fmt.Errorf("patterns: pruning decayed patterns: %w", err)
	}
	pruned, _ := result.RowsAffected()

	logging.PatternsDebug("decay pass: %d decayed, %d pruned below floor %.2f", decayed, pruned, pruneFloor)
	return nil
}
