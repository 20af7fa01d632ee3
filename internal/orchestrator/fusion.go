package orchestrator

import (
	"sort"

	"layeredquery/internal/layer"
	"layeredquery/internal/types"
)

// layerWeight is the fusion bonus weight for each layer's contribution
// to overall result confidence.
var layerWeight = map[layer.Name]float64{
	layer.Lexical:     1.0,
	layer.AST:         1.2,
	layer.Graph:       1.5,
	layer.Patterns:    1.3,
	layer.Propagation: 1.4,
}

// baseConfidence is the floor every fused result starts from before any
// layer's contribution is added.
const baseConfidence = 0.5

// perLayerUnit scales a layer's weight into an additive confidence
// bonus; a weight of 1.0 (Lexical) contributes 0.1, matching the
// spread needed so five corroborating layers can plausibly reach 1.0
// without any single layer dominating the fusion.
const perLayerUnit = 0.1

// fuseConfidence implements the Orchestrator's confidence fusion:
// 0.5 plus a weighted bonus per contributing layer, capped at 1.0.
func fuseConfidence(sources []layer.Name) float64 {
	c := baseConfidence
	for _, s := range sources {
		c += layerWeight[s] * perLayerUnit
	}
	if c > 1.0 {
		c = 1.0
	}
	return c
}

// corroborationBonus rewards agreement across layers when the same
// location or concept is independently surfaced more than once: the
// merged confidence is the max of the individual scores plus a small
// additive bonus per extra corroborating layer, capped at 1.0.
const corroborationBonus = 0.05

// mergeScores collapses the confidence scores multiple layers assigned
// to the same location/concept into one, per the Orchestrator's
// duplicate-location merge rule.
func mergeScores(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	max := scores[0]
	for _, s := range scores[1:] {
		if s > max {
			max = s
		}
	}
	merged := max + corroborationBonus*float64(len(scores)-1)
	if merged > 1.0 {
		merged = 1.0
	}
	return merged
}

// mergeRepresentations collapses representations sharing the same
// (concept, location) key — the same location surfaced by more than
// one layer, e.g. both the AST and graph layers contributing a
// representation for the same definition — into one entry, summing
// occurrence counts as corroborating evidence of how often that
// location was actually seen.
func mergeRepresentations(reps []types.SymbolRepresentation) []types.SymbolRepresentation {
	if len(reps) == 0 {
		return reps
	}

	order := make([]string, 0, len(reps))
	byKey := make(map[string]types.SymbolRepresentation, len(reps))
	for _, r := range reps {
		key := r.Key()
		if existing, ok := byKey[key]; ok {
			existing.Occurrences += r.Occurrences
			byKey[key] = existing
			continue
		}
		byKey[key] = r
		order = append(order, key)
	}

	merged := make([]types.SymbolRepresentation, 0, len(order))
	for _, k := range order {
		merged = append(merged, byKey[k])
	}
	return merged
}

// mergeDefinitions collapses duplicate concepts — the same concept ID
// surfaced by more than one layer — into one entry per concept,
// folding each duplicate's confidence through mergeScores, then sorts
// by confidence (descending) and, for ties, by proximity of the
// concept's nearest representation to reqLoc.
func mergeDefinitions(defs []types.Concept, reps []types.SymbolRepresentation, reqLoc types.Location) []types.Concept {
	if len(defs) == 0 {
		return defs
	}

	order := make([]string, 0, len(defs))
	scores := make(map[string][]float64, len(defs))
	byID := make(map[string]types.Concept, len(defs))
	for _, d := range defs {
		if _, ok := byID[d.ID]; !ok {
			order = append(order, d.ID)
		}
		byID[d.ID] = d
		scores[d.ID] = append(scores[d.ID], d.Confidence)
	}

	nearest := make(map[string]types.Location, len(order))
	for _, r := range reps {
		loc := r.Location.Start
		cur, ok := nearest[r.ConceptID]
		if !ok || loc.DistanceTo(reqLoc) < cur.DistanceTo(reqLoc) {
			nearest[r.ConceptID] = loc
		}
	}

	merged := make([]types.Concept, 0, len(order))
	for _, id := range order {
		c := byID[id]
		c.Confidence = mergeScores(scores[id])
		merged = append(merged, c)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Confidence != merged[j].Confidence {
			return merged[i].Confidence > merged[j].Confidence
		}
		li, oki := nearest[merged[i].ID]
		lj, okj := nearest[merged[j].ID]
		if oki != okj {
			return oki
		}
		if !oki {
			return false
		}
		return li.DistanceTo(reqLoc) < lj.DistanceTo(reqLoc)
	})

	return merged
}
