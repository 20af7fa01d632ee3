package graph

import "strings"

// levenshtein computes bounded edit distance between a and b, giving up
// and returning maxEdits+1 once the distance provably exceeds maxEdits.
// Lengths beyond maxEdits apart can never produce a distance that low,
// so that case short-circuits without running the DP table at all.
func levenshtein(a, b string, maxEdits int) int {
	if abs(len(a)-len(b)) > maxEdits {
		return maxEdits + 1
	}
	if a == b {
		return 0
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		rowMin := curr[0]
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
			if curr[j] < rowMin {
				rowMin = curr[j]
			}
		}
		if rowMin > maxEdits {
			return maxEdits + 1
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// maxEditsFor scales the edit budget with identifier length: a cap of
// 3 edits for identifiers up to 8 characters, growing linearly beyond
// that (one additional edit per 4 extra characters, rounded up, so
// 9-12 characters allow 4 edits and 13-16 allow 5).
func maxEditsFor(length int) int {
	if length <= 8 {
		return 3
	}
	return 3 + (length-8+3)/4
}

// splitTokens breaks an identifier into camelCase/PascalCase/snake_case
// tokens for prefix-aware fuzzy comparison (getUserName -> [get, User,
// Name], user_name -> [user, name]).
func splitTokens(name string) []string {
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

// nameSimilarity scores candidate against query per spec: exact match
// 1.0, case-insensitive match 0.95, fuzzy match within the edit budget
// or sharing a camelCase/prefix token run scaled into [fuzzyFloor,
// 0.9], else 0.
func nameSimilarity(query, candidate string, fuzzyFloor float64) float64 {
	if query == candidate {
		return 1.0
	}
	if strings.EqualFold(query, candidate) {
		return 0.95
	}

	lq, lc := strings.ToLower(query), strings.ToLower(candidate)
	budget := maxEditsFor(len(lq))
	dist := levenshtein(lq, lc, budget)
	if dist <= budget {
		frac := 1.0 - float64(dist)/float64(budget+1)
		score := fuzzyFloor + frac*(0.9-fuzzyFloor)
		return score
	}

	qTokens, cTokens := splitTokens(query), splitTokens(candidate)
	if len(qTokens) > 0 && len(cTokens) > 0 {
		shared := 0
		for _, qt := range qTokens {
			for _, ct := range cTokens {
				if qt == ct {
					shared++
					break
				}
			}
		}
		if shared > 0 {
			frac := float64(shared) / float64(max(len(qTokens), len(cTokens)))
			return fuzzyFloor + frac*(0.9-fuzzyFloor)
		}
	}

	if strings.HasPrefix(lc, lq) || strings.HasPrefix(lq, lc) {
		return fuzzyFloor
	}

	return 0
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
