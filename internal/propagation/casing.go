package propagation

import "strings"

// splitIdentifierTokens breaks an identifier into lowercase tokens
// across camelCase, PascalCase, snake_case, and kebab-case boundaries.
func splitIdentifierTokens(name string) []string {
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

// caseConvention identifies the dominant naming convention of name.
func caseConvention(name string) string {
	switch {
	case strings.Contains(name, "_"):
		return "snake"
	case len(name) > 0 && name[0] >= 'A' && name[0] <= 'Z':
		return "pascal"
	default:
		return "camel"
	}
}

// rebuildWithConvention joins tokens using convention, matching the
// style a rename propagation target should adopt.
func rebuildWithConvention(tokens []string, convention string) string {
	switch convention {
	case "snake":
		return strings.Join(tokens, "_")
	case "pascal":
		var sb strings.Builder
		for _, t := range tokens {
			sb.WriteString(strings.ToUpper(t[:1]) + t[1:])
		}
		return sb.String()
	default: // camel
		var sb strings.Builder
		for i, t := range tokens {
			if i == 0 {
				sb.WriteString(t)
				continue
			}
			sb.WriteString(strings.ToUpper(t[:1]) + t[1:])
		}
		return sb.String()
	}
}

// suffixOf returns the tokens of name after its first token, e.g.
// "getUserName" -> "userName"'s tokens ["user", "name"].
func suffixOf(name string) []string {
	tokens := splitIdentifierTokens(name)
	if len(tokens) <= 1 {
		return nil
	}
	return tokens[1:]
}
