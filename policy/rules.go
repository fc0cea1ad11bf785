package policy

import "path"

// Rule is a declarative per-tool override with glob pattern matching,
// e.g. {Pattern: "mcp__*", Verdict: Ask} or {Pattern: "Bash", Verdict: Deny}.
type Rule struct {
	Pattern string
	Verdict Verdict
}

// MatchRules evaluates rules against a tool name. Deny wins over Ask, which
// wins over Allow. Returns (verdict, matched); matched is false when no rule
// applies.
func MatchRules(rules []Rule, toolName string) (Verdict, bool) {
	var hasAsk, hasAllow bool

	for _, r := range rules {
		ok, err := path.Match(r.Pattern, toolName)
		if err != nil || !ok {
			continue
		}
		switch r.Verdict {
		case Deny:
			return Deny, true
		case Ask:
			hasAsk = true
		case Allow:
			hasAllow = true
		}
	}

	if hasAsk {
		return Ask, true
	}
	if hasAllow {
		return Allow, true
	}
	return Allow, false
}
