package labrules

import (
	"sort"
	"strings"

	"github.com/tox-signal-mcp-server/internal/domain"
	"github.com/tox-signal-mcp-server/internal/stats"
)

const (
	baseConfidence   = 50
	maxConfidence    = 100
	severeFoldChange = 1.5
	coherentDomains  = 3
	bonusMonotonic   = 15
	bonusThreshold   = 10
	bonusAdverse     = 10
	bonusCoherence   = 10
	bonusSyndrome    = 10
)

type ranked struct {
	match domain.LabClinicalMatch
	index int
}

// Evaluate runs every non-governance rule against ctx and returns the
// matches sorted by severity, then confidence, then catalog order.
func Evaluate(ctx RuleContext) []domain.LabClinicalMatch {
	return evaluate(ctx, func(r Rule) bool { return r.Category != domain.CategoryGovernance }, true)
}

// EvaluateGovernance runs only the governance rules. Governance matches
// describe the data set rather than a finding and are never deduplicated.
func EvaluateGovernance(ctx RuleContext) []domain.LabClinicalMatch {
	return evaluate(ctx, func(r Rule) bool { return r.Category == domain.CategoryGovernance }, false)
}

func evaluate(ctx RuleContext, include func(Rule) bool, dedup bool) []domain.LabClinicalMatch {
	var matches []ranked
	for i, rule := range Catalog() {
		if !include(rule) || !appliesToSpecies(rule, ctx.Species) {
			continue
		}
		m, ok := evaluateRule(rule, ctx)
		if !ok {
			continue
		}
		matches = append(matches, ranked{match: m, index: i})
	}
	if dedup {
		matches = dedupe(matches)
	}
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.match.Severity.Rank() != b.match.Severity.Rank() {
			return a.match.Severity.Rank() > b.match.Severity.Rank()
		}
		if a.match.Confidence != b.match.Confidence {
			return a.match.Confidence > b.match.Confidence
		}
		return a.index < b.index
	})
	out := make([]domain.LabClinicalMatch, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.match)
	}
	return out
}

func appliesToSpecies(rule Rule, species string) bool {
	if len(rule.Species) == 0 || species == "" {
		return true
	}
	for _, s := range rule.Species {
		if s == species {
			return true
		}
	}
	return false
}

func evaluateRule(rule Rule, ctx RuleContext) (domain.LabClinicalMatch, bool) {
	var matched []ParamSignal
	supporting := 0
	for _, p := range rule.Params {
		sig, ok := ctx.Signals[p.Canonical]
		hit := ok && sig.Moves(p.Direction)
		if p.Role == ParamRequired && !hit {
			return domain.LabClinicalMatch{}, false
		}
		if hit {
			matched = append(matched, sig)
			if p.Role == ParamSupporting {
				supporting++
			}
		}
	}
	if supporting < rule.MinSupporting {
		return domain.LabClinicalMatch{}, false
	}
	var conditionLabels []string
	for _, c := range rule.Conditions {
		labels, ok := holds(c, ctx)
		if !ok {
			return domain.LabClinicalMatch{}, false
		}
		conditionLabels = append(conditionLabels, labels...)
	}

	m := domain.LabClinicalMatch{
		RuleID:      rule.ID,
		Name:        rule.Name,
		Category:    rule.Category,
		Severity:    rule.Severity,
		OrganSystem: rule.OrganSystem,
		Source:      rule.Source,
	}
	for _, sig := range matched {
		m.MatchedEndpoints = appendUnique(m.MatchedEndpoints, sig.EndpointLabels...)
		if fc, ok := sig.FoldChangeOrProxy(); ok {
			m.FoldChanges = append(m.FoldChanges, domain.CanonicalFoldChange{Canonical: sig.Canonical, FoldChange: stats.Round(fc, 3)})
		}
	}
	m.MatchedEndpoints = appendUnique(m.MatchedEndpoints, conditionLabels...)
	m.Confidence, m.Modifiers = score(rule, matched, ctx)
	capSeverity(&m)
	return m, true
}

// holds evaluates one condition and returns the endpoint labels it drew on.
func holds(c Condition, ctx RuleContext) ([]string, bool) {
	switch c.Kind {
	case CondFoldChangeAtLeast:
		sig, ok := ctx.Signals[c.Analyte]
		if !ok {
			return nil, false
		}
		fc, ok := sig.FoldChangeOrProxy()
		return nil, ok && fc >= c.Value
	case CondEffectAtLeast:
		sig, ok := ctx.Signals[c.Analyte]
		return nil, ok && sig.HasEffect && sig.MaxAbsEffect >= c.Value
	case CondNotMoving:
		sig, ok := ctx.Signals[c.Analyte]
		return nil, !ok || !sig.Moves(c.Direction)
	case CondOrganCoherence:
		return nil, float64(ctx.Coherence[c.System]) >= c.Value
	case CondSyndrome:
		return nil, ctx.Syndromes[c.SyndromeID]
	case CondSpeciesOutside:
		if ctx.Species == "" {
			return nil, false
		}
		for _, s := range c.Species {
			if s == ctx.Species {
				return nil, false
			}
		}
		return nil, true
	case CondAnyLabSignal:
		return ctx.SignificantLab, len(ctx.SignificantLab) > 0
	case CondSingleSexAdverse:
		if len(ctx.LabSexes) < 2 {
			return nil, false
		}
		var labels []string
		for _, ep := range ctx.AdverseLab {
			if len(ep.Sexes) == 1 {
				labels = append(labels, ep.EndpointLabel)
			}
		}
		return labels, len(labels) > 0
	default:
		return nil, false
	}
}

func score(rule Rule, matched []ParamSignal, ctx RuleContext) (int, []domain.ConfidenceModifier) {
	confidence := baseConfidence
	mods := []domain.ConfidenceModifier{{Label: "base", Points: baseConfidence}}
	add := func(label string, pts int) {
		confidence += pts
		mods = append(mods, domain.ConfidenceModifier{Label: label, Points: pts})
	}

	monotonic, threshold, adverse := false, false, false
	for _, sig := range matched {
		monotonic = monotonic || sig.Pattern.IsMonotonic()
		threshold = threshold || sig.Pattern.IsThreshold()
		adverse = adverse || sig.WorstSeverity == domain.SeverityAdverse
	}
	switch {
	case monotonic:
		add("monotonic dose response", bonusMonotonic)
	case threshold:
		add("threshold dose response", bonusThreshold)
	}
	if adverse {
		add("adverse parameter", bonusAdverse)
	}
	if rule.OrganSystem != "" && ctx.Coherence[rule.OrganSystem] >= coherentDomains {
		add("multi-domain convergence", bonusCoherence)
	}
	for _, id := range rule.RelatedSyndromes {
		if ctx.Syndromes[id] {
			add("syndrome co-detected: "+id, bonusSyndrome)
			break
		}
	}
	if confidence > maxConfidence {
		mods = append(mods, domain.ConfidenceModifier{Label: "capped", Points: maxConfidence - confidence})
		confidence = maxConfidence
	}
	return confidence, mods
}

// capSeverity keeps S3/S4 only when backed by a fold change above 1.5 or by
// at least two matched endpoints.
func capSeverity(m *domain.LabClinicalMatch) {
	if !m.Severity.IsSevere() {
		return
	}
	if m.MaxFoldChange() > severeFoldChange || len(m.MatchedEndpoints) >= 2 {
		return
	}
	m.Modifiers = append(m.Modifiers, domain.ConfidenceModifier{
		Label: "severity capped from " + m.Severity.String() + " to S2: single marginal signal",
	})
	m.Severity = domain.LabS2
}

// dedupe keeps, per identical matched-endpoint set, the highest severity
// match (then highest confidence, then earliest rule).
func dedupe(matches []ranked) []ranked {
	best := make(map[string]int)
	var keys []string
	for i, m := range matches {
		key := endpointKey(m.match.MatchedEndpoints)
		j, ok := best[key]
		if !ok {
			best[key] = i
			keys = append(keys, key)
			continue
		}
		cur := matches[j].match
		if m.match.Severity.Rank() > cur.Severity.Rank() ||
			(m.match.Severity.Rank() == cur.Severity.Rank() && m.match.Confidence > cur.Confidence) {
			best[key] = i
		}
	}
	out := make([]ranked, 0, len(keys))
	for _, k := range keys {
		out = append(out, matches[best[k]])
	}
	return out
}

func endpointKey(labels []string) string {
	sorted := append([]string(nil), labels...)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x00")
}

func appendUnique(dst []string, labels ...string) []string {
	for _, l := range labels {
		dup := false
		for _, d := range dst {
			if d == l {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, l)
		}
	}
	return dst
}
