package labrules

import (
	"strings"

	"github.com/tox-signal-mcp-server/internal/domain"
)

// ParamSignal is the merged evidence for one canonical analyte.
type ParamSignal struct {
	Canonical      string
	EndpointLabels []string
	MaxAbsEffect   float64
	HasEffect      bool
	FoldChange     *float64
	Direction      domain.Direction
	WorstSeverity  domain.Severity
	Pattern        domain.Pattern
	Sexes          []domain.Sex
}

// FoldChangeOrProxy returns the observed fold change or, when absent, the
// max |g| as a proxy.
func (s ParamSignal) FoldChangeOrProxy() (float64, bool) {
	if s.FoldChange != nil {
		return *s.FoldChange, true
	}
	if s.HasEffect {
		return s.MaxAbsEffect, true
	}
	return 0, false
}

// Moves reports whether the analyte moved in dir; mixed counts for both.
func (s ParamSignal) Moves(dir domain.Direction) bool {
	return s.Direction == dir || s.Direction == domain.DirectionMixed
}

// RuleContext is built once per evaluation from the endpoint summaries.
type RuleContext struct {
	Signals   map[string]ParamSignal
	Order     []string
	Coherence map[string]int
	Syndromes map[string]bool
	Species   string
	LabSexes  []domain.Sex
	// Adverse lab endpoints, in endpoint order
	AdverseLab []domain.EndpointSummary
	// Significant lab endpoint labels, in endpoint order
	SignificantLab []string
}

// BuildRuleContext merges significant lab endpoints per canonical analyte.
// Endpoints whose label does not resolve are ignored.
func BuildRuleContext(summaries []domain.EndpointSummary, coherence map[string]domain.OrganCoherence,
	syndromes []domain.CrossDomainSyndrome, meta domain.StudyMetadata) RuleContext {
	ctx := RuleContext{
		Signals:   make(map[string]ParamSignal),
		Coherence: make(map[string]int, len(coherence)),
		Syndromes: make(map[string]bool, len(syndromes)),
		Species:   strings.ToLower(strings.TrimSpace(meta.Species)),
	}
	for organ, c := range coherence {
		ctx.Coherence[organ] = c.DomainCount
	}
	for _, s := range syndromes {
		ctx.Syndromes[s.ID] = true
	}

	labSexes := make(map[domain.Sex]bool)
	for _, ep := range summaries {
		if ep.Domain != domain.DomainLB {
			continue
		}
		for _, sex := range ep.Sexes {
			labSexes[sex] = true
		}
		if !ep.IsSignificant() {
			continue
		}
		ctx.SignificantLab = append(ctx.SignificantLab, ep.EndpointLabel)
		if ep.WorstSeverity == domain.SeverityAdverse {
			ctx.AdverseLab = append(ctx.AdverseLab, ep)
		}
		canonical, ok := ResolveCanonical(ep.TestCode, ep.EndpointLabel)
		if !ok {
			continue
		}
		sig, seen := ctx.Signals[canonical]
		if !seen {
			ctx.Order = append(ctx.Order, canonical)
			sig = ParamSignal{Canonical: canonical, WorstSeverity: domain.SeverityNormal}
		}
		ctx.Signals[canonical] = merge(sig, ep)
	}
	for _, sex := range []domain.Sex{domain.SexFemale, domain.SexMale} {
		if labSexes[sex] {
			ctx.LabSexes = append(ctx.LabSexes, sex)
		}
	}
	return ctx
}

func merge(sig ParamSignal, ep domain.EndpointSummary) ParamSignal {
	sig.EndpointLabels = append(sig.EndpointLabels, ep.EndpointLabel)
	strongest := false
	if ep.MaxEffectSize != nil {
		if abs := ep.AbsEffect(); !sig.HasEffect || abs > sig.MaxAbsEffect {
			sig.MaxAbsEffect = abs
			sig.HasEffect = true
			strongest = true
		}
	}
	if ep.MaxFoldChange != nil && (sig.FoldChange == nil || *ep.MaxFoldChange > *sig.FoldChange) {
		fc := *ep.MaxFoldChange
		sig.FoldChange = &fc
	}
	if ep.WorstSeverity.Rank() > sig.WorstSeverity.Rank() {
		sig.WorstSeverity = ep.WorstSeverity
	}
	if strongest || sig.Pattern == "" {
		sig.Pattern = ep.Pattern
	}
	dir := ep.DirectionValue()
	switch {
	case sig.Direction == "" || sig.Direction == domain.DirectionNone:
		sig.Direction = dir
	case dir == domain.DirectionNone || dir == sig.Direction:
	default:
		sig.Direction = domain.DirectionMixed
	}
	for _, sex := range ep.Sexes {
		if !containsSex(sig.Sexes, sex) {
			sig.Sexes = append(sig.Sexes, sex)
		}
	}
	return sig
}

func containsSex(sexes []domain.Sex, s domain.Sex) bool {
	for _, x := range sexes {
		if x == s {
			return true
		}
	}
	return false
}
