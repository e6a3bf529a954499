package normalization

import (
	"fmt"
	"strings"

	"github.com/tox-signal-mcp-server/internal/analyte"
	"github.com/tox-signal-mcp-server/internal/domain"
	"github.com/tox-signal-mcp-server/internal/stats"
)

// CheckMagnitudeFloor reports whether an endpoint's effect is large enough
// to be biologically meaningful. Organ-weight endpoints consult the context
// of their organ; every other domain ignores contexts.
func (p Policy) CheckMagnitudeFloor(ep domain.EndpointSummary, contexts []domain.NormalizationContext) domain.FloorCheck {
	if ep.Domain != domain.DomainOM {
		return p.rawFloor(ep)
	}
	ctx, ok := MatchContext(contexts, ep.Specimen, ep.PeakDoseLevel)
	if !ok {
		return p.rawFloor(ep)
	}

	if usesDirectEffect(ctx) {
		return p.directFloor(ep, ctx)
	}

	check := p.rawFloor(ep)
	check.Tier = ctx.Tier
	if ctx.Tier < 2 {
		return check
	}
	if !check.Passed {
		check.Violation = fmt.Sprintf("%s; possible BW confounding (tier %d, body-weight g=%.2f)", check.Violation, ctx.Tier, ctx.BodyWeightG)
	}
	check.ConfoundingNote = fmt.Sprintf("BW confounding tier %d: organ-weight change may partly reflect body-weight loss (body-weight g=%.2f, %s mode)",
		ctx.Tier, ctx.BodyWeightG, ctx.Mode)
	return check
}

// CheckMagnitudeFloor uses the default thresholds.
func CheckMagnitudeFloor(ep domain.EndpointSummary, contexts []domain.NormalizationContext) domain.FloorCheck {
	return DefaultPolicy().CheckMagnitudeFloor(ep, contexts)
}

// usesDirectEffect reports whether the direct-effect g governs the floor.
// A reviewer who forced a mode other than ancova keeps the raw floor.
func usesDirectEffect(ctx domain.NormalizationContext) bool {
	if ctx.Decomposition == nil {
		return false
	}
	if ctx.Mode == domain.ModeANCOVA {
		return true
	}
	return ctx.Tier >= 3 && !ctx.UserOverridden
}

// directFloor evaluates the organ-weight floor with the direct-effect g of
// the decomposition in place of the raw g. The fold-change half still applies.
func (p Policy) directFloor(ep domain.EndpointSummary, ctx domain.NormalizationContext) domain.FloorCheck {
	g := ctx.Decomposition.DirectG
	check := domain.FloorCheck{
		Passed:           true,
		Tier:             ctx.Tier,
		EffectUsed:       g,
		UsedDirectEffect: true,
	}
	raw := "n/a"
	if ep.MaxEffectSize != nil {
		raw = fmt.Sprintf("%.2f", *ep.MaxEffectSize)
	}

	var failures []string
	if abs := stats.Abs(g); abs < p.cfg.OrganWeightMinG {
		failures = append(failures, fmt.Sprintf("direct effect |g|=%.2f below %.2f", abs, p.cfg.OrganWeightMinG))
	}
	if ep.MaxFoldChange != nil {
		if fc, ok := stats.FoldChangeMagnitude(*ep.MaxFoldChange); ok && fc-1 < p.cfg.OrganWeightMinFC {
			failures = append(failures, fmt.Sprintf("fold change %.2f below +%.0f%%", fc, p.cfg.OrganWeightMinFC*100))
		}
	}

	if len(failures) == 0 {
		check.ConfoundingNote = fmt.Sprintf("direct effect g=%.2f (raw g=%s) governs after adjustment for BW confounding (tier %d)", g, raw, ctx.Tier)
		return check
	}
	check.Passed = false
	check.Violation = fmt.Sprintf("%s after being adjusted for BW confounding (tier %d, raw g=%s)",
		strings.Join(failures, ", "), ctx.Tier, raw)
	check.ConfoundingNote = fmt.Sprintf("BW confounding tier %d: covariate-adjusted effect remains below the floor", ctx.Tier)
	return check
}

func (p Policy) rawFloor(ep domain.EndpointSummary) domain.FloorCheck {
	var minG, minFC float64
	useFC := false
	switch ep.Domain {
	case domain.DomainOM:
		minG, minFC, useFC = p.cfg.OrganWeightMinG, p.cfg.OrganWeightMinFC, true
	case domain.DomainLB:
		minG, minFC, useFC = p.cfg.LabMinG, p.cfg.LabMinFC, true
	case domain.DomainBW:
		minG = p.cfg.BodyWeightMinG
	default:
		return domain.FloorCheck{Passed: true}
	}

	check := domain.FloorCheck{Passed: true}
	var failures []string
	if ep.MaxEffectSize != nil {
		check.EffectUsed = *ep.MaxEffectSize
		if abs := stats.Abs(*ep.MaxEffectSize); abs < minG {
			failures = append(failures, fmt.Sprintf("|g|=%.2f below %.2f", abs, minG))
		}
	}
	if useFC && ep.MaxFoldChange != nil {
		if fc, ok := stats.FoldChangeMagnitude(*ep.MaxFoldChange); ok && fc-1 < minFC {
			failures = append(failures, fmt.Sprintf("fold change %.2f below +%.0f%%", fc, minFC*100))
		}
	}
	if len(failures) > 0 {
		check.Passed = false
		check.Violation = fmt.Sprintf("%s magnitude floor not met: %s", ep.Domain, strings.Join(failures, ", "))
	}
	return check
}

// MatchContext finds the context for an organ, preferring the given dose
// level, then the highest tier, then the highest dose level.
func MatchContext(contexts []domain.NormalizationContext, specimen string, doseLevel int) (domain.NormalizationContext, bool) {
	organ := analyte.OrganKey(specimen)
	if organ == "" {
		return domain.NormalizationContext{}, false
	}
	var best domain.NormalizationContext
	found := false
	for _, c := range contexts {
		if analyte.OrganKey(c.Organ) != organ {
			continue
		}
		if c.DoseLevel == doseLevel && doseLevel > 0 {
			return c, true
		}
		if !found || c.Tier > best.Tier || (c.Tier == best.Tier && c.DoseLevel > best.DoseLevel) {
			best = c
			found = true
		}
	}
	return best, found
}
