package normalization

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tox-signal-mcp-server/internal/analyte"
	"github.com/tox-signal-mcp-server/internal/domain"
	"github.com/tox-signal-mcp-server/internal/stats"
)

const brainOrgan = "BRAIN"

// ContextInput bundles the study data the engine reads.
type ContextInput struct {
	BodyWeights    []domain.BodyWeightStat
	OrganWeights   []domain.OrganWeightStat
	Decompositions []domain.EffectDecomposition
	Overrides      []domain.NormalizationOverride
}

type organDose struct {
	organ string
	dose  int
}

// BuildContexts returns one context per (organ, treated dose level), ordered
// by organ then dose level, and one decision per organ.
func (p Policy) BuildContexts(in ContextInput) ([]domain.NormalizationContext, map[string]domain.NormalizationDecision) {
	peaks := make(map[int]BodyWeightPeak)
	for _, pk := range PeakBodyWeightEffect(in.BodyWeights) {
		peaks[pk.DoseLevel] = pk
	}
	brain := brainEffects(in.OrganWeights)
	decomps := make(map[organDose]domain.EffectDecomposition)
	for _, d := range in.Decompositions {
		key := organDose{analyte.OrganKey(d.Organ), d.DoseLevel}
		if _, ok := decomps[key]; !ok {
			decomps[key] = d
		}
	}

	seen := make(map[organDose]bool)
	var keys []organDose
	add := func(organ string, dose int) {
		k := organDose{analyte.OrganKey(organ), dose}
		if k.organ == "" || dose <= 0 || seen[k] {
			return
		}
		seen[k] = true
		keys = append(keys, k)
	}
	for _, ow := range in.OrganWeights {
		add(ow.Specimen, ow.DoseLevel)
	}
	for _, d := range in.Decompositions {
		add(d.Organ, d.DoseLevel)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].organ != keys[j].organ {
			return keys[i].organ < keys[j].organ
		}
		return keys[i].dose < keys[j].dose
	})

	contexts := make([]domain.NormalizationContext, 0, len(keys))
	for _, k := range keys {
		var decomp *domain.EffectDecomposition
		if d, ok := decomps[k]; ok {
			dc := d
			if dc.ProportionDirect == 0 {
				if r, ok := stats.Ratio(dc.DirectEffect, dc.TotalEffect); ok {
					dc.ProportionDirect = r
				}
			}
			decomp = &dc
		}
		var brainG *float64
		if g, ok := brain[k.dose]; ok {
			bg := g
			brainG = &bg
		}
		pk, hasBW := peaks[k.dose]
		ctx := p.buildContext(k.organ, k.dose, pk.G, hasBW, brainG, decomp)
		if ov, ok := findOverride(in.Overrides, k.organ, k.dose); ok {
			applyOverride(&ctx, ov)
		}
		contexts = append(contexts, ctx)
	}
	return contexts, Decide(contexts)
}

// BuildContexts uses the default thresholds.
func BuildContexts(in ContextInput) ([]domain.NormalizationContext, map[string]domain.NormalizationDecision) {
	return DefaultPolicy().BuildContexts(in)
}

func (p Policy) buildContext(organ string, dose int, bwG float64, hasBW bool, brainG *float64, decomp *domain.EffectDecomposition) domain.NormalizationContext {
	ctx := domain.NormalizationContext{
		Organ:         organ,
		DoseLevel:     dose,
		BodyWeightG:   bwG,
		BrainWeightG:  brainG,
		Decomposition: decomp,
		Tier:          p.AssignTier(bwG),
	}
	if !hasBW {
		ctx.Warnings = append(ctx.Warnings, "no body-weight data for this dose level; confounding assumed absent")
	}
	ctx.Rationale = append(ctx.Rationale, fmt.Sprintf("peak body-weight g=%.2f gives tier %d", bwG, ctx.Tier))

	switch {
	case ctx.Tier == 1:
		ctx.Mode = domain.ModeAbsolute
		ctx.Rationale = append(ctx.Rationale, "body weight unaffected; absolute organ weight is interpretable")
	case organ == brainOrgan:
		ctx.Mode = domain.ModeAbsolute
		ctx.Rationale = append(ctx.Rationale, "brain weight is spared under body-weight loss")
	case decomp != nil:
		ctx.Mode = domain.ModeANCOVA
		ctx.Rationale = append(ctx.Rationale, fmt.Sprintf("covariate-adjusted decomposition available (direct g=%.2f, %.0f%% direct)",
			decomp.DirectG, decomp.ProportionDirect*100))
	case brainG != nil && stats.Abs(*brainG) < p.cfg.BrainUnaffectedG:
		ctx.Mode = domain.ModeBrainWeight
		ctx.Rationale = append(ctx.Rationale, fmt.Sprintf("brain weight unaffected (g=%.2f); organ-to-brain ratio preferred", *brainG))
	default:
		ctx.Mode = domain.ModeBodyWeight
		ctx.Rationale = append(ctx.Rationale, "organ-to-body-weight ratio used")
		ctx.Warnings = append(ctx.Warnings, "organ-to-body-weight ratio overcorrects when body weight is reduced")
	}
	return ctx
}

// brainEffects returns, per dose level, the brain-weight g with the largest
// magnitude (ties to males).
func brainEffects(organWeights []domain.OrganWeightStat) map[int]float64 {
	out := make(map[int]float64)
	sexOf := make(map[int]domain.Sex)
	for _, ow := range organWeights {
		if ow.DoseLevel <= 0 || analyte.OrganKey(ow.Specimen) != brainOrgan {
			continue
		}
		g, ok := GroupEffect(ow.GroupStat)
		if !ok {
			continue
		}
		cur, seen := out[ow.DoseLevel]
		switch {
		case !seen, stats.Abs(g) > stats.Abs(cur):
		case stats.Abs(g) == stats.Abs(cur) && ow.Sex == domain.SexMale && sexOf[ow.DoseLevel] != domain.SexMale:
		default:
			continue
		}
		out[ow.DoseLevel] = g
		sexOf[ow.DoseLevel] = ow.Sex
	}
	return out
}

// findOverride prefers a dose-specific override over an organ-wide one.
func findOverride(overrides []domain.NormalizationOverride, organ string, dose int) (domain.NormalizationOverride, bool) {
	var organWide *domain.NormalizationOverride
	for i := range overrides {
		ov := overrides[i]
		if analyte.OrganKey(ov.Organ) != organ || !ov.Mode.IsValid() {
			continue
		}
		if ov.DoseLevel == dose {
			return ov, true
		}
		if ov.DoseLevel == 0 && organWide == nil {
			organWide = &overrides[i]
		}
	}
	if organWide != nil {
		return *organWide, true
	}
	return domain.NormalizationOverride{}, false
}

func applyOverride(ctx *domain.NormalizationContext, ov domain.NormalizationOverride) {
	ctx.UserOverridden = true
	msg := fmt.Sprintf("reviewer override: %s", ov.Mode)
	if ov.Reviewer != "" {
		msg += " by " + ov.Reviewer
	}
	if ov.Rationale != "" {
		msg += " (" + ov.Rationale + ")"
	}
	ctx.Rationale = append(ctx.Rationale, msg)
	if ov.Mode == domain.ModeANCOVA && ctx.Decomposition == nil {
		ctx.Warnings = append(ctx.Warnings, "covariate-adjusted mode requested but no decomposition is available; raw effect is used")
	}
	ctx.Mode = ov.Mode
}

// Decide summarises contexts per organ. The context with the highest tier
// drives the decision; ties go to the higher dose level.
func Decide(contexts []domain.NormalizationContext) map[string]domain.NormalizationDecision {
	driving := make(map[string]domain.NormalizationContext)
	for _, c := range contexts {
		cur, ok := driving[c.Organ]
		if !ok || c.Tier > cur.Tier || (c.Tier == cur.Tier && c.DoseLevel > cur.DoseLevel) {
			driving[c.Organ] = c
		}
	}
	out := make(map[string]domain.NormalizationDecision, len(driving))
	for organ, c := range driving {
		overridden := false
		for _, other := range contexts {
			if other.Organ == organ && other.UserOverridden {
				overridden = true
				break
			}
		}
		out[organ] = domain.NormalizationDecision{
			Organ:            organ,
			Mode:             c.Mode,
			MaxTier:          c.Tier,
			DrivingDoseLevel: c.DoseLevel,
			Rationale:        strings.Join(c.Rationale, "; "),
			UserOverridden:   overridden,
		}
	}
	return out
}
