package interpret

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tox-signal-mcp-server/internal/analyte"
	"github.com/tox-signal-mcp-server/internal/domain"
	"github.com/tox-signal-mcp-server/internal/normalization"
	"github.com/tox-signal-mcp-server/internal/syndrome"
)

// Recovery assessment statuses.
const (
	RecoveryNotExamined = "not_examined"
	RecoveryRecovered   = string(domain.RecoveryRecovered)
	RecoveryPartial     = string(domain.RecoveryPartial)
	RecoveryPersisted   = string(domain.RecoveryNone)
)

// Context is the study data an interpretation reads besides the syndrome.
type Context struct {
	Summaries []domain.EndpointSummary
	Contexts  []domain.NormalizationContext
	Syndromes []domain.CrossDomainSyndrome
	Recovery  []domain.RecoveryObservation
	Mortality []domain.MortalityRecord
	Tumors    []domain.TumorFinding
}

// Interpreter turns detected syndromes into interpretations.
type Interpreter struct {
	policy normalization.Policy
}

// NewInterpreter creates an interpreter using policy for the
// secondary-to-body-weight verdict.
func NewInterpreter(policy normalization.Policy) *Interpreter {
	return &Interpreter{policy: policy}
}

// Interpret uses the default normalization policy.
func Interpret(s domain.CrossDomainSyndrome, c Context) domain.SyndromeInterpretation {
	return NewInterpreter(normalization.DefaultPolicy()).Interpret(s, c)
}

// InterpretAll interprets every syndrome in c.Syndromes, in order.
func (in *Interpreter) InterpretAll(c Context) []domain.SyndromeInterpretation {
	out := make([]domain.SyndromeInterpretation, 0, len(c.Syndromes))
	for _, s := range c.Syndromes {
		out = append(out, in.Interpret(s, c))
	}
	return out
}

// Interpret derives the full interpretive record of one syndrome.
func (in *Interpreter) Interpret(s domain.CrossDomainSyndrome, c Context) domain.SyndromeInterpretation {
	matched := matchedSummaries(s, c.Summaries)
	score := ScoreTreatmentRelatedness(s, c.Summaries)
	systems := organSystems(matched)
	tumors := assessTumors(systems, matched, c.Tumors)

	result := domain.SyndromeInterpretation{
		SyndromeID:           s.ID,
		TreatmentRelatedness: score,
		Recovery:             assessRecovery(matched, c.Recovery),
		ClinicalObservations: domain.ClinicalObservationAssessment{
			Signs: clinicalSigns(s, matched, c.Summaries),
		},
		Mortality:       assessMortality(systems, c.Mortality),
		FoodConsumption: foodConsumption(s, c.Summaries),
		TumorContext:    tumors.String(),
	}
	result.ClinicalObservations.Supported = len(result.ClinicalObservations.Signs) > 0

	if s.HasDomain(domain.DomainOM) || s.HasDomain(domain.DomainBW) {
		result.SecondaryToBW = in.secondaryToBodyWeight(matched, c.Contexts, stressDetected(c.Syndromes))
	}

	result.Certainty, result.CertaintyRationale = certainty(s, result)
	result.OverallSeverity = adversity(matched, result, tumors.malignant > 0)
	return result
}

// certainty starts from the detector's confidence, is capped by the
// treatment-relatedness verdict and drops one level for a change secondary
// to body weight.
func certainty(s domain.CrossDomainSyndrome, r domain.SyndromeInterpretation) (domain.Certainty, []string) {
	level := domain.CertaintyLow
	switch s.Confidence {
	case domain.SyndromeHigh:
		level = domain.CertaintyHigh
	case domain.SyndromeModerate:
		level = domain.CertaintyModerate
	}
	rationale := []string{fmt.Sprintf("detector confidence %s across %d domain(s)", s.Confidence, len(s.DomainsCovered))}

	switch r.TreatmentRelatedness.Overall {
	case domain.NotTreatmentRelated:
		if level.Rank() > domain.CertaintyLow.Rank() {
			level = domain.CertaintyLow
			rationale = append(rationale, "capped at low: not treatment-related")
		}
	case domain.PossiblyTreatmentRelated:
		if level.Rank() > domain.CertaintyModerate.Rank() {
			level = domain.CertaintyModerate
			rationale = append(rationale, "capped at moderate: possibly treatment-related")
		}
	}

	if r.SecondaryToBW != nil && r.SecondaryToBW.IsSecondary {
		level = downgrade(level)
		rationale = append(rationale, "lowered: organ-weight change likely secondary to body-weight loss")
	}
	if r.ClinicalObservations.Supported {
		rationale = append(rationale, "correlating clinical signs: "+strings.Join(r.ClinicalObservations.Signs, ", "))
	}
	switch r.Recovery.Status {
	case RecoveryRecovered:
		rationale = append(rationale, "all examined endpoints recovered")
	case RecoveryPersisted:
		rationale = append(rationale, "findings persisted after the recovery period")
	}
	if r.Mortality.TreatmentRelatedDeaths > 0 {
		rationale = append(rationale, r.Mortality.Note)
	}
	if r.TumorContext != "" {
		rationale = append(rationale, r.TumorContext)
	}
	return level, rationale
}

func downgrade(c domain.Certainty) domain.Certainty {
	switch c {
	case domain.CertaintyHigh:
		return domain.CertaintyModerate
	default:
		return domain.CertaintyLow
	}
}

// adversity is adverse for treatment-related adverse findings, related
// deaths or related malignancies. Full recovery or a change secondary to
// body weight softens adverse to potentially adverse unless deaths occurred.
func adversity(matched []domain.EndpointSummary, r domain.SyndromeInterpretation, relatedMalignancy bool) domain.Adversity {
	if r.Mortality.TreatmentRelatedDeaths > 0 || relatedMalignancy {
		return domain.Adverse
	}

	worst := domain.SeverityNormal
	for _, ep := range matched {
		if ep.WorstSeverity.Rank() > worst.Rank() {
			worst = ep.WorstSeverity
		}
	}

	overall := r.TreatmentRelatedness.Overall
	result := domain.NonAdverse
	switch {
	case overall == domain.NotTreatmentRelated:
		result = domain.NonAdverse
	case worst == domain.SeverityAdverse && overall == domain.TreatmentRelated:
		result = domain.Adverse
	case worst.IsNotable():
		result = domain.PotentiallyAdverse
	}

	if result == domain.Adverse {
		if r.Recovery.Status == RecoveryRecovered {
			return domain.PotentiallyAdverse
		}
		if r.SecondaryToBW != nil && r.SecondaryToBW.IsSecondary {
			return domain.PotentiallyAdverse
		}
	}
	return result
}

func assessRecovery(matched []domain.EndpointSummary, observations []domain.RecoveryObservation) domain.RecoveryAssessment {
	byLabel := make(map[string]domain.RecoveryStatus, len(observations))
	for _, o := range observations {
		byLabel[strings.ToUpper(strings.TrimSpace(o.EndpointLabel))] = o.Status
	}

	var a domain.RecoveryAssessment
	for _, ep := range matched {
		status, ok := byLabel[strings.ToUpper(ep.EndpointLabel)]
		if !ok {
			continue
		}
		switch status {
		case domain.RecoveryRecovered:
			a.Recovered = append(a.Recovered, ep.EndpointLabel)
		case domain.RecoveryPartial:
			a.Partial = append(a.Partial, ep.EndpointLabel)
		case domain.RecoveryNone:
			a.Persisted = append(a.Persisted, ep.EndpointLabel)
		}
	}

	switch {
	case len(a.Persisted) > 0:
		a.Status = RecoveryPersisted
	case len(a.Partial) > 0:
		a.Status = RecoveryPartial
	case len(a.Recovered) > 0:
		a.Status = RecoveryRecovered
	default:
		a.Status = RecoveryNotExamined
	}
	return a
}

func assessMortality(systems map[string]bool, records []domain.MortalityRecord) domain.MortalityContext {
	var mc domain.MortalityContext
	unattributed := 0
	doses := map[int]bool{}
	for _, r := range records {
		if !r.TreatmentRelated {
			continue
		}
		if r.OrganSystem == "" || !systems[strings.ToLower(r.OrganSystem)] {
			unattributed++
			continue
		}
		mc.TreatmentRelatedDeaths++
		doses[r.DoseLevel] = true
	}
	for d := range doses {
		mc.DoseLevels = append(mc.DoseLevels, d)
	}
	sort.Ints(mc.DoseLevels)

	switch {
	case mc.TreatmentRelatedDeaths > 0:
		mc.Note = fmt.Sprintf("%d treatment-related death(s) attributed to affected organ systems at dose level(s) %s",
			mc.TreatmentRelatedDeaths, joinInts(mc.DoseLevels))
	case unattributed > 0:
		mc.Note = fmt.Sprintf("%d treatment-related death(s) not attributed to this syndrome", unattributed)
	}
	return mc
}

// foodConsumption relates food intake to body-weight and organ-weight
// syndromes. Other syndromes get no food-consumption context.
func foodConsumption(s domain.CrossDomainSyndrome, summaries []domain.EndpointSummary) string {
	if !s.HasDomain(domain.DomainBW) && !s.HasDomain(domain.DomainOM) {
		return ""
	}
	measured, decreased := false, false
	for _, ep := range summaries {
		if ep.Domain != domain.DomainFW {
			continue
		}
		measured = true
		if ep.IsSignificant() && ep.DirectionValue() == domain.DirectionDown {
			decreased = true
		}
	}
	switch {
	case !measured:
		return ""
	case decreased && s.HasDomain(domain.DomainBW):
		return "food consumption decreased; body-weight loss may reflect reduced intake"
	case decreased:
		return "food consumption decreased; organ-weight changes may be nutritional"
	case s.HasDomain(domain.DomainBW):
		return "body-weight loss without reduced food consumption suggests systemic toxicity"
	default:
		return "food consumption unaffected"
	}
}

// tumorSummary counts tumor findings in the organs a syndrome affects.
type tumorSummary struct {
	related   int
	malignant int
	unrelated int
}

func (t tumorSummary) String() string {
	switch {
	case t.related > 0:
		return fmt.Sprintf("%d treatment-related tumor finding(s) in affected organs, %d malignant", t.related, t.malignant)
	case t.unrelated > 0:
		return fmt.Sprintf("%d tumor finding(s) in affected organs, none treatment-related", t.unrelated)
	default:
		return ""
	}
}

func assessTumors(systems map[string]bool, matched []domain.EndpointSummary, tumors []domain.TumorFinding) tumorSummary {
	specimens := map[string]bool{}
	for _, ep := range matched {
		if ep.Specimen != "" {
			specimens[analyte.OrganKey(ep.Specimen)] = true
		}
	}

	var ts tumorSummary
	for _, t := range tumors {
		relevant := specimens[analyte.OrganKey(t.Specimen)] ||
			(t.OrganSystem != "" && systems[strings.ToLower(t.OrganSystem)])
		if !relevant {
			continue
		}
		if !t.TreatmentRelated {
			ts.unrelated++
			continue
		}
		ts.related++
		if t.Malignant {
			ts.malignant++
		}
	}
	return ts
}

// secondaryToBodyWeight assesses every matched organ-weight endpoint against
// its normalization context. The syndrome is secondary only when every organ
// is: the most confident non-secondary verdict wins, an organ without a
// verdict yields nil, and otherwise the least confident secondary verdict
// is kept.
func (in *Interpreter) secondaryToBodyWeight(matched []domain.EndpointSummary, contexts []domain.NormalizationContext, stress bool) *domain.SecondaryToBW {
	var direct, secondary *domain.SecondaryToBW
	unassessed := false
	for _, ep := range matched {
		if ep.Domain != domain.DomainOM || ep.Specimen == "" {
			continue
		}
		ctx, ok := normalization.MatchContext(contexts, ep.Specimen, ep.PeakDoseLevel)
		if !ok {
			ctx = domain.NormalizationContext{Tier: 1}
		}
		v := in.policy.AssessSecondaryToBodyWeight(ep.Specimen, ctx.Tier, ctx.BodyWeightG, stress)
		switch {
		case v == nil:
			unassessed = true
		case v.IsSecondary:
			if secondary == nil || confidenceRank(v.Confidence) < confidenceRank(secondary.Confidence) {
				secondary = v
			}
		default:
			if direct == nil || confidenceRank(v.Confidence) > confidenceRank(direct.Confidence) {
				direct = v
			}
		}
	}
	if direct != nil {
		return direct
	}
	if unassessed {
		return nil
	}
	return secondary
}

func confidenceRank(c domain.AssessmentConfidence) int {
	switch c {
	case domain.ConfidenceHigh:
		return 3
	case domain.ConfidenceMedium:
		return 2
	case domain.ConfidenceLow:
		return 1
	default:
		return 0
	}
}

func stressDetected(syndromes []domain.CrossDomainSyndrome) bool {
	for _, s := range syndromes {
		if s.ID == syndrome.StressSyndromeID {
			return true
		}
	}
	return false
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ", ")
}
