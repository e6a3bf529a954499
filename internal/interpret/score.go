// Package interpret scores detected syndromes for treatment-relatedness and
// folds study context into a certainty and adversity call.
package interpret

import (
	"strings"

	"github.com/tox-signal-mcp-server/internal/domain"
)

// Points needed for each treatment-relatedness verdict.
const (
	relatedPoints  = 4
	possiblyPoints = 2
)

// ScoreTreatmentRelatedness scores a syndrome from the statistics of its own
// matched endpoints. The syndrome's confidence label is never consulted.
func ScoreTreatmentRelatedness(s domain.CrossDomainSyndrome, summaries []domain.EndpointSummary) domain.TreatmentRelatednessScore {
	matched := matchedSummaries(s, summaries)

	score := domain.TreatmentRelatednessScore{
		DoseResponse:               doseResponse(matched),
		CrossEndpoint:              domain.Isolated,
		StatisticalSignificance:    significance(matched),
		ClinicalObservationSupport: len(clinicalSigns(s, matched, summaries)) > 0,
	}
	if len(s.DomainsCovered) >= 2 {
		score.CrossEndpoint = domain.Concordant
	}
	score.Points, score.Overall = combine(score)
	return score
}

// combine is the overall verdict table: dose response strong 2 / weak 1,
// concordance 1, significance highly 2 / significant 1, clinical support 1.
func combine(s domain.TreatmentRelatednessScore) (int, domain.TreatmentRelatedness) {
	points := 0
	switch s.DoseResponse {
	case domain.DoseResponseStrong:
		points += 2
	case domain.DoseResponseWeak:
		points++
	}
	if s.CrossEndpoint == domain.Concordant {
		points++
	}
	switch s.StatisticalSignificance {
	case domain.HighlySignificant:
		points += 2
	case domain.Significant:
		points++
	}
	if s.ClinicalObservationSupport {
		points++
	}

	switch {
	case points >= relatedPoints:
		return points, domain.TreatmentRelated
	case points >= possiblyPoints:
		return points, domain.PossiblyTreatmentRelated
	default:
		return points, domain.NotTreatmentRelated
	}
}

func doseResponse(matched []domain.EndpointSummary) domain.DoseResponseStrength {
	weak := false
	for _, ep := range matched {
		if ep.Pattern.IsStrongDoseResponse() && ep.MinPValue != nil && *ep.MinPValue < 0.05 {
			return domain.DoseResponseStrong
		}
		if ep.Pattern.IsDoseDependent() {
			weak = true
		}
	}
	if weak {
		return domain.DoseResponseWeak
	}
	return domain.DoseResponseAbsent
}

func significance(matched []domain.EndpointSummary) domain.Significance {
	var lowest *float64
	for _, ep := range matched {
		if ep.MinPValue == nil {
			continue
		}
		if lowest == nil || *ep.MinPValue < *lowest {
			p := *ep.MinPValue
			lowest = &p
		}
	}
	switch {
	case lowest == nil:
		return domain.SignificanceUnknown
	case *lowest < 0.01:
		return domain.HighlySignificant
	case *lowest < 0.05:
		return domain.Significant
	default:
		return domain.NotSignificant
	}
}

// clinicalSigns returns the dose-dependent clinical observations that
// correlate with the syndrome: either matched by it or sharing an organ
// system with a matched endpoint.
func clinicalSigns(s domain.CrossDomainSyndrome, matched, summaries []domain.EndpointSummary) []string {
	systems := organSystems(matched)
	inSyndrome := make(map[string]bool, len(s.MatchedEndpoints))
	for _, m := range s.MatchedEndpoints {
		inSyndrome[m.EndpointLabel] = true
	}

	var signs []string
	for _, ep := range summaries {
		if ep.Domain != domain.DomainCL || !ep.Pattern.IsDoseDependent() {
			continue
		}
		if inSyndrome[ep.EndpointLabel] || (ep.OrganSystem != "" && systems[strings.ToLower(ep.OrganSystem)]) {
			signs = append(signs, ep.EndpointLabel)
		}
	}
	return signs
}

// matchedSummaries returns the summaries of the syndrome's matched
// endpoints, in match order.
func matchedSummaries(s domain.CrossDomainSyndrome, summaries []domain.EndpointSummary) []domain.EndpointSummary {
	byLabel := make(map[string]domain.EndpointSummary, len(summaries))
	for _, ep := range summaries {
		byLabel[ep.EndpointLabel] = ep
	}
	out := make([]domain.EndpointSummary, 0, len(s.MatchedEndpoints))
	seen := map[string]bool{}
	for _, m := range s.MatchedEndpoints {
		if seen[m.EndpointLabel] {
			continue
		}
		if ep, ok := byLabel[m.EndpointLabel]; ok {
			out = append(out, ep)
			seen[m.EndpointLabel] = true
		}
	}
	return out
}

// organSystems returns the lower-cased organ systems of the matched
// endpoints.
func organSystems(matched []domain.EndpointSummary) map[string]bool {
	systems := map[string]bool{}
	for _, ep := range matched {
		if ep.OrganSystem != "" {
			systems[strings.ToLower(ep.OrganSystem)] = true
		}
	}
	return systems
}
