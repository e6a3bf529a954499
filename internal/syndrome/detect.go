package syndrome

import (
	"sort"
	"strings"

	"github.com/tox-signal-mcp-server/internal/analyte"
	"github.com/tox-signal-mcp-server/internal/domain"
	"github.com/tox-signal-mcp-server/internal/normalization"
	"github.com/tox-signal-mcp-server/internal/stats"
)

// Detector matches endpoint summaries against a syndrome catalog. Magnitude
// floors come from the normalization policy.
type Detector struct {
	policy  normalization.Policy
	catalog []Definition
}

// NewDetector creates a detector over the built-in catalog.
func NewDetector(policy normalization.Policy) *Detector {
	return &Detector{policy: policy, catalog: Catalog()}
}

// Detect returns the syndromes present in the study, in catalog order.
func Detect(summaries []domain.EndpointSummary, contexts []domain.NormalizationContext) []domain.CrossDomainSyndrome {
	return NewDetector(normalization.DefaultPolicy()).Detect(summaries, contexts)
}

// Detect returns the syndromes present in the study, in catalog order. A
// syndrome is present when every required term and at least MinSupporting
// supporting terms are matched.
func (d *Detector) Detect(summaries []domain.EndpointSummary, contexts []domain.NormalizationContext) []domain.CrossDomainSyndrome {
	var out []domain.CrossDomainSyndrome
	for _, def := range d.catalog {
		outcomes := d.matchTerms(def, summaries, contexts)
		if s, ok := assemble(def, outcomes); ok {
			out = append(out, s)
		}
	}
	return out
}

// termOutcome is the resolution of one term against the endpoint list.
type termOutcome struct {
	term     Term
	status   domain.TermMatchStatus
	endpoint *domain.EndpointSummary
	floor    *domain.FloorCheck
}

func (d *Detector) matchTerms(def Definition, summaries []domain.EndpointSummary, contexts []domain.NormalizationContext) []termOutcome {
	outcomes := make([]termOutcome, 0, len(def.Terms))
	for _, term := range def.Terms {
		outcomes = append(outcomes, d.matchTerm(term, summaries, contexts))
	}
	return outcomes
}

// matchTerm picks the first endpoint that matches the term. When none does,
// an opposite-direction significant endpoint outranks a merely measured one.
func (d *Detector) matchTerm(term Term, summaries []domain.EndpointSummary, contexts []domain.NormalizationContext) termOutcome {
	var opposite, measured *termOutcome
	for i := range summaries {
		ep := &summaries[i]
		if !resolves(term, *ep) {
			continue
		}
		check := d.policy.CheckMagnitudeFloor(*ep, contexts)
		candidate := termOutcome{term: term, endpoint: ep, floor: &check}

		if !ep.IsSignificant() || !check.Passed {
			if measured == nil {
				candidate.status = domain.TermNotSignificant
				measured = &candidate
			}
			continue
		}
		if directionMatches(term.Direction, ep.Direction) {
			candidate.status = domain.TermMatched
			return candidate
		}
		if opposite == nil {
			candidate.status = domain.TermOpposite
			opposite = &candidate
		}
	}
	if opposite != nil {
		return *opposite
	}
	if measured != nil {
		return *measured
	}
	return termOutcome{term: term, status: domain.TermNotMeasured}
}

// resolves reports whether ep measures what the term describes, regardless
// of direction or significance.
func resolves(term Term, ep domain.EndpointSummary) bool {
	if ep.Domain != term.Domain {
		return false
	}
	if len(term.Analytes) > 0 {
		canonical, ok := analyte.Resolve(ep.TestCode, ep.EndpointLabel)
		if !ok || !contains(term.Analytes, canonical) {
			return false
		}
	}
	if len(term.Specimens) > 0 {
		where := ep.Specimen
		if where == "" {
			where = ep.EndpointLabel
		}
		if !containsKeyword(where, term.Specimens) {
			return false
		}
	}
	if len(term.Findings) > 0 {
		if !containsKeyword(ep.Finding+" "+ep.EndpointLabel, term.Findings) {
			return false
		}
	}
	return true
}

// directionMatches treats a mixed endpoint as moving both ways. An endpoint
// with no direction only satisfies direction-agnostic terms.
func directionMatches(want domain.Direction, got *domain.Direction) bool {
	if want == domain.DirectionAny {
		return true
	}
	if got == nil {
		return false
	}
	return *got == want || *got == domain.DirectionMixed
}

func assemble(def Definition, outcomes []termOutcome) (domain.CrossDomainSyndrome, bool) {
	var (
		matched           []domain.SyndromeEndpoint
		supportingTotal   int
		supportingMatched int
		score             float64
		domains           = map[domain.Domain]bool{}
		sexes             = map[domain.Sex]bool{}
	)
	for _, o := range outcomes {
		if o.term.Role == domain.RoleSupporting {
			supportingTotal++
		}
		if o.status != domain.TermMatched {
			if o.term.Role == domain.RoleRequired {
				return domain.CrossDomainSyndrome{}, false
			}
			continue
		}
		if o.term.Role == domain.RoleSupporting {
			supportingMatched++
		}
		ep := o.endpoint
		matched = append(matched, domain.SyndromeEndpoint{
			EndpointLabel: ep.EndpointLabel,
			Domain:        ep.Domain,
			Role:          o.term.Role,
			Direction:     ep.DirectionValue(),
			Severity:      ep.WorstSeverity,
			TermID:        o.term.ID,
		})
		domains[ep.Domain] = true
		for _, s := range ep.Sexes {
			sexes[s] = true
		}
		score += roleWeight(o.term.Role) * severityWeight(ep.WorstSeverity) * significanceWeight(ep.MinPValue)
	}
	if supportingMatched < def.MinSupporting || len(matched) == 0 {
		return domain.CrossDomainSyndrome{}, false
	}

	covered := make([]domain.Domain, 0, len(domains))
	for d := range domains {
		covered = append(covered, d)
	}
	sort.Slice(covered, func(i, j int) bool { return covered[i] < covered[j] })

	sexList := make([]domain.Sex, 0, len(sexes))
	for s := range sexes {
		sexList = append(sexList, s)
	}
	sort.Slice(sexList, func(i, j int) bool { return sexList[i] < sexList[j] })

	score += 0.5 * float64(len(covered)-1)

	return domain.CrossDomainSyndrome{
		ID:               def.ID,
		Name:             def.Name,
		MatchedEndpoints: matched,
		DomainsCovered:   covered,
		Confidence:       confidence(supportingMatched, supportingTotal, len(covered)),
		SupportScore:     stats.Round(score, 2),
		Sexes:            sexList,
	}, true
}

// confidence grades a detected syndrome from the share of supporting terms
// matched and the number of domains involved.
func confidence(supportingMatched, supportingTotal, domainCount int) domain.SyndromeConfidence {
	fraction := 1.0
	if supportingTotal > 0 {
		fraction = float64(supportingMatched) / float64(supportingTotal)
	}
	switch {
	case fraction >= 0.5 && domainCount >= 2:
		return domain.SyndromeHigh
	case fraction >= 0.25 || domainCount >= 2:
		return domain.SyndromeModerate
	default:
		return domain.SyndromeLow
	}
}

func roleWeight(r domain.TermRole) float64 {
	if r == domain.RoleRequired {
		return 2
	}
	return 1
}

func severityWeight(s domain.Severity) float64 {
	switch s {
	case domain.SeverityAdverse:
		return 1
	case domain.SeverityWarning:
		return 0.75
	default:
		return 0.5
	}
}

func significanceWeight(p *float64) float64 {
	switch {
	case p == nil:
		return 0.5
	case *p < 0.01:
		return 1
	case *p < 0.05:
		return 0.8
	default:
		return 0.5
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsKeyword(text string, keywords []string) bool {
	upper := strings.ToUpper(text)
	for _, k := range keywords {
		if strings.Contains(upper, k) {
			return true
		}
	}
	return false
}
