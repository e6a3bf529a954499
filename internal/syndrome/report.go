package syndrome

import (
	"github.com/tox-signal-mcp-server/internal/domain"
	"github.com/tox-signal-mcp-server/internal/normalization"
)

// BuildTermReports explains, term by term, how each detected syndrome was
// matched.
func BuildTermReports(syndromes []domain.CrossDomainSyndrome, summaries []domain.EndpointSummary, contexts []domain.NormalizationContext) []domain.SyndromeTermReport {
	return NewDetector(normalization.DefaultPolicy()).BuildTermReports(syndromes, summaries, contexts)
}

// BuildTermReports explains, term by term, how each detected syndrome was
// matched. Syndromes missing from the catalog are skipped.
func (d *Detector) BuildTermReports(syndromes []domain.CrossDomainSyndrome, summaries []domain.EndpointSummary, contexts []domain.NormalizationContext) []domain.SyndromeTermReport {
	reports := make([]domain.SyndromeTermReport, 0, len(syndromes))
	for _, s := range syndromes {
		def, ok := d.definition(s.ID)
		if !ok {
			continue
		}
		reports = append(reports, d.TermReport(def, summaries, contexts))
	}
	return reports
}

// TermReport reports every term of def whether or not the syndrome was
// detected.
func (d *Detector) TermReport(def Definition, summaries []domain.EndpointSummary, contexts []domain.NormalizationContext) domain.SyndromeTermReport {
	report := domain.SyndromeTermReport{SyndromeID: def.ID, Terms: make([]domain.TermReport, 0, len(def.Terms))}
	for _, o := range d.matchTerms(def, summaries, contexts) {
		line := domain.TermReport{
			TermID: o.term.ID,
			Label:  o.term.Label,
			Role:   o.term.Role,
			Status: o.status,
		}
		if o.endpoint != nil {
			line.EndpointLabel = o.endpoint.EndpointLabel
			line.FoundDirection = o.endpoint.Direction
			line.PValue = o.endpoint.MinPValue
			if o.term.Domain == domain.DomainOM && o.floor != nil {
				line.FloorAnnotation = o.floor.Annotation()
			}
		}
		report.Terms = append(report.Terms, line)
	}
	return report
}

func (d *Detector) definition(id string) (Definition, bool) {
	for _, def := range d.catalog {
		if def.ID == id {
			return def, true
		}
	}
	return Definition{}, false
}
