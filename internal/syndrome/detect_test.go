package syndrome

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tox-signal-mcp-server/internal/domain"
	"github.com/tox-signal-mcp-server/internal/normalization"
)

func f(v float64) *float64 { return &v }

func dir(d domain.Direction) *domain.Direction { return &d }

func labEndpoint(code, label string, d domain.Direction, g, fc, p float64) domain.EndpointSummary {
	return domain.EndpointSummary{
		EndpointLabel: label,
		Domain:        domain.DomainLB,
		TestCode:      code,
		WorstSeverity: domain.SeverityAdverse,
		MinPValue:     f(p),
		MaxEffectSize: f(g),
		MaxFoldChange: f(fc),
		Direction:     dir(d),
		Sexes:         []domain.Sex{domain.SexMale},
		PeakDoseLevel: 3,
	}
}

func organEndpoint(specimen string, d domain.Direction, g, fc float64) domain.EndpointSummary {
	return domain.EndpointSummary{
		EndpointLabel: specimen + " weight",
		Domain:        domain.DomainOM,
		Specimen:      specimen,
		WorstSeverity: domain.SeverityAdverse,
		MinPValue:     f(0.001),
		MaxEffectSize: f(g),
		MaxFoldChange: f(fc),
		Direction:     dir(d),
		Sexes:         []domain.Sex{domain.SexFemale},
		PeakDoseLevel: 3,
	}
}

func histoEndpoint(specimen, finding string) domain.EndpointSummary {
	return domain.EndpointSummary{
		EndpointLabel: specimen + " - " + finding,
		Domain:        domain.DomainMI,
		Specimen:      specimen,
		Finding:       finding,
		WorstSeverity: domain.SeverityAdverse,
		Direction:     dir(domain.DirectionUp),
		Sexes:         []domain.Sex{domain.SexMale},
		PeakDoseLevel: 3,
	}
}

func find(syndromes []domain.CrossDomainSyndrome, id string) *domain.CrossDomainSyndrome {
	for i := range syndromes {
		if syndromes[i].ID == id {
			return &syndromes[i]
		}
	}
	return nil
}

func term(report domain.SyndromeTermReport, id string) domain.TermReport {
	for _, t := range report.Terms {
		if t.TermID == id {
			return t
		}
	}
	return domain.TermReport{}
}

func TestCatalogShape(t *testing.T) {
	catalog := Catalog()
	require.Len(t, catalog, 10)

	seen := map[string]bool{}
	for i, def := range catalog {
		assert.Equal(t, fmt.Sprintf("XS%02d", i+1), def.ID)
		hasRequired := false
		for _, tm := range def.Terms {
			assert.False(t, seen[tm.ID], "duplicate term %s", tm.ID)
			seen[tm.ID] = true
			assert.True(t, tm.Domain.IsValid(), tm.ID)
			if tm.Role == domain.RoleRequired {
				hasRequired = true
			}
		}
		assert.True(t, hasRequired, "%s has no required term", def.ID)
	}

	def, ok := Lookup(StressSyndromeID)
	require.True(t, ok)
	assert.Equal(t, "Stress response", def.Name)
	_, ok = Lookup("XS99")
	assert.False(t, ok)
}

func TestDetectHepatocellularInjury(t *testing.T) {
	summaries := []domain.EndpointSummary{
		labEndpoint("ALT", "Alanine aminotransferase", domain.DirectionUp, 2.0, 3.0, 0.001),
		organEndpoint("LIVER", domain.DirectionUp, 1.5, 1.2),
		histoEndpoint("LIVER", "NECROSIS"),
	}

	syndromes := Detect(summaries, nil)
	xs01 := find(syndromes, "XS01")
	require.NotNil(t, xs01)

	assert.Equal(t, "Hepatocellular injury", xs01.Name)
	assert.Equal(t, []domain.Domain{domain.DomainLB, domain.DomainMI, domain.DomainOM}, xs01.DomainsCovered)
	assert.Equal(t, domain.SyndromeHigh, xs01.Confidence)
	assert.Equal(t, []domain.Sex{domain.SexFemale, domain.SexMale}, xs01.Sexes)
	// 2 (ALT) + 1 (liver weight) + 0.5 (histopathology, no p-value) + 2 extra domains
	assert.InDelta(t, 4.5, xs01.SupportScore, 1e-9)
	require.Len(t, xs01.MatchedEndpoints, 3)
	assert.Equal(t, domain.RoleRequired, xs01.MatchedEndpoints[0].Role)
	assert.Equal(t, "XS01-T1", xs01.MatchedEndpoints[0].TermID)
	assert.True(t, xs01.HasDomain(domain.DomainMI))

	assert.Nil(t, find(syndromes, "XS02"))
	assert.Nil(t, find(syndromes, "XS10"))
}

func TestRequiredTermAloneIsNotASyndrome(t *testing.T) {
	summaries := []domain.EndpointSummary{
		labEndpoint("ALT", "Alanine aminotransferase", domain.DirectionUp, 2.0, 3.0, 0.001),
	}
	assert.Nil(t, find(Detect(summaries, nil), "XS01"))
}

func TestOppositeDirectionNeverMatches(t *testing.T) {
	summaries := []domain.EndpointSummary{
		labEndpoint("ALT", "Alanine aminotransferase", domain.DirectionUp, 2.0, 3.0, 0.001),
		organEndpoint("LIVER", domain.DirectionDown, -1.5, 0.8),
		histoEndpoint("LIVER", "HYPERTROPHY"),
	}

	syndromes := Detect(summaries, nil)
	xs01 := find(syndromes, "XS01")
	require.NotNil(t, xs01)
	for _, m := range xs01.MatchedEndpoints {
		assert.NotEqual(t, "LIVER weight", m.EndpointLabel)
	}

	reports := BuildTermReports(syndromes, summaries, nil)
	require.NotEmpty(t, reports)
	liverWeight := term(reports[0], "XS01-T3")
	assert.Equal(t, domain.TermOpposite, liverWeight.Status)
	require.NotNil(t, liverWeight.FoundDirection)
	assert.Equal(t, domain.DirectionDown, *liverWeight.FoundDirection)
}

func TestOppositeRequiredTermBlocksDetection(t *testing.T) {
	summaries := []domain.EndpointSummary{
		labEndpoint("ALT", "Alanine aminotransferase", domain.DirectionDown, -2.0, 0.4, 0.001),
		organEndpoint("LIVER", domain.DirectionUp, 1.5, 1.2),
	}
	assert.Nil(t, find(Detect(summaries, nil), "XS01"))

	def, _ := Lookup("XS01")
	report := NewDetector(normalization.DefaultPolicy()).TermReport(def, summaries, nil)
	assert.Equal(t, domain.TermOpposite, term(report, "XS01-T1").Status)
	assert.Equal(t, domain.TermMatched, term(report, "XS01-T3").Status)
	assert.Equal(t, domain.TermNotMeasured, term(report, "XS01-T2").Status)
}

func TestMixedDirectionMatches(t *testing.T) {
	summaries := []domain.EndpointSummary{
		labEndpoint("ALT", "Alanine aminotransferase", domain.DirectionMixed, 2.0, 3.0, 0.01),
		histoEndpoint("LIVER", "SINGLE CELL NECROSIS"),
	}
	xs01 := find(Detect(summaries, nil), "XS01")
	require.NotNil(t, xs01)
	assert.Equal(t, domain.DirectionMixed, xs01.MatchedEndpoints[0].Direction)
}

func TestFloorFailureIsNotSignificant(t *testing.T) {
	summaries := []domain.EndpointSummary{
		labEndpoint("ALT", "Alanine aminotransferase", domain.DirectionUp, 2.0, 3.0, 0.001),
		organEndpoint("LIVER", domain.DirectionUp, 0.3, 1.02),
		histoEndpoint("LIVER", "NECROSIS"),
	}

	syndromes := Detect(summaries, nil)
	xs01 := find(syndromes, "XS01")
	require.NotNil(t, xs01)
	assert.Len(t, xs01.MatchedEndpoints, 2)
	assert.Equal(t, []domain.Domain{domain.DomainLB, domain.DomainMI}, xs01.DomainsCovered)

	reports := BuildTermReports(syndromes, summaries, nil)
	liverWeight := term(reports[0], "XS01-T3")
	assert.Equal(t, domain.TermNotSignificant, liverWeight.Status)
	assert.Equal(t, "LIVER weight", liverWeight.EndpointLabel)
	assert.Contains(t, liverWeight.FloorAnnotation, "magnitude floor not met")
}

func TestNonSignificantEndpointIsNotSignificant(t *testing.T) {
	sdh := labEndpoint("SDH", "Sorbitol dehydrogenase", domain.DirectionUp, 1.0, 1.5, 0.2)
	sdh.WorstSeverity = domain.SeverityNormal
	summaries := []domain.EndpointSummary{
		labEndpoint("ALT", "Alanine aminotransferase", domain.DirectionUp, 2.0, 3.0, 0.001),
		sdh,
	}

	def, _ := Lookup("XS01")
	report := NewDetector(normalization.DefaultPolicy()).TermReport(def, summaries, nil)
	line := term(report, "XS01-T2")
	assert.Equal(t, domain.TermNotSignificant, line.Status)
	require.NotNil(t, line.PValue)
	assert.InDelta(t, 0.2, *line.PValue, 1e-12)
	assert.Empty(t, line.FloorAnnotation)
	assert.Nil(t, find(Detect(summaries, nil), "XS01"))
}

func TestTermReportCarriesConfoundingNote(t *testing.T) {
	summaries := []domain.EndpointSummary{
		organEndpoint("ADRENAL", domain.DirectionUp, 1.0, 1.15),
		organEndpoint("THYMUS", domain.DirectionDown, -1.2, 0.8),
	}
	contexts := []domain.NormalizationContext{
		{Organ: "ADRENAL", DoseLevel: 3, Tier: 2, Mode: domain.ModeBodyWeight, BodyWeightG: 0.7},
	}

	syndromes := Detect(summaries, contexts)
	xs08 := find(syndromes, StressSyndromeID)
	require.NotNil(t, xs08)
	assert.Equal(t, []domain.Domain{domain.DomainOM}, xs08.DomainsCovered)

	reports := BuildTermReports(syndromes, summaries, contexts)
	require.Len(t, reports, len(syndromes))
	var stress domain.SyndromeTermReport
	for _, r := range reports {
		if r.SyndromeID == StressSyndromeID {
			stress = r
		}
	}
	adrenal := term(stress, "XS08-T1")
	assert.Equal(t, domain.TermMatched, adrenal.Status)
	assert.Contains(t, adrenal.FloorAnnotation, "BW confounding tier 2")
	assert.Empty(t, term(stress, "XS08-T2").FloorAnnotation)
}

func TestTermReportsCoverEveryTerm(t *testing.T) {
	def, _ := Lookup("XS03")
	report := NewDetector(normalization.DefaultPolicy()).TermReport(def, nil, nil)
	require.Len(t, report.Terms, len(def.Terms))
	for _, line := range report.Terms {
		assert.Equal(t, domain.TermNotMeasured, line.Status)
		assert.Empty(t, line.EndpointLabel)
	}
}

func TestConfidenceGrades(t *testing.T) {
	tests := []struct {
		matched, total, domains int
		want                    domain.SyndromeConfidence
	}{
		{2, 4, 2, domain.SyndromeHigh},
		{2, 4, 1, domain.SyndromeModerate},
		{1, 4, 1, domain.SyndromeModerate},
		{1, 5, 2, domain.SyndromeModerate},
		{1, 5, 1, domain.SyndromeLow},
		{0, 0, 2, domain.SyndromeHigh},
	}
	for _, tt := range tests {
		got := confidence(tt.matched, tt.total, tt.domains)
		assert.Equal(t, tt.want, got, "%d/%d supporting over %d domains", tt.matched, tt.total, tt.domains)
	}
}

func TestDetectEmptyInput(t *testing.T) {
	assert.Empty(t, Detect(nil, nil))
	assert.Empty(t, BuildTermReports(nil, nil, nil))
}

func TestDetectIsDeterministic(t *testing.T) {
	summaries := []domain.EndpointSummary{
		labEndpoint("BUN", "Urea nitrogen", domain.DirectionUp, 1.8, 1.6, 0.001),
		labEndpoint("CREAT", "Creatinine", domain.DirectionUp, 1.4, 1.3, 0.01),
		organEndpoint("KIDNEY", domain.DirectionUp, 1.1, 1.15),
		histoEndpoint("KIDNEY", "TUBULAR DEGENERATION"),
	}
	first := Detect(summaries, nil)
	require.NotNil(t, find(first, "XS03"))
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Detect(summaries, nil))
	}
}
