package interpret

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tox-signal-mcp-server/internal/domain"
	"github.com/tox-signal-mcp-server/internal/normalization"
)

func f(v float64) *float64 { return &v }

func dir(d domain.Direction) *domain.Direction { return &d }

func endpoint(label string, d domain.Domain, system string, pattern domain.Pattern, p *float64, sev domain.Severity) domain.EndpointSummary {
	return domain.EndpointSummary{
		EndpointLabel: label,
		Domain:        d,
		OrganSystem:   system,
		Pattern:       pattern,
		MinPValue:     p,
		WorstSeverity: sev,
		Direction:     dir(domain.DirectionUp),
		PeakDoseLevel: 3,
	}
}

func syndromeOf(id string, conf domain.SyndromeConfidence, eps ...domain.EndpointSummary) domain.CrossDomainSyndrome {
	s := domain.CrossDomainSyndrome{ID: id, Confidence: conf}
	seen := map[domain.Domain]bool{}
	for i, ep := range eps {
		role := domain.RoleSupporting
		if i == 0 {
			role = domain.RoleRequired
		}
		s.MatchedEndpoints = append(s.MatchedEndpoints, domain.SyndromeEndpoint{
			EndpointLabel: ep.EndpointLabel, Domain: ep.Domain, Role: role,
			Direction: ep.DirectionValue(), Severity: ep.WorstSeverity,
		})
		if !seen[ep.Domain] {
			seen[ep.Domain] = true
			s.DomainsCovered = append(s.DomainsCovered, ep.Domain)
		}
	}
	return s
}

func hepatic() []domain.EndpointSummary {
	alt := endpoint("ALT", domain.DomainLB, "hepatic", domain.PatternMonotonicIncrease, f(0.001), domain.SeverityAdverse)
	liver := endpoint("LIVER weight", domain.DomainOM, "hepatic", domain.PatternThresholdIncrease, f(0.02), domain.SeverityWarning)
	liver.Specimen = "LIVER"
	return []domain.EndpointSummary{alt, liver}
}

func TestDoseResponseStrength(t *testing.T) {
	tests := []struct {
		name    string
		pattern domain.Pattern
		p       *float64
		want    domain.DoseResponseStrength
	}{
		{"monotonic significant", domain.PatternMonotonicDecrease, f(0.01), domain.DoseResponseStrong},
		{"linear significant", domain.PatternLinear, f(0.04), domain.DoseResponseStrong},
		{"threshold not significant", domain.PatternThresholdIncrease, f(0.2), domain.DoseResponseWeak},
		{"non-monotonic", domain.PatternNonMonotonic, f(0.001), domain.DoseResponseWeak},
		{"monotonic without p", domain.PatternMonotonicIncrease, nil, domain.DoseResponseWeak},
		{"flat", domain.PatternFlat, f(0.001), domain.DoseResponseAbsent},
		{"insufficient", domain.PatternInsufficient, f(0.001), domain.DoseResponseAbsent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep := endpoint("ALT", domain.DomainLB, "hepatic", tt.pattern, tt.p, domain.SeverityAdverse)
			s := syndromeOf("XS01", domain.SyndromeHigh, ep)
			assert.Equal(t, tt.want, ScoreTreatmentRelatedness(s, []domain.EndpointSummary{ep}).DoseResponse)
		})
	}
}

func TestScoreIgnoresSyndromeConfidence(t *testing.T) {
	summaries := hepatic()
	high := ScoreTreatmentRelatedness(syndromeOf("XS01", domain.SyndromeHigh, summaries...), summaries)
	low := ScoreTreatmentRelatedness(syndromeOf("XS01", domain.SyndromeLow, summaries...), summaries)
	assert.Equal(t, high, low)
}

func TestScoreOnlyReadsMatchedEndpoints(t *testing.T) {
	alt := endpoint("ALT", domain.DomainLB, "hepatic", domain.PatternFlat, f(0.3), domain.SeverityWarning)
	other := endpoint("BUN", domain.DomainLB, "renal", domain.PatternMonotonicIncrease, f(0.0001), domain.SeverityAdverse)
	s := syndromeOf("XS01", domain.SyndromeHigh, alt)

	score := ScoreTreatmentRelatedness(s, []domain.EndpointSummary{alt, other})
	assert.Equal(t, domain.DoseResponseAbsent, score.DoseResponse)
	assert.Equal(t, domain.NotSignificant, score.StatisticalSignificance)
	assert.Equal(t, domain.Isolated, score.CrossEndpoint)
	assert.Equal(t, 0, score.Points)
	assert.Equal(t, domain.NotTreatmentRelated, score.Overall)
}

func TestSignificanceBins(t *testing.T) {
	tests := []struct {
		p    *float64
		want domain.Significance
	}{
		{f(0.001), domain.HighlySignificant},
		{f(0.01), domain.Significant},
		{f(0.049), domain.Significant},
		{f(0.05), domain.NotSignificant},
		{nil, domain.SignificanceUnknown},
	}
	for _, tt := range tests {
		ep := endpoint("ALT", domain.DomainLB, "hepatic", domain.PatternFlat, tt.p, domain.SeverityWarning)
		assert.Equal(t, tt.want, significance([]domain.EndpointSummary{ep}))
	}
}

func TestCombineTable(t *testing.T) {
	tests := []struct {
		name   string
		score  domain.TreatmentRelatednessScore
		points int
		want   domain.TreatmentRelatedness
	}{
		{
			name: "everything",
			score: domain.TreatmentRelatednessScore{DoseResponse: domain.DoseResponseStrong, CrossEndpoint: domain.Concordant,
				StatisticalSignificance: domain.HighlySignificant, ClinicalObservationSupport: true},
			points: 6, want: domain.TreatmentRelated,
		},
		{
			name: "strong and significant",
			score: domain.TreatmentRelatednessScore{DoseResponse: domain.DoseResponseStrong, CrossEndpoint: domain.Isolated,
				StatisticalSignificance: domain.Significant},
			points: 3, want: domain.PossiblyTreatmentRelated,
		},
		{
			name: "weak concordant",
			score: domain.TreatmentRelatednessScore{DoseResponse: domain.DoseResponseWeak, CrossEndpoint: domain.Concordant,
				StatisticalSignificance: domain.NotSignificant},
			points: 2, want: domain.PossiblyTreatmentRelated,
		},
		{
			name: "clinical signs only",
			score: domain.TreatmentRelatednessScore{DoseResponse: domain.DoseResponseAbsent, CrossEndpoint: domain.Isolated,
				StatisticalSignificance: domain.SignificanceUnknown, ClinicalObservationSupport: true},
			points: 1, want: domain.NotTreatmentRelated,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			points, overall := combine(tt.score)
			assert.Equal(t, tt.points, points)
			assert.Equal(t, tt.want, overall)
		})
	}
}

func TestClinicalObservationSupport(t *testing.T) {
	summaries := hepatic()
	s := syndromeOf("XS01", domain.SyndromeHigh, summaries...)

	jaundice := endpoint("Jaundice", domain.DomainCL, "hepatic", domain.PatternThresholdIncrease, nil, domain.SeverityWarning)
	flatSign := endpoint("Salivation", domain.DomainCL, "hepatic", domain.PatternFlat, nil, domain.SeverityWarning)
	unrelated := endpoint("Tremor", domain.DomainCL, "nervous", domain.PatternMonotonicIncrease, nil, domain.SeverityWarning)

	withSigns := append(append([]domain.EndpointSummary{}, summaries...), jaundice, flatSign, unrelated)
	score := ScoreTreatmentRelatedness(s, withSigns)
	assert.True(t, score.ClinicalObservationSupport)

	result := Interpret(s, Context{Summaries: withSigns, Syndromes: []domain.CrossDomainSyndrome{s}})
	assert.True(t, result.ClinicalObservations.Supported)
	assert.Equal(t, []string{"Jaundice"}, result.ClinicalObservations.Signs)

	assert.False(t, ScoreTreatmentRelatedness(s, summaries).ClinicalObservationSupport)
}

func TestInterpretTreatmentRelatedAdverse(t *testing.T) {
	summaries := hepatic()
	s := syndromeOf("XS01", domain.SyndromeHigh, summaries...)

	result := Interpret(s, Context{Summaries: summaries, Syndromes: []domain.CrossDomainSyndrome{s}})

	assert.Equal(t, "XS01", result.SyndromeID)
	assert.Equal(t, domain.TreatmentRelated, result.TreatmentRelatedness.Overall)
	assert.Equal(t, 5, result.TreatmentRelatedness.Points)
	assert.Equal(t, domain.CertaintyHigh, result.Certainty)
	assert.Equal(t, domain.Adverse, result.OverallSeverity)
	assert.Equal(t, RecoveryNotExamined, result.Recovery.Status)
	assert.Nil(t, result.SecondaryToBW, "tier 1 liver gets no verdict")
	assert.NotEmpty(t, result.CertaintyRationale)
}

func TestRecoverySoftensAdversity(t *testing.T) {
	summaries := hepatic()
	s := syndromeOf("XS01", domain.SyndromeHigh, summaries...)
	recovery := []domain.RecoveryObservation{
		{EndpointLabel: "alt", Status: domain.RecoveryRecovered},
		{EndpointLabel: "LIVER weight", Status: domain.RecoveryRecovered},
	}

	result := Interpret(s, Context{Summaries: summaries, Recovery: recovery})
	assert.Equal(t, RecoveryRecovered, result.Recovery.Status)
	assert.ElementsMatch(t, []string{"ALT", "LIVER weight"}, result.Recovery.Recovered)
	assert.Equal(t, domain.PotentiallyAdverse, result.OverallSeverity)
	assert.Contains(t, result.CertaintyRationale, "all examined endpoints recovered")

	recovery[1].Status = domain.RecoveryNone
	persisted := Interpret(s, Context{Summaries: summaries, Recovery: recovery})
	assert.Equal(t, RecoveryPersisted, persisted.Recovery.Status)
	assert.Equal(t, []string{"LIVER weight"}, persisted.Recovery.Persisted)
	assert.Equal(t, domain.Adverse, persisted.OverallSeverity)
}

func TestSecondaryToBodyWeightLowersCertainty(t *testing.T) {
	summaries := hepatic()
	s := syndromeOf("XS01", domain.SyndromeHigh, summaries...)
	contexts := []domain.NormalizationContext{
		{Organ: "LIVER", DoseLevel: 3, Tier: 3, Mode: domain.ModeBodyWeight, BodyWeightG: 1.4},
	}

	result := Interpret(s, Context{Summaries: summaries, Contexts: contexts})
	require.NotNil(t, result.SecondaryToBW)
	assert.True(t, result.SecondaryToBW.IsSecondary)
	assert.Equal(t, domain.ConfidenceLow, result.SecondaryToBW.Confidence)
	assert.Equal(t, domain.CertaintyModerate, result.Certainty)
	assert.Equal(t, domain.PotentiallyAdverse, result.OverallSeverity)
}

func TestSecondaryVerdictOnlyForWeightSyndromes(t *testing.T) {
	alt := endpoint("ALT", domain.DomainLB, "hepatic", domain.PatternMonotonicIncrease, f(0.001), domain.SeverityAdverse)
	s := syndromeOf("XS01", domain.SyndromeHigh, alt)
	contexts := []domain.NormalizationContext{{Organ: "LIVER", DoseLevel: 3, Tier: 4, BodyWeightG: 2.5}}

	result := Interpret(s, Context{Summaries: []domain.EndpointSummary{alt}, Contexts: contexts})
	assert.Nil(t, result.SecondaryToBW)
}

func TestSecondaryVerdictSeesStressSyndrome(t *testing.T) {
	prostate := endpoint("PROSTATE weight", domain.DomainOM, "reproductive", domain.PatternMonotonicDecrease, f(0.01), domain.SeverityAdverse)
	prostate.Specimen = "PROSTATE"
	prostate.Direction = dir(domain.DirectionDown)
	s := syndromeOf("XS99", domain.SyndromeModerate, prostate)
	stress := domain.CrossDomainSyndrome{ID: "XS08"}
	contexts := []domain.NormalizationContext{{Organ: "PROSTATE", DoseLevel: 3, Tier: 3, BodyWeightG: 1.2}}

	alone := Interpret(s, Context{Summaries: []domain.EndpointSummary{prostate}, Contexts: contexts, Syndromes: []domain.CrossDomainSyndrome{s}})
	require.NotNil(t, alone.SecondaryToBW)
	assert.False(t, alone.SecondaryToBW.IsSecondary)
	assert.Equal(t, domain.ConfidenceLow, alone.SecondaryToBW.Confidence)

	withStress := Interpret(s, Context{Summaries: []domain.EndpointSummary{prostate}, Contexts: contexts, Syndromes: []domain.CrossDomainSyndrome{s, stress}})
	require.NotNil(t, withStress.SecondaryToBW)
	assert.Equal(t, domain.ConfidenceMedium, withStress.SecondaryToBW.Confidence)
	assert.Contains(t, withStress.SecondaryToBW.Rationale, "stress syndrome")
}

func TestSecondaryVerdictAcrossOrganWeights(t *testing.T) {
	organ := func(specimen string) domain.EndpointSummary {
		ep := endpoint(specimen+" weight", domain.DomainOM, "lymphoid", domain.PatternMonotonicDecrease, f(0.01), domain.SeverityAdverse)
		ep.Specimen = specimen
		ep.Direction = dir(domain.DirectionDown)
		return ep
	}
	thymus, spleen, testis := organ("THYMUS"), organ("SPLEEN"), organ("TESTIS")

	tests := []struct {
		name      string
		endpoints []domain.EndpointSummary
		contexts  []domain.NormalizationContext
		wantNil   bool
		secondary bool
		organ     string
	}{
		{
			name:      "every organ secondary",
			endpoints: []domain.EndpointSummary{thymus, spleen},
			contexts: []domain.NormalizationContext{
				{Organ: "THYMUS", DoseLevel: 3, Tier: 3, BodyWeightG: 1.4},
				{Organ: "SPLEEN", DoseLevel: 3, Tier: 4, BodyWeightG: 2.2},
			},
			secondary: true,
			organ:     "THYMUS",
		},
		{
			name:      "second organ unconfounded",
			endpoints: []domain.EndpointSummary{thymus, spleen},
			contexts: []domain.NormalizationContext{
				{Organ: "THYMUS", DoseLevel: 3, Tier: 3, BodyWeightG: 1.4},
				{Organ: "SPLEEN", DoseLevel: 3, Tier: 1, BodyWeightG: 0.2},
			},
			wantNil: true,
		},
		{
			name:      "gonad verdict outweighs a secondary organ",
			endpoints: []domain.EndpointSummary{thymus, testis},
			contexts: []domain.NormalizationContext{
				{Organ: "THYMUS", DoseLevel: 3, Tier: 3, BodyWeightG: 1.4},
				{Organ: "TESTIS", DoseLevel: 3, Tier: 3, BodyWeightG: 1.4},
			},
			secondary: false,
			organ:     "TESTIS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := syndromeOf("XS07", domain.SyndromeModerate, tt.endpoints...)
			result := Interpret(s, Context{Summaries: tt.endpoints, Contexts: tt.contexts, Syndromes: []domain.CrossDomainSyndrome{s}})
			if tt.wantNil {
				assert.Nil(t, result.SecondaryToBW)
				return
			}
			require.NotNil(t, result.SecondaryToBW)
			assert.Equal(t, tt.secondary, result.SecondaryToBW.IsSecondary)
			assert.Equal(t, tt.organ, result.SecondaryToBW.Organ)
		})
	}
}

func TestCertaintyCappedByTreatmentRelatedness(t *testing.T) {
	flat := endpoint("ALT", domain.DomainLB, "hepatic", domain.PatternFlat, f(0.3), domain.SeverityAdverse)
	s := syndromeOf("XS01", domain.SyndromeHigh, flat)

	result := Interpret(s, Context{Summaries: []domain.EndpointSummary{flat}})
	assert.Equal(t, domain.NotTreatmentRelated, result.TreatmentRelatedness.Overall)
	assert.Equal(t, domain.CertaintyLow, result.Certainty)
	assert.Equal(t, domain.NonAdverse, result.OverallSeverity)
	assert.Contains(t, result.CertaintyRationale, "capped at low: not treatment-related")
}

func TestMortalityContext(t *testing.T) {
	summaries := hepatic()
	s := syndromeOf("XS01", domain.SyndromeModerate, summaries...)
	deaths := []domain.MortalityRecord{
		{DoseLevel: 3, Sex: domain.SexMale, OrganSystem: "Hepatic", TreatmentRelated: true},
		{DoseLevel: 2, Sex: domain.SexFemale, OrganSystem: "hepatic", TreatmentRelated: true},
		{DoseLevel: 3, Sex: domain.SexFemale, OrganSystem: "hepatic", TreatmentRelated: true},
		{DoseLevel: 3, Sex: domain.SexMale, OrganSystem: "renal", TreatmentRelated: true},
		{DoseLevel: 1, Sex: domain.SexMale, OrganSystem: "hepatic", TreatmentRelated: false},
	}

	result := Interpret(s, Context{Summaries: summaries, Mortality: deaths})
	assert.Equal(t, 3, result.Mortality.TreatmentRelatedDeaths)
	assert.Equal(t, []int{2, 3}, result.Mortality.DoseLevels)
	assert.Contains(t, result.Mortality.Note, "dose level(s) 2, 3")
	assert.Equal(t, domain.Adverse, result.OverallSeverity)

	other := assessMortality(map[string]bool{"cardiovascular": true}, deaths)
	assert.Equal(t, 0, other.TreatmentRelatedDeaths)
	assert.Contains(t, other.Note, "4 treatment-related death(s) not attributed")
}

func TestFoodConsumptionContext(t *testing.T) {
	bw := endpoint("Body weight", domain.DomainBW, "general", domain.PatternMonotonicDecrease, f(0.001), domain.SeverityAdverse)
	bw.Direction = dir(domain.DirectionDown)
	fw := endpoint("Food consumption", domain.DomainFW, "general", domain.PatternMonotonicDecrease, f(0.01), domain.SeverityWarning)
	fw.Direction = dir(domain.DirectionDown)
	s := syndromeOf("XS09", domain.SyndromeModerate, bw)

	assert.Contains(t, foodConsumption(s, []domain.EndpointSummary{bw, fw}), "reduced intake")
	assert.Contains(t, foodConsumption(s, []domain.EndpointSummary{bw, {EndpointLabel: "Food", Domain: domain.DomainFW}}), "systemic toxicity")
	assert.Empty(t, foodConsumption(s, []domain.EndpointSummary{bw}))

	lab := syndromeOf("XS01", domain.SyndromeHigh, hepatic()[0])
	assert.Empty(t, foodConsumption(lab, []domain.EndpointSummary{fw}))
}

func TestTumorContext(t *testing.T) {
	summaries := hepatic()
	s := syndromeOf("XS01", domain.SyndromeModerate, summaries...)

	benign := []domain.TumorFinding{{Specimen: "liver", Finding: "ADENOMA", DoseLevel: 3, TreatmentRelated: false}}
	result := Interpret(s, Context{Summaries: summaries, Tumors: benign})
	assert.Contains(t, result.TumorContext, "none treatment-related")

	malignant := []domain.TumorFinding{
		{Specimen: "LIVER", Finding: "HEPATOCELLULAR CARCINOMA", DoseLevel: 3, Malignant: true, TreatmentRelated: true},
		{Specimen: "KIDNEY", Finding: "ADENOMA", DoseLevel: 3, TreatmentRelated: true},
	}
	result = Interpret(s, Context{Summaries: summaries, Tumors: malignant})
	assert.Equal(t, "1 treatment-related tumor finding(s) in affected organs, 1 malignant", result.TumorContext)
	assert.Equal(t, domain.Adverse, result.OverallSeverity)
	assert.Contains(t, result.CertaintyRationale, result.TumorContext)
}

func TestInterpretAllIsDeterministic(t *testing.T) {
	summaries := hepatic()
	s := syndromeOf("XS01", domain.SyndromeHigh, summaries...)
	c := Context{Summaries: summaries, Syndromes: []domain.CrossDomainSyndrome{s, s}}

	in := NewInterpreter(normalization.DefaultPolicy())
	first := in.InterpretAll(c)
	require.Len(t, first, 2)
	assert.Equal(t, first, in.InterpretAll(c))
	assert.Equal(t, first[0], first[1])
}
