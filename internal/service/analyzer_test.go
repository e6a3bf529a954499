package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tox-signal-mcp-server/internal/domain"
)

func f(v float64) *float64 { return &v }

func row(d domain.Domain, code, specimen, finding string, dose int, g, p, fc float64, sev domain.Severity, pattern domain.Pattern) domain.RawFindingRow {
	return domain.RawFindingRow{
		StudyID:    "TOX-001",
		Domain:     d,
		TestCode:   code,
		Specimen:   specimen,
		Finding:    finding,
		Sex:        domain.SexMale,
		DoseLevel:  dose,
		Direction:  domain.DirectionUp,
		EffectSize: f(g),
		PValue:     f(p),
		FoldChange: f(fc),
		Severity:   sev,
		Pattern:    pattern,
	}
}

// hepatotoxicStudy is a rat study with a liver signal across three domains
// and no meaningful body-weight loss.
func hepatotoxicStudy() *domain.StudyInput {
	necrosis := row(domain.DomainMI, "", "LIVER", "NECROSIS", 3, 0, 0.01, 0, domain.SeverityAdverse, domain.PatternThresholdIncrease)
	necrosis.EffectSize, necrosis.FoldChange, necrosis.Incidence = nil, nil, f(0.4)

	return &domain.StudyInput{
		StudyID:  "TOX-001",
		Metadata: domain.StudyMetadata{Species: "Rat", Strain: "Sprague-Dawley", StudyType: "28-day"},
		Findings: []domain.RawFindingRow{
			row(domain.DomainLB, "ALT", "", "", 2, 1.0, 0.03, 1.5, domain.SeverityWarning, domain.PatternMonotonicIncrease),
			row(domain.DomainLB, "ALT", "", "", 3, 2.5, 0.001, 3.2, domain.SeverityAdverse, domain.PatternMonotonicIncrease),
			row(domain.DomainLB, "AST", "", "", 3, 1.8, 0.002, 2.1, domain.SeverityAdverse, domain.PatternMonotonicIncrease),
			row(domain.DomainOM, "", "LIVER", "", 3, 1.6, 0.001, 1.25, domain.SeverityAdverse, domain.PatternThresholdIncrease),
			necrosis,
		},
		BodyWeights: []domain.BodyWeightStat{
			{GroupStat: domain.GroupStat{DoseLevel: 3, Sex: domain.SexMale, Day: 1, EffectSize: f(0)}},
			{GroupStat: domain.GroupStat{DoseLevel: 3, Sex: domain.SexMale, Day: 28, EffectSize: f(-0.3)}},
		},
		OrganWeights: []domain.OrganWeightStat{
			{GroupStat: domain.GroupStat{DoseLevel: 3, Sex: domain.SexMale, EffectSize: f(1.6)}, Specimen: "LIVER", FoldChange: f(1.25)},
			{GroupStat: domain.GroupStat{DoseLevel: 3, Sex: domain.SexMale, EffectSize: f(0.1)}, Specimen: "BRAIN"},
		},
	}
}

func newTestAnalyzer() (*Analyzer, *test.Hook) {
	logger, hook := test.NewNullLogger()
	a := NewAnalyzer(logger, domain.DefaultAnalysisConfig())
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return fixed }
	return a, hook
}

func findSyndrome(analysis *domain.StudyAnalysis, id string) *domain.CrossDomainSyndrome {
	for i := range analysis.Syndromes {
		if analysis.Syndromes[i].ID == id {
			return &analysis.Syndromes[i]
		}
	}
	return nil
}

func TestAnalyzePipeline(t *testing.T) {
	a, hook := newTestAnalyzer()

	analysis, err := a.Analyze(context.Background(), hepatotoxicStudy())
	require.NoError(t, err)

	assert.Equal(t, "TOX-001", analysis.StudyID)
	assert.Len(t, analysis.Endpoints, 4)
	assert.Contains(t, analysis.OrganCoherence, "hepatic")
	assert.Equal(t, 3, analysis.OrganCoherence["hepatic"].DomainCount)

	xs01 := findSyndrome(analysis, "XS01")
	require.NotNil(t, xs01)
	assert.Equal(t, domain.SyndromeHigh, xs01.Confidence)

	require.Len(t, analysis.TermReports, len(analysis.Syndromes))
	require.Len(t, analysis.Interpretations, len(analysis.Syndromes))
	assert.Equal(t, domain.TreatmentRelated, analysis.Interpretations[0].TreatmentRelatedness.Overall)

	require.NotEmpty(t, analysis.LabMatches)
	for _, m := range analysis.LabMatches {
		assert.NotEqual(t, domain.CategoryGovernance, m.Category)
	}

	require.NotEmpty(t, analysis.NormalizationContexts)
	liver, ok := analysis.NormalizationDecisions["LIVER"]
	require.True(t, ok)
	assert.Equal(t, 1, liver.MaxTier)
	assert.Equal(t, domain.ModeAbsolute, liver.Mode)

	check, ok := analysis.FloorChecks["LIVER weight"]
	require.True(t, ok)
	assert.True(t, check.Passed)
	assert.NotContains(t, analysis.FloorChecks, "LIVER - NECROSIS")
	assert.Empty(t, analysis.SecondaryToBW)

	assert.Len(t, analysis.InputDigest, 64)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), analysis.AnalyzedAt)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "Study analysis completed", entry.Message)
	assert.Equal(t, "TOX-001", entry.Data["study_id"])
}

func TestAnalyzeIsIdempotent(t *testing.T) {
	a, _ := newTestAnalyzer()
	input := hepatotoxicStudy()

	first, err := a.Analyze(context.Background(), input)
	require.NoError(t, err)
	second, err := a.Analyze(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, first, second)

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.JSONEq(t, string(firstJSON), string(secondJSON))
}

func TestAnalyzeDoesNotMutateInput(t *testing.T) {
	a, _ := newTestAnalyzer()
	input := hepatotoxicStudy()
	input.Overrides = []domain.NormalizationOverride{{Organ: "liver", Mode: domain.ModeANCOVA, Reviewer: "pathologist"}}

	before, err := json.Marshal(input)
	require.NoError(t, err)

	_, err = a.Analyze(context.Background(), input)
	require.NoError(t, err)

	after, err := json.Marshal(input)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
}

func TestAnalyzeAppliesOverrides(t *testing.T) {
	a, _ := newTestAnalyzer()
	input := hepatotoxicStudy()
	input.Overrides = []domain.NormalizationOverride{{Organ: "LIVER", Mode: domain.ModeBodyWeight, Reviewer: "pathologist"}}

	analysis, err := a.Analyze(context.Background(), input)
	require.NoError(t, err)

	decision := analysis.NormalizationDecisions["LIVER"]
	assert.Equal(t, domain.ModeBodyWeight, decision.Mode)
	assert.True(t, decision.UserOverridden)
}

func TestAnalyzeSecondaryVerdicts(t *testing.T) {
	a, _ := newTestAnalyzer()
	input := hepatotoxicStudy()
	input.BodyWeights = append(input.BodyWeights, domain.BodyWeightStat{
		GroupStat: domain.GroupStat{DoseLevel: 3, Sex: domain.SexFemale, Day: 28, EffectSize: f(-1.5)},
	})
	input.OrganWeights = append(input.OrganWeights, domain.OrganWeightStat{
		GroupStat: domain.GroupStat{DoseLevel: 3, Sex: domain.SexMale, EffectSize: f(-0.2)}, Specimen: "TESTIS",
	})

	analysis, err := a.Analyze(context.Background(), input)
	require.NoError(t, err)

	liver, ok := analysis.SecondaryToBW["LIVER"]
	require.True(t, ok)
	assert.True(t, liver.IsSecondary)

	testis, ok := analysis.SecondaryToBW["TESTIS"]
	require.True(t, ok)
	assert.False(t, testis.IsSecondary)
	assert.Equal(t, domain.ConfidenceHigh, testis.Confidence)
}

func TestAnalyzeRejectsInvalidInput(t *testing.T) {
	a, _ := newTestAnalyzer()

	_, err := a.Analyze(context.Background(), nil)
	require.Error(t, err)

	input := hepatotoxicStudy()
	input.StudyID = ""
	_, err = a.Analyze(context.Background(), input)
	var vErr *domain.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "study_id", vErr.Field)

	input = hepatotoxicStudy()
	input.Findings[0].Domain = "XX"
	_, err = a.Analyze(context.Background(), input)
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "findings", vErr.Field)
}

func TestAnalyzeHonoursCancellation(t *testing.T) {
	a, _ := newTestAnalyzer()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Analyze(ctx, hepatotoxicStudy())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzeSparseInput(t *testing.T) {
	a, _ := newTestAnalyzer()
	input := &domain.StudyInput{
		StudyID: "SPARSE",
		Findings: []domain.RawFindingRow{
			{Domain: domain.DomainLB, TestCode: "ALT"},
			{Domain: domain.DomainCL, Finding: "Salivation"},
		},
	}

	analysis, err := a.Analyze(context.Background(), input)
	require.NoError(t, err)
	assert.Len(t, analysis.Endpoints, 2)
	assert.Empty(t, analysis.Syndromes)
	assert.Empty(t, analysis.LabMatches)
	assert.Empty(t, analysis.NormalizationContexts)
}

func TestInputDigest(t *testing.T) {
	a := hepatotoxicStudy()
	b := hepatotoxicStudy()

	da, err := InputDigest(a)
	require.NoError(t, err)
	db, err := InputDigest(b)
	require.NoError(t, err)
	assert.Equal(t, da, db)

	b.Findings[0].PValue = f(0.04)
	db, err = InputDigest(b)
	require.NoError(t, err)
	assert.NotEqual(t, da, db)
}
