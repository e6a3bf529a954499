// Package studytest provides study bundles shared by the tests of the outer
// layers.
package studytest

import (
	"github.com/tox-signal-mcp-server/internal/domain"
)

// StudyID of the Hepatotoxic fixture.
const StudyID = "TOX-001"

func f(v float64) *float64 { return &v }

func row(d domain.Domain, code, specimen, finding string, dose int, g, p, fc float64, sev domain.Severity, pattern domain.Pattern) domain.RawFindingRow {
	return domain.RawFindingRow{
		StudyID:    StudyID,
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

// Hepatotoxic returns a rat study whose liver signal spans LB, OM and MI and
// is detected as hepatocellular injury. Body weight is essentially unchanged.
func Hepatotoxic() *domain.StudyInput {
	necrosis := row(domain.DomainMI, "", "LIVER", "NECROSIS", 3, 0, 0.01, 0, domain.SeverityAdverse, domain.PatternThresholdIncrease)
	necrosis.EffectSize, necrosis.FoldChange, necrosis.Incidence = nil, nil, f(0.4)

	return &domain.StudyInput{
		StudyID:  StudyID,
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
