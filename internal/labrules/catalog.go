package labrules

import (
	"github.com/tox-signal-mcp-server/internal/analyte"
	"github.com/tox-signal-mcp-server/internal/domain"
)

const (
	up   = domain.DirectionUp
	down = domain.DirectionDown

	srcDILI      = "FDA Guidance: Drug-Induced Liver Injury, Premarketing Clinical Evaluation (2009)"
	srcBoone     = "Boone L et al., Vet Clin Pathol 2005;34:182-188"
	srcRamaiah   = "Ramaiah SK, Food Chem Toxicol 2007;45:1551-1557"
	srcEvans     = "Evans GO, Animal Clinical Chemistry, 2nd ed. (2009)"
	srcWeingand  = "Weingand K et al., Fundam Appl Toxicol 1996;29:198-201"
	srcEverds    = "Everds NE et al., Toxicol Pathol 2013;41:560-614"
	srcReagan    = "Reagan WJ et al., Toxicol Pathol 2013;41:1146-1158"
	srcHousekeep = "Laboratory reference interval governance"
)

// Catalog returns the rule table in evaluation order. The slice is freshly
// built on each call so callers may not alter shared state.
func Catalog() []Rule {
	return []Rule{
		{
			ID: "L01", Name: "ALT elevation >= 2x control", Category: domain.CategoryLiver, Severity: domain.LabS2,
			OrganSystem: analyte.SystemHepatic, Source: srcBoone,
			Params:           []Param{req("ALT", up)},
			Conditions:       []Condition{foldAtLeast("ALT", 2)},
			RelatedSyndromes: []string{"XS01"},
		},
		{
			ID: "L02", Name: "ALT elevation >= 5x control", Category: domain.CategoryLiver, Severity: domain.LabS3,
			OrganSystem: analyte.SystemHepatic, Source: srcDILI,
			Params:           []Param{req("ALT", up)},
			Conditions:       []Condition{foldAtLeast("ALT", 5)},
			RelatedSyndromes: []string{"XS01"},
		},
		{
			ID: "L03", Name: "Transaminase with bilirubin elevation (Hy's law pattern)", Category: domain.CategoryLiver, Severity: domain.LabS4,
			OrganSystem: analyte.SystemHepatic, Source: srcDILI,
			Params:           []Param{req("ALT", up), req("TBILI", up)},
			Conditions:       []Condition{foldAtLeast("ALT", 3), foldAtLeast("TBILI", 2)},
			RelatedSyndromes: []string{"XS01", "XS02"},
		},
		{
			ID: "L04", Name: "Hepatocellular enzyme pattern", Category: domain.CategoryLiver, Severity: domain.LabS2,
			OrganSystem: analyte.SystemHepatic, Source: srcRamaiah,
			Params:           []Param{req("ALT", up), req("AST", up), sup("SDH", up)},
			RelatedSyndromes: []string{"XS01"},
		},
		{
			ID: "L05", Name: "Cholestatic enzyme pattern", Category: domain.CategoryLiver, Severity: domain.LabS2,
			OrganSystem: analyte.SystemHepatic, Source: srcRamaiah,
			Params:           []Param{req("ALP", up), sup("GGT", up), sup("TBILI", up), sup("BILEAC", up)},
			MinSupporting:    1,
			RelatedSyndromes: []string{"XS02"},
		},
		{
			ID: "L06", Name: "Transaminase elevation with multi-domain hepatic convergence", Category: domain.CategoryLiver, Severity: domain.LabS3,
			OrganSystem: analyte.SystemHepatic, Source: srcBoone,
			Params:           []Param{req("ALT", up), sup("AST", up)},
			Conditions:       []Condition{{Kind: CondOrganCoherence, System: analyte.SystemHepatic, Value: 3}},
			RelatedSyndromes: []string{"XS01"},
		},
		{
			ID: "L07", Name: "Reduced hepatic synthetic function", Category: domain.CategoryLiver, Severity: domain.LabS2,
			OrganSystem: analyte.SystemHepatic, Source: srcEvans,
			Params:        []Param{req("ALB", down), sup("TP", down), sup("CHOL", down)},
			MinSupporting: 1,
		},
		{
			ID: "L08", Name: "Sorbitol dehydrogenase elevation", Category: domain.CategoryLiver, Severity: domain.LabS2,
			OrganSystem: analyte.SystemHepatic, Source: srcBoone, Species: []string{"rat", "mouse", "dog"},
			Params:           []Param{req("SDH", up)},
			Conditions:       []Condition{foldAtLeast("SDH", 2)},
			RelatedSyndromes: []string{"XS01"},
		},
		{
			ID: "L09", Name: "Serum bile acid elevation", Category: domain.CategoryLiver, Severity: domain.LabS2,
			OrganSystem: analyte.SystemHepatic, Source: srcBoone,
			Params:           []Param{req("BILEAC", up)},
			RelatedSyndromes: []string{"XS02"},
		},
		{
			ID: "L10", Name: "AST elevation of probable muscle origin", Category: domain.CategoryGraded, Severity: domain.LabS1,
			OrganSystem: analyte.SystemMusculoskeletal, Source: srcEvans,
			Params:     []Param{req("AST", up), req("CK", up)},
			Conditions: []Condition{{Kind: CondNotMoving, Analyte: "ALT", Direction: up}},
		},
		{
			ID: "L11", Name: "Azotemia", Category: domain.CategoryGraded, Severity: domain.LabS2,
			OrganSystem: analyte.SystemRenal, Source: srcEvans,
			Params:           []Param{req("BUN", up), req("CREAT", up)},
			RelatedSyndromes: []string{"XS03"},
		},
		{
			ID: "L12", Name: "Marked creatinine increase", Category: domain.CategoryGraded, Severity: domain.LabS3,
			OrganSystem: analyte.SystemRenal, Source: srcEvans,
			Params:           []Param{req("CREAT", up), sup("BUN", up)},
			Conditions:       []Condition{foldAtLeast("CREAT", 2)},
			RelatedSyndromes: []string{"XS03"},
		},
		{
			ID: "L13", Name: "Isolated urea nitrogen increase", Category: domain.CategoryGraded, Severity: domain.LabS1,
			OrganSystem: analyte.SystemRenal, Source: srcEvans,
			Params:     []Param{req("BUN", up)},
			Conditions: []Condition{{Kind: CondNotMoving, Analyte: "CREAT", Direction: up}},
		},
		{
			ID: "L14", Name: "Hyperkalemia", Category: domain.CategoryGraded, Severity: domain.LabS2,
			OrganSystem: analyte.SystemRenal, Source: srcWeingand,
			Params:     []Param{req("K", up)},
			Conditions: []Condition{{Kind: CondEffectAtLeast, Analyte: "K", Value: 1.0}},
		},
		{
			ID: "L15", Name: "Proteinuria", Category: domain.CategoryGraded, Severity: domain.LabS1,
			OrganSystem: analyte.SystemRenal, Source: srcWeingand,
			Params:           []Param{req("UPROT", up)},
			RelatedSyndromes: []string{"XS03"},
		},
		{
			ID: "L16", Name: "Anemia", Category: domain.CategoryGraded, Severity: domain.LabS2,
			OrganSystem: analyte.SystemHematologic, Source: srcWeingand,
			Params:           []Param{req("HGB", down), sup("HCT", down), sup("RBC", down)},
			MinSupporting:    1,
			RelatedSyndromes: []string{"XS04", "XS05"},
		},
		{
			ID: "L17", Name: "Marked anemia", Category: domain.CategoryGraded, Severity: domain.LabS3,
			OrganSystem: analyte.SystemHematologic, Source: srcWeingand,
			Params:           []Param{req("HGB", down), sup("HCT", down), sup("RBC", down)},
			Conditions:       []Condition{foldAtLeast("HGB", 1.5)},
			RelatedSyndromes: []string{"XS04", "XS05"},
		},
		{
			ID: "L18", Name: "Regenerative anemia", Category: domain.CategoryGraded, Severity: domain.LabS2,
			OrganSystem: analyte.SystemHematologic, Source: srcEvans,
			Params:           []Param{req("HGB", down), req("RETIC", up)},
			RelatedSyndromes: []string{"XS05"},
		},
		{
			ID: "L19", Name: "Non-regenerative anemia", Category: domain.CategoryGraded, Severity: domain.LabS3,
			OrganSystem: analyte.SystemHematologic, Source: srcEvans,
			Params:           []Param{req("HGB", down), req("RETIC", down)},
			RelatedSyndromes: []string{"XS04"},
		},
		{
			ID: "L20", Name: "Marked thrombocytopenia", Category: domain.CategoryGraded, Severity: domain.LabS3,
			OrganSystem: analyte.SystemHematologic, Source: srcWeingand,
			Params:           []Param{req("PLT", down)},
			Conditions:       []Condition{foldAtLeast("PLT", 2)},
			RelatedSyndromes: []string{"XS04"},
		},
		{
			ID: "L21", Name: "Neutropenia", Category: domain.CategoryGraded, Severity: domain.LabS2,
			OrganSystem: analyte.SystemHematologic, Source: srcWeingand,
			Params:           []Param{req("NEUT", down), sup("WBC", down)},
			RelatedSyndromes: []string{"XS04", "XS07"},
		},
		{
			ID: "L22", Name: "Stress-associated lymphopenia", Category: domain.CategoryGraded, Severity: domain.LabS1,
			OrganSystem: analyte.SystemImmune, Source: srcEverds,
			Params:           []Param{req("LYMPH", down)},
			Conditions:       []Condition{{Kind: CondSyndrome, SyndromeID: "XS08"}},
			RelatedSyndromes: []string{"XS08"},
		},
		{
			ID: "L23", Name: "Cardiac troponin elevation", Category: domain.CategoryGraded, Severity: domain.LabS3,
			OrganSystem: analyte.SystemCardiovascular, Source: srcReagan,
			Params:           []Param{req("TROPONIN", up), sup("CK", up)},
			RelatedSyndromes: []string{"XS10"},
		},
		{
			ID: "L24", Name: "Hypoglycemia", Category: domain.CategoryGraded, Severity: domain.LabS2,
			OrganSystem: analyte.SystemMetabolic, Source: srcEvans,
			Params:           []Param{req("GLUC", down)},
			Conditions:       []Condition{{Kind: CondEffectAtLeast, Analyte: "GLUC", Value: 1.0}},
			RelatedSyndromes: []string{"XS09"},
		},
		{
			ID: "G01", Name: "Reference intervals not established for species", Category: domain.CategoryGovernance, Severity: domain.LabS1,
			Source: srcHousekeep,
			Conditions: []Condition{
				{Kind: CondAnyLabSignal},
				{Kind: CondSpeciesOutside, Species: []string{"rat", "mouse", "dog", "monkey", "cynomolgus monkey", "rabbit", "minipig"}},
			},
		},
		{
			ID: "G02", Name: "Adverse lab finding confined to one sex", Category: domain.CategoryGovernance, Severity: domain.LabS1,
			Source:     srcHousekeep,
			Conditions: []Condition{{Kind: CondSingleSexAdverse}},
		},
	}
}

// ResolveCanonical maps an endpoint's test code and label to a canonical
// analyte code.
func ResolveCanonical(testCode, label string) (string, bool) {
	return analyte.Resolve(testCode, label)
}
