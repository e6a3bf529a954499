// Package syndrome matches endpoint summaries against a catalog of named
// cross-domain toxicological syndromes.
package syndrome

import (
	"github.com/tox-signal-mcp-server/internal/domain"
)

// Term is one required or supporting element of a syndrome definition. An
// endpoint resolves to a term when its domain matches and it satisfies every
// non-empty selector (analytes, specimens, findings).
type Term struct {
	ID        string           `json:"id"`
	Label     string           `json:"label"`
	Role      domain.TermRole  `json:"role"`
	Domain    domain.Domain    `json:"domain"`
	Direction domain.Direction `json:"direction"`
	Analytes  []string         `json:"analytes,omitempty"`
	Specimens []string         `json:"specimens,omitempty"`
	Findings  []string         `json:"findings,omitempty"`
}

// Definition is a named syndrome.
type Definition struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Terms         []Term `json:"terms"`
	MinSupporting int    `json:"min_supporting"`
}

// StressSyndromeID identifies the stress response syndrome.
const StressSyndromeID = "XS08"

const (
	up     = domain.DirectionUp
	down   = domain.DirectionDown
	either = domain.DirectionAny

	required   = domain.RoleRequired
	supporting = domain.RoleSupporting
)

func lab(id, label string, role domain.TermRole, dir domain.Direction, analytes ...string) Term {
	return Term{ID: id, Label: label, Role: role, Domain: domain.DomainLB, Direction: dir, Analytes: analytes}
}

func organWeight(id string, role domain.TermRole, dir domain.Direction, specimens ...string) Term {
	label := specimens[0] + " weight"
	if dir == up {
		label += " increased"
	} else if dir == down {
		label += " decreased"
	}
	return Term{ID: id, Label: label, Role: role, Domain: domain.DomainOM, Direction: dir, Specimens: specimens}
}

func histo(id, label string, role domain.TermRole, specimens []string, findings ...string) Term {
	return Term{ID: id, Label: label, Role: role, Domain: domain.DomainMI, Direction: either, Specimens: specimens, Findings: findings}
}

// Catalog returns the syndrome definitions in detection order.
func Catalog() []Definition {
	return []Definition{
		{
			ID: "XS01", Name: "Hepatocellular injury", MinSupporting: 1,
			Terms: []Term{
				lab("XS01-T1", "ALT or AST increased", required, up, "ALT", "AST"),
				lab("XS01-T2", "SDH increased", supporting, up, "SDH"),
				organWeight("XS01-T3", supporting, up, "LIVER"),
				histo("XS01-T4", "Hepatocellular necrosis or degeneration", supporting, []string{"LIVER"},
					"NECROSIS", "DEGENERATION", "SINGLE CELL", "INFLAMMATION"),
				histo("XS01-T5", "Hepatocellular hypertrophy", supporting, []string{"LIVER"}, "HYPERTROPHY"),
			},
		},
		{
			ID: "XS02", Name: "Cholestatic injury", MinSupporting: 1,
			Terms: []Term{
				lab("XS02-T1", "ALP or GGT increased", required, up, "ALP", "GGT"),
				lab("XS02-T2", "Bilirubin increased", supporting, up, "TBILI"),
				lab("XS02-T3", "Bile acids increased", supporting, up, "BILEAC"),
				lab("XS02-T4", "Cholesterol increased", supporting, up, "CHOL"),
				histo("XS02-T5", "Bile duct hyperplasia or cholestasis", supporting, []string{"LIVER", "BILE DUCT"},
					"BILE DUCT", "CHOLESTASIS", "CHOLANGIO"),
				organWeight("XS02-T6", supporting, up, "LIVER"),
			},
		},
		{
			ID: "XS03", Name: "Nephrotoxicity", MinSupporting: 1,
			Terms: []Term{
				lab("XS03-T1", "Urea nitrogen or creatinine increased", required, up, "BUN", "CREAT"),
				organWeight("XS03-T2", supporting, up, "KIDNEY"),
				histo("XS03-T3", "Tubular degeneration or necrosis", supporting, []string{"KIDNEY"},
					"TUBUL", "NECROSIS", "BASOPHILIA", "NEPHROPATHY", "CAST"),
				lab("XS03-T4", "Urine protein increased", supporting, up, "UPROT"),
				lab("XS03-T5", "Potassium increased", supporting, up, "K"),
			},
		},
		{
			ID: "XS04", Name: "Bone marrow suppression", MinSupporting: 1,
			Terms: []Term{
				lab("XS04-T1", "Neutrophils, leukocytes or platelets decreased", required, down, "NEUT", "WBC", "PLT"),
				lab("XS04-T2", "Hemoglobin decreased", supporting, down, "HGB", "RBC", "HCT"),
				lab("XS04-T3", "Reticulocytes decreased", supporting, down, "RETIC"),
				histo("XS04-T4", "Bone marrow hypocellularity", supporting, []string{"BONE MARROW"},
					"HYPOCELLULAR", "DECREASED CELLULARITY", "ATROPHY"),
				organWeight("XS04-T5", supporting, down, "SPLEEN"),
			},
		},
		{
			ID: "XS05", Name: "Hemolytic anemia", MinSupporting: 1,
			Terms: []Term{
				lab("XS05-T1", "Red cell mass decreased", required, down, "HGB", "RBC", "HCT"),
				lab("XS05-T2", "Reticulocytes increased", required, up, "RETIC"),
				lab("XS05-T3", "Bilirubin increased", supporting, up, "TBILI"),
				organWeight("XS05-T4", supporting, up, "SPLEEN"),
				histo("XS05-T5", "Extramedullary hematopoiesis or pigment", supporting, []string{"SPLEEN", "LIVER"},
					"EXTRAMEDULLARY", "HEMOSIDER", "PIGMENT", "CONGESTION"),
			},
		},
		{
			ID: "XS06", Name: "Phospholipidosis", MinSupporting: 1,
			Terms: []Term{
				histo("XS06-T1", "Foamy macrophages or vacuolation", required, nil,
					"FOAMY", "PHOSPHOLIPIDOSIS", "VACUOLATION"),
				organWeight("XS06-T2", supporting, up, "LUNG"),
				organWeight("XS06-T3", supporting, up, "LIVER"),
				lab("XS06-T4", "Cholesterol increased", supporting, up, "CHOL"),
			},
		},
		{
			ID: "XS07", Name: "Immunotoxicity", MinSupporting: 1,
			Terms: []Term{
				histo("XS07-T1", "Lymphoid depletion or atrophy", required, []string{"THYMUS", "LYMPH NODE", "SPLEEN"},
					"LYMPHOID DEPLETION", "LYMPHOCYTE DEPLETION", "ATROPHY", "DECREASED CELLULARITY"),
				organWeight("XS07-T2", supporting, down, "THYMUS"),
				organWeight("XS07-T3", supporting, down, "SPLEEN"),
				lab("XS07-T4", "Lymphocytes decreased", supporting, down, "LYMPH"),
				lab("XS07-T5", "Leukocytes decreased", supporting, down, "WBC"),
			},
		},
		{
			ID: StressSyndromeID, Name: "Stress response", MinSupporting: 1,
			Terms: []Term{
				organWeight("XS08-T1", required, up, "ADRENAL"),
				organWeight("XS08-T2", supporting, down, "THYMUS"),
				lab("XS08-T3", "Lymphocytes decreased", supporting, down, "LYMPH"),
				{ID: "XS08-T4", Label: "Body weight decreased", Role: supporting, Domain: domain.DomainBW, Direction: down},
				histo("XS08-T5", "Adrenal cortical hypertrophy", supporting, []string{"ADRENAL"}, "HYPERTROPHY"),
			},
		},
		{
			ID: "XS09", Name: "Wasting / body-weight loss", MinSupporting: 1,
			Terms: []Term{
				{ID: "XS09-T1", Label: "Body weight decreased", Role: required, Domain: domain.DomainBW, Direction: down},
				{ID: "XS09-T2", Label: "Food consumption decreased", Role: supporting, Domain: domain.DomainFW, Direction: down},
				{ID: "XS09-T3", Label: "Thin or emaciated appearance", Role: supporting, Domain: domain.DomainCL, Direction: either,
					Findings: []string{"THIN", "EMACIAT", "HUNCHED", "DEHYDRAT"}},
				lab("XS09-T4", "Glucose decreased", supporting, down, "GLUC"),
				lab("XS09-T5", "Albumin decreased", supporting, down, "ALB"),
			},
		},
		{
			ID: "XS10", Name: "Cardiotoxicity", MinSupporting: 1,
			Terms: []Term{
				histo("XS10-T1", "Myocardial degeneration or necrosis", required, []string{"HEART"},
					"NECROSIS", "DEGENERATION", "CARDIOMYOPATHY", "INFLAMMATION", "FIBROSIS"),
				lab("XS10-T2", "Troponin increased", supporting, up, "TROPONIN"),
				lab("XS10-T3", "Creatine kinase increased", supporting, up, "CK"),
				organWeight("XS10-T4", supporting, up, "HEART"),
			},
		},
	}
}

// Lookup returns the definition with the given id.
func Lookup(id string) (Definition, bool) {
	for _, d := range Catalog() {
		if d.ID == id {
			return d, true
		}
	}
	return Definition{}, false
}
