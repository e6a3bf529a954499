// Package analyte resolves free-text endpoint names to canonical lab analyte
// codes and maps analytes and specimens to organ systems.
//
// Every lookup table is an ordered slice; the first matching entry wins so
// resolution never depends on map iteration order.
package analyte

import (
	"strings"
	"unicode"
)

// Organ systems used across the pipeline.
const (
	SystemHepatic          = "hepatic"
	SystemRenal            = "renal"
	SystemHematologic      = "hematologic"
	SystemImmune           = "immune"
	SystemCardiovascular   = "cardiovascular"
	SystemEndocrine        = "endocrine"
	SystemReproductive     = "reproductive"
	SystemRespiratory      = "respiratory"
	SystemGastrointestinal = "gastrointestinal"
	SystemNervous          = "nervous"
	SystemMusculoskeletal  = "musculoskeletal"
	SystemIntegumentary    = "integumentary"
	SystemMetabolic        = "metabolic"
	SystemGeneral          = "general"
)

type synonymEntry struct {
	canonical string
	system    string
	synonyms  []string
}

var synonymTable = []synonymEntry{
	{"ALT", SystemHepatic, []string{"ALT", "ALAT", "SGPT", "ALANINE AMINOTRANSFERASE"}},
	{"AST", SystemHepatic, []string{"AST", "ASAT", "SGOT", "ASPARTATE AMINOTRANSFERASE"}},
	{"ALP", SystemHepatic, []string{"ALP", "ALKP", "ALKALINE PHOSPHATASE"}},
	{"GGT", SystemHepatic, []string{"GGT", "GAMMA GLUTAMYLTRANSFERASE", "GAMMA GLUTAMYL TRANSFERASE"}},
	{"SDH", SystemHepatic, []string{"SDH", "SORBITOL DEHYDROGENASE"}},
	{"BILEAC", SystemHepatic, []string{"BILEAC", "BILE ACIDS", "BILE ACID"}},
	{"TBILI", SystemHepatic, []string{"TBILI", "BILI", "TBIL", "TOTAL BILIRUBIN", "BILIRUBIN"}},
	{"ALB", SystemHepatic, []string{"ALB", "ALBUMIN"}},
	{"TP", SystemHepatic, []string{"PROT", "TP", "TOTAL PROTEIN"}},
	{"CHOL", SystemHepatic, []string{"CHOL", "CHOLESTEROL"}},
	{"TRIG", SystemMetabolic, []string{"TRIG", "TRIGLYCERIDES", "TRIGLYCERIDE"}},
	{"GLUC", SystemMetabolic, []string{"GLUC", "GLUCOSE"}},
	{"BUN", SystemRenal, []string{"BUN", "UREAN", "UREA NITROGEN", "UREA"}},
	{"CREAT", SystemRenal, []string{"CREAT", "CREATININE"}},
	{"K", SystemRenal, []string{"K", "POTASSIUM"}},
	{"SODIUM", SystemRenal, []string{"SODIUM", "NA"}},
	{"PHOS", SystemRenal, []string{"PHOS", "PHOSPHORUS", "PHOSPHATE"}},
	{"CA", SystemRenal, []string{"CA", "CALCIUM"}},
	{"UPROT", SystemRenal, []string{"UPROT", "URINE PROTEIN"}},
	{"MCHC", SystemHematologic, []string{"MCHC", "MEAN CORPUSCULAR HEMOGLOBIN CONCENTRATION"}},
	{"MCH", SystemHematologic, []string{"MCH", "MEAN CORPUSCULAR HEMOGLOBIN"}},
	{"HGB", SystemHematologic, []string{"HGB", "HB", "HEMOGLOBIN", "HAEMOGLOBIN"}},
	{"HCT", SystemHematologic, []string{"HCT", "HEMATOCRIT", "HAEMATOCRIT"}},
	{"RBC", SystemHematologic, []string{"RBC", "ERYTHROCYTES", "ERYTHROCYTE COUNT", "RED BLOOD CELL"}},
	{"RETIC", SystemHematologic, []string{"RETI", "RETIC", "RETICULOCYTES", "RETICULOCYTE"}},
	{"MCV", SystemHematologic, []string{"MCV", "MEAN CORPUSCULAR VOLUME"}},
	{"PLT", SystemHematologic, []string{"PLAT", "PLT", "PLATELETS", "PLATELET"}},
	{"WBC", SystemHematologic, []string{"WBC", "LEUKOCYTES", "LEUKOCYTE", "WHITE BLOOD CELL"}},
	{"NEUT", SystemHematologic, []string{"NEUT", "NEUTROPHILS", "NEUTROPHIL"}},
	{"LYMPH", SystemImmune, []string{"LYM", "LYMPH", "LYMPHOCYTES", "LYMPHOCYTE"}},
	{"CK", SystemCardiovascular, []string{"CK", "CPK", "CREATINE KINASE"}},
	{"TROPONIN", SystemCardiovascular, []string{"CTNI", "TROPONI", "TROPONIN"}},
}

type specimenEntry struct {
	keyword string
	system  string
}

// Longer keywords precede their prefixes ("BONE MARROW" before "BONE").
var specimenTable = []specimenEntry{
	{"LIVER", SystemHepatic},
	{"GALLBLADDER", SystemHepatic},
	{"KIDNEY", SystemRenal},
	{"URINARY BLADDER", SystemRenal},
	{"HEART", SystemCardiovascular},
	{"AORTA", SystemCardiovascular},
	{"BONE MARROW", SystemHematologic},
	{"SPLEEN", SystemHematologic},
	{"THYMUS", SystemImmune},
	{"LYMPH NODE", SystemImmune},
	{"TESTIS", SystemReproductive},
	{"TESTES", SystemReproductive},
	{"EPIDIDYMIS", SystemReproductive},
	{"EPIDIDYMIDES", SystemReproductive},
	{"PROSTATE", SystemReproductive},
	{"SEMINAL VESICLE", SystemReproductive},
	{"OVARY", SystemReproductive},
	{"OVARIES", SystemReproductive},
	{"UTERUS", SystemReproductive},
	{"VAGINA", SystemReproductive},
	{"CERVIX", SystemReproductive},
	{"MAMMARY", SystemReproductive},
	{"ADRENAL", SystemEndocrine},
	{"THYROID", SystemEndocrine},
	{"PITUITARY", SystemEndocrine},
	{"PANCREAS", SystemGastrointestinal},
	{"LUNG", SystemRespiratory},
	{"TRACHEA", SystemRespiratory},
	{"NASAL", SystemRespiratory},
	{"ESOPHAGUS", SystemGastrointestinal},
	{"STOMACH", SystemGastrointestinal},
	{"DUODENUM", SystemGastrointestinal},
	{"JEJUNUM", SystemGastrointestinal},
	{"ILEUM", SystemGastrointestinal},
	{"CECUM", SystemGastrointestinal},
	{"COLON", SystemGastrointestinal},
	{"RECTUM", SystemGastrointestinal},
	{"INTESTINE", SystemGastrointestinal},
	{"BRAIN", SystemNervous},
	{"SPINAL CORD", SystemNervous},
	{"NERVE", SystemNervous},
	{"SKELETAL MUSCLE", SystemMusculoskeletal},
	{"BONE", SystemMusculoskeletal},
	{"SKIN", SystemIntegumentary},
}

// normalize uppercases s, turns every non-alphanumeric rune into a space and
// pads the result so that whole-word containment is a substring test.
func normalize(s string) string {
	var b strings.Builder
	b.WriteByte(' ')
	lastSpace := true
	for _, r := range strings.ToUpper(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	if !lastSpace {
		b.WriteByte(' ')
	}
	return b.String()
}

func containsWord(haystack, word string) bool {
	return strings.Contains(haystack, normalize(word))
}

// Resolve maps a test code and free-text label to a canonical analyte code.
// An exact test-code match wins; otherwise the first synonym found as whole
// words in the label wins.
func Resolve(testCode, label string) (string, bool) {
	if code := strings.ToUpper(strings.TrimSpace(testCode)); code != "" {
		for _, e := range synonymTable {
			for _, syn := range e.synonyms {
				if syn == code {
					return e.canonical, true
				}
			}
		}
	}
	if strings.TrimSpace(label) == "" {
		return "", false
	}
	norm := normalize(label)
	for _, e := range synonymTable {
		for _, syn := range e.synonyms {
			if containsWord(norm, syn) {
				return e.canonical, true
			}
		}
	}
	return "", false
}

// SystemForAnalyte returns the organ system of a canonical analyte.
func SystemForAnalyte(canonical string) (string, bool) {
	for _, e := range synonymTable {
		if e.canonical == canonical {
			return e.system, true
		}
	}
	return "", false
}

// SystemForSpecimen returns the organ system of a specimen name.
func SystemForSpecimen(specimen string) (string, bool) {
	if strings.TrimSpace(specimen) == "" {
		return "", false
	}
	norm := normalize(specimen)
	for _, e := range specimenTable {
		if containsWord(norm, e.keyword) {
			return e.system, true
		}
	}
	return "", false
}

// OrganKey is the normalized organ identifier shared by organ-weight
// statistics, contexts and endpoint specimens.
func OrganKey(specimen string) string {
	return strings.ToUpper(strings.Join(strings.Fields(specimen), " "))
}
