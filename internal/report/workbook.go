package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/tox-signal-mcp-server/internal/domain"
)

// Sheet names of the analysis workbook, in order.
const (
	SheetEndpoints   = "Endpoints"
	SheetSyndromes   = "Syndromes"
	SheetLabMatches  = "Lab Matches"
	SheetFloorChecks = "Floor Checks"
)

type sheet struct {
	name    string
	headers []string
	rows    [][]interface{}
}

// WriteWorkbook saves the analysis as an .xlsx workbook at path.
func WriteWorkbook(path string, a *domain.StudyAnalysis) error {
	f := excelize.NewFile()
	defer f.Close()

	sheets := []sheet{endpointSheet(a), syndromeSheet(a), labSheet(a), floorSheet(a)}
	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), s.name); err != nil {
				return fmt.Errorf("failed to name sheet %s: %w", s.name, err)
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return fmt.Errorf("failed to add sheet %s: %w", s.name, err)
		}
		if err := writeSheet(f, s); err != nil {
			return err
		}
	}
	f.SetActiveSheet(0)

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, s sheet) error {
	header := make([]interface{}, len(s.headers))
	for i, h := range s.headers {
		header[i] = h
	}
	if err := f.SetSheetRow(s.name, "A1", &header); err != nil {
		return fmt.Errorf("failed to write %s header: %w", s.name, err)
	}
	for r, row := range s.rows {
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(s.name, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", s.name, r+2, err)
		}
	}
	return nil
}

func endpointSheet(a *domain.StudyAnalysis) sheet {
	s := sheet{
		name: SheetEndpoints,
		headers: []string{"Endpoint", "Domain", "Organ system", "Severity", "Treatment related",
			"Pattern", "Direction", "Max |g|", "Max fold change", "Min p", "Peak dose", "NOAEL dose level", "LOAEL dose level"},
	}
	for _, ep := range a.Endpoints {
		s.rows = append(s.rows, []interface{}{
			ep.EndpointLabel, string(ep.Domain), ep.OrganSystem, string(ep.WorstSeverity), ep.TreatmentRelated,
			string(ep.Pattern), string(ep.DirectionValue()), floatCell(ep.MaxEffectSize), floatCell(ep.MaxFoldChange),
			floatCell(ep.MinPValue), ep.PeakDoseLevel, intCell(ep.NoaelDoseLevel), intCell(ep.LoaelDoseLevel),
		})
	}
	return s
}

func syndromeSheet(a *domain.StudyAnalysis) sheet {
	s := sheet{
		name: SheetSyndromes,
		headers: []string{"ID", "Name", "Confidence", "Support score", "Domains", "Matched endpoints",
			"Treatment relatedness", "Certainty", "Severity"},
	}
	interps := make(map[string]domain.SyndromeInterpretation, len(a.Interpretations))
	for _, in := range a.Interpretations {
		interps[in.SyndromeID] = in
	}
	for _, syn := range a.Syndromes {
		domains := make([]string, len(syn.DomainsCovered))
		for i, d := range syn.DomainsCovered {
			domains[i] = string(d)
		}
		labels := make([]string, len(syn.MatchedEndpoints))
		for i, m := range syn.MatchedEndpoints {
			labels[i] = m.EndpointLabel
		}
		in := interps[syn.ID]
		s.rows = append(s.rows, []interface{}{
			syn.ID, syn.Name, string(syn.Confidence), syn.SupportScore, strings.Join(domains, ", "), strings.Join(labels, "; "),
			string(in.TreatmentRelatedness.Overall), string(in.Certainty), string(in.OverallSeverity),
		})
	}
	return s
}

func labSheet(a *domain.StudyAnalysis) sheet {
	s := sheet{
		name:    SheetLabMatches,
		headers: []string{"Rule", "Name", "Category", "Severity", "Confidence", "Max fold change", "Matched endpoints"},
	}
	matches := append(append([]domain.LabClinicalMatch{}, a.LabMatches...), a.GovernanceMatches...)
	for _, m := range matches {
		s.rows = append(s.rows, []interface{}{
			m.RuleID, m.Name, string(m.Category), string(m.Severity), m.Confidence, m.MaxFoldChange(),
			strings.Join(m.MatchedEndpoints, "; "),
		})
	}
	return s
}

func floorSheet(a *domain.StudyAnalysis) sheet {
	s := sheet{
		name:    SheetFloorChecks,
		headers: []string{"Endpoint", "Passed", "Effect used", "Direct effect", "Tier", "Note"},
	}
	labels := make([]string, 0, len(a.FloorChecks))
	for label := range a.FloorChecks {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		c := a.FloorChecks[label]
		s.rows = append(s.rows, []interface{}{label, c.Passed, c.EffectUsed, c.UsedDirectEffect, c.Tier, c.Annotation()})
	}
	return s
}

func floatCell(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

func intCell(v *int) interface{} {
	if v == nil {
		return ""
	}
	return *v
}
