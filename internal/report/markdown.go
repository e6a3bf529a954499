// Package report renders analysis results as documents for study reviewers:
// a Markdown or HTML summary and an Excel workbook of the full analysis.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gomarkdown/markdown"

	"github.com/tox-signal-mcp-server/internal/service"
)

// Markdown renders the digest as a Markdown document.
func Markdown(d service.AnalysisDigest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Study %s\n\n", d.StudyID)
	fmt.Fprintf(&b, "Analyzed %s. %d endpoints.\n", d.AnalyzedAt, d.EndpointCount)
	if len(d.CoherentOrgans) > 0 {
		fmt.Fprintf(&b, "Coherent organ systems (3+ domains): %s.\n", strings.Join(d.CoherentOrgans, ", "))
	}
	if d.InputDigest != "" {
		fmt.Fprintf(&b, "Input digest `%s`.\n", d.InputDigest)
	}

	b.WriteString("\n## Syndromes\n\n")
	if len(d.Syndromes) == 0 {
		b.WriteString("None detected.\n")
	} else {
		b.WriteString("| ID | Name | Confidence | Treatment relatedness | Certainty | Severity |\n")
		b.WriteString("|---|---|---|---|---|---|\n")
		for _, s := range d.Syndromes {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
				s.ID, escape(s.Name), s.Confidence, dash(string(s.TreatmentRelatedness)), dash(string(s.Certainty)), dash(string(s.Severity)))
		}
	}

	b.WriteString("\n## Lab clinical significance\n\n")
	if len(d.LabMatches) == 0 {
		b.WriteString("No rules matched.\n")
	} else {
		b.WriteString("| Rule | Name | Severity | Confidence |\n")
		b.WriteString("|---|---|---|---|\n")
		for _, m := range d.LabMatches {
			fmt.Fprintf(&b, "| %s | %s | %s | %d |\n", m.RuleID, escape(m.Name), m.Severity, m.Confidence)
		}
	}

	if len(d.GovernanceFlags) > 0 {
		b.WriteString("\n## Governance flags\n\n")
		for _, g := range d.GovernanceFlags {
			fmt.Fprintf(&b, "- %s\n", g)
		}
	}

	if len(d.Normalization) > 0 {
		b.WriteString("\n## Organ-weight normalization\n\n")
		b.WriteString("| Organ | Mode | Tier | Reviewer override |\n")
		b.WriteString("|---|---|---|---|\n")
		for _, organ := range sortedKeys(d.Normalization) {
			dec := d.Normalization[organ]
			override := "no"
			if dec.UserOverridden {
				override = "yes"
			}
			fmt.Fprintf(&b, "| %s | %s | %d | %s |\n", organ, dec.Mode, dec.MaxTier, override)
		}
	}

	if len(d.FloorViolations) > 0 {
		b.WriteString("\n## Magnitude floor violations\n\n")
		for _, label := range sortedKeys(d.FloorViolations) {
			fmt.Fprintf(&b, "- **%s**: %s\n", escape(label), d.FloorViolations[label])
		}
	}

	if len(d.SecondaryToBW) > 0 {
		fmt.Fprintf(&b, "\nOrgan-weight changes secondary to body weight: %s.\n", strings.Join(d.SecondaryToBW, ", "))
	}

	return b.String()
}

// HTML renders the Markdown report as an HTML fragment.
func HTML(d service.AnalysisDigest) []byte {
	return markdown.ToHTML([]byte(Markdown(d)), nil, nil)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// escape keeps pipes in names from splitting table cells.
func escape(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
