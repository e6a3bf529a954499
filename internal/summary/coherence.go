package summary

import (
	"sort"

	"github.com/tox-signal-mcp-server/internal/domain"
)

// DeriveOrganCoherence counts, per organ system, the distinct domains that
// contribute at least one adverse, warning or treatment-related endpoint.
// Organs without such an endpoint are absent from the result.
func DeriveOrganCoherence(summaries []domain.EndpointSummary) map[string]domain.OrganCoherence {
	type acc struct {
		domains map[domain.Domain]bool
		labels  []string
	}
	byOrgan := make(map[string]*acc)
	for _, s := range summaries {
		if !s.IsSignificant() {
			continue
		}
		a, ok := byOrgan[s.OrganSystem]
		if !ok {
			a = &acc{domains: make(map[domain.Domain]bool)}
			byOrgan[s.OrganSystem] = a
		}
		a.domains[s.Domain] = true
		a.labels = append(a.labels, s.EndpointLabel)
	}

	out := make(map[string]domain.OrganCoherence, len(byOrgan))
	for organ, a := range byOrgan {
		domains := make([]domain.Domain, 0, len(a.domains))
		for d := range a.domains {
			domains = append(domains, d)
		}
		sort.Slice(domains, func(i, j int) bool { return domains[i] < domains[j] })
		out[organ] = domain.OrganCoherence{
			OrganSystem:    organ,
			DomainCount:    len(domains),
			Domains:        domains,
			EndpointLabels: a.labels,
		}
	}
	return out
}

// SortedOrgans orders organ systems by descending domain count, then name.
func SortedOrgans(coherence map[string]domain.OrganCoherence) []string {
	organs := make([]string, 0, len(coherence))
	for organ := range coherence {
		organs = append(organs, organ)
	}
	sort.Slice(organs, func(i, j int) bool {
		ci, cj := coherence[organs[i]].DomainCount, coherence[organs[j]].DomainCount
		if ci != cj {
			return ci > cj
		}
		return organs[i] < organs[j]
	})
	return organs
}
