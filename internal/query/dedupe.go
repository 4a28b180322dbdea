package query

import "github.com/legalrag/backend/internal/domain"

// LoadUnique collapses hits to distinct source identities, keeping the
// order in which each identity first appears. Excerpts are dropped.
func LoadUnique(hits []domain.RetrievedHit) []domain.SourceReference {
	seen := make(map[domain.SourceReference]struct{}, len(hits))
	out := make([]domain.SourceReference, 0, len(hits))
	for _, h := range hits {
		if _, ok := seen[h.SourceReference]; ok {
			continue
		}
		seen[h.SourceReference] = struct{}{}
		out = append(out, h.SourceReference)
	}
	return out
}

// LoadUniqueDocu dedupes on identity and excerpt together, so a source
// matched through different passages appears once per passage.
func LoadUniqueDocu(hits []domain.RetrievedHit) []domain.RetrievedHit {
	seen := make(map[domain.RetrievedHit]struct{}, len(hits))
	out := make([]domain.RetrievedHit, 0, len(hits))
	for _, h := range hits {
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}
