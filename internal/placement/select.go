package placement

import (
	"sort"

	"github.com/shardgate/controlplane/internal/reliability"
)

// Candidate is one ranked selection result.
type Candidate struct {
	Node  *reliability.Node `json:"node"`
	Score float64           `json:"score"`
}

// PickCandidates greedily selects up to count nodes, highest score first,
// preferring region and then ASN diversity: a candidate from an
// already-represented region is passed over when an unrepresented region still
// has a candidate in the pool. Ineligible nodes (quarantined, offline,
// anomalous) never appear regardless of raw score.
func PickCandidates(nodes []*reliability.Node, count int, objective Objective) []Candidate {
	pool := make([]Candidate, 0, len(nodes))
	for _, n := range nodes {
		if !Eligible(n) {
			continue
		}
		pool = append(pool, Candidate{Node: n, Score: ScoreCandidate(n, objective)})
	}
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].Score != pool[j].Score {
			return pool[i].Score > pool[j].Score
		}
		return pool[i].Node.ID < pool[j].Node.ID
	})

	if count <= 0 {
		return []Candidate{}
	}

	selected := make([]Candidate, 0, count)
	seenRegion := make(map[string]bool)
	seenASN := make(map[int]bool)
	used := make([]bool, len(pool))

	for len(selected) < count {
		idx := -1
		// First pass: best candidate from an unrepresented region.
		for i, c := range pool {
			if !used[i] && !seenRegion[c.Node.Region] {
				idx = i
				break
			}
		}
		// Second: unrepresented ASN.
		if idx < 0 {
			for i, c := range pool {
				if !used[i] && !seenASN[c.Node.ASN] {
					idx = i
					break
				}
			}
		}
		// Fall back to raw score order.
		if idx < 0 {
			for i := range pool {
				if !used[i] {
					idx = i
					break
				}
			}
		}
		if idx < 0 {
			break
		}
		used[idx] = true
		c := pool[idx]
		seenRegion[c.Node.Region] = true
		seenASN[c.Node.ASN] = true
		selected = append(selected, c)
	}
	return selected
}
